package hub

import (
	"context"
	"fmt"
	"time"
)

// ScanForHubs scans for hubs advertising the App 3 service.
func ScanForHubs(adapter Adapter, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("hub: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("hub: scan: %w", err)
	}
	return devices, nil
}
