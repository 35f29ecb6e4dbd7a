// Package hub provides the BLE session layer for LEGO-style hubs running
// App 3 firmware: handshake, CRC-validated chunked program upload, program
// flow control, and the slot fast path. The hub cannot be talked to while a
// program runs, so every unit of work is a small program uploaded to a
// numbered slot and started.
package hub

import "context"

// BLE UUIDs for the App 3 hub service. RX is the host→hub write
// characteristic, TX the hub→host notify characteristic.
const (
	ServiceUUID = "0000fd02-0000-1000-8000-00805f9b34fb"
	RXCharUUID  = "0000fd02-0001-1000-8000-00805f9b34fb"
	TXCharUUID  = "0000fd02-0002-1000-8000-00805f9b34fb"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE hub.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a hub.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers hubs advertising the given service UUID until ctx is
	// cancelled or times out.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the hub at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
