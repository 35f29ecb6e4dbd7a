// Command hublink-scan discovers nearby hubs advertising the App 3
// service and prints their addresses for use in the config file.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/chaz8081/hublink/internal/hub"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	flag.Parse()

	log.Printf("Scanning for hubs (%s)...", *timeout)
	devices, err := hub.ScanForHubs(hub.NewBluetoothAdapter(), *timeout)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	if len(devices) == 0 {
		log.Println("No hubs found. Make sure the hub is on and its Bluetooth button is pressed.")
		return
	}

	fmt.Printf("Found %d hub(s):\n", len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-20s %s  RSSI %d\n", name, d.Address, d.RSSI)
	}
	fmt.Println("\nAdd to ~/.config/hublink/config.yaml:")
	fmt.Println("hubs:")
	for _, d := range devices {
		fmt.Printf("  - name: %s\n    address: %q\n", sanitizeName(d.Name), d.Address)
	}
}

// sanitizeName turns an advertised device name into a config-friendly key.
func sanitizeName(name string) string {
	if name == "" {
		return "hub"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "hub"
	}
	return string(out)
}
