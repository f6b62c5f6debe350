//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// hostAdapter returns the BlueZ adapter named by port, for example "hci0".
func hostAdapter(port string) (*bluetooth.Adapter, bool) {
	return bluetooth.NewAdapter(port), true
}
