//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// hostAdapter returns the system adapter. Only Linux can address a specific
// controller, so port is ignored here.
func hostAdapter(string) (*bluetooth.Adapter, bool) {
	return bluetooth.DefaultAdapter, false
}
