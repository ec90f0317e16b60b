//go:build !linux || baremetal

package ble

import "tinygo.org/x/bluetooth"

// adapterAddress is empty where the backend does not expose the local address.
func adapterAddress(*bluetooth.Adapter) Address { return "" }
