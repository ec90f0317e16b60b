//go:build linux && !baremetal

package ble

import "tinygo.org/x/bluetooth"

func adapterAddress(a *bluetooth.Adapter) Address {
	mac, err := a.Address()
	if err != nil {
		return ""
	}
	return Address(mac.String())
}
