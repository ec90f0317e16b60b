package ble

import (
	"fmt"
	"strings"
)

// Capabilities is the set of six properties a characteristic advertises.
// Field order matches the packed bit order, most significant bit first.
type Capabilities struct {
	WriteNoResponse bool
	Write           bool
	Read            bool
	Notify          bool
	Indicate        bool
	Broadcast       bool
}

const propertyMask = 0x3f

// Pack encodes c into its 6-bit form. Flag i contributes 1<<(5-i).
func Pack(c Capabilities) uint8 {
	var n uint8
	for i, set := range c.flags() {
		if set {
			n |= 1 << (5 - i)
		}
	}
	return n
}

// Unpack is the inverse of Pack. Bits above the low six are ignored.
func Unpack(n uint8) Capabilities {
	n &= propertyMask
	bit := func(i int) bool { return n&(1<<(5-i)) != 0 }
	return Capabilities{
		WriteNoResponse: bit(0),
		Write:           bit(1),
		Read:            bit(2),
		Notify:          bit(3),
		Indicate:        bit(4),
		Broadcast:       bit(5),
	}
}

func (c Capabilities) flags() [6]bool {
	return [6]bool{c.WriteNoResponse, c.Write, c.Read, c.Notify, c.Indicate, c.Broadcast}
}

// CanRead reports whether a read buffer may be attached.
func (c Capabilities) CanRead() bool { return c.Read }

// CanWrite reports whether a write buffer may be attached.
func (c Capabilities) CanWrite() bool { return c.Write || c.WriteNoResponse }

var capabilityNames = [6]string{"write_no_response", "write", "read", "notify", "indicate", "broadcast"}

// String lists the set flags, e.g. "read|notify".
func (c Capabilities) String() string {
	var names []string
	for i, set := range c.flags() {
		if set {
			names = append(names, capabilityNames[i])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseCapabilities builds a set from config names such as "read" or
// "write_no_response".
func ParseCapabilities(names []string) (Capabilities, error) {
	var n uint8
	for _, name := range names {
		found := false
		for i, known := range capabilityNames {
			if strings.EqualFold(strings.TrimSpace(name), known) {
				n |= 1 << (5 - i)
				found = true
				break
			}
		}
		if !found {
			return Capabilities{}, fmt.Errorf("ble: unknown characteristic property %q", name)
		}
	}
	return Unpack(n), nil
}

// Bluetooth Core characteristic property bits (Vol 3, Part G, 3.3.1.1).
const (
	gattBroadcast       uint8 = 0x01
	gattRead            uint8 = 0x02
	gattWriteNoResponse uint8 = 0x04
	gattWrite           uint8 = 0x08
	gattNotify          uint8 = 0x10
	gattIndicate        uint8 = 0x20
)

// GATTProperties converts c to the on-air property byte.
func (c Capabilities) GATTProperties() uint8 {
	var p uint8
	if c.Broadcast {
		p |= gattBroadcast
	}
	if c.Read {
		p |= gattRead
	}
	if c.WriteNoResponse {
		p |= gattWriteNoResponse
	}
	if c.Write {
		p |= gattWrite
	}
	if c.Notify {
		p |= gattNotify
	}
	if c.Indicate {
		p |= gattIndicate
	}
	return p
}

// CapabilitiesFromGATT converts an on-air property byte.
func CapabilitiesFromGATT(p uint8) Capabilities {
	return Capabilities{
		WriteNoResponse: p&gattWriteNoResponse != 0,
		Write:           p&gattWrite != 0,
		Read:            p&gattRead != 0,
		Notify:          p&gattNotify != 0,
		Indicate:        p&gattIndicate != 0,
		Broadcast:       p&gattBroadcast != 0,
	}
}
