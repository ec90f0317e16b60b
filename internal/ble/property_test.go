package ble

import (
	"errors"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	for n := 0; n < 64; n++ {
		if got := Pack(Unpack(uint8(n))); got != uint8(n) {
			t.Errorf("Pack(Unpack(%d)) = %d", n, got)
		}
	}
}

func TestUnpackPackRoundTrip(t *testing.T) {
	for n := 0; n < 64; n++ {
		c := Unpack(uint8(n))
		if got := Unpack(Pack(c)); got != c {
			t.Errorf("Unpack(Pack(%+v)) = %+v", c, got)
		}
	}
}

func TestPackBitOrder(t *testing.T) {
	tests := []struct {
		caps Capabilities
		want uint8
	}{
		{Capabilities{WriteNoResponse: true}, 32},
		{Capabilities{Write: true}, 16},
		{Capabilities{Read: true}, 8},
		{Capabilities{Notify: true}, 4},
		{Capabilities{Indicate: true}, 2},
		{Capabilities{Broadcast: true}, 1},
		{Capabilities{WriteNoResponse: true, Read: true, Notify: true, Broadcast: true}, 45},
		{Capabilities{}, 0},
	}
	for _, tt := range tests {
		if got := Pack(tt.caps); got != tt.want {
			t.Errorf("Pack(%v) = %d, want %d", tt.caps, got, tt.want)
		}
	}
}

func TestUnpackMasksHighBits(t *testing.T) {
	if got, want := Unpack(0xC8), Unpack(0x08); got != want {
		t.Errorf("Unpack(0xC8) = %+v, want %+v", got, want)
	}
	if !Unpack(0xFF).Broadcast || Pack(Unpack(0xFF)) != 63 {
		t.Errorf("Unpack(0xFF) should set all six flags")
	}
}

func TestCanReadCanWrite(t *testing.T) {
	if !(Capabilities{Read: true}).CanRead() {
		t.Error("Read should allow reading")
	}
	if (Capabilities{Notify: true}).CanRead() {
		t.Error("Notify alone should not allow reading")
	}
	if !(Capabilities{WriteNoResponse: true}).CanWrite() || !(Capabilities{Write: true}).CanWrite() {
		t.Error("Write and WriteNoResponse should each allow writing")
	}
	if (Capabilities{Read: true, Broadcast: true}).CanWrite() {
		t.Error("Read|Broadcast should not allow writing")
	}
}

func TestCapabilitiesString(t *testing.T) {
	if got := (Capabilities{Read: true, Notify: true}).String(); got != "read|notify" {
		t.Errorf("String() = %q, want %q", got, "read|notify")
	}
	if got := (Capabilities{}).String(); got != "none" {
		t.Errorf("String() = %q, want %q", got, "none")
	}
}

func TestParseCapabilities(t *testing.T) {
	caps, err := ParseCapabilities([]string{"write_no_response", "READ", " notify", "broadcast"})
	if err != nil {
		t.Fatalf("ParseCapabilities() error = %v", err)
	}
	want := Capabilities{WriteNoResponse: true, Read: true, Notify: true, Broadcast: true}
	if caps != want {
		t.Errorf("ParseCapabilities() = %+v, want %+v", caps, want)
	}

	if _, err := ParseCapabilities([]string{"teleport"}); err == nil {
		t.Error("ParseCapabilities() should reject unknown names")
	}
}

func TestGATTConversion(t *testing.T) {
	for n := 0; n < 64; n++ {
		c := Unpack(uint8(n))
		if got := CapabilitiesFromGATT(c.GATTProperties()); got != c {
			t.Errorf("CapabilitiesFromGATT(GATTProperties(%v)) = %v", c, got)
		}
	}
	if got := (Capabilities{Read: true, Notify: true}).GATTProperties(); got != 0x12 {
		t.Errorf("GATTProperties() = 0x%02x, want 0x12", got)
	}
}

func TestParseReadMode(t *testing.T) {
	if m, err := ParseReadMode("buffered"); err != nil || m != ReadBuffered {
		t.Errorf("ParseReadMode(buffered) = %v, %v", m, err)
	}
	if m, err := ParseReadMode(""); err != nil || m != ReadDirect {
		t.Errorf("ParseReadMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseReadMode("stream"); err == nil || errors.Is(err, ErrCapability) {
		t.Errorf("ParseReadMode(stream) error = %v, want parse error", err)
	}
}
