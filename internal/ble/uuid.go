package ble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth SIG base UUID that 16- and 32-bit short UUIDs
// are folded into.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ParseUUID accepts a short assigned number ("0x185A", "2BDE") or a full
// 128-bit UUID string.
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	short := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(short) <= 8 && !strings.Contains(short, "-") {
		n, err := strconv.ParseUint(short, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ble: parse uuid %q: %w", s, err)
		}
		return ShortUUID(uint32(n)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ble: parse uuid %q: %w", s, err)
	}
	return u, nil
}

// ShortUUID expands a 16- or 32-bit assigned number onto the base UUID.
func ShortUUID(n uint32) uuid.UUID {
	u := baseUUID
	u[0] = byte(n >> 24)
	u[1] = byte(n >> 16)
	u[2] = byte(n >> 8)
	u[3] = byte(n)
	return u
}

// Short16 returns the 16-bit assigned number for u and whether u is one.
func Short16(u uuid.UUID) (uint16, bool) {
	if u[0] != 0 || u[1] != 0 {
		return 0, false
	}
	for i := 4; i < 16; i++ {
		if u[i] != baseUUID[i] {
			return 0, false
		}
	}
	return uint16(u[2])<<8 | uint16(u[3]), true
}

// FormatUUID renders short UUIDs as "0x185A" and others in canonical form.
func FormatUUID(u uuid.UUID) string {
	if n, ok := Short16(u); ok {
		return fmt.Sprintf("0x%04X", n)
	}
	return u.String()
}
