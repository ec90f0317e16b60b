// Package ble implements a role-switching BLE controller: one device acts as
// either a GATT host (scan, connect, discover, read/write) or a GATT
// peripheral (advertise a service, accept a connection, serve reads/writes),
// with at most one role and one connection live at a time.
package ble

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Address is an opaque peer identifier as reported by the radio.
type Address string

// Advertisement is one observed advertising packet.
type Advertisement struct {
	Name         string
	Address      Address
	RSSI         int
	TxPower      int
	ScanResponse bool // peer answered an active scan request
}

// ScanParams are handed to the radio as-is. Interval, Window, Active and
// Extended are hints; backends that cannot honour them ignore them.
type ScanParams struct {
	BufferSize int
	Timeout    time.Duration
	Interval   time.Duration
	Window     time.Duration
	MinRSSI    int
	Active     bool
	Extended   bool
}

// Identity is the local radio's read-only identity.
type Identity struct {
	Name    string
	TxPower int
	Address Address
}

// Characteristic represents a BLE GATT characteristic, remote or local.
type Characteristic interface {
	UUID() uuid.UUID
	// Properties returns the packed capability bitmask (see Pack).
	Properties() uint8
	MaxLength() int
	// Value returns the current value.
	Value() ([]byte, error)
	// Write sends one packet (remote) or sets the value and notifies (local).
	Write(data []byte) (int, error)
	// Subscribe registers a callback for inbound data: notifications on a
	// remote characteristic, client writes on a local one.
	Subscribe(callback func(data []byte)) error
}

// Service is a GATT service and its characteristics in discovery or
// registration order.
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// CharacteristicConfig describes a local characteristic to register.
type CharacteristicConfig struct {
	UUID         uuid.UUID
	Capabilities Capabilities
	MaxLength    int
	FixedLength  bool
	Description  string
}

// ServiceConfig describes a local service to register.
type ServiceConfig struct {
	UUID            uuid.UUID
	Characteristics []CharacteristicConfig
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverServices lists remote services, limited to filter when non-empty.
	DiscoverServices(filter []uuid.UUID) ([]Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	Connected() bool
}

// Radio abstracts the BLE hardware for testing.
type Radio interface {
	Identity() Identity

	// Scan delivers advertisements to fn on the calling goroutine until the
	// timeout, ctx cancellation, or StopScan. A buffer overflow in the
	// backend is reported as ErrResourceExhausted.
	Scan(ctx context.Context, params ScanParams, fn func(Advertisement)) error
	// StopScan is safe to call when not scanning.
	StopScan() error
	Connect(ctx context.Context, addr Address) (Connection, error)
	// Connected reports whether any link is up, in either role.
	Connected() bool

	// AddService registers a local service; the returned characteristics
	// are in config order.
	AddService(cfg ServiceConfig) (*Service, error)
	Advertise(svc *Service) error
	StopAdvertising() error
	Advertising() bool
}
