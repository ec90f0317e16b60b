package ble

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/blerole/internal/ble/protocol"
)

// PeripheralState is a step of the peripheral workflow.
type PeripheralState int

const (
	PeripheralIdle PeripheralState = iota
	PeripheralServiceRegistered
	PeripheralAdvertising
	PeripheralConnected
	PeripheralStopping
)

func (s PeripheralState) String() string {
	switch s {
	case PeripheralIdle:
		return "idle"
	case PeripheralServiceRegistered:
		return "service-registered"
	case PeripheralAdvertising:
		return "advertising"
	case PeripheralConnected:
		return "connected"
	case PeripheralStopping:
		return "stopping"
	}
	return fmt.Sprintf("PeripheralState(%d)", int(s))
}

// PeripheralOptions configures a PeripheralSession.
type PeripheralOptions struct {
	Read          ReadOptions
	MaxLength     int
	WriteBuffer   int
	MaxPacketSize int
}

// DefaultPeripheralOptions returns sensible defaults.
func DefaultPeripheralOptions() PeripheralOptions {
	return PeripheralOptions{
		Read:          DefaultReadOptions(),
		MaxLength:     DefaultMaxLength,
		WriteBuffer:   DefaultMaxLength,
		MaxPacketSize: protocol.DefaultPacketSize,
	}
}

// PeripheralSession advertises one registered service and serves the host
// that connects to it.
type PeripheralSession struct {
	radio   Radio
	opts    PeripheralOptions
	service *Service

	state     PeripheralState
	connected bool
	reader    Reader
	writer    *WriteBuffer
}

// NewPeripheralSession wraps an already-registered service. Read and write
// buffers are attached to the service's first characteristic when its
// properties allow; a direction it does not support stays unbound.
func NewPeripheralSession(radio Radio, service *Service, opts PeripheralOptions) (*PeripheralSession, error) {
	if service == nil {
		return nil, fmt.Errorf("ble: peripheral session needs a registered service")
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = protocol.DefaultPacketSize
	}
	if opts.WriteBuffer < opts.MaxPacketSize {
		opts.WriteBuffer = opts.MaxPacketSize
	}

	p := &PeripheralSession{
		radio:   radio,
		opts:    opts,
		service: service,
		state:   PeripheralServiceRegistered,
	}
	if len(service.Characteristics) > 0 {
		ch := service.Characteristics[0]
		if r, err := NewReader(radio, ch, inboundReadOptions(opts.Read)); err == nil {
			p.reader = r
		} else if !errors.Is(err, ErrCapability) {
			return nil, err
		}
		if w, err := NewWriteBuffer(radio, ch, opts.WriteBuffer, opts.MaxPacketSize); err == nil {
			p.writer = w
		} else if !errors.Is(err, ErrCapability) {
			return nil, err
		}
	}
	if radio.Advertising() {
		p.state = PeripheralAdvertising
	}
	return p, nil
}

// inboundReadOptions forces a subscription-fed reader. The local value also
// holds what this session wrote, so only write events count as inbound.
// Without an explicit buffered timeout the read does not block the tick.
func inboundReadOptions(o ReadOptions) ReadOptions {
	if o.Mode != ReadBuffered {
		o.Timeout = 0
	}
	o.Mode = ReadBuffered
	return o
}

// State returns the current workflow step.
func (p *PeripheralSession) State() PeripheralState { return p.state }

// Service returns the registered service.
func (p *PeripheralSession) Service() *Service { return p.service }

// Advertising reports whether the radio is advertising.
func (p *PeripheralSession) Advertising() bool { return p.radio.Advertising() }

// Advertise starts advertising the registered service.
func (p *PeripheralSession) Advertise() error {
	if p.radio.Advertising() {
		return fmt.Errorf("ble: advertise %s: %w", FormatUUID(p.service.UUID), ErrAlreadyAdvertising)
	}
	if err := p.radio.Advertise(p.service); err != nil {
		return fmt.Errorf("ble: advertise %s: %w: %w", FormatUUID(p.service.UUID), ErrBluetooth, err)
	}
	if !p.connected {
		p.state = PeripheralAdvertising
	}
	slog.Info("[BLE] started advertising", "service", FormatUUID(p.service.UUID))
	return nil
}

// StopAdvertising stops advertising.
func (p *PeripheralSession) StopAdvertising() error {
	if !p.radio.Advertising() {
		return fmt.Errorf("ble: stop advertising: %w", ErrNotAdvertising)
	}
	prev := p.state
	p.state = PeripheralStopping
	if err := p.radio.StopAdvertising(); err != nil {
		p.state = prev
		return fmt.Errorf("ble: stop advertising: %w: %w", ErrBluetooth, err)
	}
	if p.connected {
		p.state = PeripheralConnected
	} else {
		p.state = PeripheralServiceRegistered
	}
	slog.Info("[BLE] stopped advertising")
	return nil
}

// Tick tracks the host link and, while a host is connected, reads the
// inbound buffer and writes payload to the outbound one.
func (p *PeripheralSession) Tick(payload string) (IOResult, error) {
	up := p.radio.Connected()
	switch {
	case up && !p.connected:
		p.connected = true
		p.state = PeripheralConnected
		slog.Info("[BLE] host connected")
	case !up && p.connected:
		return IOResult{Dropped: true}, p.onDisconnect()
	}
	if !up {
		return IOResult{}, nil
	}

	var res IOResult
	var errs []error
	if p.reader != nil {
		v, err := p.reader.ReadValue()
		if err != nil {
			errs = append(errs, err)
		}
		res.Read = v
	}
	if p.writer != nil {
		n, err := p.writer.WriteMessage(payload, p.opts.MaxLength, true)
		if err != nil {
			errs = append(errs, err)
		}
		res.Wrote = n
	}
	return res, errors.Join(errs...)
}

func (p *PeripheralSession) onDisconnect() error {
	slog.Info("[BLE] host disconnected")
	p.connected = false
	if p.reader != nil {
		p.reader.Reset()
	}
	p.state = PeripheralServiceRegistered
	if p.radio.Advertising() {
		return p.StopAdvertising()
	}
	return nil
}

// Close stops advertising and drops connection-scoped state. The service
// stays registered with the radio.
func (p *PeripheralSession) Close() error {
	var err error
	if p.radio.Advertising() {
		err = p.StopAdvertising()
	}
	p.connected = false
	if p.reader != nil {
		p.reader.Reset()
	}
	p.state = PeripheralIdle
	return err
}
