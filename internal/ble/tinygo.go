package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// maxAttributeLength is the largest value an ATT attribute may hold.
const maxAttributeLength = 512

// stopRetryInterval spaces StopScan attempts made before the stack has
// actually started scanning.
const stopRetryInterval = 10 * time.Millisecond

// TinyGoRadio implements Radio on tinygo-org/bluetooth.
type TinyGoRadio struct {
	adapter *bluetooth.Adapter
	name    string
	address Address

	connected   atomic.Bool
	scanning    atomic.Bool
	advertising atomic.Bool

	// mu protects conn.
	mu   sync.Mutex
	conn *tinygoConnection
}

// NewTinyGoRadio creates a radio on the default adapter. name is used as the
// advertised local name.
func NewTinyGoRadio(name string) *TinyGoRadio {
	return &TinyGoRadio{
		adapter: bluetooth.DefaultAdapter,
		name:    name,
	}
}

// Enable powers on the adapter and installs the link-state handler.
func (r *TinyGoRadio) Enable() error {
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	r.address = adapterAddress(r.adapter)

	// Fires for links in both roles; connected=false on any disconnect.
	r.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		r.connected.Store(connected)
		if connected {
			return
		}
		r.mu.Lock()
		if r.conn != nil {
			r.conn.closed.Store(true)
			r.conn = nil
		}
		r.mu.Unlock()
	})
	return nil
}

// Identity reports the local name and, on backends that expose it, the
// adapter address. Tx power is not reported by tinygo and stays 0.
func (r *TinyGoRadio) Identity() Identity {
	return Identity{Name: r.name, Address: r.address}
}

func (r *TinyGoRadio) Scan(ctx context.Context, params ScanParams, fn func(Advertisement)) error {
	parent := ctx
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}
	size := params.BufferSize
	if size <= 0 {
		size = 64
	}

	results := make(chan Advertisement, size)
	var overflow atomic.Bool
	done := make(chan error, 1)

	r.scanning.Store(true)
	go func() {
		done <- r.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if params.MinRSSI != 0 && int(result.RSSI) < params.MinRSSI {
				return
			}
			adv := Advertisement{
				Name:    result.LocalName(),
				Address: Address(result.Address.String()),
				RSSI:    int(result.RSSI),
				// Scan response data is merged into the payload by the
				// stack, so every reported result counts as responsive.
				ScanResponse: true,
			}
			select {
			case results <- adv:
			default:
				if overflow.CompareAndSwap(false, true) {
					adapter.StopScan()
				}
			}
		})
	}()

	ctxDone := ctx.Done()
	var retry <-chan time.Time
	for {
		select {
		case adv := <-results:
			fn(adv)
		case <-ctxDone:
			ctxDone = nil
			retry = retryStop(r.adapter.StopScan)
		case <-retry:
			retry = retryStop(r.adapter.StopScan)
		case err := <-done:
			r.scanning.Store(false)
			for len(results) > 0 {
				fn(<-results)
			}
			if overflow.Load() {
				return ErrResourceExhausted
			}
			if err != nil {
				return fmt.Errorf("ble: scan: %w", err)
			}
			return parent.Err()
		}
	}
}

// retryStop calls stop and returns a channel that fires when stop should be
// tried again, or nil once it succeeded. StopScan fails until the scan
// goroutine has entered the stack's Scan.
func retryStop(stop func() error) <-chan time.Time {
	if err := stop(); err != nil {
		slog.Debug("[BLE] stop scan", "error", err)
		return time.After(stopRetryInterval)
	}
	return nil
}

func (r *TinyGoRadio) StopScan() error {
	if !r.scanning.Load() {
		return nil
	}
	return r.adapter.StopScan()
}

func (r *TinyGoRadio) Connect(ctx context.Context, addr Address) (Connection, error) {
	var a bluetooth.Address
	a.Set(string(addr))

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := r.adapter.Connect(a, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", addr, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", addr, res.err)
		}
		conn := &tinygoConnection{device: &res.device}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		r.connected.Store(true)
		return conn, nil
	}
}

func (r *TinyGoRadio) Connected() bool { return r.connected.Load() }

func (r *TinyGoRadio) AddService(cfg ServiceConfig) (*Service, error) {
	svcUUID, err := bluetooth.ParseUUID(cfg.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("ble: parse service uuid: %w", err)
	}

	locals := make([]*tinygoLocalCharacteristic, len(cfg.Characteristics))
	configs := make([]bluetooth.CharacteristicConfig, len(cfg.Characteristics))
	for i, cc := range cfg.Characteristics {
		charUUID, err := bluetooth.ParseUUID(cc.UUID.String())
		if err != nil {
			return nil, fmt.Errorf("ble: parse characteristic uuid: %w", err)
		}
		lc := &tinygoLocalCharacteristic{cfg: cc}
		if cc.FixedLength && cc.MaxLength > 0 {
			lc.value = make([]byte, cc.MaxLength)
		}
		locals[i] = lc
		configs[i] = bluetooth.CharacteristicConfig{
			Handle:     &lc.handle,
			UUID:       charUUID,
			Value:      lc.value,
			Flags:      bluetooth.CharacteristicPermissions(cc.Capabilities.GATTProperties()),
			WriteEvent: lc.onWrite,
		}
	}

	if err := r.adapter.AddService(&bluetooth.Service{
		UUID:            svcUUID,
		Characteristics: configs,
	}); err != nil {
		return nil, fmt.Errorf("ble: add service %s: %w", FormatUUID(cfg.UUID), err)
	}

	svc := &Service{UUID: cfg.UUID}
	for _, lc := range locals {
		svc.Characteristics = append(svc.Characteristics, lc)
	}
	return svc, nil
}

func (r *TinyGoRadio) Advertise(svc *Service) error {
	svcUUID, err := bluetooth.ParseUUID(svc.UUID.String())
	if err != nil {
		return fmt.Errorf("ble: parse service uuid: %w", err)
	}
	adv := r.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    r.name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	r.advertising.Store(true)
	return nil
}

func (r *TinyGoRadio) StopAdvertising() error {
	if err := r.adapter.DefaultAdvertisement().Stop(); err != nil {
		return fmt.Errorf("ble: stop advertisement: %w", err)
	}
	r.advertising.Store(false)
	return nil
}

func (r *TinyGoRadio) Advertising() bool { return r.advertising.Load() }

// Compile-time check that TinyGoRadio implements Radio.
var _ Radio = (*TinyGoRadio)(nil)

type tinygoConnection struct {
	device *bluetooth.Device
	closed atomic.Bool
}

func (c *tinygoConnection) DiscoverServices(filter []uuid.UUID) ([]Service, error) {
	var uuids []bluetooth.UUID
	for _, id := range filter {
		u, err := bluetooth.ParseUUID(id.String())
		if err != nil {
			return nil, fmt.Errorf("ble: parse filter uuid: %w", err)
		}
		uuids = append(uuids, u)
	}

	svcs, err := c.device.DiscoverServices(uuids)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	out := make([]Service, 0, len(svcs))
	for i := range svcs {
		id, err := uuid.Parse(svcs[i].UUID().String())
		if err != nil {
			return nil, fmt.Errorf("ble: service uuid: %w", err)
		}
		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", FormatUUID(id), err)
		}
		svc := Service{UUID: id}
		for j := range chars {
			cid, err := uuid.Parse(chars[j].UUID().String())
			if err != nil {
				return nil, fmt.Errorf("ble: characteristic uuid: %w", err)
			}
			svc.Characteristics = append(svc.Characteristics, &tinygoRemoteCharacteristic{id: cid, char: chars[j]})
		}
		out = append(out, svc)
	}
	return out, nil
}

func (c *tinygoConnection) Disconnect() error {
	c.closed.Store(true)
	return c.device.Disconnect()
}

func (c *tinygoConnection) Connected() bool { return !c.closed.Load() }

// remoteCapabilities is reported for every remote characteristic: the
// property byte is not exposed by all tinygo backends.
var remoteCapabilities = Capabilities{WriteNoResponse: true, Read: true, Notify: true}

type tinygoRemoteCharacteristic struct {
	id   uuid.UUID
	char bluetooth.DeviceCharacteristic
}

func (c *tinygoRemoteCharacteristic) UUID() uuid.UUID   { return c.id }
func (c *tinygoRemoteCharacteristic) Properties() uint8 { return Pack(remoteCapabilities) }
func (c *tinygoRemoteCharacteristic) MaxLength() int    { return DefaultMaxLength }

func (c *tinygoRemoteCharacteristic) Value() ([]byte, error) {
	buf := make([]byte, maxAttributeLength)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *tinygoRemoteCharacteristic) Write(data []byte) (int, error) {
	return c.char.WriteWithoutResponse(data)
}

func (c *tinygoRemoteCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

type tinygoLocalCharacteristic struct {
	handle bluetooth.Characteristic
	cfg    CharacteristicConfig

	mu          sync.Mutex
	value       []byte
	subscribers []func([]byte)
}

func (c *tinygoLocalCharacteristic) UUID() uuid.UUID   { return c.cfg.UUID }
func (c *tinygoLocalCharacteristic) Properties() uint8 { return Pack(c.cfg.Capabilities) }

func (c *tinygoLocalCharacteristic) MaxLength() int {
	if c.cfg.MaxLength > 0 {
		return c.cfg.MaxLength
	}
	return DefaultMaxLength
}

func (c *tinygoLocalCharacteristic) Value() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out, nil
}

func (c *tinygoLocalCharacteristic) Write(data []byte) (int, error) {
	if len(data) > c.MaxLength() {
		return 0, fmt.Errorf("ble: %d bytes exceeds max length %d", len(data), c.MaxLength())
	}
	n, err := c.handle.Write(data)
	if err != nil {
		return n, err
	}
	c.mu.Lock()
	c.value = append(c.value[:0], data...)
	c.mu.Unlock()
	return n, nil
}

func (c *tinygoLocalCharacteristic) Subscribe(cb func([]byte)) error {
	if cb == nil {
		return errors.New("ble: nil subscriber")
	}
	c.mu.Lock()
	c.subscribers = append(c.subscribers, cb)
	c.mu.Unlock()
	return nil
}

// onWrite runs on the stack's goroutine when the connected host writes.
func (c *tinygoLocalCharacteristic) onWrite(client bluetooth.Connection, offset int, value []byte) {
	data := make([]byte, len(value))
	copy(data, value)

	c.mu.Lock()
	c.value = append(c.value[:0], data...)
	subs := slices.Clone(c.subscribers)
	c.mu.Unlock()

	for _, cb := range subs {
		cb(data)
	}
}
