package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/blerole/internal/ble/protocol"
)

// HostState is a step of the host workflow.
type HostState int

const (
	HostIdle HostState = iota
	HostScanning
	HostAwaitingSelection
	HostConnecting
	HostDiscoveringServices
	HostAwaitingServiceSelection
	HostAwaitingCharacteristicSelection
	HostBound
	HostDisconnecting
)

var hostStateNames = [...]string{
	"idle", "scanning", "awaiting-selection", "connecting", "discovering-services",
	"awaiting-service-selection", "awaiting-characteristic-selection", "bound", "disconnecting",
}

func (s HostState) String() string {
	if int(s) < len(hostStateNames) {
		return hostStateNames[s]
	}
	return fmt.Sprintf("HostState(%d)", int(s))
}

// HostOptions configures a HostSession.
type HostOptions struct {
	Scan          ScanOptions
	SettleDelay   time.Duration // pause after connecting before discovery
	ServiceFilter []uuid.UUID
	Read          ReadOptions
	MaxLength     int // clearing-write length
	WriteBuffer   int
	MaxPacketSize int
}

// DefaultHostOptions returns sensible defaults.
func DefaultHostOptions() HostOptions {
	return HostOptions{
		Scan:          DefaultScanOptions(),
		SettleDelay:   100 * time.Millisecond,
		Read:          DefaultReadOptions(),
		MaxLength:     DefaultMaxLength,
		WriteBuffer:   DefaultMaxLength,
		MaxPacketSize: protocol.DefaultPacketSize,
	}
}

// IOResult is what one tick of data transfer produced.
type IOResult struct {
	Read    []byte // nil when nothing was read
	Wrote   int
	Dropped bool // the link went down and the session reset
}

// HostSession drives scan, connect, discovery and read/write against one
// peer. Selections are pushed in by the caller; the session never prompts.
type HostSession struct {
	radio     Radio
	opts      HostOptions
	collector *ScanCollector

	state    HostState
	dir      Directory
	peer     string
	conn     Connection
	services []Service
	service  *Service

	readChar  Characteristic
	writeChar Characteristic
	reader    Reader
	writer    *WriteBuffer
}

// NewHostSession creates an idle host session on radio.
func NewHostSession(radio Radio, opts HostOptions) *HostSession {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = protocol.DefaultPacketSize
	}
	if opts.WriteBuffer < opts.MaxPacketSize {
		opts.WriteBuffer = opts.MaxPacketSize
	}
	return &HostSession{
		radio:     radio,
		opts:      opts,
		collector: NewScanCollector(radio),
	}
}

// State returns the current workflow step.
func (h *HostSession) State() HostState { return h.state }

// Directory returns the peers collected by the last scan.
func (h *HostSession) Directory() Directory { return h.dir }

// Peer returns the name of the connected peer, if any.
func (h *HostSession) Peer() string { return h.peer }

// Services returns the services discovered on the connected peer.
func (h *HostSession) Services() []Service { return h.services }

// Bound returns the characteristics bound for reading and writing; either
// may be nil.
func (h *HostSession) Bound() (read, write Characteristic) { return h.readChar, h.writeChar }

// StartScan runs one bounded scan and moves to HostAwaitingSelection.
func (h *HostSession) StartScan(ctx context.Context) error {
	if h.state != HostIdle {
		return fmt.Errorf("ble: scan in state %s: %w", h.state, ErrInvalidState)
	}
	if h.radio.Connected() {
		return fmt.Errorf("ble: scan while connected: %w", ErrInvalidState)
	}

	h.state = HostScanning
	h.dir = nil
	dir, err := h.collector.Scan(ctx, h.opts.Scan)
	if err != nil {
		h.state = HostIdle
		return err
	}
	if err := ctx.Err(); err != nil {
		h.state = HostIdle
		return fmt.Errorf("ble: scan: %w", err)
	}
	h.dir = dir
	h.state = HostAwaitingSelection
	slog.Info("[BLE] scan complete", "peers", len(dir))
	return nil
}

// SelectPeer connects to the named peer from the last scan. An unknown
// name returns ErrPeerNotFound and leaves the session awaiting selection.
func (h *HostSession) SelectPeer(ctx context.Context, name string) error {
	if h.state != HostAwaitingSelection {
		return fmt.Errorf("ble: select peer in state %s: %w", h.state, ErrInvalidState)
	}
	addr, ok := h.dir.Lookup(name)
	if !ok {
		return fmt.Errorf("ble: select peer %q: %w", name, ErrPeerNotFound)
	}

	h.state = HostConnecting
	conn, err := h.radio.Connect(ctx, addr)
	if err != nil {
		h.reset()
		return fmt.Errorf("ble: connect to %s: %w: %w", name, ErrConnection, err)
	}
	h.conn = conn
	h.peer = name
	slog.Info("[BLE] connected", "peer", name, "address", addr)

	if err := sleepContext(ctx, h.opts.SettleDelay); err != nil {
		h.abort()
		return fmt.Errorf("ble: connect to %s: %w", name, err)
	}
	h.state = HostDiscoveringServices
	return nil
}

// Cancel abandons a pending selection.
func (h *HostSession) Cancel() error {
	switch h.state {
	case HostAwaitingSelection:
		h.reset()
		return nil
	case HostAwaitingServiceSelection, HostAwaitingCharacteristicSelection, HostDiscoveringServices:
		return h.Disconnect()
	default:
		return fmt.Errorf("ble: cancel in state %s: %w", h.state, ErrInvalidState)
	}
}

// DiscoverServices enumerates the peer's services. Any transport failure
// disconnects and returns the session to idle.
func (h *HostSession) DiscoverServices(ctx context.Context) error {
	if h.state != HostDiscoveringServices {
		return fmt.Errorf("ble: discover services in state %s: %w", h.state, ErrInvalidState)
	}
	if err := ctx.Err(); err != nil {
		h.abort()
		return fmt.Errorf("ble: discover services: %w", err)
	}
	if h.conn == nil || !h.conn.Connected() {
		h.abort()
		return fmt.Errorf("ble: discover services on %s: %w: %w", h.peer, ErrConnection, ErrNotConnected)
	}

	services, err := h.conn.DiscoverServices(h.opts.ServiceFilter)
	if err != nil {
		peer := h.peer
		h.abort()
		return fmt.Errorf("ble: discover services on %s: %w: %w", peer, ErrBluetooth, err)
	}
	h.services = services
	h.state = HostAwaitingServiceSelection
	slog.Debug("[BLE] services discovered", "peer", h.peer, "count", len(services))
	return nil
}

// SelectService focuses on the service with the given UUID and binds its
// first readable and first writable characteristics.
func (h *HostSession) SelectService(id uuid.UUID) error {
	if h.state != HostAwaitingServiceSelection {
		return fmt.Errorf("ble: select service in state %s: %w", h.state, ErrInvalidState)
	}
	var svc *Service
	for i := range h.services {
		if h.services[i].UUID == id {
			svc = &h.services[i]
			break
		}
	}
	if svc == nil {
		return fmt.Errorf("ble: select service %s: %w", FormatUUID(id), ErrServiceNotFound)
	}

	h.service = svc
	h.state = HostAwaitingCharacteristicSelection
	if err := h.bind(svc.Characteristics); err != nil {
		peer := h.peer
		h.abort()
		return fmt.Errorf("ble: bind characteristics on %s: %w: %w", peer, ErrBluetooth, err)
	}
	h.state = HostBound
	return nil
}

// SelectCharacteristics returns the index of the first Read-capable and the
// first Write- or WriteNoResponse-capable characteristic, or -1. The two
// choices are independent and may name the same characteristic.
func SelectCharacteristics(chars []Characteristic) (read, write int) {
	read, write = -1, -1
	for i, ch := range chars {
		caps := Unpack(ch.Properties())
		if read < 0 && caps.CanRead() {
			read = i
		}
		if write < 0 && caps.CanWrite() {
			write = i
		}
	}
	return read, write
}

func (h *HostSession) bind(chars []Characteristic) error {
	ri, wi := SelectCharacteristics(chars)
	if ri >= 0 {
		r, err := NewReader(h.radio, chars[ri], h.opts.Read)
		if err != nil {
			return err
		}
		h.readChar, h.reader = chars[ri], r
	}
	if wi >= 0 {
		w, err := NewWriteBuffer(h.radio, chars[wi], h.opts.WriteBuffer, h.opts.MaxPacketSize)
		if err != nil {
			return err
		}
		h.writeChar, h.writer = chars[wi], w
	}
	slog.Info("[BLE] characteristics bound",
		"service", FormatUUID(h.service.UUID), "read", ri, "write", wi)
	return nil
}

// Tick performs one round of data transfer while bound. If the link has
// dropped, all bound state is released and the session returns to idle.
func (h *HostSession) Tick(payload string) (IOResult, error) {
	if h.conn != nil && !h.radio.Connected() {
		slog.Warn("[BLE] connection lost", "peer", h.peer)
		h.reset()
		return IOResult{Dropped: true}, nil
	}
	if h.state != HostBound {
		return IOResult{}, nil
	}

	var res IOResult
	var errs []error
	if h.reader != nil {
		v, err := h.reader.ReadValue()
		if err != nil {
			errs = append(errs, err)
		}
		res.Read = v
	}
	if h.writer != nil {
		n, err := h.writer.WriteMessage(payload, h.opts.MaxLength, true)
		if err != nil {
			errs = append(errs, err)
		}
		res.Wrote = n
	}
	return res, errors.Join(errs...)
}

// Disconnect tears down whatever is in progress, scan or connection, and
// returns to idle. It is a no-op when idle.
func (h *HostSession) Disconnect() error {
	if h.state == HostIdle && h.conn == nil {
		return nil
	}
	h.state = HostDisconnecting
	if h.collector.Scanning() {
		h.collector.Stop()
	}

	var err error
	peer := h.peer
	if h.conn != nil && h.conn.Connected() {
		err = h.conn.Disconnect()
		slog.Info("[BLE] disconnected", "peer", peer)
	}
	h.reset()
	if err != nil {
		return fmt.Errorf("ble: disconnect from %s: %w", peer, err)
	}
	return nil
}

// Close is called when leaving the host role: any scan is stopped and any
// link closed.
func (h *HostSession) Close() error {
	h.collector.Stop()
	return h.Disconnect()
}

// abort is the managed disconnect used on error paths.
func (h *HostSession) abort() {
	if err := h.Disconnect(); err != nil {
		slog.Warn("[BLE] disconnect after error", "error", err)
	}
	h.reset()
}

// reset drops every handle and buffer and returns to idle.
func (h *HostSession) reset() {
	if h.reader != nil {
		h.reader.Reset()
	}
	h.state = HostIdle
	h.dir = nil
	h.peer = ""
	h.conn = nil
	h.services = nil
	h.service = nil
	h.readChar, h.writeChar = nil, nil
	h.reader, h.writer = nil, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
