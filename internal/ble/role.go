package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Mode is the role selected by the external switch.
type Mode int

const (
	ModeHost Mode = iota
	ModePeripheral
)

func (m Mode) String() string {
	if m == ModePeripheral {
		return "peripheral"
	}
	return "host"
}

// Inputs is one tick's sample of the physical controls.
type Inputs struct {
	Peripheral bool // switch position
	Connect    bool // connect/advertise button pressed this tick
	Disconnect bool // disconnect/stop button pressed this tick
}

// TickReport summarises one tick.
type TickReport struct {
	Mode     Mode
	Switched bool
	IO       IOResult
	// HostState is the host workflow step after the tick; only meaningful
	// in host mode. HostAwaitingSelection means a peer must be selected.
	HostState       HostState
	PeripheralState PeripheralState
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Host       HostOptions
	Peripheral PeripheralOptions
	// Service is registered with the radio the first time the peripheral
	// role is entered.
	Service ServiceConfig
	// Payload returns the message written on tick n. Defaults to "<n>\n".
	Payload func(n uint64) string
}

// DefaultControllerOptions returns sensible defaults: a service 0x185A with
// one characteristic 0x2BDE that can be read, written without response,
// notified and broadcast.
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{
		Host:       DefaultHostOptions(),
		Peripheral: DefaultPeripheralOptions(),
		Service: ServiceConfig{
			UUID: ShortUUID(0x185A),
			Characteristics: []CharacteristicConfig{{
				UUID:         ShortUUID(0x2BDE),
				Capabilities: Capabilities{WriteNoResponse: true, Read: true, Notify: true, Broadcast: true},
				MaxLength:    DefaultMaxLength,
				FixedLength:  true,
			}},
		},
	}
}

// Controller owns at most one of a HostSession or PeripheralSession and
// switches between them on mode edges.
type Controller struct {
	radio Radio
	opts  ControllerOptions

	mode Mode
	prev Mode

	host       *HostSession
	peripheral *PeripheralSession
	service    *Service // registered once, reused across peripheral activations

	counter uint64
}

// NewController starts in host mode.
func NewController(radio Radio, opts ControllerOptions) *Controller {
	if opts.Payload == nil {
		opts.Payload = func(n uint64) string { return strconv.FormatUint(n, 10) + "\n" }
	}
	return &Controller{
		radio: radio,
		opts:  opts,
		mode:  ModeHost,
		prev:  ModeHost,
		host:  NewHostSession(radio, opts.Host),
	}
}

// Mode returns the active role.
func (c *Controller) Mode() Mode { return c.mode }

// Identity returns the radio's identity.
func (c *Controller) Identity() Identity { return c.radio.Identity() }

// Host returns the host session, or nil in peripheral mode.
func (c *Controller) Host() *HostSession { return c.host }

// Peripheral returns the peripheral session, or nil in host mode.
func (c *Controller) Peripheral() *PeripheralSession { return c.peripheral }

// Tick runs one control-loop iteration: mode edge handling, data transfer
// on the active session, then the connect and disconnect triggers. Triggers
// are ignored on a tick that switched roles. Errors are recoverable and
// joined; the session is consistent afterwards.
func (c *Controller) Tick(ctx context.Context, in Inputs) (TickReport, error) {
	var errs []error

	c.mode = ModeHost
	if in.Peripheral {
		c.mode = ModePeripheral
	}
	switched := c.mode != c.prev
	if switched {
		if err := c.switchRole(); err != nil {
			errs = append(errs, err)
		}
	} else if c.mode == ModePeripheral && c.peripheral == nil {
		// An earlier activation failed; keep trying while the switch stays put.
		p, err := c.activatePeripheral()
		if err != nil {
			errs = append(errs, err)
		}
		c.peripheral = p
	}
	c.prev = c.mode

	res, err := c.transfer()
	if err != nil {
		errs = append(errs, err)
	}

	if !switched {
		if in.Connect {
			if err := c.connectTrigger(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if in.Disconnect {
			if err := c.disconnectTrigger(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	report := TickReport{Mode: c.mode, Switched: switched, IO: res}
	if c.host != nil {
		report.HostState = c.host.State()
	}
	if c.peripheral != nil {
		report.PeripheralState = c.peripheral.State()
	}
	return report, errors.Join(errs...)
}

func (c *Controller) switchRole() error {
	var errs []error
	if c.mode == ModePeripheral {
		if c.host != nil {
			if err := c.host.Close(); err != nil {
				errs = append(errs, err)
			}
			c.host = nil
		}
		p, err := c.activatePeripheral()
		if err != nil {
			errs = append(errs, err)
		}
		c.peripheral = p
		slog.Info("[BLE] swapped to peripheral mode")
	} else {
		if c.peripheral != nil {
			if err := c.peripheral.Close(); err != nil {
				errs = append(errs, err)
			}
			c.peripheral = nil
		} else if c.radio.Advertising() {
			if err := c.radio.StopAdvertising(); err != nil {
				errs = append(errs, fmt.Errorf("ble: stop advertising: %w", err))
			}
		}
		c.host = NewHostSession(c.radio, c.opts.Host)
		slog.Info("[BLE] swapped to host mode")
	}
	return errors.Join(errs...)
}

func (c *Controller) activatePeripheral() (*PeripheralSession, error) {
	if c.service == nil {
		svc, err := c.radio.AddService(c.opts.Service)
		if err != nil {
			return nil, fmt.Errorf("ble: register service %s: %w: %w", FormatUUID(c.opts.Service.UUID), ErrBluetooth, err)
		}
		c.service = svc
	}
	return NewPeripheralSession(c.radio, c.service, c.opts.Peripheral)
}

func (c *Controller) transfer() (IOResult, error) {
	payload := c.opts.Payload(c.counter)
	var res IOResult
	var err error
	switch {
	case c.host != nil:
		res, err = c.host.Tick(payload)
	case c.peripheral != nil:
		res, err = c.peripheral.Tick(payload)
	}
	if c.radio.Connected() {
		c.counter++
	}
	return res, err
}

func (c *Controller) connectTrigger(ctx context.Context) error {
	switch {
	case c.host != nil:
		if c.host.State() != HostIdle || c.radio.Connected() {
			return nil
		}
		return c.host.StartScan(ctx)
	case c.peripheral != nil:
		if c.peripheral.Advertising() {
			return nil
		}
		return c.peripheral.Advertise()
	}
	return nil
}

func (c *Controller) disconnectTrigger() error {
	switch {
	case c.host != nil:
		if c.host.State() == HostIdle && !c.radio.Connected() {
			return nil
		}
		return c.host.Disconnect()
	case c.peripheral != nil:
		if !c.peripheral.Advertising() {
			return nil
		}
		return c.peripheral.StopAdvertising()
	}
	return nil
}

// SelectPeer forwards a peer selection to the host session.
func (c *Controller) SelectPeer(ctx context.Context, name string) error {
	if c.host == nil {
		return fmt.Errorf("ble: select peer in %s mode: %w", c.mode, ErrRoleMismatch)
	}
	return c.host.SelectPeer(ctx, name)
}

// SelectService discovers services if needed and forwards a service
// selection to the host session.
func (c *Controller) SelectService(ctx context.Context, id uuid.UUID) error {
	if c.host == nil {
		return fmt.Errorf("ble: select service in %s mode: %w", c.mode, ErrRoleMismatch)
	}
	if c.host.State() == HostDiscoveringServices {
		if err := c.host.DiscoverServices(ctx); err != nil {
			return err
		}
	}
	return c.host.SelectService(id)
}

// Advertise forwards to the peripheral session.
func (c *Controller) Advertise() error {
	if c.mode != ModePeripheral {
		return fmt.Errorf("ble: advertise in %s mode: %w", c.mode, ErrRoleMismatch)
	}
	if c.peripheral == nil {
		return fmt.Errorf("ble: advertise before the peripheral service is registered: %w", ErrInvalidState)
	}
	return c.peripheral.Advertise()
}

// Close tears down the active session.
func (c *Controller) Close() error {
	switch {
	case c.host != nil:
		return c.host.Close()
	case c.peripheral != nil:
		return c.peripheral.Close()
	}
	return nil
}
