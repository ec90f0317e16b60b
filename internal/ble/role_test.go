package ble

import (
	"context"
	"errors"
	"testing"
)

func testControllerOptions() ControllerOptions {
	opts := DefaultControllerOptions()
	opts.Host.SettleDelay = 0
	return opts
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

// connectedController returns a controller in host mode bound to "Test".
func connectedController(t *testing.T, radio *mockRadio) *Controller {
	t.Helper()
	ctx := context.Background()
	c := NewController(radio, testControllerOptions())

	if _, err := c.Tick(ctx, Inputs{Connect: true}); err != nil {
		t.Fatalf("Tick(connect) error = %v", err)
	}
	if c.Host().State() != HostAwaitingSelection {
		t.Fatalf("host state = %s, want awaiting-selection", c.Host().State())
	}
	if err := c.SelectPeer(ctx, "Test"); err != nil {
		t.Fatalf("SelectPeer() error = %v", err)
	}
	if err := c.SelectService(ctx, ShortUUID(0x185A)); err != nil {
		t.Fatalf("SelectService() error = %v", err)
	}
	return c
}

func TestControllerHostToPeripheralDisconnectsOnce(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	radio.services = []Service{testService(0x185A, newMockCharacteristic(0x2A00, Capabilities{Read: true, Write: true}))}
	c := connectedController(t, radio)
	conn := radio.conn

	report, err := c.Tick(context.Background(), Inputs{Peripheral: true})
	if err != nil {
		t.Fatalf("Tick(peripheral) error = %v", err)
	}
	if !report.Switched || report.Mode != ModePeripheral {
		t.Errorf("report = %+v, want switch to peripheral", report)
	}
	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want exactly 1", conn.disconnects)
	}
	d, a := indexOf(radio.calls, "disconnect"), indexOf(radio.calls, "add_service")
	if d < 0 || a < 0 || d > a {
		t.Errorf("calls = %v, want disconnect before the peripheral service is registered", radio.calls)
	}
	if c.Host() != nil || c.Peripheral() == nil {
		t.Error("exactly the peripheral session should be active")
	}
}

func TestControllerPeripheralToHostStopsAdvertising(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()

	_, _ = c.Tick(ctx, Inputs{Peripheral: true})
	if _, err := c.Tick(ctx, Inputs{Peripheral: true, Connect: true}); err != nil {
		t.Fatalf("Tick(advertise) error = %v", err)
	}
	if !radio.advertising {
		t.Fatal("connect trigger in peripheral mode should start advertising")
	}

	report, err := c.Tick(ctx, Inputs{Peripheral: false})
	if err != nil {
		t.Fatalf("Tick(host) error = %v", err)
	}
	if report.Mode != ModeHost || radio.advertising {
		t.Errorf("report = %+v advertising = %v, want host mode without advertising", report, radio.advertising)
	}
	if c.Peripheral() != nil || c.Host() == nil {
		t.Error("exactly the host session should be active")
	}
}

func TestControllerRegistersServiceOnce(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()
	for _, p := range []bool{true, false, true, false, true} {
		if _, err := c.Tick(ctx, Inputs{Peripheral: p}); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if n := radio.count("add_service"); n != 1 {
		t.Errorf("add_service calls = %d, want 1", n)
	}
}

func TestControllerIgnoresTriggersDuringTransition(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	c := NewController(radio, testControllerOptions())

	_, err := c.Tick(context.Background(), Inputs{Peripheral: true, Connect: true, Disconnect: true})
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if radio.count("advertise") != 0 || radio.count("stop_advertising") != 0 {
		t.Errorf("calls = %v, triggers on the switching tick should be ignored", radio.calls)
	}
}

func TestControllerInactiveRoleTriggersAreNoops(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()

	// Disconnect while idle in host mode does nothing.
	if _, err := c.Tick(ctx, Inputs{Disconnect: true}); err != nil {
		t.Fatalf("Tick(disconnect) error = %v", err)
	}
	if radio.count("disconnect") != 0 || radio.count("stop_advertising") != 0 {
		t.Errorf("calls = %v, want no teardown calls", radio.calls)
	}

	// Stop while not advertising in peripheral mode does nothing.
	_, _ = c.Tick(ctx, Inputs{Peripheral: true})
	if _, err := c.Tick(ctx, Inputs{Peripheral: true, Disconnect: true}); err != nil {
		t.Fatalf("Tick(stop) error = %v", err)
	}
	if radio.count("stop_advertising") != 0 {
		t.Errorf("calls = %v, want no stop_advertising", radio.calls)
	}
}

func TestControllerRoleMismatch(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()

	if err := c.Advertise(); !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("Advertise() in host mode error = %v, want ErrRoleMismatch", err)
	}
	_, _ = c.Tick(ctx, Inputs{Peripheral: true})
	if err := c.SelectPeer(ctx, "Test"); !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("SelectPeer() in peripheral mode error = %v, want ErrRoleMismatch", err)
	}
	if err := c.SelectService(ctx, ShortUUID(0x185A)); !errors.Is(err, ErrRoleMismatch) {
		t.Errorf("SelectService() in peripheral mode error = %v, want ErrRoleMismatch", err)
	}
}

func TestControllerScanExhaustedIsRecoverable(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	radio.scanErr = ErrResourceExhausted
	c := NewController(radio, testControllerOptions())

	report, err := c.Tick(context.Background(), Inputs{Connect: true})
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Tick() error = %v, want ErrResourceExhausted", err)
	}
	if report.HostState != HostIdle {
		t.Errorf("HostState = %s, want idle", report.HostState)
	}

	// The next tick proceeds normally.
	radio.scanErr = nil
	report, err = c.Tick(context.Background(), Inputs{Connect: true})
	if err != nil || report.HostState != HostAwaitingSelection {
		t.Errorf("retry = %+v, %v; want awaiting-selection", report, err)
	}
}

func TestControllerEchoesCounter(t *testing.T) {
	writeChar := newMockCharacteristic(0x2A01, Capabilities{Write: true})
	radio := newMockRadio(named("Test", "AA:01"))
	radio.services = []Service{testService(0x185A, writeChar)}
	c := connectedController(t, radio)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Tick(ctx, Inputs{}); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	writes := writeChar.writeLog()
	var payloads []string
	for i := 1; i < len(writes); i += 2 {
		payloads = append(payloads, writes[i])
	}
	want := []string{"0\n", "1\n", "2\n"}
	if len(payloads) != len(want) {
		t.Fatalf("payloads = %q, want %q", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestControllerDisconnectTrigger(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	radio.services = []Service{testService(0x185A, newMockCharacteristic(0x2A00, Capabilities{Read: true}))}
	c := connectedController(t, radio)

	report, err := c.Tick(context.Background(), Inputs{Disconnect: true})
	if err != nil {
		t.Fatalf("Tick(disconnect) error = %v", err)
	}
	if report.HostState != HostIdle {
		t.Errorf("HostState = %s, want idle", report.HostState)
	}
	if radio.conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", radio.conn.disconnects)
	}
}

func TestControllerClose(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()
	_, _ = c.Tick(ctx, Inputs{Peripheral: true})
	_ = c.Advertise()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if radio.advertising {
		t.Error("Close() should stop advertising")
	}
}

func TestControllerPeripheralReadsOnlyHostWrites(t *testing.T) {
	radio := newMockRadio()
	c := NewController(radio, DefaultControllerOptions())
	ctx := context.Background()

	if _, err := c.Tick(ctx, Inputs{Peripheral: true}); err != nil {
		t.Fatalf("Tick(peripheral) error = %v", err)
	}
	ch := c.Peripheral().Service().Characteristics[0].(*mockCharacteristic)
	radio.connected = true

	// The echo counter lands in the local value but is not inbound data.
	for i := 0; i < 3; i++ {
		report, err := c.Tick(ctx, Inputs{Peripheral: true})
		if err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if report.IO.Read != nil {
			t.Fatalf("tick %d read %q, want nothing while the host is silent", i, report.IO.Read)
		}
	}
	if len(ch.writeLog()) == 0 {
		t.Fatal("peripheral should have written its payload")
	}

	ch.SimulateNotification([]byte("hello\n"))
	report, err := c.Tick(ctx, Inputs{Peripheral: true})
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if string(report.IO.Read) != "hello\n" {
		t.Errorf("Read = %q, want %q", report.IO.Read, "hello\n")
	}
}

func TestControllerDisconnectBeforePeerSelection(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()

	report, err := c.Tick(ctx, Inputs{Connect: true})
	if err != nil || report.HostState != HostAwaitingSelection {
		t.Fatalf("Tick(connect) = %+v, %v; want awaiting-selection", report, err)
	}
	report, err = c.Tick(ctx, Inputs{Disconnect: true})
	if err != nil {
		t.Fatalf("Tick(disconnect) error = %v", err)
	}
	if report.HostState != HostIdle {
		t.Errorf("HostState = %s, want idle", report.HostState)
	}
	if len(c.Host().Directory()) != 0 {
		t.Error("directory should be released")
	}
	if radio.count("connect") != 0 {
		t.Errorf("calls = %v, want no connect", radio.calls)
	}
}

func TestControllerRetriesServiceRegistration(t *testing.T) {
	radio := newMockRadio()
	radio.addErr = errMockTransport
	c := NewController(radio, testControllerOptions())
	ctx := context.Background()

	if _, err := c.Tick(ctx, Inputs{Peripheral: true}); !errors.Is(err, ErrBluetooth) {
		t.Fatalf("Tick(peripheral) error = %v, want ErrBluetooth", err)
	}
	if c.Peripheral() != nil {
		t.Fatal("no peripheral session should exist after a failed registration")
	}
	if err := c.Advertise(); !errors.Is(err, ErrInvalidState) || errors.Is(err, ErrRoleMismatch) {
		t.Errorf("Advertise() error = %v, want ErrInvalidState", err)
	}

	radio.addErr = nil
	if _, err := c.Tick(ctx, Inputs{Peripheral: true}); err != nil {
		t.Fatalf("retry Tick() error = %v", err)
	}
	if c.Peripheral() == nil {
		t.Fatal("registration should be retried on the next peripheral tick")
	}
	if n := radio.count("add_service"); n != 2 {
		t.Errorf("add_service calls = %d, want 2", n)
	}
	if _, err := c.Tick(ctx, Inputs{Peripheral: true, Connect: true}); err != nil || !radio.advertising {
		t.Errorf("connect trigger after recovery: err = %v advertising = %v", err, radio.advertising)
	}
}
