// Package input stands in for the board's slide switch and two buttons
// using global hotkeys via gohook. Presses are latched until the next
// Sample, so a press between two control-loop ticks is never lost.
package input

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Control identifies one physical control.
type Control int

const (
	// ControlConnect is button A: connect or start advertising.
	ControlConnect Control = iota
	// ControlDisconnect is button B: disconnect or stop advertising.
	ControlDisconnect
	// ControlMode flips the slide switch between host and peripheral.
	ControlMode
)

// Sample is the state of the controls at one tick.
type Sample struct {
	Peripheral bool
	Connect    bool
	Disconnect bool
}

// Keys maps each control to a key combo, e.g. ["ctrl", "shift", "a"].
type Keys struct {
	Connect    []string
	Disconnect []string
	Mode       []string
}

// Panel latches hotkey presses and reports them once per Sample.
type Panel struct {
	keys Keys

	mu         sync.Mutex
	peripheral bool
	connect    bool
	disconnect bool

	done chan struct{}
	once sync.Once
}

// NewPanel creates a Panel. startPeripheral is the initial switch position.
func NewPanel(keys Keys, startPeripheral bool) *Panel {
	return &Panel{
		keys:       keys,
		peripheral: startPeripheral,
		done:       make(chan struct{}),
	}
}

// Press records a press of c.
func (p *Panel) Press(c Control) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch c {
	case ControlConnect:
		p.connect = true
	case ControlDisconnect:
		p.disconnect = true
	case ControlMode:
		p.peripheral = !p.peripheral
	}
}

// Sample returns the current switch position and any button presses since
// the previous Sample, then clears the presses.
func (p *Panel) Sample() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Sample{Peripheral: p.peripheral, Connect: p.connect, Disconnect: p.disconnect}
	p.connect, p.disconnect = false, false
	return s
}

// Start begins listening for the global hotkeys.
// This function blocks until Stop is called. Run it in a goroutine.
func (p *Panel) Start() {
	bind := func(keys []string, c Control) {
		hook.Register(hook.KeyDown, keys, func(hook.Event) { p.Press(c) })
	}
	bind(p.keys.Connect, ControlConnect)
	bind(p.keys.Disconnect, ControlDisconnect)
	bind(p.keys.Mode, ControlMode)

	evChan := hook.Start()
	go func() {
		<-p.done
		hook.End()
	}()
	<-hook.Process(evChan)
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (p *Panel) Stop() {
	p.once.Do(func() {
		close(p.done)
	})
}
