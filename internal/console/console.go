// Package console prompts for host-mode selections on the controlling
// terminal: the peer to connect to and the service to bind.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/chaz8081/blerole/internal/ble"
)

// ErrCancelled is returned when the user types the cancel word.
var ErrCancelled = errors.New("console: selection cancelled")

const cancelWord = "exit"

// Prompter reads selections line by line.
type Prompter struct {
	term  *terminal.Terminal
	fd    int
	state *terminal.State
}

// New creates a Prompter over rw. The caller owns rw.
func New(rw io.ReadWriter) *Prompter {
	return &Prompter{term: terminal.NewTerminal(rw, "> "), fd: -1}
}

// Open puts stdin into raw mode and prompts on stdin/stdout. Close restores
// the terminal.
func Open() (*Prompter, error) {
	fd := int(os.Stdin.Fd())
	state, err := terminal.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("console: raw mode: %w", err)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	return &Prompter{term: terminal.NewTerminal(rw, "> "), fd: fd, state: state}, nil
}

// Close restores the terminal if Open changed it.
func (p *Prompter) Close() error {
	if p.state == nil {
		return nil
	}
	return terminal.Restore(p.fd, p.state)
}

// Printf writes to the terminal. Raw mode needs \r\n line endings.
func (p *Prompter) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	s = strings.ReplaceAll(s, "\n", "\r\n")
	io.WriteString(p.term, s)
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.term.ReadLine()
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, cancelWord) {
		return "", ErrCancelled
	}
	return line, nil
}

// ChoosePeer lists the scanned names and calls connect with each entered
// name until it succeeds. Unknown names are reported and re-prompted; any
// other connect error ends the loop.
func (p *Prompter) ChoosePeer(ctx context.Context, dir ble.Directory, connect func(context.Context, string) error) error {
	p.Printf("Devices found:\n")
	for _, name := range dir.Names() {
		p.Printf("  %s\n", name)
	}
	p.Printf("Type a device name to connect, or %q to cancel.\n", cancelWord)

	for {
		name, err := p.readLine(ctx)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		err = connect(ctx, name)
		if errors.Is(err, ble.ErrPeerNotFound) {
			p.Printf("No device named %q.\n", name)
			continue
		}
		return err
	}
}

// ChooseService lists the discovered services and calls bind with each
// entered UUID until it succeeds. Unparseable or unknown UUIDs are
// re-prompted.
func (p *Prompter) ChooseService(ctx context.Context, services []ble.Service, bind func(context.Context, uuid.UUID) error) error {
	p.Printf("Services:\n")
	for _, svc := range services {
		p.Printf("  %s (%d characteristics)\n", ble.FormatUUID(svc.UUID), len(svc.Characteristics))
	}
	p.Printf("Type a service UUID to bind, or %q to cancel.\n", cancelWord)

	for {
		line, err := p.readLine(ctx)
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		id, err := ble.ParseUUID(line)
		if err != nil {
			p.Printf("Invalid UUID %q.\n", line)
			continue
		}
		err = bind(ctx, id)
		if errors.Is(err, ble.ErrServiceNotFound) {
			p.Printf("No service %s on this device.\n", ble.FormatUUID(id))
			continue
		}
		return err
	}
}
