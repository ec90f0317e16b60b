package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chaz8081/blerole/internal/ble"
)

type fakeTTY struct {
	io.Reader
	out bytes.Buffer
}

func (f *fakeTTY) Write(p []byte) (int, error) { return f.out.Write(p) }

func newFake(input string) *fakeTTY {
	return &fakeTTY{Reader: strings.NewReader(input)}
}

func TestChoosePeer_RepromptsOnUnknownName(t *testing.T) {
	tty := newFake("Ghost\rTest\r")
	p := New(tty)
	dir := ble.Directory{"Test": "AA:BB:CC:DD:EE:01"}

	var tried []string
	err := p.ChoosePeer(context.Background(), dir, func(_ context.Context, name string) error {
		tried = append(tried, name)
		if _, ok := dir.Lookup(name); !ok {
			return fmt.Errorf("select %q: %w", name, ble.ErrPeerNotFound)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ChoosePeer() error = %v", err)
	}
	if len(tried) != 2 || tried[1] != "Test" {
		t.Errorf("tried = %v, want [Ghost Test]", tried)
	}
	if !strings.Contains(tty.out.String(), `No device named "Ghost"`) {
		t.Errorf("output missing unknown-name notice: %q", tty.out.String())
	}
}

func TestChoosePeer_Cancel(t *testing.T) {
	p := New(newFake("exit\r"))
	called := false
	err := p.ChoosePeer(context.Background(), ble.Directory{}, func(context.Context, string) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("ChoosePeer() error = %v, want ErrCancelled", err)
	}
	if called {
		t.Error("connect should not be called after cancel")
	}
}

func TestChoosePeer_ConnectErrorEndsLoop(t *testing.T) {
	p := New(newFake("Test\rTest\r"))
	calls := 0
	err := p.ChoosePeer(context.Background(), ble.Directory{"Test": "x"}, func(context.Context, string) error {
		calls++
		return ble.ErrConnection
	})
	if !errors.Is(err, ble.ErrConnection) {
		t.Errorf("ChoosePeer() error = %v, want ErrConnection", err)
	}
	if calls != 1 {
		t.Errorf("connect calls = %d, want 1", calls)
	}
}

func TestChoosePeer_EOF(t *testing.T) {
	p := New(newFake(""))
	err := p.ChoosePeer(context.Background(), ble.Directory{}, func(context.Context, string) error { return nil })
	if !errors.Is(err, io.EOF) {
		t.Errorf("ChoosePeer() error = %v, want io.EOF", err)
	}
}

func TestChooseService(t *testing.T) {
	tty := newFake("zz\r0x1234\r185a\r")
	p := New(tty)
	want := ble.ShortUUID(0x185A)
	services := []ble.Service{{UUID: want}}

	var got uuid.UUID
	err := p.ChooseService(context.Background(), services, func(_ context.Context, id uuid.UUID) error {
		if id != want {
			return ble.ErrServiceNotFound
		}
		got = id
		return nil
	})
	if err != nil {
		t.Fatalf("ChooseService() error = %v", err)
	}
	if got != want {
		t.Errorf("bound %s, want %s", got, want)
	}
	out := tty.out.String()
	if !strings.Contains(out, `Invalid UUID "zz"`) {
		t.Errorf("output missing invalid notice: %q", out)
	}
	if !strings.Contains(out, "No service 0x1234") {
		t.Errorf("output missing not-found notice: %q", out)
	}
}

func TestReadLine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(newFake("Test\r"))
	err := p.ChoosePeer(ctx, ble.Directory{}, func(context.Context, string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ChoosePeer() error = %v, want context.Canceled", err)
	}
}

func TestCloseWithoutOpen(t *testing.T) {
	if err := New(newFake("")).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
