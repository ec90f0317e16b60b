package ble

import (
	"fmt"
	"sync"
	"time"

	"github.com/chaz8081/blerole/internal/ble/protocol"
)

// DefaultMaxLength is the packet length assumed by Write when none is given.
const DefaultMaxLength = 20

// Link reports whether a connection is up. Reads and writes check it before
// touching the characteristic.
type Link interface {
	Connected() bool
}

// ReadMode selects how a bound characteristic is read.
type ReadMode int

const (
	// ReadDirect returns the characteristic's current value.
	ReadDirect ReadMode = iota
	// ReadBuffered returns the next line from a subscription-fed buffer.
	ReadBuffered
)

// ParseReadMode maps a config string to a ReadMode.
func ParseReadMode(s string) (ReadMode, error) {
	switch s {
	case "direct", "":
		return ReadDirect, nil
	case "buffered":
		return ReadBuffered, nil
	default:
		return ReadDirect, fmt.Errorf("ble: unknown read mode %q", s)
	}
}

func (m ReadMode) String() string {
	if m == ReadBuffered {
		return "buffered"
	}
	return "direct"
}

// ReadOptions configures NewReader.
type ReadOptions struct {
	Mode       ReadMode
	Timeout    time.Duration // buffered mode only
	BufferSize int           // buffered mode only
}

// DefaultReadOptions returns sensible defaults.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Mode:       ReadDirect,
		Timeout:    time.Second,
		BufferSize: 64,
	}
}

// Reader reads one value from a bound characteristic.
type Reader interface {
	// ReadValue returns ErrNotConnected without touching the characteristic
	// when the link is down. A nil result with a nil error means nothing
	// was available.
	ReadValue() ([]byte, error)
	// Reset drops any connection-scoped buffered data.
	Reset()
}

// NewReader attaches a reader to ch using the strategy in opts.
func NewReader(link Link, ch Characteristic, opts ReadOptions) (Reader, error) {
	if !Unpack(ch.Properties()).CanRead() {
		return nil, fmt.Errorf("ble: read buffer for %s: %w", FormatUUID(ch.UUID()), ErrCapability)
	}
	if opts.Mode == ReadBuffered {
		return newReadBuffer(link, ch, opts.Timeout, opts.BufferSize)
	}
	return &directReader{link: link, ch: ch}, nil
}

type directReader struct {
	link Link
	ch   Characteristic
}

func (r *directReader) ReadValue() ([]byte, error) {
	if !r.link.Connected() {
		return nil, ErrNotConnected
	}
	v, err := r.ch.Value()
	if err != nil {
		return nil, fmt.Errorf("ble: read %s: %w", FormatUUID(r.ch.UUID()), err)
	}
	return v, nil
}

func (r *directReader) Reset() {}

// ReadBuffer accumulates inbound data from a characteristic subscription
// and hands it out one line at a time. Subscription callbacks may arrive on
// radio goroutines, so the buffer is locked.
type ReadBuffer struct {
	link    Link
	ch      Characteristic
	timeout time.Duration
	size    int

	mu    sync.Mutex
	buf   []byte
	ready chan struct{}
}

func newReadBuffer(link Link, ch Characteristic, timeout time.Duration, size int) (*ReadBuffer, error) {
	if size <= 0 {
		size = 64
	}
	b := &ReadBuffer{
		link:    link,
		ch:      ch,
		timeout: timeout,
		size:    size,
		ready:   make(chan struct{}, 1),
	}
	if err := ch.Subscribe(b.push); err != nil {
		return nil, fmt.Errorf("ble: subscribe %s: %w", FormatUUID(ch.UUID()), err)
	}
	return b, nil
}

// push appends inbound data, dropping the oldest bytes beyond the buffer size.
func (b *ReadBuffer) push(data []byte) {
	b.mu.Lock()
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.size; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// ReadValue returns the next complete line, waiting at most the configured
// timeout. It returns nil, nil on timeout.
func (b *ReadBuffer) ReadValue() ([]byte, error) {
	if !b.link.Connected() {
		return nil, ErrNotConnected
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	for {
		if line := b.takeLine(); line != nil {
			return line, nil
		}
		select {
		case <-b.ready:
		case <-timer.C:
			return b.takeLine(), nil
		}
	}
}

func (b *ReadBuffer) takeLine() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, rest, ok := protocol.SplitLine(b.buf)
	if !ok {
		return nil
	}
	out := make([]byte, len(line))
	copy(out, line)
	b.buf = append(b.buf[:0], rest...)
	return out
}

// Buffered returns the number of bytes waiting.
func (b *ReadBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Reset drops everything buffered.
func (b *ReadBuffer) Reset() {
	b.mu.Lock()
	b.buf = b.buf[:0]
	b.mu.Unlock()
}

// WriteBuffer writes newline-framed messages to a characteristic in packets
// of at most maxPacketSize bytes.
type WriteBuffer struct {
	link          Link
	ch            Characteristic
	bufferSize    int
	maxPacketSize int
}

// NewWriteBuffer attaches a write buffer to ch.
func NewWriteBuffer(link Link, ch Characteristic, bufferSize, maxPacketSize int) (*WriteBuffer, error) {
	if !Unpack(ch.Properties()).CanWrite() {
		return nil, fmt.Errorf("ble: write buffer for %s: %w", FormatUUID(ch.UUID()), ErrCapability)
	}
	if maxPacketSize <= 0 {
		return nil, fmt.Errorf("ble: write buffer max packet size must be > 0, got %d", maxPacketSize)
	}
	if bufferSize < maxPacketSize {
		return nil, fmt.Errorf("ble: write buffer size %d smaller than max packet size %d", bufferSize, maxPacketSize)
	}
	return &WriteBuffer{
		link:          link,
		ch:            ch,
		bufferSize:    bufferSize,
		maxPacketSize: maxPacketSize,
	}, nil
}

// Write sends message with DefaultMaxLength and a clearing write first.
func (w *WriteBuffer) Write(message string) (int, error) {
	return w.WriteMessage(message, DefaultMaxLength, true)
}

// WriteMessage sends message. When clear is set, maxLength-1 spaces and a
// newline are written first so a shorter message cannot leave the tail of a
// longer previous one visible. It returns the number of message bytes
// written.
func (w *WriteBuffer) WriteMessage(message string, maxLength int, clear bool) (int, error) {
	if !w.link.Connected() {
		return 0, ErrNotConnected
	}
	if len(message) > w.bufferSize {
		return 0, fmt.Errorf("ble: write %d bytes to %s: %w", len(message), FormatUUID(w.ch.UUID()), ErrPayloadTooLarge)
	}

	if clear {
		for _, pkt := range protocol.ChunkText(protocol.ClearFrame(maxLength), w.maxPacketSize) {
			if _, err := w.ch.Write(pkt); err != nil {
				return 0, fmt.Errorf("ble: clear %s: %w", FormatUUID(w.ch.UUID()), err)
			}
		}
	}

	written := 0
	for _, pkt := range protocol.ChunkText([]byte(message), w.maxPacketSize) {
		n, err := w.ch.Write(pkt)
		written += n
		if err != nil {
			return written, fmt.Errorf("ble: write %s: %w", FormatUUID(w.ch.UUID()), err)
		}
	}
	return written, nil
}
