package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ScanOptions bounds a scan. MaxResults and RequireName exist to keep the
// result set small enough for constrained memory.
type ScanOptions struct {
	MaxResults  int
	RequireName bool
	MinRSSI     int
	BufferSize  int
	Timeout     time.Duration
	Interval    time.Duration
	Window      time.Duration
	Active      bool
	Extended    bool
}

// DefaultScanOptions returns the bounded parameters used by HostSession.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MaxResults:  10,
		RequireName: true,
		MinRSSI:     -80,
		BufferSize:  50,
		Timeout:     time.Second,
		Interval:    100 * time.Millisecond,
		Window:      100 * time.Millisecond,
		Active:      true,
	}
}

func (o ScanOptions) params() ScanParams {
	return ScanParams{
		BufferSize: o.BufferSize,
		Timeout:    o.Timeout,
		Interval:   o.Interval,
		Window:     o.Window,
		MinRSSI:    o.MinRSSI,
		Active:     o.Active,
		Extended:   o.Extended,
	}
}

// Directory maps advertised names to the first address seen for them.
type Directory map[string]Address

// Names returns the directory's names in sorted order.
func (d Directory) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the address recorded for name.
func (d Directory) Lookup(name string) (Address, bool) {
	addr, ok := d[name]
	return addr, ok
}

// ScanCollector runs one bounded scan at a time and collects named,
// responsive peers.
type ScanCollector struct {
	radio    Radio
	scanning bool
	cancel   context.CancelFunc
}

// NewScanCollector creates a collector on radio.
func NewScanCollector(radio Radio) *ScanCollector {
	return &ScanCollector{radio: radio}
}

// Scan collects up to opts.MaxResults peers. The radio scan is always
// stopped before Scan returns. On ErrResourceExhausted the partial result
// is discarded.
func (s *ScanCollector) Scan(ctx context.Context, opts ScanOptions) (Directory, error) {
	if s.scanning {
		return nil, fmt.Errorf("ble: scan: %w", ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.scanning = true
	s.cancel = cancel
	defer func() {
		cancel()
		s.Stop()
	}()

	dir := make(Directory)
	err := s.radio.Scan(ctx, opts.params(), func(adv Advertisement) {
		if opts.RequireName && adv.Name == "" {
			return
		}
		if opts.MinRSSI != 0 && adv.RSSI < opts.MinRSSI {
			return
		}
		if opts.MaxResults > 0 && len(dir) >= opts.MaxResults {
			return
		}
		if !adv.ScanResponse {
			return
		}
		if _, seen := dir[adv.Name]; seen {
			return
		}
		slog.Debug("[BLE] recorded advertisement",
			"name", adv.Name, "address", adv.Address, "rssi", adv.RSSI, "tx_power", adv.TxPower)
		dir[adv.Name] = adv.Address
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, ErrResourceExhausted) {
			return nil, fmt.Errorf("ble: scan with buffer %d: %w", opts.BufferSize, err)
		}
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	slog.Debug("[BLE] scan finished", "collected", len(dir))
	return dir, nil
}

// Scanning reports whether a scan is in progress.
func (s *ScanCollector) Scanning() bool { return s.scanning }

// Stop halts any scan in progress. It is safe to call when not scanning.
func (s *ScanCollector) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := s.radio.StopScan(); err != nil {
		slog.Debug("[BLE] stop scan", "error", err)
	}
	s.scanning = false
}
