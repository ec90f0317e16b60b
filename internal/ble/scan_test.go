package ble

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestScanCapsResults(t *testing.T) {
	var ads []Advertisement
	for i := 0; i < 25; i++ {
		ads = append(ads, named(fmt.Sprintf("dev-%02d", i), fmt.Sprintf("AA:%02d", i)))
	}
	radio := newMockRadio(ads...)
	c := NewScanCollector(radio)

	opts := DefaultScanOptions()
	opts.MaxResults = 5
	dir, err := c.Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(dir) != 5 {
		t.Errorf("len(dir) = %d, want 5", len(dir))
	}
	if radio.count("stop_scan") == 0 {
		t.Error("Scan() should stop the radio scan before returning")
	}
	if c.Scanning() {
		t.Error("Scanning() should be false after Scan returns")
	}
}

func TestScanFirstAddressWins(t *testing.T) {
	radio := newMockRadio(
		named("Test", "AA:01"),
		named("Test", "AA:02"),
		named("Other", "BB:01"),
		named("Test", "AA:03"),
	)
	dir, err := NewScanCollector(radio).Scan(context.Background(), DefaultScanOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := Directory{"Test": "AA:01", "Other": "BB:01"}
	if !reflect.DeepEqual(dir, want) {
		t.Errorf("dir = %v, want %v", dir, want)
	}
	if got := dir.Names(); !reflect.DeepEqual(got, []string{"Other", "Test"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestScanFilters(t *testing.T) {
	radio := newMockRadio(
		Advertisement{Name: "", Address: "00:01", RSSI: -40, ScanResponse: true},
		Advertisement{Name: "Far", Address: "00:02", RSSI: -95, ScanResponse: true},
		Advertisement{Name: "Quiet", Address: "00:03", RSSI: -40, ScanResponse: false},
		named("Near", "00:04"),
	)
	dir, err := NewScanCollector(radio).Scan(context.Background(), DefaultScanOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(dir) != 1 {
		t.Fatalf("dir = %v, want only Near", dir)
	}
	if addr, ok := dir.Lookup("Near"); !ok || addr != "00:04" {
		t.Errorf("Lookup(Near) = %q, %v", addr, ok)
	}
}

func TestScanUnnamedAllowedWithoutRequireName(t *testing.T) {
	radio := newMockRadio(Advertisement{Address: "00:01", RSSI: -40, ScanResponse: true})
	opts := DefaultScanOptions()
	opts.RequireName = false
	dir, err := NewScanCollector(radio).Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if addr := dir[""]; addr != "00:01" {
		t.Errorf("dir = %v, want unnamed peer recorded", dir)
	}
}

func TestScanResourceExhausted(t *testing.T) {
	radio := newMockRadio(named("Test", "AA:01"))
	radio.scanErr = ErrResourceExhausted
	c := NewScanCollector(radio)

	dir, err := c.Scan(context.Background(), DefaultScanOptions())
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Scan() error = %v, want ErrResourceExhausted", err)
	}
	if dir != nil {
		t.Errorf("dir = %v, want nil on exhaustion", dir)
	}
	if radio.count("stop_scan") == 0 {
		t.Error("scan should be stopped after exhaustion")
	}
}

func TestScanStopIsIdempotent(t *testing.T) {
	radio := newMockRadio()
	c := NewScanCollector(radio)
	c.Stop()
	c.Stop()
	if c.Scanning() {
		t.Error("Scanning() should be false")
	}
}
