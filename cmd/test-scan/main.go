// Command test-scan is a manual test for the bounded scan. It runs one
// scan with the configured limits and prints the peer directory.
//
// Usage:
//
//	go run ./cmd/test-scan [--timeout 3s] [--max 10] [--all]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chaz8081/blerole/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", time.Second, "scan duration")
	maxResults := flag.Int("max", 10, "maximum peers to collect")
	all := flag.Bool("all", false, "include peers without a name")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	radio := ble.NewTinyGoRadio("test-scan")
	if err := radio.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	opts := ble.DefaultScanOptions()
	opts.Timeout = *timeout
	opts.MaxResults = *maxResults
	opts.RequireName = !*all

	fmt.Printf("Scanning for %s (up to %d peers)...\n", *timeout, *maxResults)
	dir, err := ble.NewScanCollector(radio).Scan(context.Background(), opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, name := range dir.Names() {
		addr, _ := dir.Lookup(name)
		fmt.Printf("  %-24s %s\n", name, addr)
	}
	fmt.Printf("\n%d peers found.\n", len(dir))
}
