// Command test-input is a manual test for the hotkey control panel.
// Run it, then press the connect, disconnect and mode hotkeys to see the
// sampled control state. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-input [--interval 200ms]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/blerole/internal/config"
	"github.com/chaz8081/blerole/internal/input"
)

func main() {
	interval := flag.Duration("interval", 200*time.Millisecond, "sampling interval")
	flag.Parse()

	keys := config.Default().Input
	fmt.Printf("Listening for %v (connect), %v (disconnect), %v (mode)...\n",
		keys.ConnectKeys, keys.DisconnectKeys, keys.ModeKeys)
	fmt.Println("Press Ctrl+C to exit.")

	panel := input.NewPanel(input.Keys{
		Connect:    keys.ConnectKeys,
		Disconnect: keys.DisconnectKeys,
		Mode:       keys.ModeKeys,
	}, keys.StartPeripheral)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		panel.Stop()
	}()

	go func() {
		last := panel.Sample()
		fmt.Printf("switch: peripheral=%t\n", last.Peripheral)
		for range time.Tick(*interval) {
			s := panel.Sample()
			if s.Peripheral != last.Peripheral {
				fmt.Printf("switch: peripheral=%t\n", s.Peripheral)
			}
			if s.Connect {
				fmt.Println(">>> CONNECT")
			}
			if s.Disconnect {
				fmt.Println("<<< DISCONNECT")
			}
			last = s
		}
	}()

	// Blocks until stopped
	panel.Start()
	fmt.Println("Done.")
}
