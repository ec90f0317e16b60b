package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/blerole/internal/ble"
	"github.com/chaz8081/blerole/internal/config"
	"github.com/chaz8081/blerole/internal/console"
	"github.com/chaz8081/blerole/internal/input"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blerole/config.yaml)")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("init-config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s, leaving it unchanged", config.DefaultConfigPath())
			return
		}
		log.Printf("Default config written to %s", path)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	opts, err := controllerOptions(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	printBanner(cfg)

	radio := ble.NewTinyGoRadio(cfg.Peripheral.LocalName)
	if err := radio.Enable(); err != nil {
		log.Fatalf("Failed to enable Bluetooth: %v\n\nEnsure Bluetooth is on and this process has permission to use it.", err)
	}
	ctrl := ble.NewController(radio, opts)
	printIdentity(ctrl.Identity(), radio)

	panel := input.NewPanel(input.Keys{
		Connect:    cfg.Input.ConnectKeys,
		Disconnect: cfg.Input.DisconnectKeys,
		Mode:       cfg.Input.ModeKeys,
	}, cfg.Input.StartPeripheral)
	go panel.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Ready! %s connects/advertises, %s disconnects, %s switches role. Ctrl+C to quit.",
		strings.Join(cfg.Input.ConnectKeys, "+"),
		strings.Join(cfg.Input.DisconnectKeys, "+"),
		strings.Join(cfg.Input.ModeKeys, "+"))

	var pending *input.Sample
	for ctx.Err() == nil {
		sample := panel.Sample()
		if pending != nil {
			sample = merge(*pending, sample)
			pending = nil
		}
		report, err := ctrl.Tick(ctx, inputs(sample))
		if err != nil {
			log.Printf("ERROR: %v", err)
		}
		if report.Switched {
			log.Printf("Role: %s", report.Mode)
		}
		if report.IO.Dropped {
			log.Println("Connection lost")
		}
		if report.IO.Read != nil {
			fmt.Printf("<< %q\n", report.IO.Read)
		}
		if report.Mode == ble.ModeHost && report.HostState == ble.HostAwaitingSelection {
			// Presses latched during the scan are handled before prompting.
			next := panel.Sample()
			pending = &next
			if interrupted(next, report.Mode) {
				continue
			}
			selectPeer(ctx, ctrl)
		}
		time.Sleep(cfg.TickInterval)
	}

	log.Println("Shutting down...")
	if err := ctrl.Close(); err != nil {
		log.Printf("ERROR: %v", err)
	}
	panel.Stop()
	log.Println("Goodbye!")
	// Exit directly to avoid gohook's C cleanup crash.
	// The OS reclaims the event hook on process exit.
	os.Exit(0)
}

// selectPeer prompts for a peer and then a service. Cancelling either
// prompt returns the host session to idle.
func selectPeer(ctx context.Context, ctrl *ble.Controller) {
	p, err := console.Open()
	if err != nil {
		log.Printf("ERROR: %v", err)
		cancelSelection(ctrl)
		return
	}
	defer p.Close()

	if err := p.ChoosePeer(ctx, ctrl.Host().Directory(), ctrl.SelectPeer); err != nil {
		if !promptAbandoned(err) {
			log.Printf("ERROR: %v", err)
		}
		if ctrl.Host().State() == ble.HostAwaitingSelection {
			cancelSelection(ctrl)
		}
		return
	}

	host := ctrl.Host()
	if err := host.DiscoverServices(ctx); err != nil {
		log.Printf("ERROR: %v", err)
		return
	}
	slog.Debug("[BLE] services discovered", "peer", host.Peer(), "uuids", serviceIDs(host.Services()))

	if err := p.ChooseService(ctx, host.Services(), ctrl.SelectService); err != nil {
		if !promptAbandoned(err) {
			log.Printf("ERROR: %v", err)
		}
		cancelSelection(ctrl)
		return
	}
	read, write := host.Bound()
	p.Printf("Bound to %s (read: %t, write: %t)\n", host.Peer(), read != nil, write != nil)
}

func cancelSelection(ctrl *ble.Controller) {
	if err := ctrl.Host().Cancel(); err != nil && !errors.Is(err, ble.ErrInvalidState) {
		log.Printf("ERROR: %v", err)
	}
}

func promptAbandoned(err error) bool {
	return errors.Is(err, console.ErrCancelled) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults (run with -init-config to create one)")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	start := "host"
	if cfg.Input.StartPeripheral {
		start = "peripheral"
	}
	fmt.Println("=== blerole ===")
	fmt.Printf("  Start:    %s mode\n", start)
	fmt.Printf("  Service:  %s / %s [%s]\n", cfg.Peripheral.ServiceUUID, cfg.Peripheral.CharacteristicUUID,
		strings.Join(cfg.Peripheral.Properties, ","))
	fmt.Printf("  Scan:     %d peers, %s, rssi >= %d\n", cfg.Scan.MaxResults, cfg.Scan.Timeout, cfg.Scan.MinRSSI)
	fmt.Printf("  Read:     %s\n", cfg.Read.Mode)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===============")
}

func printIdentity(id ble.Identity, radio ble.Radio) {
	fmt.Printf("Name: %s\n", id.Name)
	fmt.Printf("Tx power: %d\n", id.TxPower)
	if id.Address != "" {
		fmt.Printf("Address: %s\n", id.Address)
	}
	fmt.Printf("Connected: %t\n", radio.Connected())
	fmt.Printf("Advertising: %t\n", radio.Advertising())
}
