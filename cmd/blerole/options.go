package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chaz8081/blerole/internal/ble"
	"github.com/chaz8081/blerole/internal/config"
	"github.com/chaz8081/blerole/internal/input"
)

// controllerOptions translates the validated config into controller options.
func controllerOptions(cfg *config.Config) (ble.ControllerOptions, error) {
	opts := ble.DefaultControllerOptions()

	mode, err := ble.ParseReadMode(cfg.Read.Mode)
	if err != nil {
		return opts, err
	}
	read := ble.ReadOptions{Mode: mode, Timeout: cfg.Read.Timeout, BufferSize: cfg.Read.BufferSize}

	opts.Host.Scan = ble.ScanOptions{
		MaxResults:  cfg.Scan.MaxResults,
		RequireName: cfg.Scan.RequireName,
		MinRSSI:     cfg.Scan.MinRSSI,
		BufferSize:  cfg.Scan.BufferSize,
		Timeout:     cfg.Scan.Timeout,
		Interval:    cfg.Scan.Interval,
		Window:      cfg.Scan.Window,
		Active:      cfg.Scan.Active,
		Extended:    cfg.Scan.Extended,
	}
	opts.Host.SettleDelay = cfg.Host.SettleDelay
	opts.Host.Read = read
	opts.Host.MaxLength = cfg.MaxLength
	opts.Host.WriteBuffer = cfg.MaxLength
	opts.Host.MaxPacketSize = cfg.MaxLength
	opts.Host.ServiceFilter = nil
	for _, s := range cfg.Host.ServiceFilter {
		id, err := ble.ParseUUID(s)
		if err != nil {
			return opts, fmt.Errorf("host.service_filter: %w", err)
		}
		opts.Host.ServiceFilter = append(opts.Host.ServiceFilter, id)
	}

	opts.Peripheral.Read = read
	opts.Peripheral.MaxLength = cfg.MaxLength
	opts.Peripheral.WriteBuffer = cfg.MaxLength
	opts.Peripheral.MaxPacketSize = cfg.MaxLength

	svc, err := serviceConfig(cfg.Peripheral, cfg.MaxLength)
	if err != nil {
		return opts, err
	}
	opts.Service = svc
	return opts, nil
}

func serviceConfig(p config.PeripheralConfig, maxLength int) (ble.ServiceConfig, error) {
	var svc ble.ServiceConfig
	svcID, err := ble.ParseUUID(p.ServiceUUID)
	if err != nil {
		return svc, fmt.Errorf("peripheral.service_uuid: %w", err)
	}
	charID, err := ble.ParseUUID(p.CharacteristicUUID)
	if err != nil {
		return svc, fmt.Errorf("peripheral.characteristic_uuid: %w", err)
	}
	caps, err := ble.ParseCapabilities(p.Properties)
	if err != nil {
		return svc, fmt.Errorf("peripheral.properties: %w", err)
	}
	svc.UUID = svcID
	svc.Characteristics = []ble.CharacteristicConfig{{
		UUID:         charID,
		Capabilities: caps,
		MaxLength:    maxLength,
		FixedLength:  p.FixedLength,
		Description:  p.Description,
	}}
	return svc, nil
}

// inputs converts a panel sample into controller inputs.
func inputs(s input.Sample) ble.Inputs {
	return ble.Inputs{Peripheral: s.Peripheral, Connect: s.Connect, Disconnect: s.Disconnect}
}

// interrupted reports whether s asks to leave the pending selection: a
// disconnect press or a switch position that differs from mode.
func interrupted(s input.Sample, mode ble.Mode) bool {
	return s.Disconnect || s.Peripheral != (mode == ble.ModePeripheral)
}

// merge combines a held-back sample with a newer one. Presses from either
// count; the switch position comes from the newer sample.
func merge(held, next input.Sample) input.Sample {
	return input.Sample{
		Peripheral: next.Peripheral,
		Connect:    held.Connect || next.Connect,
		Disconnect: held.Disconnect || next.Disconnect,
	}
}

// serviceIDs lists the UUIDs of services, for log output.
func serviceIDs(services []ble.Service) []uuid.UUID {
	out := make([]uuid.UUID, len(services))
	for i, s := range services {
		out[i] = s.UUID
	}
	return out
}
