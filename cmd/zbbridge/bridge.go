package main

import (
	"fmt"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
)

// newChannel builds the device channel for def.
func newChannel(def accessory.Definition, rt *router.Router, cfg *config.Config) (accessory.Channel, error) {
	switch def.Type {
	case accessory.DeviceTasmota:
		return accessory.NewTasmotaChannel(rt, def.Topic, cfg.RequestTimeout()).
			WithPayloadDump(cfg.Bridge.DumpPayloads), nil
	case accessory.DeviceZigbee:
		return accessory.NewZigbeeChannel(rt, def.Topic, def.Address, def.Endpoint, cfg.RequestTimeout()), nil
	default:
		return nil, fmt.Errorf("%w %s: unknown type %q", accessory.ErrInvalidDefinition, def.ID, def.Type)
	}
}

// buildAccessories creates every configured accessory, subscribes each
// Zigbee bridge's telemetry tree once and starts the accessories.
func buildAccessories(cfg *config.Config, rt *router.Router, opts ...accessory.Option) (*accessory.Registry, error) {
	registry := accessory.NewRegistry()
	opts = append([]accessory.Option{accessory.WithStaleWindow(cfg.StaleWindow())}, opts...)

	bridges := make(map[string]bool)
	for _, def := range cfg.Accessories {
		ch, err := newChannel(def, rt, cfg)
		if err != nil {
			return nil, err
		}
		a, err := accessory.New(def, ch, opts...)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(a); err != nil {
			return nil, err
		}
		if def.Type == accessory.DeviceZigbee {
			bridges[def.Topic] = true
		}
	}

	for topic := range bridges {
		if _, err := rt.ListenDevices(topic); err != nil {
			return nil, fmt.Errorf("listening on bridge %s: %w", topic, err)
		}
	}

	for _, a := range registry.List() {
		if err := a.Start(); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
