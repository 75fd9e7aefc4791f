package main

import (
	"github.com/patio-mesh/telemetry-core/internal/radio/sx127x"
)

// asString/asFloat/asInt pull typed values out of the generic
// map[string]any tree config.Load returns, defaulting when the key is
// absent or the wrong shape. Kept separate from cmd/gateway's copy: the
// two commands are independent deployables (spec §1, node vs. gateway
// are separate processes on separate hosts) and share no build.
func asString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asFloat(v any, def float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}

func asInt(v any, def int) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return def
}

func sx127xConfigFrom(radioCfg map[string]any) sx127x.Config {
	return sx127x.Config{
		SpiBusPath:        asString(radioCfg["spi_bus"], ""),
		SpiClockHz:        asInt(radioCfg["spi_clock_hz"], 0),
		ResetPin:          asInt(radioCfg["reset_pin"], 0),
		FrequencyMHz:      asFloat(radioCfg["g2n_frequency_mhz"], 916.0),
		SpreadingFactor:   asInt(radioCfg["spreading_factor"], 9),
		SignalBandwidthHz: asInt(radioCfg["signal_bandwidth"], 125000),
		TxPowerDBm:        asInt(radioCfg["tx_power"], 14),
	}
}
