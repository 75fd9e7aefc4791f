package main

import (
	"time"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/radio/sx127x"
)

// asString/asFloat/asInt/asBool pull typed values out of the generic
// map[string]any tree config.Load returns (every JSON number decodes to
// float64), defaulting when the key is absent or the wrong shape —
// mirrors the original's dict.get(key, default) calls throughout
// gateway/server.py.
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

func asBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func sx127xConfigFrom(radioCfg map[string]any) sx127x.Config {
	return sx127x.Config{
		SpiBusPath:        asString(radioCfg["spi_bus"], ""),
		SpiClockHz:        asInt(radioCfg["spi_clock_hz"], 0),
		ResetPin:          asInt(radioCfg["reset_pin"], 0),
		FrequencyMHz:      asFloat(radioCfg["n2g_frequency_mhz"], 915.0),
		SpreadingFactor:   asInt(radioCfg["spreading_factor"], 9),
		SignalBandwidthHz: asInt(radioCfg["signal_bandwidth"], 125000),
		TxPowerDBm:        asInt(radioCfg["tx_power"], 14),
	}
}

func cmdQueueConfigFrom(cmdCfg map[string]any) cmdqueue.Config {
	cfg := cmdqueue.DefaultConfig()
	if cmdCfg == nil {
		return cfg
	}
	cfg.MaxSize = asInt(cmdCfg["max_queue_size"], cfg.MaxSize)
	cfg.MaxRetries = asInt(cmdCfg["max_retries"], cfg.MaxRetries)
	cfg.InitialRetryMs = asInt(cmdCfg["initial_retry_ms"], cfg.InitialRetryMs)
	cfg.MaxRetryMs = asInt(cmdCfg["max_retry_ms"], cfg.MaxRetryMs)
	cfg.DiscoveryRetries = asInt(cmdCfg["discovery_retries"], cfg.DiscoveryRetries)
	if mult, ok := cmdCfg["retry_multiplier"].(float64); ok {
		cfg.RetryMultiplier = mult
	}
	if secs, ok := cmdCfg["wait_timeout_sec"].(float64); ok {
		cfg.WaitTimeout = time.Duration(secs * float64(time.Second))
	}
	return cfg
}
