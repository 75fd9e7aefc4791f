package gwparams

import (
	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
)

// radioParamConfigKeys mirrors the original's RADIO_PARAM_CONFIG_KEYS:
// the dotted config path each staged radio param persists under.
var radioParamConfigKeys = map[string]string{
	"sf":       "lora.spreading_factor",
	"bw":       "lora.signal_bandwidth",
	"txpwr":    "lora.tx_power",
	"n2g_freq": "lora.n2g_frequency_mhz",
	"g2n_freq": "lora.g2n_frequency_mhz",
}

// Build assembles the full gateway parameter table: staged radio params
// backed by state, read-only nodeID, and immediate command-queue knobs
// backed by queue. Either dependency may be nil, in which case its
// section of the table is omitted (mirrors the original's `if rs:` /
// `if cq:` guards).
func Build(state *radiostate.State, queue *cmdqueue.Queue, nodeID string) []ParamDef {
	var defs []ParamDef

	if state != nil {
		defs = append(defs, radioParamDefs(state)...)
	}

	defs = append(defs, ParamDef{
		Name:   "nodeid",
		Getter: func() any { return nodeID },
		Kind:   KindString,
	})

	if queue != nil {
		defs = append(defs, commandQueueParamDefs(queue)...)
	}

	return defs
}

func radioParamDefs(state *radiostate.State) []ParamDef {
	return []ParamDef{
		{
			Name:      "sf",
			Getter:    func() any { return state.EffectiveSF() },
			Setter:    func(v any) error { state.SetPending("sf", itoa(v)); return nil },
			ConfigKey: radioParamConfigKeys["sf"],
			MinVal:    floatPtr(7),
			MaxVal:    floatPtr(12),
			Kind:      KindInt,
			Staged:    true,
		},
		{
			Name:      "bw",
			Getter:    func() any { return state.EffectiveBWCode() },
			Setter:    func(v any) error { state.SetPending("bw", itoa(v)); return nil },
			ConfigKey: radioParamConfigKeys["bw"],
			MinVal:    floatPtr(0),
			MaxVal:    floatPtr(2),
			Kind:      KindInt,
			Staged:    true,
		},
		{
			Name:      "txpwr",
			Getter:    func() any { return state.EffectiveTxPower() },
			Setter:    func(v any) error { state.SetPending("txpwr", itoa(v)); return nil },
			ConfigKey: radioParamConfigKeys["txpwr"],
			MinVal:    floatPtr(5),
			MaxVal:    floatPtr(23),
			Kind:      KindInt,
			Staged:    true,
		},
		{
			Name:      "n2g_freq",
			Getter:    func() any { return float64(state.EffectiveN2GFreqHz()) / 1e6 },
			Setter:    func(v any) error { state.SetPending("n2gfreq", hzFromMHz(v)); return nil },
			ConfigKey: radioParamConfigKeys["n2g_freq"],
			Kind:      KindFloat,
			Staged:    true,
		},
		{
			Name:      "g2n_freq",
			Getter:    func() any { return float64(state.EffectiveG2NFreqHz()) / 1e6 },
			Setter:    func(v any) error { state.SetPending("g2nfreq", hzFromMHz(v)); return nil },
			ConfigKey: radioParamConfigKeys["g2n_freq"],
			Kind:      KindFloat,
			Staged:    true,
		},
	}
}

func commandQueueParamDefs(q *cmdqueue.Queue) []ParamDef {
	return []ParamDef{
		{
			Name:      "max_queue_size",
			Getter:    func() any { return q.MaxSize() },
			Setter:    func(v any) error { q.SetMaxSize(v.(int)); return nil },
			ConfigKey: "command_server.max_queue_size",
			MinVal:    floatPtr(1),
			MaxVal:    floatPtr(1000),
			Kind:      KindInt,
		},
		{
			Name:      "max_retries",
			Getter:    func() any { return q.MaxRetries() },
			Setter:    func(v any) error { q.SetMaxRetries(v.(int)); return nil },
			ConfigKey: "command_server.max_retries",
			MinVal:    floatPtr(1),
			MaxVal:    floatPtr(100),
			Kind:      KindInt,
		},
		{
			Name:      "initial_retry_ms",
			Getter:    func() any { return q.InitialRetryMs() },
			Setter:    func(v any) error { q.SetInitialRetryMs(v.(int)); return nil },
			ConfigKey: "command_server.initial_retry_ms",
			MinVal:    floatPtr(100),
			MaxVal:    floatPtr(30000),
			Kind:      KindInt,
		},
		{
			Name:      "retry_multiplier",
			Getter:    func() any { return q.RetryMultiplier() },
			Setter:    func(v any) error { q.SetRetryMultiplier(v.(float64)); return nil },
			ConfigKey: "command_server.retry_multiplier",
			MinVal:    floatPtr(1.0),
			MaxVal:    floatPtr(5.0),
			Kind:      KindFloat,
		},
		{
			Name:      "max_retry_ms",
			Getter:    func() any { return q.MaxRetryMs() },
			Setter:    func(v any) error { q.SetMaxRetryMs(v.(int)); return nil },
			ConfigKey: "command_server.max_retry_ms",
			MinVal:    floatPtr(1000),
			MaxVal:    floatPtr(60000),
			Kind:      KindInt,
		},
		{
			Name:      "discovery_retries",
			Getter:    func() any { return q.DiscoveryRetries() },
			Setter:    func(v any) error { q.SetDiscoveryRetries(v.(int)); return nil },
			ConfigKey: "command_server.discovery_retries",
			MinVal:    floatPtr(1),
			MaxVal:    floatPtr(100),
			Kind:      KindInt,
		},
	}
}

func floatPtr(f float64) *float64 { return &f }
