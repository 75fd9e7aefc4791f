package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// registerBuiltins wires the minimum handler set every node carries,
// per §4.6. All run regardless of how the command was targeted, since
// Dispatch has already filtered out commands meant for a different node.
func (r *Registry) registerBuiltins() {
	r.Register("ping", r.handlePing, ScopeAny)
	r.Register("echo", r.handleEcho, ScopeAny)
	r.Register("getparam", r.handleGetParam, ScopeAny)
	r.Register("setparam", r.handleSetParam, ScopeAny)
	r.Register("params", r.handleParams, ScopeAny)
	r.Register("cmds", r.handleCmds, ScopeAny)
	r.Register("rcfg_radio", r.handleRcfgRadio, ScopeAny)
	r.Register("savecfg", r.handleSaveCfg, ScopeAny)
	r.Register("discover", r.handleDiscover, ScopeAny)

	r.RegisterParam(ParamDef{
		Name:   "interval_ms",
		Getter: func() any { return r.broadcastIntervalMs() },
		Setter: func(v string) error {
			ms, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			r.setBroadcastIntervalMs(ms)
			return nil
		},
		MinVal: floatPtr(1000),
		MaxVal: floatPtr(3_600_000),
		Kind:   KindInt,
	})
}

func floatPtr(f float64) *float64 { return &f }

func (r *Registry) broadcastIntervalMs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intervalMs == 0 {
		return 60_000
	}
	return r.intervalMs
}

// BroadcastIntervalMs returns the node's current sensor-broadcast
// interval, live-updatable via the "interval_ms" param (setparam), for
// the node's own transmit loop to read each cycle.
func (r *Registry) BroadcastIntervalMs() int {
	return r.broadcastIntervalMs()
}

func (r *Registry) setBroadcastIntervalMs(ms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervalMs = ms
}

func (r *Registry) handlePing([]string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (r *Registry) handleEcho(args []string) (map[string]any, error) {
	return map[string]any{"data": strings.Join(args, " ")}, nil
}

func (r *Registry) handleGetParam(args []string) (map[string]any, error) {
	if len(args) < 1 {
		return map[string]any{"e": "missing param name"}, nil
	}
	return r.paramGet(args[0]), nil
}

func (r *Registry) handleSetParam(args []string) (map[string]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("setparam requires name and value, got %v", args)
	}
	if err := r.setParam(args[0], args[1]); err != nil {
		telemetry.L().Warnf("dispatch: setparam: %v", err)
		return nil, err
	}
	return map[string]any{}, nil
}

func (r *Registry) handleParams(args []string) (map[string]any, error) {
	offset := 0
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			offset = v
		}
	}
	return r.paramsList(offset), nil
}

func (r *Registry) handleCmds(args []string) (map[string]any, error) {
	offset := 0
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			offset = v
		}
	}
	return r.cmdsList(offset), nil
}

// handleRcfgRadio promotes staged radio params via C3.ApplyPending. It is
// fire-and-forget: the reconfiguration itself disrupts the ACK path, so no
// payload is returned.
func (r *Registry) handleRcfgRadio([]string) (map[string]any, error) {
	if r.radioState == nil {
		return nil, fmt.Errorf("no radio state attached")
	}
	applied, err := r.radioState.ApplyPending()
	if err != nil {
		return nil, fmt.Errorf("apply pending radio config: %w", err)
	}
	telemetry.L().Infof("dispatch: rcfg_radio applied: %v", applied)
	return nil, nil
}

func (r *Registry) handleSaveCfg([]string) (map[string]any, error) {
	if r.persist == nil {
		telemetry.L().Warnf("dispatch: savecfg requested but no persist function attached")
		return map[string]any{"e": "persistence not configured"}, nil
	}
	if err := r.persist(); err != nil {
		return nil, fmt.Errorf("savecfg: %w", err)
	}
	return map[string]any{}, nil
}

// handleDiscover exists purely to be ACKed, revealing the node's presence.
func (r *Registry) handleDiscover([]string) (map[string]any, error) {
	return map[string]any{}, nil
}

// AttachRadioState wires sf/bw/txpwr/n2gfreq/g2nfreq as staged parameters
// backed by state: reads return the *effective* value (staged if pending,
// else live); writes stage into C3's pending map rather than mutating the
// radio directly, matching §4.7's staged-category description.
func (r *Registry) AttachRadioState(state *radiostate.State) {
	r.mu.Lock()
	r.radioState = state
	r.mu.Unlock()

	r.RegisterParam(ParamDef{
		Name:   "sf",
		Getter: func() any { return state.EffectiveSF() },
		Setter: func(v string) error { state.SetPending("sf", v); return nil },
		MinVal: floatPtr(7),
		MaxVal: floatPtr(12),
		Kind:   KindInt,
	})
	r.RegisterParam(ParamDef{
		Name:   "bw",
		Getter: func() any { return state.EffectiveBWCode() },
		Setter: func(v string) error { state.SetPending("bw", v); return nil },
		MinVal: floatPtr(0),
		MaxVal: floatPtr(2),
		Kind:   KindInt,
	})
	r.RegisterParam(ParamDef{
		Name:   "txpwr",
		Getter: func() any { return state.EffectiveTxPower() },
		Setter: func(v string) error { state.SetPending("txpwr", v); return nil },
		MinVal: floatPtr(5),
		MaxVal: floatPtr(23),
		Kind:   KindInt,
	})
	r.RegisterParam(ParamDef{
		Name:   "n2gfreq",
		Getter: func() any { return state.EffectiveN2GFreqHz() },
		Setter: func(v string) error { state.SetPending("n2gfreq", v); return nil },
		Kind:   KindInt,
	})
	r.RegisterParam(ParamDef{
		Name:   "g2nfreq",
		Getter: func() any { return state.EffectiveG2NFreqHz() },
		Setter: func(v string) error { state.SetPending("g2nfreq", v); return nil },
		Kind:   KindInt,
	})
}
