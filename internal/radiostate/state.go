// Package radiostate implements C3: the single mutex-guarded home for the
// live radio handle, the two carrier frequencies, and the staged-parameter
// map. Staged values never reach the radio until ApplyPending is called
// explicitly, so a node can accept setparam commands for radio settings
// without risking an ACK failure mid-change.
package radiostate

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/patio-mesh/telemetry-core/internal/radio"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// BWHzByCode maps the AB01 bandwidth code (0/1/2) to Hz.
var BWHzByCode = map[int]int{0: 125000, 1: 250000, 2: 500000}

// BWCodeByHz is the inverse of BWHzByCode.
var BWCodeByHz = map[int]int{125000: 0, 250000: 1, 500000: 2}

// State holds everything C5 needs to know about the radio's operating
// parameters, under one mutex.
type State struct {
	mu       sync.Mutex
	radio    radio.Radio
	n2gFreq  float64 // MHz
	g2nFreq  float64 // MHz
	pending  map[string]string
}

// New wraps an already-initialized radio with its two carrier frequencies.
func New(r radio.Radio, n2gFreqMHz, g2nFreqMHz float64) *State {
	return &State{
		radio:   r,
		n2gFreq: n2gFreqMHz,
		g2nFreq: g2nFreqMHz,
		pending: make(map[string]string),
	}
}

// Radio returns the wrapped radio handle. Callers outside C5 must not
// invoke radio methods directly (§5's locking discipline assigns radio
// ownership to C5 alone); this accessor exists for C5's own use.
func (s *State) Radio() radio.Radio {
	return s.radio
}

func (s *State) N2GFreq() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n2gFreq
}

func (s *State) SetN2GFreq(mhz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n2gFreq = mhz
}

func (s *State) G2NFreq() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g2nFreq
}

func (s *State) SetG2NFreq(mhz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g2nFreq = mhz
}

// SpreadingFactor returns the live hardware value.
func (s *State) SpreadingFactor() int { return s.radio.SpreadingFactor() }

// SignalBandwidth returns the live hardware value, in Hz.
func (s *State) SignalBandwidth() int { return s.radio.SignalBandwidth() }

// BandwidthCode returns the live value as an AB01 code, defaulting to 0
// for an Hz value outside the known set.
func (s *State) BandwidthCode() int {
	code, ok := BWCodeByHz[s.radio.SignalBandwidth()]
	if !ok {
		return 0
	}
	return code
}

// TxPower returns the live hardware value, in dBm.
func (s *State) TxPower() int { return s.radio.TxPower() }

// SetPending stages a raw string value for name. It does not touch
// hardware and never fails; ApplyPending clears an unrecognised name and
// reports it as applied without touching the radio.
func (s *State) SetPending(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = value
}

// GetPending returns the staged value for name, if any.
func (s *State) GetPending(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pending[name]
	return v, ok
}

// ClearPending discards the staged value for name, if any.
func (s *State) ClearPending(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, name)
}

// AllPending returns a copy of the full staged map.
func (s *State) AllPending() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// ClearAllPending discards every staged value.
func (s *State) ClearAllPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]string)
}

// HasPending reports whether any parameter is staged.
func (s *State) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// ApplyPending writes every staged value to the radio, in sorted key
// order, clearing each as it succeeds. It must be called from the
// goroutine that owns the radio (C5), never concurrently with Send/
// Receive. On the first hardware error it stops and returns the changes
// applied so far; the failing parameter and anything after it in sorted
// order remain staged for the next tick to retry.
func (s *State) ApplyPending() ([]string, error) {
	s.mu.Lock()
	pending := make(map[string]string, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		value := pending[name]
		if err := s.applyOne(name, value); err != nil {
			return applied, fmt.Errorf("%w: %s=%s: %v", ErrApplyFailed, name, value, err)
		}
		s.ClearPending(name)
		applied = append(applied, name+"="+value)
		telemetry.L().Infof("radiostate: applied %s=%s", name, value)
	}
	return applied, nil
}

func (s *State) applyOne(name, value string) error {
	switch name {
	case "sf":
		sf, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		return s.radio.SetSpreadingFactor(sf)
	case "bw":
		code, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		hz, ok := BWHzByCode[code]
		if !ok {
			return fmt.Errorf("radiostate: unknown bandwidth code %d", code)
		}
		return s.radio.SetSignalBandwidth(hz)
	case "txpwr":
		dBm, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		return s.radio.SetTxPower(dBm)
	case "n2gfreq":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if err := s.radio.SetFrequency(float64(hz) / 1e6); err != nil {
			return err
		}
		s.SetN2GFreq(float64(hz) / 1e6)
		return nil
	case "g2nfreq":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.SetG2NFreq(float64(hz) / 1e6)
		return nil
	default:
		return nil // unrecognised name: staged but inert, per original behavior
	}
}

// EffectiveSF returns the staged spreading factor if one is pending, else
// the live hardware value.
func (s *State) EffectiveSF() int {
	if v, ok := s.GetPending("sf"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return s.SpreadingFactor()
}

// EffectiveBWCode returns the staged bandwidth code if one is pending,
// else the live hardware value.
func (s *State) EffectiveBWCode() int {
	if v, ok := s.GetPending("bw"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return s.BandwidthCode()
}

// EffectiveTxPower returns the staged TX power if one is pending, else the
// live hardware value.
func (s *State) EffectiveTxPower() int {
	if v, ok := s.GetPending("txpwr"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return s.TxPower()
}

// EffectiveN2GFreqHz returns the staged N2G frequency in Hz if one is
// pending, else the live value derived from N2GFreq (MHz).
func (s *State) EffectiveN2GFreqHz() int {
	if v, ok := s.GetPending("n2gfreq"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return int(s.N2GFreq() * 1e6)
}

// EffectiveG2NFreqHz returns the staged G2N frequency in Hz if one is
// pending, else the live value derived from G2NFreq (MHz).
func (s *State) EffectiveG2NFreqHz() int {
	if v, ok := s.GetPending("g2nfreq"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return int(s.G2NFreq() * 1e6)
}
