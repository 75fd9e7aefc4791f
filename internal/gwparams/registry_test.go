package gwparams

import (
	"testing"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/radio/radiotest"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
)

func newTestRegistry() (*Registry, *radiotest.Mock, *radiostate.State, *cmdqueue.Queue) {
	m := radiotest.New()
	st := radiostate.New(m, 915.0, 916.0)
	q := cmdqueue.New(cmdqueue.DefaultConfig())
	r := New(Build(st, q, "gateway-01"))
	return r, m, st, q
}

func TestGetUnknownParam(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	_, errMsg := r.Get("not_a_param")
	if errMsg == "" {
		t.Fatalf("expected an error for an unknown param")
	}
}

func TestGetNodeIDReadOnly(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	val, errMsg := r.Get("nodeid")
	if errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	if val != "gateway-01" {
		t.Fatalf("nodeid = %v; want gateway-01", val)
	}
	if _, errMsg := r.Set("nodeid", "other"); errMsg == "" {
		t.Fatalf("expected read-only error setting nodeid")
	}
}

func TestSetRadioParamStagesWithoutApplying(t *testing.T) {
	r, m, st, _ := newTestRegistry()

	newVal, errMsg := r.Set("sf", "11")
	if errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	if newVal != 11 {
		t.Fatalf("newVal = %v; want 11", newVal)
	}
	if !st.HasPending() {
		t.Fatalf("expected sf to be staged")
	}
	if m.SpreadingFactor() != 9 {
		t.Fatalf("radio SF changed before rcfg_radio: %d", m.SpreadingFactor())
	}
	if !r.IsStaged("sf") {
		t.Fatalf("expected IsStaged(sf) = true")
	}
}

func TestSetRadioParamOutOfRange(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	_, errMsg := r.Set("sf", "30")
	if errMsg == "" {
		t.Fatalf("expected a range error for sf=30")
	}
}

func TestSetFrequencyParamConvertsMHzToHzString(t *testing.T) {
	r, _, st, _ := newTestRegistry()
	if _, errMsg := r.Set("n2g_freq", "917.5"); errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	pending, ok := func() (string, bool) {
		return st.GetPending("n2gfreq")
	}()
	if !ok {
		t.Fatalf("expected n2gfreq to be staged")
	}
	if pending != "917500000" {
		t.Fatalf("pending n2gfreq = %q; want 917500000", pending)
	}
}

func TestSetCommandQueueParamAppliesImmediately(t *testing.T) {
	r, _, _, q := newTestRegistry()
	newVal, errMsg := r.Set("max_retries", "7")
	if errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	if newVal != 7 {
		t.Fatalf("newVal = %v; want 7", newVal)
	}
	if q.MaxRetries() != 7 {
		t.Fatalf("MaxRetries() = %d; want 7 applied immediately", q.MaxRetries())
	}
	if r.IsStaged("max_retries") {
		t.Fatalf("expected IsStaged(max_retries) = false")
	}
}

func TestGetAllReturnsEveryParam(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	all := r.GetAll()
	for _, name := range []string{"sf", "bw", "txpwr", "n2g_freq", "g2n_freq", "nodeid", "max_queue_size", "max_retries", "initial_retry_ms", "retry_multiplier", "max_retry_ms", "discovery_retries"} {
		if _, ok := all[name]; !ok {
			t.Fatalf("GetAll() missing %q: %v", name, all)
		}
	}
}

func TestConfigKeyForRadioParam(t *testing.T) {
	r, _, _, _ := newTestRegistry()
	if got := r.ConfigKey("sf"); got != "lora.spreading_factor" {
		t.Fatalf("ConfigKey(sf) = %q", got)
	}
	if got := r.ConfigKey("unknown"); got != "" {
		t.Fatalf("ConfigKey(unknown) = %q; want empty", got)
	}
}
