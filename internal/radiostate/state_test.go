package radiostate

import (
	"errors"
	"testing"
	"time"
)

type fakeRadio struct {
	sf         int
	bwHz       int
	txPower    int
	freqMHz    float64
	setFreqErr error
}

func (f *fakeRadio) Init() error                              { return nil }
func (f *fakeRadio) Send([]byte) (bool, error)                 { return true, nil }
func (f *fakeRadio) Receive(time.Duration) ([]byte, error)     { return nil, nil }
func (f *fakeRadio) SetFrequency(mhz float64) error {
	if f.setFreqErr != nil {
		return f.setFreqErr
	}
	f.freqMHz = mhz
	return nil
}
func (f *fakeRadio) LastRSSI() (int, bool) { return 0, false }
func (f *fakeRadio) Close() error          { return nil }

func (f *fakeRadio) SpreadingFactor() int         { return f.sf }
func (f *fakeRadio) SetSpreadingFactor(sf int) error {
	f.sf = sf
	return nil
}
func (f *fakeRadio) SignalBandwidth() int { return f.bwHz }
func (f *fakeRadio) SetSignalBandwidth(hz int) error {
	f.bwHz = hz
	return nil
}
func (f *fakeRadio) TxPower() int { return f.txPower }
func (f *fakeRadio) SetTxPower(dBm int) error {
	f.txPower = dBm
	return nil
}

func TestEffectiveValueFallsBackToLiveWhenNothingStaged(t *testing.T) {
	r := &fakeRadio{sf: 9, bwHz: 125000, txPower: 14}
	s := New(r, 915.0, 916.0)

	if got := s.EffectiveSF(); got != 9 {
		t.Fatalf("EffectiveSF() = %d; want 9", got)
	}
	if got := s.EffectiveBWCode(); got != 0 {
		t.Fatalf("EffectiveBWCode() = %d; want 0", got)
	}
	if got := s.EffectiveTxPower(); got != 14 {
		t.Fatalf("EffectiveTxPower() = %d; want 14", got)
	}
}

func TestEffectiveValuePrefersStaged(t *testing.T) {
	r := &fakeRadio{sf: 9, bwHz: 125000, txPower: 14}
	s := New(r, 915.0, 916.0)

	s.SetPending("sf", "12")
	if got := s.EffectiveSF(); got != 12 {
		t.Fatalf("EffectiveSF() = %d; want 12 (staged)", got)
	}
	if got := s.SpreadingFactor(); got != 9 {
		t.Fatalf("SpreadingFactor() (live) = %d; want 9 (unaffected until apply)", got)
	}
}

func TestApplyPendingWritesAndClears(t *testing.T) {
	r := &fakeRadio{sf: 9, bwHz: 125000, txPower: 14}
	s := New(r, 915.0, 916.0)

	s.SetPending("sf", "11")
	s.SetPending("txpwr", "20")

	applied, err := s.ApplyPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 {
		t.Fatalf("len(applied) = %d; want 2", len(applied))
	}
	if r.sf != 11 || r.txPower != 20 {
		t.Fatalf("radio not updated: sf=%d txPower=%d", r.sf, r.txPower)
	}
	if s.HasPending() {
		t.Fatalf("expected no pending values left after apply")
	}
}

func TestApplyPendingBandwidthCodeTranslatesToHz(t *testing.T) {
	r := &fakeRadio{bwHz: 125000}
	s := New(r, 915.0, 916.0)

	s.SetPending("bw", "2")
	if _, err := s.ApplyPending(); err != nil {
		t.Fatal(err)
	}
	if r.bwHz != 500000 {
		t.Fatalf("bwHz = %d; want 500000", r.bwHz)
	}
}

func TestApplyPendingStopsOnFirstErrorLeavingRestStaged(t *testing.T) {
	r := &fakeRadio{sf: 9, setFreqErr: errors.New("boom")}
	s := New(r, 915.0, 916.0)

	// Sorted order: n2gfreq before sf, so the failure on n2gfreq should
	// leave sf still staged and unapplied.
	s.SetPending("n2gfreq", "915000000")
	s.SetPending("sf", "11")

	applied, err := s.ApplyPending()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if len(applied) != 0 {
		t.Fatalf("applied = %v; want none", applied)
	}
	if r.sf != 9 {
		t.Fatalf("sf = %d; want unchanged 9", r.sf)
	}
	if _, ok := s.GetPending("sf"); !ok {
		t.Fatalf("expected sf to remain staged after n2gfreq failure")
	}
}

func TestUnrecognisedPendingNameIsInertButCleared(t *testing.T) {
	r := &fakeRadio{}
	s := New(r, 915.0, 916.0)

	s.SetPending("not_a_real_param", "hello")
	applied, err := s.ApplyPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 1 {
		t.Fatalf("len(applied) = %d; want 1", len(applied))
	}
	if s.HasPending() {
		t.Fatalf("expected pending cleared even though unrecognised")
	}
}
