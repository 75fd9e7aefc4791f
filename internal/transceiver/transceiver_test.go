package transceiver

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/discovery"
	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/radio/radiotest"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
)

var errSendBoom = errors.New("send boom")

func newHarness() (*Transceiver, *radiotest.Mock, *radiostate.State, *cmdqueue.Queue) {
	m := radiotest.New()
	st := radiostate.New(m, 915.0, 916.0)
	cfg := cmdqueue.DefaultConfig()
	cfg.InitialRetryMs = 10
	cfg.MaxRetryMs = 40
	q := cmdqueue.New(cfg)
	reg := sensorclass.New()
	tr := New(st, q, reg)
	return tr, m, st, q
}

func encodeSensor(t *testing.T, reg *sensorclass.Registry, nodeID string) []byte {
	t.Helper()
	data, err := frame.EncodeSensorFrame(frame.SensorFrame{
		NodeID:    nodeID,
		Timestamp: 0,
		Readings: []frame.SensorReading{
			{Name: "Temperature", Units: "C", Value: floatPtr(21.5), SensorClass: "BME280TempPressureHumidity", Precision: 1},
		},
	}, reg)
	if err != nil {
		t.Fatalf("encode sensor frame: %v", err)
	}
	return data
}

func floatPtr(f float64) *float64 { return &f }

func TestTickReceivesSensorFrameAndFillsTimestamp(t *testing.T) {
	tr, m, _, _ := newHarness()
	reg := sensorclass.New()

	data := encodeSensor(t, reg, "node-a")
	m.QueueReceive(data, -42)

	var got ReceivedReading
	tr.OnSensorFrame = func(r ReceivedReading) { got = r }

	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if got.Frame.NodeID != "node-a" {
		t.Fatalf("NodeID = %q; want node-a", got.Frame.NodeID)
	}
	if got.RSSI != -42 {
		t.Fatalf("RSSI = %d; want -42", got.RSSI)
	}
	if got.Frame.Readings[0].Timestamp == 0 {
		t.Fatalf("expected zero timestamp to be filled with receive time")
	}
}

func TestTickDropsUndecodablePacket(t *testing.T) {
	tr, m, _, _ := newHarness()
	m.QueueReceive([]byte("not a valid frame at all"), -50)

	before := testutil.ToFloat64(rxDroppedTotal)
	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	after := testutil.ToFloat64(rxDroppedTotal)
	if after != before+1 {
		t.Fatalf("rxDroppedTotal did not increment: before=%v after=%v", before, after)
	}
}

func TestTickAppliesPendingConfigBeforeAnythingElse(t *testing.T) {
	tr, m, st, _ := newHarness()
	st.SetPending("sf", "12")

	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if m.SpreadingFactor() != 12 {
		t.Fatalf("SpreadingFactor() = %d; want 12 applied", m.SpreadingFactor())
	}
	if st.HasPending() {
		t.Fatalf("expected pending cleared after apply")
	}
}

func TestTickTransmitsQueuedCommandHoppingAndRestoring(t *testing.T) {
	tr, m, _, q := newHarness()
	if _, err := q.Add("ping", nil, "node-a", nil, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	if len(m.Sent()) != 1 {
		t.Fatalf("sent = %d packets; want 1", len(m.Sent()))
	}
	freqs := m.FrequencyLog()
	if len(freqs) != 2 {
		t.Fatalf("frequency hops = %v; want [G2N, N2G]", freqs)
	}
	if freqs[0] != 916.0 || freqs[1] != 915.0 {
		t.Fatalf("frequency hops = %v; want [916, 915]", freqs)
	}
	if !q.HasCurrent() {
		t.Fatalf("expected command to remain current awaiting ACK")
	}
}

func TestTickRestoresN2GWhenSendFails(t *testing.T) {
	tr, m, _, q := newHarness()
	if _, err := q.Add("ping", nil, "node-a", nil, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m.SetSendError(errSendBoom)

	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	freqs := m.FrequencyLog()
	if len(freqs) != 2 || freqs[len(freqs)-1] != 915.0 {
		t.Fatalf("frequency hops = %v; want restore to N2G (915) after failed send", freqs)
	}
}

func TestTickRoutesAckToQueue(t *testing.T) {
	tr, m, _, q := newHarness()
	id, err := q.Add("ping", nil, "node-a", nil, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Tick(); err != nil { // transmit it
		t.Fatalf("Tick() error: %v", err)
	}

	ackData, err := frame.EncodeAckFrame(frame.AckFrame{NodeID: "node-a", CommandID: id, Payload: map[string]any{"ok": true}})
	if err != nil {
		t.Fatalf("encode ack: %v", err)
	}
	m.QueueReceive(ackData, -30)

	if err := tr.Tick(); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	if q.HasCurrent() {
		t.Fatalf("expected command retired after ACK")
	}
}

func TestExecuteDiscoveryCollectsRespondersAndCompletes(t *testing.T) {
	tr, m, _, _ := newHarness()

	req := discovery.NewRequest(2, 5, 20, 1.5)

	// Two ACKs will be consumed across the two listen windows; order does
	// not matter for the assertion, only that both end up discovered.
	ack1, _ := frame.EncodeAckFrame(frame.AckFrame{NodeID: "zzz-node", CommandID: "whatever"})
	ack2, _ := frame.EncodeAckFrame(frame.AckFrame{NodeID: "aaa-node", CommandID: "whatever"})
	m.QueueReceive(ack1, -10)
	m.QueueReceive(ack2, -10)

	done := make(chan struct{})
	go func() {
		tr.executeDiscovery(req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executeDiscovery did not complete in time")
	}

	nodes, errString := req.Result()
	if errString != "" {
		t.Fatalf("unexpected error: %q", errString)
	}
	want := map[string]bool{"aaa-node": true, "zzz-node": true}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %v; want 2 entries", nodes)
	}
	for _, n := range nodes {
		if !want[n] {
			t.Fatalf("unexpected node %q in %v", n, nodes)
		}
	}
}

func TestRequestDiscoveryRejectsSecondConcurrentRequest(t *testing.T) {
	tr, _, _, _ := newHarness()
	r1 := discovery.NewRequest(1, 5, 20, 1.5)
	r2 := discovery.NewRequest(1, 5, 20, 1.5)

	if !tr.RequestDiscovery(r1) {
		t.Fatalf("first RequestDiscovery should succeed")
	}
	if tr.RequestDiscovery(r2) {
		t.Fatalf("second concurrent RequestDiscovery should be rejected")
	}
}
