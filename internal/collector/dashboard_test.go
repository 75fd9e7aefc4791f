package collector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/frame"
)

func float64Ptr(v float64) *float64 { return &v }

func TestDashboardClientPostsIngestPayload(t *testing.T) {
	var gotBody ingestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/timeseries/ingest" {
			t.Errorf("path = %s; want /api/timeseries/ingest", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewDashboardClient(srv.URL, "gw-1", time.Second)
	err := c.Post(Reading{
		Frame: frame.SensorFrame{
			NodeID:    "node-7",
			Timestamp: 1234.5,
			Readings: []frame.SensorReading{
				{Name: "Temperature", Units: "°F", Value: float64Ptr(71.2), SensorClass: "BME280TempPressureHumidity"},
			},
		},
		RSSI: -80,
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if gotBody.GatewayID != "gw-1" || gotBody.NodeID != "node-7" {
		t.Fatalf("gotBody = %+v", gotBody)
	}
	if gotBody.RSSI == nil || *gotBody.RSSI != -80 {
		t.Fatalf("RSSI = %v; want -80", gotBody.RSSI)
	}
	if len(gotBody.Readings) != 1 || gotBody.Readings[0].Name != "Temperature" {
		t.Fatalf("Readings = %+v", gotBody.Readings)
	}
}

func TestDashboardClientReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewDashboardClient(srv.URL, "gw-1", time.Second)
	err := c.Post(Reading{Frame: frame.SensorFrame{NodeID: "node-1"}})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestDashboardClientOmitsRSSIForLocalReadings(t *testing.T) {
	var gotBody ingestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewDashboardClient(srv.URL, "gw-1", time.Second)
	if err := c.Post(Reading{Frame: frame.SensorFrame{NodeID: "gw-1"}, IsLocal: true}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotBody.RSSI != nil {
		t.Fatalf("RSSI = %v; want nil for a local reading", gotBody.RSSI)
	}
	if !gotBody.IsLocal {
		t.Fatal("IsLocal = false; want true")
	}
}

func TestCollectorForwardsQueuedReadings(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewDashboardClient(srv.URL, "gw-1", time.Second)
	c := NewCollector(client, 10)
	c.Start()
	defer c.Stop()

	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-1"}})
	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-2"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&received) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("received = %d; want 2", atomic.LoadInt32(&received))
}

func TestCollectorDropsOldestWhenFull(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewDashboardClient(srv.URL, "gw-1", 2*time.Second)
	c := NewCollector(client, 2)
	c.Start()

	// The forwarding goroutine may pick up the first submission (on its
	// next idle poll) and block in Post; whether or not it has, the later
	// submissions overflow the 2-slot queue and the oldest are dropped.
	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-1"}})
	time.Sleep(20 * time.Millisecond)
	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-2"}})
	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-3"}})
	c.Submit(Reading{Frame: frame.SensorFrame{NodeID: "node-4"}})

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d; want 2 (capacity enforced by dropping oldest)", got)
	}

	close(block)
	c.Stop()
}
