package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/discovery"
	"github.com/patio-mesh/telemetry-core/internal/gwparams"
	"github.com/patio-mesh/telemetry-core/internal/radio/radiotest"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
	"github.com/patio-mesh/telemetry-core/internal/transceiver"
)

func newTestServer(t *testing.T) (*Server, *radiotest.Mock, *cmdqueue.Queue, string) {
	t.Helper()
	m := radiotest.New()
	st := radiostate.New(m, 915.0, 916.0)
	cfg := cmdqueue.DefaultConfig()
	q := cmdqueue.New(cfg)
	reg := sensorclass.New()
	tr := transceiver.New(st, q, reg)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{"lora":{}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	params := gwparams.New(gwparams.Build(st, q, "gw-1"))

	s := New(Config{
		Queue:       q,
		State:       st,
		Params:      params,
		Transceiver: tr,
		ConfigPath:  configPath,
	})
	return s, m, q, configPath
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func TestEnqueueCommandReturnsIDImmediatelyWithoutWait(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "POST", "/command", map[string]any{"cmd": "ping", "node_id": "node-a"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want 202, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["command_id"] == "" || resp["command_id"] == nil {
		t.Fatalf("response missing command_id: %v", resp)
	}
}

func TestEnqueueCommandRejectsMissingCmd(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "POST", "/command", map[string]any{"node_id": "node-a"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestEnqueueCommandWaitTimesOutWithPartialSnapshot(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "POST", "/command", map[string]any{"cmd": "ping", "node_id": "node-a", "wait_ms": 50})
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d; want 504, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["timed_out"] != true {
		t.Fatalf("response = %v; want timed_out=true", resp)
	}
}

func TestGetCommandStatusUnknownIDReturns404(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "GET", "/command/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
}

func TestGetCommandStatusReturnsPartialAcks(t *testing.T) {
	s, _, q, _ := newTestServer(t)
	id, err := q.Add("ping", nil, "node-a", nil, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	w := doRequest(s, "GET", "/command/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestGetAllParamsReturnsEveryParam(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "GET", "/gateway/params", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp["sf"]; !ok {
		t.Fatalf("response missing sf param: %v", resp)
	}
}

func TestGetParamUnknownReturns404(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "GET", "/gateway/param/bogus", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
}

func TestSetRadioParamStagesAndRcfgApplies(t *testing.T) {
	s, m, _, _ := newTestServer(t)

	w := doRequest(s, "PUT", "/gateway/param/sf", map[string]any{"value": "10"})
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d; want 200, body=%s", w.Code, w.Body.String())
	}
	var setResp map[string]any
	json.Unmarshal(w.Body.Bytes(), &setResp)
	if setResp["staged"] != true {
		t.Fatalf("set response = %v; want staged=true", setResp)
	}

	if m.SpreadingFactor() != 9 {
		t.Fatalf("hardware sf changed before rcfg_radio: %d", m.SpreadingFactor())
	}

	w = doRequest(s, "POST", "/gateway/rcfg_radio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rcfg status = %d; want 200, body=%s", w.Code, w.Body.String())
	}
	if m.SpreadingFactor() != 10 {
		t.Fatalf("hardware sf = %d; want 10 after rcfg_radio", m.SpreadingFactor())
	}
}

func TestSetParamOutOfRangeReturns400(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, "PUT", "/gateway/param/sf", map[string]any{"value": "99"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestSaveCfgPersistsNamedParams(t *testing.T) {
	s, _, _, configPath := newTestServer(t)

	doRequest(s, "PUT", "/gateway/param/sf", map[string]any{"value": "11"})

	w := doRequest(s, "POST", "/gateway/savecfg", map[string]any{"names": []string{"sf"}})
	if w.Code != http.StatusOK {
		t.Fatalf("savecfg status = %d; want 200, body=%s", w.Code, w.Body.String())
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	lora, ok := doc["lora"].(map[string]any)
	if !ok {
		t.Fatalf("config missing lora object: %v", doc)
	}
	if lora["spreading_factor"] != float64(11) {
		t.Fatalf("lora.spreading_factor = %v; want 11", lora["spreading_factor"])
	}
}

func TestDiscoverReturns409WhenAlreadyInProgress(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	// Occupy the transceiver's single discovery slot directly, so the
	// HTTP request is guaranteed to find it taken.
	stub := discovery.NewRequest(1, 10, 10, 1.5)
	if !s.tr.RequestDiscovery(stub) {
		t.Fatal("failed to occupy discovery slot for test setup")
	}

	w := doRequest(s, "POST", "/discover", map[string]any{"retries": 1, "wait_ms": 1})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d; want 409, body=%s", w.Code, w.Body.String())
	}
}
