package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/discovery"
)

type discoverRequest struct {
	Retries         int     `json:"retries"`
	InitialRetryMs  int     `json:"initial_retry_ms"`
	MaxRetryMs      int     `json:"max_retry_ms"`
	RetryMultiplier float64 `json:"retry_multiplier"`
	WaitMs          int     `json:"wait_ms"`
}

// handleDiscover hands a discovery.Request to the transceiver loop and
// blocks (up to wait_ms, default 30s) for it to finish, returning the
// sorted node list it found.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Retries <= 0 {
		req.Retries = 30
	}
	if req.InitialRetryMs <= 0 {
		req.InitialRetryMs = 200
	}
	if req.MaxRetryMs <= 0 {
		req.MaxRetryMs = 2000
	}
	if req.RetryMultiplier <= 0 {
		req.RetryMultiplier = 1.5
	}
	waitMs := req.WaitMs
	if waitMs <= 0 {
		waitMs = 30000
	}

	dreq := discovery.NewRequest(req.Retries, req.InitialRetryMs, req.MaxRetryMs, req.RetryMultiplier)
	if !s.tr.RequestDiscovery(dreq) {
		writeError(w, http.StatusConflict, "a discovery request is already in progress")
		return
	}

	select {
	case <-dreq.Done():
		nodes, errString := dreq.Result()
		if errString != "" {
			writeError(w, http.StatusBadGateway, errString)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
	case <-time.After(time.Duration(waitMs) * time.Millisecond):
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{"timed_out": true})
	}
}
