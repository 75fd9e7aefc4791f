package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type enqueueRequest struct {
	Cmd          string   `json:"cmd"`
	Args         []string `json:"args"`
	NodeID       string   `json:"node_id"`
	MaxRetries   *int     `json:"max_retries,omitempty"`
	ExpectedAcks int      `json:"expected_acks,omitempty"`
	WaitMs       int      `json:"wait_ms,omitempty"`
}

// handleEnqueueCommand queues a command to a node. If wait_ms > 0 it
// blocks (up to that timeout) for the response and returns it, or a
// partial-ACK snapshot plus a timed-out flag if no final response
// arrived in time.
func (s *Server) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cmd == "" {
		writeError(w, http.StatusBadRequest, "cmd is required")
		return
	}
	expectedAcks := req.ExpectedAcks
	if expectedAcks <= 0 {
		expectedAcks = 1
	}

	commandID, err := s.queue.Add(req.Cmd, req.Args, req.NodeID, req.MaxRetries, expectedAcks)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if req.WaitMs <= 0 {
		writeJSON(w, http.StatusAccepted, map[string]any{"command_id": commandID})
		return
	}

	resp := s.queue.WaitForResponse(commandID, time.Duration(req.WaitMs)*time.Millisecond)
	if resp != nil {
		writeJSON(w, http.StatusOK, map[string]any{"command_id": commandID, "response": resp})
		return
	}

	partial, ok := s.queue.GetPartialAcks(commandID)
	s.queue.Cancel(commandID)
	body := map[string]any{"command_id": commandID, "timed_out": true}
	if ok {
		body["acked_nodes"] = partial.AckedNodes
		body["responses"] = partial.Responses
		body["expected_acks"] = partial.ExpectedAcks
	}
	writeJSON(w, http.StatusGatewayTimeout, body)
}

// handleGetCommandStatus returns a partial-ACK snapshot for a still-queued
// or in-flight command, for operators polling without blocking.
func (s *Server) handleGetCommandStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	partial, ok := s.queue.GetPartialAcks(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or already-retired command id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"acked_nodes":   partial.AckedNodes,
		"responses":     partial.Responses,
		"expected_acks": partial.ExpectedAcks,
	})
}
