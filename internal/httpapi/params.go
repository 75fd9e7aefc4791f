package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/patio-mesh/telemetry-core/internal/config"
)

// handleGetAllParams returns every gateway parameter's current value.
func (s *Server) handleGetAllParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.GetAll())
}

// handleGetParam returns a single gateway parameter's current value.
func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	value, errMsg := s.params.Get(name)
	if errMsg != "" {
		writeError(w, http.StatusNotFound, errMsg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

type setParamRequest struct {
	Value string `json:"value"`
}

// handleSetParam sets a gateway parameter. Radio params are staged into
// C3's pending map (not applied until rcfg_radio); command-queue params
// take effect immediately. Neither is persisted to disk here.
func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req setParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	newValue, errMsg := s.params.Set(name, req.Value)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"value":  newValue,
		"staged": s.params.IsStaged(name),
	})
}

// handleRcfgRadio promotes every staged radio parameter to the hardware.
// It is fire-and-forget from the node's perspective but here it runs
// synchronously against C3, so the operator sees the applied set or the
// first failure directly.
func (s *Server) handleRcfgRadio(w http.ResponseWriter, r *http.Request) {
	applied, err := s.state.ApplyPending()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"applied": applied,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

type saveCfgRequest struct {
	Names []string `json:"names"`
}

// handleSaveCfg persists a set of gateway parameters' current values to
// the on-disk config file, keyed by each param's dotted ConfigKey. With
// no names given, every persistable (ConfigKey != "") param is saved.
func (s *Server) handleSaveCfg(w http.ResponseWriter, r *http.Request) {
	var req saveCfgRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	names := req.Names
	if len(names) == 0 {
		names = s.params.Names()
	}

	updates := make(map[string]any)
	for _, name := range names {
		key := s.params.ConfigKey(name)
		if key == "" {
			continue
		}
		value, errMsg := s.params.Get(name)
		if errMsg != "" {
			continue
		}
		updates[key] = value
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "no persistable parameters to save")
		return
	}

	if err := config.Update(s.configPath, updates); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": updates})
}
