// Package httpapi is the operator-facing HTTP surface: command enqueue
// (with optional blocking wait), discovery trigger, and gateway parameter
// get/all/set/rcfg_radio/savecfg, consuming C4 and C7 per spec §6. It
// never touches the radio directly — everything routes through the
// command queue, radio state, and parameter registry.
package httpapi

import (
	"net/http"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/gwparams"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
	"github.com/patio-mesh/telemetry-core/internal/transceiver"
)

// Server wires the operator HTTP surface over a command queue, radio
// state, parameter registry, and the transceiver (which owns discovery).
type Server struct {
	mux *http.ServeMux

	queue      *cmdqueue.Queue
	state      *radiostate.State
	params     *gwparams.Registry
	tr         *transceiver.Transceiver
	configPath string
}

// Config bundles Server's dependencies.
type Config struct {
	Queue       *cmdqueue.Queue
	State       *radiostate.State
	Params      *gwparams.Registry
	Transceiver *transceiver.Transceiver
	ConfigPath  string // JSON config file savecfg persists into
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		queue:      cfg.Queue,
		state:      cfg.State,
		params:     cfg.Params,
		tr:         cfg.Transceiver,
		configPath: cfg.ConfigPath,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /command", s.handleEnqueueCommand)
	s.mux.HandleFunc("GET /command/{id}", s.handleGetCommandStatus)
	s.mux.HandleFunc("POST /discover", s.handleDiscover)
	s.mux.HandleFunc("GET /gateway/params", s.handleGetAllParams)
	s.mux.HandleFunc("GET /gateway/param/{name}", s.handleGetParam)
	s.mux.HandleFunc("PUT /gateway/param/{name}", s.handleSetParam)
	s.mux.HandleFunc("POST /gateway/rcfg_radio", s.handleRcfgRadio)
	s.mux.HandleFunc("POST /gateway/savecfg", s.handleSaveCfg)
}

func (s *Server) logf(format string, args ...any) {
	telemetry.L().Debugf(format, args...)
}
