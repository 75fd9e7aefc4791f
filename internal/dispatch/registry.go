package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// AckSender transmits an ACK for commandID back to the gateway, carrying
// payload. It is supplied by the caller that owns the radio (the node's
// C5 transceiver loop); Registry never touches the radio itself.
type AckSender func(commandID string, payload map[string]any)

// Registry is a node's command dispatcher plus its local parameter table.
type Registry struct {
	nodeID string

	mu       sync.Mutex
	handlers map[string][]handlerEntry
	params   map[string]*ParamDef

	sendAck    AckSender
	persist    func() error
	radioState *radiostate.State
	intervalMs int
}

// New builds a Registry for nodeID. sendAck is invoked for every handler
// result that wants an ACK sent; persist backs the savecfg builtin (may be
// nil, in which case savecfg logs a warning and does nothing).
func New(nodeID string, sendAck AckSender, persist func() error) *Registry {
	r := &Registry{
		nodeID:   nodeID,
		handlers: make(map[string][]handlerEntry),
		params:   make(map[string]*ParamDef),
		sendAck:  sendAck,
		persist:  persist,
	}
	r.registerBuiltins()
	return r
}

// Register adds callback for command with the given scope. Multiple
// callbacks may be registered for the same command, each with its own
// scope.
func (r *Registry) Register(command string, handler Handler, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[command] = append(r.handlers[command], handlerEntry{handler: handler, scope: scope})
	telemetry.L().Debugf("dispatch: registered handler for %q scope=%s", command, scope)
}

// RegisterParam adds a parameter to the node-local table. Panics are not
// used here; a duplicate name silently replaces the earlier definition,
// matching a table-driven registry's natural last-write-wins semantics.
func (r *Registry) RegisterParam(def ParamDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := def
	r.params[def.Name] = &d
}

// Dispatch routes a received command to its matching handlers. Commands
// targeted at a different node are ignored entirely. Returns true if at
// least one handler ran without returning an error or panicking.
func (r *Registry) Dispatch(commandID, command string, args []string, targetNodeID string) bool {
	r.mu.Lock()
	entries := append([]handlerEntry(nil), r.handlers[command]...)
	r.mu.Unlock()

	if len(entries) == 0 {
		telemetry.L().Debugf("dispatch: no handlers for %q", command)
		return false
	}

	isBroadcast := targetNodeID == ""
	isForMe := targetNodeID == r.nodeID
	if !isBroadcast && !isForMe {
		telemetry.L().Debugf("dispatch: ignoring %q targeted at %q", command, targetNodeID)
		return false
	}

	handled := false
	for _, e := range entries {
		shouldInvoke := e.scope == ScopeAny ||
			(e.scope == ScopeBroadcast && isBroadcast) ||
			(e.scope == ScopePrivate && isForMe)
		if !shouldInvoke {
			continue
		}

		payload, err := r.invoke(e.handler, command, args)
		if err != nil {
			telemetry.L().Errorf("dispatch: handler for %q failed: %v", command, err)
			continue
		}
		handled = true
		if payload != nil && r.sendAck != nil {
			r.sendAck(commandID, payload)
		}
	}
	return handled
}

// invoke runs handler, converting a panic into an error so one misbehaving
// handler can never take down the dispatch loop, matching the original's
// try/except around each callback.
func (r *Registry) invoke(h Handler, command string, args []string) (payload map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler for %q panicked: %v", command, p)
		}
	}()
	return h(args)
}

// RegisteredCommands returns every command name with at least one
// registered handler, sorted alphabetically.
func (r *Registry) RegisteredCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedParamNames returns every registered parameter name, alphabetically
// sorted — required for deterministic pagination and therefore
// deterministic CRCs.
func (r *Registry) sortedParamNames() []string {
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
