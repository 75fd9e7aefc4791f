// Package dispatch implements C6: the node-side command registry. A
// registry maps command names to scoped handlers; dispatching a frame
// invokes every handler whose scope matches the frame's target, catching
// and logging any handler error instead of propagating it.
//
// The registry also owns the node-local parameter table (supplemented
// feature: getparam/setparam/params operate over it, savecfg persists it)
// grounded on the original's generic, table-driven params.py.
package dispatch

// Scope filters which handlers a dispatch invokes, based on whether the
// incoming command targeted this node specifically or was a broadcast.
type Scope int

const (
	// ScopeBroadcast fires only when the command targeted no node (target == "").
	ScopeBroadcast Scope = iota
	// ScopePrivate fires only when the command targeted this node by id.
	ScopePrivate
	// ScopeAny fires regardless of whether the command was targeted or broadcast.
	ScopeAny
)

func (s Scope) String() string {
	switch s {
	case ScopeBroadcast:
		return "broadcast"
	case ScopePrivate:
		return "private"
	case ScopeAny:
		return "any"
	default:
		return "unknown"
	}
}

// Handler processes a dispatched command and returns the ACK payload to
// send back. A nil payload with a nil error means "fire and forget": the
// command was handled but no ACK should be sent (e.g. rcfg_radio, whose
// reconfiguration disrupts the ACK path itself). A non-nil error means the
// handler failed; it is logged and no ACK is sent.
type Handler func(args []string) (payload map[string]any, err error)

type handlerEntry struct {
	handler Handler
	scope   Scope
}

// ValueKind is the parse/format type of a parameter's string wire value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindString
)

// ParamDef describes one node-local runtime parameter, mirroring the
// original's ParamDef dataclass: a getter, an optional setter (nil means
// read-only), an inclusive range, and an optional post-set callback.
type ParamDef struct {
	Name   string
	Getter func() any
	Setter func(valueStr string) error // nil = read-only
	MinVal *float64
	MaxVal *float64
	Kind   ValueKind
	OnSet  func(name string)
}
