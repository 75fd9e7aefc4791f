// Package gwparams implements C7: the gateway's parameter definition
// table. Radio parameters (sf, bw, txpwr, n2g_freq, g2n_freq) are
// "staged" — their setter writes into C3's pending map and the read path
// returns C3's effective value; everything else is "immediate" — the
// setter writes straight through to live runtime state (the command
// queue's tunables). No setter persists to disk; persistence is the
// separate, explicit savecfg action.
package gwparams

// ValueKind is the parse type of a parameter's string wire value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindString
)

// ParamDef mirrors the original's GatewayParamDef dataclass.
type ParamDef struct {
	Name      string
	Getter    func() any
	Setter    func(value any) error // nil = read-only
	ConfigKey string                // dotted config path for persistence; "" = not persisted
	MinVal    *float64
	MaxVal    *float64
	Kind      ValueKind
	Staged    bool
}
