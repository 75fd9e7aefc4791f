package gwparams

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// Registry holds an immutable set of gateway parameter definitions,
// keyed by name, with no-auto-persist get/set semantics.
type Registry struct {
	params map[string]*ParamDef
	names  []string // sorted, for deterministic GetAll iteration
}

// New builds a Registry from defs. A later entry with a duplicate name
// replaces an earlier one.
func New(defs []ParamDef) *Registry {
	r := &Registry{params: make(map[string]*ParamDef, len(defs))}
	for i := range defs {
		d := defs[i]
		r.params[d.Name] = &d
	}
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	sort.Strings(names)
	r.names = names
	return r
}

// GetAll returns every parameter's current value, keyed by name.
func (r *Registry) GetAll() map[string]any {
	out := make(map[string]any, len(r.names))
	for _, name := range r.names {
		out[name] = r.params[name].Getter()
	}
	return out
}

// Get returns a single parameter's current value, or an error message if
// name is unrecognized.
func (r *Registry) Get(name string) (value any, errMsg string) {
	p, ok := r.params[name]
	if !ok {
		return nil, fmt.Sprintf("unknown param: %s", name)
	}
	return p.Getter(), ""
}

// Set parses and range-checks valueStr, then applies it via the
// parameter's setter — staging into C3's pending map for staged params,
// or writing straight through to live state for immediate ones. Nothing
// is ever persisted to disk here. Returns the new value on success, or an
// error message on failure (unknown name, read-only, bad value, out of
// range).
func (r *Registry) Set(name, valueStr string) (newValue any, errMsg string) {
	p, ok := r.params[name]
	if !ok {
		return nil, fmt.Sprintf("unknown param: %s", name)
	}
	if p.Setter == nil {
		return nil, fmt.Sprintf("read-only: %s", name)
	}

	val, numeric, err := parseValue(p.Kind, valueStr)
	if err != nil {
		return nil, fmt.Sprintf("invalid value: %s", valueStr)
	}
	if p.Kind != KindString {
		if p.MinVal != nil && numeric < *p.MinVal {
			return nil, fmt.Sprintf("range: %v..%v", deref(p.MinVal), deref(p.MaxVal))
		}
		if p.MaxVal != nil && numeric > *p.MaxVal {
			return nil, fmt.Sprintf("range: %v..%v", deref(p.MinVal), deref(p.MaxVal))
		}
	}

	if err := p.Setter(val); err != nil {
		return nil, err.Error()
	}

	if p.Staged {
		telemetry.L().Infof("gwparams: staged %s=%v", name, val)
		return val, ""
	}
	telemetry.L().Infof("gwparams: set %s=%v", name, p.Getter())
	return p.Getter(), ""
}

// IsStaged reports whether name is a staged (radio) parameter.
func (r *Registry) IsStaged(name string) bool {
	p, ok := r.params[name]
	return ok && p.Staged
}

// ConfigKey returns the dotted persistence path for name, or "" if the
// name is unknown or not persisted.
func (r *Registry) ConfigKey(name string) string {
	if p, ok := r.params[name]; ok {
		return p.ConfigKey
	}
	return ""
}

// Names returns every registered parameter name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func parseValue(kind ValueKind, valueStr string) (value any, numeric float64, err error) {
	switch kind {
	case KindInt:
		v, err := strconv.Atoi(valueStr)
		if err != nil {
			return nil, 0, err
		}
		return v, float64(v), nil
	case KindFloat:
		v, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, 0, err
		}
		return v, v, nil
	default:
		return valueStr, 0, nil
	}
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
