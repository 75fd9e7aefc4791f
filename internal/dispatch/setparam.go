package dispatch

import (
	"fmt"
	"strconv"

	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// setParam validates value against the parameter's type and range, applies
// it, and fires the OnSet callback — mirroring param_set one-for-one. A
// non-nil error means the set did not happen (unknown/read-only name,
// unparsable value, out of range); the caller logs and does not ACK.
func (r *Registry) setParam(name, valueStr string) error {
	r.mu.Lock()
	p, ok := r.params[name]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown param %q", name)
	}
	if p.Setter == nil {
		return fmt.Errorf("param %q is read-only", name)
	}

	val, err := parseValue(p.Kind, valueStr)
	if err != nil {
		return fmt.Errorf("invalid value %q for %q: %w", valueStr, name, err)
	}
	if p.Kind != KindString {
		if p.MinVal != nil && val < *p.MinVal {
			return fmt.Errorf("%s=%v below min %v", name, val, *p.MinVal)
		}
		if p.MaxVal != nil && val > *p.MaxVal {
			return fmt.Errorf("%s=%v above max %v", name, val, *p.MaxVal)
		}
	}

	if err := p.Setter(valueStr); err != nil {
		return fmt.Errorf("setparam %q: %w", name, err)
	}
	telemetry.L().Infof("dispatch: setparam %s=%v", name, p.Getter())

	if p.OnSet != nil {
		p.OnSet(name)
	}
	return nil
}

// parseValue parses valueStr per kind, returning it as a float64 so range
// checks apply uniformly regardless of the parameter's wire type.
func parseValue(kind ValueKind, valueStr string) (float64, error) {
	switch kind {
	case KindInt:
		v, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	case KindFloat:
		return strconv.ParseFloat(valueStr, 64)
	default: // KindString: no numeric range check applies
		return 0, nil
	}
}
