package dispatch

import "encoding/json"

// maxResponsePayload is the conservative ACK budget a paginated response
// must fit within, matching the original's MAX_RESPONSE_PAYLOAD.
const maxResponsePayload = 170

// paramGet returns {name: value} or {"e": "unknown param"}, matching
// param_get's miss behavior — getparam always ACKs, even on a miss.
func (r *Registry) paramGet(name string) map[string]any {
	r.mu.Lock()
	p, ok := r.params[name]
	r.mu.Unlock()
	if !ok {
		return map[string]any{"e": "unknown param"}
	}
	return map[string]any{name: p.Getter()}
}

// paramsList builds a paginated {"m": 0|1, "p": {...}} response, filling
// entries (in sorted name order, starting at offset) until the canonical
// JSON of {"m":0,"p":result} would exceed maxResponsePayload. Always
// includes at least one entry even if that alone exceeds the budget, so
// a single oversized parameter can never starve pagination.
func (r *Registry) paramsList(offset int) map[string]any {
	if offset < 0 {
		offset = 0
	}
	names := r.sortedParamNames()

	result := make(map[string]any)
	more := 0

	for _, name := range names[min(offset, len(names)):] {
		r.mu.Lock()
		p := r.params[name]
		r.mu.Unlock()

		test := make(map[string]any, len(result)+1)
		for k, v := range result {
			test[k] = v
		}
		test[name] = p.Getter()

		encoded, err := json.Marshal(struct {
			M int            `json:"m"`
			P map[string]any `json:"p"`
		}{M: 0, P: test})
		if err == nil && len(encoded) > maxResponsePayload && len(result) > 0 {
			more = 1
			break
		}
		result[name] = p.Getter()
	}

	return map[string]any{"m": more, "p": result}
}

// cmdsList is paramsList's analogue over registered command names.
func (r *Registry) cmdsList(offset int) map[string]any {
	if offset < 0 {
		offset = 0
	}
	names := r.RegisteredCommands()

	result := make([]string, 0, len(names))
	more := 0

	for _, name := range names[min(offset, len(names)):] {
		test := append(append([]string(nil), result...), name)

		encoded, err := json.Marshal(struct {
			C []string `json:"c"`
			M int      `json:"m"`
		}{C: test, M: 0})
		if err == nil && len(encoded) > maxResponsePayload && len(result) > 0 {
			more = 1
			break
		}
		result = append(result, name)
	}

	return map[string]any{"c": result, "m": more}
}
