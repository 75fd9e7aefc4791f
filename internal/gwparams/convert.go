package gwparams

import "strconv"

// itoa stringifies the int value produced by parseValue for a KindInt
// param, for handing to radiostate.State.SetPending's string-keyed map.
func itoa(v any) string {
	return strconv.Itoa(v.(int))
}

// hzFromMHz converts the float64 MHz value produced by parseValue for a
// KindFloat frequency param into a whole-Hz string, matching the
// original's `str(int(float(v) * 1e6))`.
func hzFromMHz(v any) string {
	return strconv.Itoa(int(v.(float64) * 1e6))
}
