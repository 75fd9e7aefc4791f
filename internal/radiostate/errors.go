package radiostate

import "errors"

// ErrApplyFailed wraps a radio error encountered while promoting a staged
// parameter. The parameter that failed, and everything still unprocessed
// behind it in iteration order, remains staged for retry.
var ErrApplyFailed = errors.New("radiostate: apply failed")
