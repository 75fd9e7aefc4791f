package cmdqueue

import "errors"

// ErrFull is returned by Add when the queue has reached its bounded size.
var ErrFull = errors.New("cmdqueue: full")
