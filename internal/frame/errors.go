package frame

import "errors"

// Decode failures, per spec §4.1.
var (
	// ErrInvalidFormat means the bytes were not parseable JSON at all.
	ErrInvalidFormat = errors.New("frame: invalid format")
	// ErrMissingField means a required key was absent from an otherwise
	// parseable object.
	ErrMissingField = errors.New("frame: missing field")
	// ErrCrcMismatch means the embedded CRC32 did not match the
	// recomputed canonical-form checksum.
	ErrCrcMismatch = errors.New("frame: crc mismatch")
)
