// Package radio defines the external radio capability (§6) that C3/C5
// depend on, decoupled from any specific transceiver chip.
package radio

import (
	"errors"
	"time"
)

// ErrNotInitialized is returned by operations attempted before Init.
var ErrNotInitialized = errors.New("radio: not initialized")

// Radio is the capability contract for the half-duplex physical layer.
// A single goroutine owns a Radio at a time (§5) — implementations need
// not be safe for concurrent use.
type Radio interface {
	// Init brings up the hardware. May fail.
	Init() error

	// Send transmits data synchronously, blocking for the duration of the
	// half-duplex transaction. data must be <= 250 bytes.
	Send(data []byte) (ok bool, err error)

	// Receive blocks up to timeout waiting for an incoming packet. It
	// returns nil, nil on timeout with nothing received.
	Receive(timeout time.Duration) ([]byte, error)

	// SetFrequency retunes the carrier, in MHz.
	SetFrequency(mhz float64) error

	// LastRSSI returns the RSSI of the most recently received packet, in
	// dBm, and false if nothing has been received yet.
	LastRSSI() (dBm int, ok bool)

	// Close releases the underlying hardware resource.
	Close() error

	// SpreadingFactor gets/sets the LoRa spreading factor (7-12).
	SpreadingFactor() int
	SetSpreadingFactor(sf int) error

	// SignalBandwidth gets/sets the channel bandwidth in Hz.
	SignalBandwidth() int
	SetSignalBandwidth(hz int) error

	// TxPower gets/sets the transmit power in dBm.
	TxPower() int
	SetTxPower(dBm int) error
}
