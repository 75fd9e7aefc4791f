// Package radiotest provides a scripted radio.Radio double for tests,
// modeled on the teacher's mockSPIConn/mockPin pattern: a queue of
// canned receives and a log of what was sent, with no real I/O.
package radiotest

import (
	"sync"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/radio"
)

type rxEntry struct {
	data []byte
	rssi int
}

// Mock is a deterministic, single-goroutine-use double for radio.Radio.
type Mock struct {
	mu sync.Mutex

	initErr error
	sendErr error

	rxQueue []rxEntry
	sent    [][]byte
	freqLog []float64

	lastRSSI    int
	haveRSSI    bool
	closed      bool
	frequencyMHz float64

	sf   int
	bwHz int
	txPower int
}

// New returns a Mock with reasonable SX127x-ish defaults.
func New() *Mock {
	return &Mock{sf: 9, bwHz: 125000, txPower: 14, frequencyMHz: 915.0}
}

// QueueReceive schedules data (with the given RSSI) to be returned by the
// next Receive call. An empty data slice schedules a timeout (nil, nil).
func (m *Mock) QueueReceive(data []byte, rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxQueue = append(m.rxQueue, rxEntry{data: data, rssi: rssi})
}

// SetInitError makes the next Init call fail with err.
func (m *Mock) SetInitError(err error) { m.initErr = err }

// SetSendError makes every subsequent Send call fail with err.
func (m *Mock) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Sent returns every payload passed to Send, in call order.
func (m *Mock) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// FrequencyLog returns every frequency (MHz) passed to SetFrequency, in
// call order — used to assert hop-then-restore behavior.
func (m *Mock) FrequencyLog() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.freqLog))
	copy(out, m.freqLog)
	return out
}

func (m *Mock) Init() error { return m.initErr }

func (m *Mock) Send(data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return false, m.sendErr
	}
	cp := append([]byte(nil), data...)
	m.sent = append(m.sent, cp)
	return true, nil
}

func (m *Mock) Receive(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rxQueue) == 0 {
		return nil, nil
	}
	next := m.rxQueue[0]
	m.rxQueue = m.rxQueue[1:]
	if len(next.data) == 0 {
		return nil, nil
	}
	m.lastRSSI = next.rssi
	m.haveRSSI = true
	return next.data, nil
}

func (m *Mock) SetFrequency(mhz float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequencyMHz = mhz
	m.freqLog = append(m.freqLog, mhz)
	return nil
}

func (m *Mock) LastRSSI() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRSSI, m.haveRSSI
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) SpreadingFactor() int { return m.sf }
func (m *Mock) SetSpreadingFactor(sf int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sf = sf
	return nil
}

func (m *Mock) SignalBandwidth() int { return m.bwHz }
func (m *Mock) SetSignalBandwidth(hz int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bwHz = hz
	return nil
}

func (m *Mock) TxPower() int { return m.txPower }
func (m *Mock) SetTxPower(dBm int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txPower = dBm
	return nil
}

var _ radio.Radio = (*Mock)(nil)
