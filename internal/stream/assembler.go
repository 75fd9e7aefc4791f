package stream

import (
	"sync"
	"time"
)

type streamKey struct {
	totalLen uint32
	count    uint16
}

type session struct {
	dataPackets   map[uint16]Packet
	parityPackets map[uint16]Packet // keyed by block index
	firstSeen     time.Time
	lastSeen      time.Time
}

// Assembler buffers packets for one or more concurrent streams, keyed by
// (total_len, count), until each is complete or its timeout elapses.
// Re-adding a packet for a sequence number already held is an idempotent
// replacement, not an error.
type Assembler struct {
	mu           sync.Mutex
	timeout      time.Duration
	fecBlockSize int // 0 disables FEC recovery
	sessions     map[streamKey]*session
}

// NewAssembler returns an assembler that discards incomplete streams whose
// first packet arrived more than timeout ago, and does not attempt FEC
// recovery.
func NewAssembler(timeout time.Duration) *Assembler {
	return &Assembler{timeout: timeout, sessions: make(map[streamKey]*session)}
}

// NewAssemblerWithFEC is like NewAssembler but attempts to recover a single
// missing data packet per block of blockSize, using parity packets.
func NewAssemblerWithFEC(timeout time.Duration, blockSize int) *Assembler {
	a := NewAssembler(timeout)
	if blockSize < 1 {
		blockSize = DefaultFECBlockSize
	}
	a.fecBlockSize = blockSize
	return a
}

// AddPacket folds one packet into its stream session. It returns the
// reassembled, CRC32-verified payload once the session is complete, or nil
// if more packets are still needed.
func (a *Assembler) AddPacket(packet []byte, now time.Time) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cleanupLocked(now)

	p, err := UnpackPacket(packet)
	if err != nil {
		return nil, err
	}

	key := streamKey{totalLen: p.TotalLen, count: p.Count}
	s, ok := a.sessions[key]
	if !ok {
		s = &session{
			dataPackets:   make(map[uint16]Packet),
			parityPackets: make(map[uint16]Packet),
			firstSeen:     now,
		}
		a.sessions[key] = s
	}
	s.lastSeen = now

	if p.isParity() {
		s.parityPackets[p.Seq] = p
	} else {
		s.dataPackets[p.Seq] = p
	}

	if a.fecBlockSize > 0 && len(s.dataPackets) < int(p.Count) {
		a.tryRecoverLocked(s, p.Count)
	}

	if len(s.dataPackets) != int(p.Count) {
		return nil, nil
	}

	ordered := make([]Packet, p.Count)
	for seq := uint16(0); seq < p.Count; seq++ {
		ordered[seq] = s.dataPackets[seq]
	}
	delete(a.sessions, key)
	return assemblePayload(ordered, p.TotalLen)
}

func (a *Assembler) tryRecoverLocked(s *session, count uint16) {
	for blockIdx, parity := range s.parityPackets {
		if recovered, ok := recoverFromParity(s.dataPackets, parity, int(blockIdx), a.fecBlockSize, count); ok {
			s.dataPackets[recovered.Seq] = recovered
		}
	}
}

func (a *Assembler) cleanupLocked(now time.Time) {
	for key, s := range a.sessions {
		if now.Sub(s.firstSeen) > a.timeout {
			delete(a.sessions, key)
		}
	}
}

// PendingStreams returns the number of incomplete streams being assembled.
func (a *Assembler) PendingStreams() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Clear discards all pending streams.
func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make(map[streamKey]*session)
}
