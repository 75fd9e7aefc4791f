package stream

import "encoding/binary"

// PackStreamFEC packs data exactly as PackStream does, then appends one
// XOR-parity packet (magic 0xDA7B) per block of blockSize data packets.
// The parity packet's payload is the XOR of its block's data payloads,
// zero-padded on the right to the longest payload in the block; its count
// field carries the data packet count (not the block count) so it keys
// into the same reassembly session as its block's data packets.
func PackStreamFEC(data []byte, blockSize int) ([][]byte, error) {
	if blockSize < 1 {
		blockSize = DefaultFECBlockSize
	}

	dataPackets, err := PackStream(data)
	if err != nil {
		return nil, err
	}

	parsed := make([]Packet, len(dataPackets))
	for i, raw := range dataPackets {
		p, err := UnpackPacket(raw)
		if err != nil {
			return nil, err
		}
		parsed[i] = p
	}
	count := len(parsed)
	totalLen := parsed[0].TotalLen

	numBlocks := (count + blockSize - 1) / blockSize
	parityPackets := make([][]byte, 0, numBlocks)
	for b := 0; b < numBlocks; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > count {
			end = count
		}

		maxLen := 0
		for _, p := range parsed[start:end] {
			if len(p.Payload) > maxLen {
				maxLen = len(p.Payload)
			}
		}

		parity := make([]byte, maxLen)
		for _, p := range parsed[start:end] {
			xorInto(parity, p.Payload)
		}

		pkt := make([]byte, HeaderSize+maxLen+Crc16Size)
		putHeader(pkt, MagicParity, totalLen, uint16(b), uint16(count))
		copy(pkt[HeaderSize:], parity)
		binary.BigEndian.PutUint16(pkt[HeaderSize+maxLen:], checksum16(pkt[:HeaderSize+maxLen]))
		parityPackets = append(parityPackets, pkt)
	}

	return append(dataPackets, parityPackets...), nil
}

func xorInto(dst []byte, src []byte) {
	for i, b := range src {
		dst[i] ^= b
	}
}

// recoverFromParity attempts to reconstruct the single missing data packet
// in block blockSeq given the other data packets of that block (present)
// and the block's parity packet. It returns false if recovery isn't
// possible (e.g. more than one packet missing from the block).
func recoverFromParity(present map[uint16]Packet, parity Packet, blockSeq, blockSize int, count uint16) (Packet, bool) {
	start := blockSeq * blockSize
	end := start + blockSize
	if end > int(count) {
		end = int(count)
	}

	missingSeq := -1
	buf := make([]byte, len(parity.Payload))
	xorInto(buf, parity.Payload)

	for seq := start; seq < end; seq++ {
		p, ok := present[uint16(seq)]
		if !ok {
			if missingSeq != -1 {
				return Packet{}, false // 2+ missing in this block
			}
			missingSeq = seq
			continue
		}
		xorInto(buf, p.Payload)
	}
	if missingSeq == -1 {
		return Packet{}, false // nothing missing, no recovery needed
	}

	expectedLen := MaxPayloadPerPacket
	if uint16(missingSeq) == count-1 {
		expectedLen = int(parity.TotalLen) - missingSeq*MaxPayloadPerPacket
	}
	if expectedLen < 0 || expectedLen > len(buf) {
		return Packet{}, false
	}

	return Packet{
		Magic:    MagicData,
		TotalLen: parity.TotalLen,
		Seq:      uint16(missingSeq),
		Count:    count,
		Payload:  buf[:expectedLen],
	}, true
}
