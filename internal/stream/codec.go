package stream

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/sigurn/crc16"
)

var crc16Table = crc16.MakeTable(crc16.CCITT_FALSE)

func checksum16(data []byte) uint16 {
	return crc16.Checksum(data, crc16Table)
}

func checksum32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func putHeader(buf []byte, magic uint16, totalLen uint32, seq, count uint16) {
	binary.BigEndian.PutUint16(buf[0:2], magic)
	binary.BigEndian.PutUint32(buf[2:6], totalLen)
	binary.BigEndian.PutUint16(buf[6:8], seq)
	binary.BigEndian.PutUint16(buf[8:10], count)
}

// PackStream splits data into sequenced, CRC16-trailered packets, after
// appending an end-to-end CRC32 suffix. Limits: total length <= 4 GB,
// packet count <= 65535.
func PackStream(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, ErrPackEmpty
	}

	suffix := make([]byte, Crc32Size)
	binary.BigEndian.PutUint32(suffix, checksum32(data))
	payload := append(append([]byte(nil), data...), suffix...)

	totalLen := len(payload)
	if uint64(totalLen) > maxTotalLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPackTooLarge, totalLen)
	}

	count := (totalLen + MaxPayloadPerPacket - 1) / MaxPayloadPerPacket
	if count > maxCount {
		return nil, fmt.Errorf("%w: %d packets", ErrPackTooMany, count)
	}

	packets := make([][]byte, count)
	for seq := 0; seq < count; seq++ {
		start := seq * MaxPayloadPerPacket
		end := start + MaxPayloadPerPacket
		if end > totalLen {
			end = totalLen
		}
		chunk := payload[start:end]

		pkt := make([]byte, HeaderSize+len(chunk)+Crc16Size)
		putHeader(pkt, MagicData, uint32(totalLen), uint16(seq), uint16(count))
		copy(pkt[HeaderSize:], chunk)
		binary.BigEndian.PutUint16(pkt[HeaderSize+len(chunk):], checksum16(pkt[:HeaderSize+len(chunk)]))
		packets[seq] = pkt
	}
	return packets, nil
}

// UnpackPacket validates a single packet's CRC16 trailer and parses its
// header, accepting both data and parity magics.
func UnpackPacket(packet []byte) (Packet, error) {
	minSize := HeaderSize + Crc16Size
	if len(packet) < minSize {
		return Packet{}, fmt.Errorf("%w: %d < %d", ErrShortPacket, len(packet), minSize)
	}

	body := packet[:len(packet)-Crc16Size]
	wantCrc := binary.BigEndian.Uint16(packet[len(packet)-Crc16Size:])
	if gotCrc := checksum16(body); gotCrc != wantCrc {
		return Packet{}, fmt.Errorf("%w: want %04x got %04x", ErrCrc16Fail, wantCrc, gotCrc)
	}

	magic := binary.BigEndian.Uint16(body[0:2])
	if magic != MagicData && magic != MagicParity {
		return Packet{}, fmt.Errorf("%w: %04x", ErrBadMagic, magic)
	}

	return Packet{
		Magic:    magic,
		TotalLen: binary.BigEndian.Uint32(body[2:6]),
		Seq:      binary.BigEndian.Uint16(body[6:8]),
		Count:    binary.BigEndian.Uint16(body[8:10]),
		Payload:  append([]byte(nil), body[HeaderSize:]...),
	}, nil
}

// UnpackStream reassembles a complete set of data packets (any order) into
// the original payload, verifying the end-to-end CRC32. Parity packets, if
// present in the slice, are ignored.
func UnpackStream(packets [][]byte) ([]byte, error) {
	if len(packets) == 0 {
		return nil, fmt.Errorf("%w: no packets", ErrMissing)
	}

	parsed := make([]Packet, 0, len(packets))
	for i, raw := range packets {
		p, err := UnpackPacket(raw)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		if p.isParity() {
			continue
		}
		parsed = append(parsed, p)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: no data packets", ErrMissing)
	}

	totalLen := parsed[0].TotalLen
	count := parsed[0].Count
	for _, p := range parsed {
		if p.TotalLen != totalLen {
			return nil, fmt.Errorf("%w: inconsistent total_len %d != %d", ErrSizeMismatch, p.TotalLen, totalLen)
		}
		if p.Count != count {
			return nil, fmt.Errorf("%w: inconsistent count %d != %d", ErrSizeMismatch, p.Count, count)
		}
	}

	bySeq := make(map[uint16]Packet, len(parsed))
	for _, p := range parsed {
		if _, dup := bySeq[p.Seq]; dup {
			return nil, fmt.Errorf("%w: seq %d", ErrDuplicate, p.Seq)
		}
		bySeq[p.Seq] = p
	}

	var missing []uint16
	for seq := uint16(0); seq < count; seq++ {
		if _, ok := bySeq[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissing, missing)
	}

	ordered := make([]Packet, count)
	for seq := uint16(0); seq < count; seq++ {
		ordered[seq] = bySeq[seq]
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	return assemblePayload(ordered, totalLen)
}

// assemblePayload concatenates data packets already known to be complete
// and in sequence order, then verifies the end-to-end CRC32 suffix.
func assemblePayload(ordered []Packet, totalLen uint32) ([]byte, error) {
	payload := make([]byte, 0, totalLen)
	for _, p := range ordered {
		payload = append(payload, p.Payload...)
	}
	if uint32(len(payload)) != totalLen {
		return nil, fmt.Errorf("%w: reassembled %d != %d", ErrSizeMismatch, len(payload), totalLen)
	}
	if len(payload) < Crc32Size {
		return nil, fmt.Errorf("%w: payload too small for crc32", ErrSizeMismatch)
	}

	data := payload[:len(payload)-Crc32Size]
	wantCrc := binary.BigEndian.Uint32(payload[len(payload)-Crc32Size:])
	if gotCrc := checksum32(data); gotCrc != wantCrc {
		return nil, fmt.Errorf("%w: want %08x got %08x", ErrCrc32Fail, wantCrc, gotCrc)
	}
	return data, nil
}
