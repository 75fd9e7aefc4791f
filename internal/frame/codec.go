package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
)

// canonicalMarshal renders v as compact JSON with HTML-escaping disabled,
// trimming the trailing newline json.Encoder always appends. Struct field
// declaration order becomes JSON key order, so every wire struct in this
// package declares its fields already in lexicographic key order.
func canonicalMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func crc32Hex(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

func round(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

func decodeKeys(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return raw, nil
}

func requireKeys(raw map[string]json.RawMessage, keys ...string) error {
	for _, k := range keys {
		if _, ok := raw[k]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingField, k)
		}
	}
	return nil
}

// ─── Sensor frame ───────────────────────────────────────────────────────

type wireReading struct {
	K string   `json:"k"`
	S int      `json:"s"`
	U string   `json:"u"`
	V *float64 `json:"v"`
}

type wireSensorBody struct {
	N string        `json:"n"`
	R []wireReading `json:"r"`
	T float64       `json:"t"`
}

type wireSensorFull struct {
	C string        `json:"c"`
	N string        `json:"n"`
	R []wireReading `json:"r"`
	T float64       `json:"t"`
}

// EncodeSensorFrame renders a sensor frame, rounding each reading's value
// to its own precision, and appends the CRC32 over the canonical form.
func EncodeSensorFrame(f SensorFrame, reg *sensorclass.Registry) ([]byte, error) {
	readings := make([]wireReading, len(f.Readings))
	for i, r := range f.Readings {
		id, ok := reg.ID(r.SensorClass)
		if !ok {
			id = -1
		}
		var v *float64
		if r.Value != nil {
			rv := round(*r.Value, r.Precision)
			v = &rv
		}
		readings[i] = wireReading{K: r.Name, S: id, U: r.Units, V: v}
	}

	body := wireSensorBody{N: f.NodeID, R: readings, T: f.Timestamp}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return nil, err
	}

	full := wireSensorFull{C: crc32Hex(canon), N: body.N, R: body.R, T: body.T}
	return canonicalMarshal(full)
}

// DecodeSensorFrame parses and CRC-validates a sensor frame.
func DecodeSensorFrame(data []byte, reg *sensorclass.Registry) (SensorFrame, error) {
	raw, err := decodeKeys(data)
	if err != nil {
		return SensorFrame{}, err
	}
	if err := requireKeys(raw, "c", "n", "r", "t"); err != nil {
		return SensorFrame{}, err
	}

	var full wireSensorFull
	if err := json.Unmarshal(data, &full); err != nil {
		return SensorFrame{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	body := wireSensorBody{N: full.N, R: full.R, T: full.T}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return SensorFrame{}, err
	}
	if crc32Hex(canon) != full.C {
		return SensorFrame{}, ErrCrcMismatch
	}

	readings := make([]SensorReading, len(full.R))
	for i, r := range full.R {
		readings[i] = SensorReading{
			Name:        r.K,
			Units:       r.U,
			Value:       r.V,
			SensorClass: reg.Name(r.S),
			Timestamp:   full.T,
		}
	}

	return SensorFrame{NodeID: full.N, Timestamp: full.T, Readings: readings}, nil
}

// ─── Command frame ──────────────────────────────────────────────────────

type wireCommandBody struct {
	A   []string `json:"a"`
	Cmd string   `json:"cmd"`
	ID  string   `json:"id"`
	N   string   `json:"n"`
}

type wireCommandFull struct {
	A   []string `json:"a"`
	C   string   `json:"c"`
	Cmd string   `json:"cmd"`
	ID  string   `json:"id"`
	N   string   `json:"n"`
}

// EncodeCommandFrame renders a command frame with its CRC32 trailer.
func EncodeCommandFrame(f CommandFrame) ([]byte, error) {
	args := f.Args
	if args == nil {
		args = []string{}
	}
	body := wireCommandBody{A: args, Cmd: f.Command, ID: f.CommandID, N: f.TargetNodeID}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return nil, err
	}
	full := wireCommandFull{A: body.A, C: crc32Hex(canon), Cmd: body.Cmd, ID: body.ID, N: body.N}
	return canonicalMarshal(full)
}

// DecodeCommandFrame parses and CRC-validates a command frame.
func DecodeCommandFrame(data []byte) (CommandFrame, error) {
	raw, err := decodeKeys(data)
	if err != nil {
		return CommandFrame{}, err
	}
	if err := requireKeys(raw, "a", "c", "cmd", "id", "n"); err != nil {
		return CommandFrame{}, err
	}

	var full wireCommandFull
	if err := json.Unmarshal(data, &full); err != nil {
		return CommandFrame{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	body := wireCommandBody{A: full.A, Cmd: full.Cmd, ID: full.ID, N: full.N}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return CommandFrame{}, err
	}
	if crc32Hex(canon) != full.C {
		return CommandFrame{}, ErrCrcMismatch
	}

	return CommandFrame{
		TargetNodeID: full.N,
		Command:      full.Cmd,
		Args:         full.A,
		CommandID:    full.ID,
	}, nil
}

// ─── ACK frame ───────────────────────────────────────────────────────────

type wireAckBody struct {
	ID string          `json:"id"`
	N  string          `json:"n"`
	P  *map[string]any `json:"p,omitempty"`
}

type wireAckFull struct {
	C  string          `json:"c"`
	ID string          `json:"id"`
	N  string          `json:"n"`
	P  *map[string]any `json:"p,omitempty"`
}

// EncodeAckFrame renders an ACK frame with its CRC32 trailer. A nil
// Payload is omitted from the wire form entirely.
func EncodeAckFrame(f AckFrame) ([]byte, error) {
	var p *map[string]any
	if f.Payload != nil {
		pp := f.Payload
		p = &pp
	}
	body := wireAckBody{ID: f.CommandID, N: f.NodeID, P: p}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return nil, err
	}
	full := wireAckFull{C: crc32Hex(canon), ID: body.ID, N: body.N, P: body.P}
	return canonicalMarshal(full)
}

// DecodeAckFrame parses and CRC-validates an ACK frame.
func DecodeAckFrame(data []byte) (AckFrame, error) {
	raw, err := decodeKeys(data)
	if err != nil {
		return AckFrame{}, err
	}
	if err := requireKeys(raw, "c", "id", "n"); err != nil {
		return AckFrame{}, err
	}

	var full wireAckFull
	if err := json.Unmarshal(data, &full); err != nil {
		return AckFrame{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	body := wireAckBody{ID: full.ID, N: full.N, P: full.P}
	canon, err := canonicalMarshal(body)
	if err != nil {
		return AckFrame{}, err
	}
	if crc32Hex(canon) != full.C {
		return AckFrame{}, ErrCrcMismatch
	}

	var payload map[string]any
	if full.P != nil {
		payload = *full.P
	}

	return AckFrame{NodeID: full.N, CommandID: full.ID, Payload: payload}, nil
}
