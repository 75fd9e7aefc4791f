// Package frame implements C1: canonical serialization and CRC32
// validation of the three on-air frame kinds (sensor, command, ACK).
//
// "Canonical form" means: JSON object keys in lexicographic order, no
// extraneous whitespace (compact separators). The CRC32 trailer field
// "c" is computed over the canonical form of the frame *without* the "c"
// field itself, then hex-encoded as a lowercase 8-character string.
// Decode recomputes the same canonical form from the parsed values (not
// the raw input bytes) and compares, so frames that round-trip through a
// differently-ordered or whitespace-padded encoder still validate.
package frame

// MaxFrameBytes is the hard LoRa single-packet budget every encoded
// frame must fit within (§6).
const MaxFrameBytes = 250

// SensorReading is a single measurement carried in a sensor frame.
type SensorReading struct {
	Name         string   // measurement name, e.g. "Temperature"
	Units        string   // e.g. "°F"
	Value        *float64 // nil means null (sensor unavailable)
	SensorClass  string   // owning sensor-class name (resolved via sensorclass.Registry)
	Timestamp    float64  // seconds, floating
	Precision    int      // decimal places to round Value to on encode
}

// SensorFrame is the N2G data frame: a node id, a timestamp, and a set of
// readings, CRC-protected.
type SensorFrame struct {
	NodeID    string
	Timestamp float64
	Readings  []SensorReading
}

// CommandFrame is the G2N control frame. TargetNodeID == "" means
// broadcast to every node.
type CommandFrame struct {
	TargetNodeID string
	Command      string
	Args         []string
	CommandID    string
}

// AckFrame is the N2G reply to a command. Payload is command-specific;
// nil means no payload.
type AckFrame struct {
	NodeID    string
	CommandID string
	Payload   map[string]any
}
