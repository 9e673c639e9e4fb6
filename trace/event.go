package trace

import "time"

// Event is a single exchange between the host and the device.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the exchange completed.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the recorder that wrote the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Seq numbers the events of a session, starting at 1.
	Seq uint64 `cbor:"3,keyasint"`

	// Op is the HAL operation.
	Op Op `cbor:"4,keyasint"`

	// Data is the frame written or read.
	Data []byte `cbor:"5,keyasint,omitempty"`

	// Opcode of a written command frame.
	Opcode uint8 `cbor:"6,keyasint,omitempty"`

	// Status of a read status frame.
	Status *uint8 `cbor:"7,keyasint,omitempty"`

	// Err is the error returned by the HAL, if any.
	Err string `cbor:"8,keyasint,omitempty"`

	// Duration of the HAL call.
	Duration time.Duration `cbor:"9,keyasint,omitempty"`
}

// Op is a HAL operation.
type Op uint8

const (
	OpWake  Op = 0
	OpIdle  Op = 1
	OpSleep Op = 2
	OpWrite Op = 3
	OpRead  Op = 4
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpWake:
		return "WAKE"
	case OpIdle:
		return "IDLE"
	case OpSleep:
		return "SLEEP"
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	default:
		return "UNKNOWN"
	}
}
