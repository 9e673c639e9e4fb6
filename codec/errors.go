package codec

import (
	"errors"
	"fmt"
)

// Codec errors. These always indicate a local or transport problem and are
// never caused by the device rejecting a command.
var (
	// ErrTruncated is returned when fewer bytes were received than the count
	// byte of the frame declares.
	ErrTruncated = errors.New("atca: truncated frame")

	// ErrChecksumMismatch is returned when the CRC of a frame does not match.
	ErrChecksumMismatch = errors.New("atca: frame crc mismatch")

	// ErrMalformed is returned for frames that are structurally invalid.
	ErrMalformed = errors.New("atca: malformed frame")
)

// Error describes why a frame could not be encoded or decoded.
//
// Kind is one of ErrTruncated, ErrChecksumMismatch or ErrMalformed and can be
// matched with errors.Is.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
