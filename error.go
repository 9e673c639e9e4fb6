package atca

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrTransportFailure is returned when the bus failed persistently.
	ErrTransportFailure = errors.New("atca: transport failure")

	// ErrTimeout is returned when the device did not produce a response within
	// the execution time of the command plus the configured margin. It is a
	// transport failure.
	ErrTimeout = errors.New("atca: response timeout")

	// ErrBusy is returned when the handle already has a command in flight and
	// the handle was configured to reject concurrent use.
	ErrBusy = errors.New("atca: device busy")

	// ErrClosed is returned for any use of a closed handle.
	ErrClosed = errors.New("atca: device closed")

	// ErrDeviceRejected is returned when the device answered with a non-zero
	// status code.
	ErrDeviceRejected = errors.New("atca: device rejected command")
)

// Façade errors.
var (
	// ErrInvalidLength is returned when an argument has the wrong size. No
	// command is sent to the device.
	ErrInvalidLength = errors.New("atca: invalid length")

	// ErrInvalidSequence is returned when an AEAD context is used out of order.
	ErrInvalidSequence = errors.New("atca: invalid operation sequence")
)

// Device status errors. A DeviceRejectedError matches the one corresponding
// to its status code.
var (
	ErrVerifyMiscompare = errors.New("atca: checkmac or verify miscompare")

	// ErrParse is used when the command was not understood.
	//
	// Received length, op-code or any parameter was illegal.
	ErrParse = errors.New("atca: parse error")

	ErrECCFault       = errors.New("atca: ecc failed to process")
	ErrSelfTestFailed = errors.New("atca: self-test failed")
	ErrHealthTest     = errors.New("atca: health test failed")
	ErrExecution      = errors.New("atca: execution error")

	// ErrWake is used when the device reports it just woke up.
	//
	// This is an error for any command except for wake.
	ErrWake = errors.New("atca: wake successful")

	// ErrWatchdog is used when the watchdog is about to expire.
	ErrWatchdog = errors.New("atca: watchdog about to expire")

	// ErrCommunication is used for checksum mismatch or other communication
	// error seen by the device. The command should be re-transmitted.
	ErrCommunication = errors.New("atca: crc or communication error")

	ErrUnknownStatus = errors.New("atca: unknown status")
)

// Status codes returned by the device.
const (
	StatusSuccess          uint8 = 0x00
	StatusVerifyMiscompare uint8 = 0x01
	StatusParse            uint8 = 0x03
	StatusECCFault         uint8 = 0x05
	StatusSelfTest         uint8 = 0x07
	StatusHealthTest       uint8 = 0x08
	StatusExecution        uint8 = 0x0f
	StatusWake             uint8 = 0x11
	StatusWatchdog         uint8 = 0xee
	StatusCommunication    uint8 = 0xff
)

func statusError(status uint8) error {
	switch status {
	case StatusVerifyMiscompare:
		return ErrVerifyMiscompare
	case StatusParse:
		return ErrParse
	case StatusECCFault:
		return ErrECCFault
	case StatusSelfTest:
		return ErrSelfTestFailed
	case StatusHealthTest:
		return ErrHealthTest
	case StatusExecution:
		return ErrExecution
	case StatusWake:
		return ErrWake
	case StatusWatchdog:
		return ErrWatchdog
	case StatusCommunication:
		return ErrCommunication
	default:
		return ErrUnknownStatus
	}
}

// recoverable reports if the command should be sent again after the device
// answered with status.
func recoverable(status uint8) bool {
	switch status {
	case StatusCommunication, StatusWatchdog, StatusWake:
		return true
	default:
		return false
	}
}

// DeviceRejectedError is returned when the device answers a command with a
// non-zero status code.
type DeviceRejectedError struct {
	Opcode uint8
	Status uint8
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("atca: opcode %#02x rejected with status %#02x: %v", e.Opcode, e.Status, statusError(e.Status))
}

// Is makes the error match ErrDeviceRejected and the status sentinel.
func (e *DeviceRejectedError) Is(target error) bool {
	return target == ErrDeviceRejected || target == statusError(e.Status)
}

// TransportError is returned when the HAL kept failing.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("atca: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes the error match ErrTransportFailure.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

// LengthError is returned when an argument has an invalid length.
type LengthError struct {
	Name string
	Got  int
	Want string
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("atca: invalid %s length %d, want %s", e.Name, e.Got, e.Want)
}

func (e *LengthError) Is(target error) bool {
	return target == ErrInvalidLength
}

func checkLength(name string, b []byte, want int) error {
	if len(b) != want {
		return &LengthError{Name: name, Got: len(b), Want: fmt.Sprint(want)}
	}
	return nil
}
