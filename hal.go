package atca

import "errors"

// ErrNotReady is returned by HAL.Read while the device is still executing a
// command. On I²C the device does not acknowledge its address until the
// result is available.
var ErrNotReady = errors.New("atca: device not ready")

// HAL is the byte transport to a single device.
//
// Implementations are not required to be safe for concurrent use; Dev
// serializes all calls.
type HAL interface {
	// Read reads one response frame into p and returns its size.
	//
	// Read returns ErrNotReady while the device is busy.
	Read(p []byte) (int, error)
	// Write writes a complete command frame to the device.
	Write(p []byte) (int, error)
	// Wake wakes the device up.
	Wake() error
	// Idle puts the device into idle state. TempKey and other volatile
	// state is retained.
	Idle() error
	// Sleep puts the device into low power mode, clearing volatile state.
	Sleep() error
}
