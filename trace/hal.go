// Package trace records the frames exchanged with a device.
//
// HAL wraps an atca.HAL and writes one Event per call to a Recorder. The
// resulting CBOR stream can be read back with a Reader, for example to
// inspect a failing exchange after the fact.
package trace

import (
	"errors"
	"time"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/codec"
)

// HAL is an atca.HAL recording every call.
type HAL struct {
	next atca.HAL
	rec  *Recorder

	// NotReady selects if polls answered with atca.ErrNotReady are
	// recorded.
	NotReady bool
}

var _ atca.HAL = (*HAL)(nil)

// NewHAL returns a HAL forwarding to next and recording to rec.
func NewHAL(next atca.HAL, rec *Recorder) *HAL {
	return &HAL{next: next, rec: rec}
}

func (h *HAL) Wake() error {
	start := time.Now()
	err := h.next.Wake()
	h.record(Event{Op: OpWake}, start, err)
	return err
}

func (h *HAL) Idle() error {
	start := time.Now()
	err := h.next.Idle()
	h.record(Event{Op: OpIdle}, start, err)
	return err
}

func (h *HAL) Sleep() error {
	start := time.Now()
	err := h.next.Sleep()
	h.record(Event{Op: OpSleep}, start, err)
	return err
}

func (h *HAL) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := h.next.Write(p)

	event := Event{Op: OpWrite, Data: append([]byte(nil), p...)}
	if cmd, err := codec.DecodeCommand(p); err == nil {
		event.Opcode = cmd.Opcode
	}
	h.record(event, start, err)
	return n, err
}

func (h *HAL) Read(p []byte) (int, error) {
	start := time.Now()
	n, err := h.next.Read(p)
	if errors.Is(err, atca.ErrNotReady) && !h.NotReady {
		return n, err
	}

	event := Event{Op: OpRead, Data: append([]byte(nil), p[:n]...)}
	if resp, err := codec.Decode(p[:n]); err == nil && resp.IsStatus() {
		status := resp.Status()
		event.Status = &status
	}
	h.record(event, start, err)
	return n, err
}

// record writes the event. Recording failures never fail the exchange.
func (h *HAL) record(event Event, start time.Time, err error) {
	event.Duration = time.Since(start)
	if err != nil {
		event.Err = err.Error()
	}
	_ = h.rec.Record(event)
}
