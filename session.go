package atca

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/northvolt/go-atca/ateccconf"
	"github.com/northvolt/go-atca/codec"
)

// State is the session state of a device handle.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateIdle
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

type wakeState int

const (
	wakeAsleep wakeState = iota
	wakeIdle
	wakeAwake
)

// Dev is a handle to a single device.
//
// A Dev is safe for concurrent use. Commands are executed one at a time;
// concurrent callers wait for their turn unless Config.RejectConcurrent is
// set, in which case they fail with ErrBusy.
type Dev struct {
	hal HAL
	cfg Config
	log Logger

	// sem holds a token while a transaction is in progress.
	sem   chan struct{}
	state atomic.Int32

	// Guarded by sem.
	wake         wakeState
	clockDivider ateccconf.ClockDivider
	revision     []byte
	serial       []byte
}

// Open returns a new device handle using the supplied HAL for communication.
//
// Open reads the chip mode to select execution times, the serial number and
// the revision of the device. The handle is ready for use when Open returns.
func Open(ctx context.Context, hal HAL, cfg Config) (*Dev, error) {
	cfg = cfg.withDefaults()
	d := &Dev{
		cfg: cfg,
		log: getLogger(cfg),
		sem: make(chan struct{}, 1),
	}
	d.hal = newHALDebug("ecc", d.log, hal)
	d.setState(StateOpening)

	d.sem <- struct{}{}
	err := d.open(ctx)
	<-d.sem
	if err != nil {
		_ = d.hal.Sleep()
		d.setState(StateClosed)
		return nil, fmt.Errorf("atca: open: %w", err)
	}
	d.setState(StateIdle)
	return d, nil
}

func (d *Dev) open(ctx context.Context) error {
	var buf [blockSize]byte
	if _, err := d.readZone(ctx, ZoneConfig, 0, 0, 0, buf[:]); err != nil {
		return err
	}

	var conf ateccconf.Config608
	if err := ateccconf.UnmarshalPartial(buf[:], 0, &conf); err != nil {
		return err
	}
	d.clockDivider = conf.ChipMode.ClockDivider()
	sn := conf.SerialNumber()
	d.serial = sn[:]

	revision, err := d.info(ctx)
	if err != nil {
		return err
	}
	if dt, err := DeviceTypeFromInfo(revision); err != nil {
		d.log.Printf("revision % x: %v", revision, err)
	} else if dt != d.cfg.DeviceType {
		d.log.Printf("configured for %s, found %s", d.cfg.DeviceType, dt)
	}
	d.revision = revision
	return nil
}

// State returns the current session state.
func (d *Dev) State() State {
	return State(d.state.Load())
}

func (d *Dev) setState(s State) {
	d.state.Store(int32(s))
}

// Close puts the device to sleep and releases the handle.
//
// Close waits for any command in flight. Calls made after Close return
// ErrClosed.
func (d *Dev) Close() error {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()
	if d.State() == StateClosed {
		return nil
	}
	d.setState(StateClosed)
	d.wake = wakeAsleep
	return d.hal.Sleep()
}

// Execute sends a single command to the device and returns its output.
//
// A response carrying only a status byte returns that byte. Devices
// answering with a non-zero status return a *DeviceRejectedError.
func (d *Dev) Execute(ctx context.Context, cmd codec.Command) ([]byte, error) {
	var out []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = d.execute(ctx, cmd)
		return err
	})
	return out, err
}

// transaction runs fn while holding the handle.
//
// Multi-command operations run within a single transaction, so commands of
// other callers never interleave with them.
func (d *Dev) transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()
	return fn(ctx)
}

func (d *Dev) acquire(ctx context.Context) error {
	if d.State() == StateClosed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.cfg.RejectConcurrent {
		select {
		case d.sem <- struct{}{}:
		default:
			return ErrBusy
		}
	} else {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.State() == StateClosed {
		<-d.sem
		return ErrClosed
	}
	d.setState(StateBusy)
	return nil
}

func (d *Dev) release() {
	d.state.CompareAndSwap(int32(StateBusy), int32(StateIdle))
	<-d.sem
}

// execute runs a single command. The caller must hold the handle.
func (d *Dev) execute(ctx context.Context, cmd codec.Command) ([]byte, error) {
	frame, err := codec.Encode(cmd)
	if err != nil {
		return nil, err
	}
	t, err := getExecutionTime(d.cfg.DeviceType, d.clockDivider, cmd.Opcode)
	if err != nil {
		return nil, err
	}

	// Put device back into idle mode once finished. This function is called even
	// if we would encounter a panic.
	defer d.idle()

	for retry := 0; ; retry++ {
		resp, err := d.transmit(ctx, frame, t)
		if err != nil {
			return nil, fmt.Errorf("atca: opcode %#02x: %w", cmd.Opcode, err)
		}

		status := resp.Status()
		if status == StatusSuccess {
			return resp.Payload, nil
		}
		if !recoverable(status) || retry >= d.cfg.CommandRetries {
			return nil, &DeviceRejectedError{Opcode: cmd.Opcode, Status: status}
		}
		d.log.Printf("opcode %#02x: status %#02x, retrying: %v", cmd.Opcode, status, statusError(status))
		// The device may have dropped its state; start over from a fresh wake.
		d.idle()
	}
}

// transmit sends one frame and waits for its response.
func (d *Dev) transmit(ctx context.Context, frame []byte, execTime time.Duration) (codec.Response, error) {
	if err := d.send(ctx, frame); err != nil {
		return codec.Response{}, err
	}

	// Once sent, the command runs to completion on the device.
	time.Sleep(execTime)

	b, err := d.receive(time.Now().Add(d.cfg.ExecMargin))
	if err != nil {
		return codec.Response{}, err
	}
	return codec.Decode(b)
}

// backoff yields exponentially growing delays between transport attempts,
// starting at the wake delay and capped at MaxBackoff.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func (d *Dev) newBackoff() *backoff {
	return &backoff{next: d.cfg.WakeDelay, max: d.cfg.MaxBackoff}
}

func (b *backoff) delay() time.Duration {
	t := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return t
}

// send wakes the device and writes frame, retrying with exponential backoff.
func (d *Dev) send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := d.newBackoff()
	for attempt := 1; ; attempt++ {
		err := d.wakeUp()
		if err == nil {
			if _, err = d.hal.Write(frame); err == nil {
				return nil
			}
		}
		d.wake = wakeAsleep
		if attempt >= d.cfg.MaxAttempts {
			return &TransportError{Op: "send", Attempts: attempt, Err: err}
		}
		d.log.Printf("send attempt %d failed: %v", attempt, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay()):
		}
	}
}

// receive reads a response frame, polling while the device is busy. Read
// errors are retried with the same backoff as send.
func (d *Dev) receive(deadline time.Time) ([]byte, error) {
	buf := make([]byte, codec.ResponseSizeMax)
	b := d.newBackoff()
	var polls, failures int
	for {
		n, err := d.hal.Read(buf)
		switch {
		case err == nil:
			return buf[:n], nil
		case errors.Is(err, ErrNotReady):
			polls++
			if polls > d.cfg.RxRetries || time.Now().After(deadline) {
				return nil, &TransportError{Op: "receive", Attempts: polls, Err: ErrTimeout}
			}
			time.Sleep(d.cfg.PollInterval)
		default:
			failures++
			if failures >= d.cfg.MaxAttempts {
				return nil, &TransportError{Op: "receive", Attempts: failures, Err: err}
			}
			d.log.Printf("receive attempt %d failed: %v", failures, err)
			time.Sleep(b.delay())
		}
	}
}

func (d *Dev) wakeUp() error {
	if d.wake == wakeAwake {
		return nil
	}
	if err := d.hal.Wake(); err != nil {
		return err
	}
	time.Sleep(d.cfg.WakeDelay)
	d.wake = wakeAwake
	return nil
}

func (d *Dev) idle() {
	if d.wake != wakeAwake {
		return
	}
	if err := d.hal.Idle(); err != nil {
		d.log.Printf("idle: %v", err)
		d.wake = wakeAsleep
		return
	}
	d.wake = wakeIdle
}
