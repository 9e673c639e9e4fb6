package atca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Word addresses prefixing every write to the device.
const (
	i2cWordAddressReset   = 0x00
	i2cWordAddressSleep   = 0x01
	i2cWordAddressIdle    = 0x02
	i2cWordAddressCommand = 0x03
)

// i2cWakeSpeed is the fastest bus speed at which the wake pulse is long
// enough.
const i2cWakeSpeed = 100 * physic.KiloHertz

type halI2C struct {
	bus       i2c.Bus
	addr      uint16
	speed     physic.Frequency
	wakeDelay time.Duration
}

// NewI2CDev returns a device handle communicating over I²C.
//
// The bus in cfg.I2C is owned by the caller and must outlive the handle.
func NewI2CDev(ctx context.Context, cfg Config) (*Dev, error) {
	hal, err := NewI2CHAL(cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, hal, cfg)
}

// NewI2CHAL returns the I²C HAL described by cfg.I2C, for use with Open.
func NewI2CHAL(cfg Config) (HAL, error) {
	h, err := newHALI2C(cfg.withDefaults())
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHALI2C(cfg Config) (*halI2C, error) {
	if cfg.I2C.Bus == nil {
		return nil, errors.New("atca: i2c bus is required")
	}
	h := &halI2C{
		bus:       cfg.I2C.Bus,
		addr:      cfg.I2C.Address,
		speed:     cfg.I2C.Speed,
		wakeDelay: cfg.WakeDelay,
	}
	if h.speed != 0 {
		if err := h.bus.SetSpeed(h.speed); err != nil {
			return nil, fmt.Errorf("atca: set i2c speed: %w", err)
		}
	}
	return h, nil
}

// Wake holds SDA low long enough for the device to wake up and checks the
// wake response.
func (h *halI2C) Wake() error {
	slow := h.speed > i2cWakeSpeed
	if slow {
		if err := h.bus.SetSpeed(i2cWakeSpeed); err != nil {
			return err
		}
	}

	// Nobody acknowledges address 0; the transfer only generates the pulse.
	_ = h.bus.Tx(0x00, []byte{0x00}, nil)
	time.Sleep(h.wakeDelay)

	var rsp [4]byte
	err := h.bus.Tx(h.addr, nil, rsp[:])

	if slow {
		if err := h.bus.SetSpeed(h.speed); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	return checkWakeUp(rsp[:])
}

func (h *halI2C) Idle() error {
	return h.bus.Tx(h.addr, []byte{i2cWordAddressIdle}, nil)
}

func (h *halI2C) Sleep() error {
	return h.bus.Tx(h.addr, []byte{i2cWordAddressSleep}, nil)
}

func (h *halI2C) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, i2cWordAddressCommand)
	buf = append(buf, p...)
	if err := h.bus.Tx(h.addr, buf, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read reads the count byte of the response followed by the rest of the
// frame. The device does not acknowledge its address while executing.
func (h *halI2C) Read(p []byte) (int, error) {
	if len(p) < 1 {
		return 0, errors.New("atca: i2c read buffer empty")
	}
	if err := h.bus.Tx(h.addr, nil, p[:1]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	count := int(p[0])
	if count < 4 || count > len(p) {
		return 1, fmt.Errorf("atca: invalid response count %d", count)
	}
	if err := h.bus.Tx(h.addr, nil, p[1:count]); err != nil {
		return 1, err
	}
	return count, nil
}
