// Package atcasim simulates an ATECC608 device behind the atca.HAL interface.
//
// The simulator keeps configuration, OTP and data zones, volatile TempKey
// and buffers, and P-256 keys per slot. It implements enough of the command
// set to exercise every operation of package atca without hardware.
package atcasim

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"hash"
	"io"
	"sync"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/ateccconf"
	"github.com/northvolt/go-atca/codec"
)

// Revision is the revision reported by the Info command.
var Revision = [4]byte{0x00, 0x00, 0x60, 0x02}

// factory holds the first 16 bytes of the configuration zone.
var factory = [ateccconf.PermanentOffset608]byte{
	0x01, 0x23, 0xa1, 0xb2, // SN[0:4]
	0x00, 0x00, 0x60, 0x02, // RevNum
	0xc3, 0xd4, 0xe5, 0xf6, 0xee, // SN[4:9]
	0x01, // AESEnable
	0x01, // I2CEnable
	0x00,
}

var (
	errNotAwake   = errors.New("atcasim: device is not awake")
	errNoResponse = errors.New("atcasim: no response pending")
	errInjected   = errors.New("atcasim: injected bus error")
)

// Option configures a Chip.
type Option func(*Chip)

// WithRand sets the source of randomness used for keys, signatures and the
// Random command.
func WithRand(r io.Reader) Option {
	return func(c *Chip) { c.rand = r }
}

// WithBusyPolls makes Read report atca.ErrNotReady n times after each
// command before returning the response.
func WithBusyPolls(n int) Option {
	return func(c *Chip) { c.busyPolls = n }
}

// WithConfig replaces bytes 16 to 127 of the configuration zone.
func WithConfig(conf []byte) Option {
	return func(c *Chip) { copy(c.config[ateccconf.PermanentOffset608:], conf) }
}

// Chip is a simulated device. It is safe for concurrent use.
type Chip struct {
	mu sync.Mutex

	rand      io.Reader
	busyPolls int

	config [ateccconf.Size]byte
	otp    [64]byte
	slots  [16][]byte
	keys   [16]*ecdsa.PrivateKey

	awake bool

	// volatile state, cleared by Sleep
	tempKey   [64]byte
	tempValid bool
	msgDigBuf [64]byte
	altKeyBuf [32]byte
	sha       hash.Hash

	out  []byte
	busy int

	failWrites int
	inject     []uint8
	executed   []uint8
}

// New returns a chip with an unlocked default configuration.
func New(opts ...Option) *Chip {
	c := &Chip{rand: rand.Reader}
	copy(c.config[:], factory[:])
	copy(c.config[ateccconf.PermanentOffset608:], ateccconf.Default608)
	for i := range c.slots {
		size := 72
		switch {
		case i < 8:
			size = 36
		case i == 8:
			size = 416
		}
		c.slots[i] = make([]byte, size)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FailWrites makes the next n writes fail with a bus error.
func (c *Chip) FailWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = n
}

// InjectStatus makes the next commands answer with the given status codes
// instead of being executed.
func (c *Chip) InjectStatus(status ...uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inject = append(c.inject, status...)
}

// Executed returns the opcodes of all commands received so far.
func (c *Chip) Executed() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.executed...)
}

// Config returns a copy of the configuration zone.
func (c *Chip) Config() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.config[:]...)
}

// PublicKey returns the public key of the key in slot, or nil.
func (c *Chip) PublicKey(slot int) *ecdsa.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.keys[slot]; k != nil {
		return &k.PublicKey
	}
	return nil
}

func (c *Chip) Wake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awake = true
	return nil
}

func (c *Chip) Idle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awake = false
	return nil
}

func (c *Chip) Sleep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awake = false
	c.tempKey = [64]byte{}
	c.tempValid = false
	c.msgDigBuf = [64]byte{}
	c.altKeyBuf = [32]byte{}
	c.sha = nil
	c.out = nil
	return nil
}

func (c *Chip) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awake {
		return 0, errNotAwake
	}
	if c.failWrites > 0 {
		c.failWrites--
		return 0, errInjected
	}

	c.busy = c.busyPolls
	cmd, err := codec.DecodeCommand(p)
	if err != nil {
		c.out = codec.EncodeStatus(atca.StatusCommunication)
		return len(p), nil
	}
	c.executed = append(c.executed, cmd.Opcode)
	if len(c.inject) > 0 {
		c.out = codec.EncodeStatus(c.inject[0])
		c.inject = c.inject[1:]
		return len(p), nil
	}

	payload, status := c.execute(cmd)
	if status != atca.StatusSuccess || payload == nil {
		c.out = codec.EncodeStatus(status)
	} else {
		c.out = codec.EncodeResponse(payload)
	}
	return len(p), nil
}

func (c *Chip) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awake {
		return 0, errNotAwake
	}
	if c.out == nil {
		return 0, errNoResponse
	}
	if c.busy > 0 {
		c.busy--
		return 0, atca.ErrNotReady
	}
	n := copy(p, c.out)
	c.out = nil
	return n, nil
}

// configLocked and dataLocked read the lock bytes of the configuration zone.
func (c *Chip) configLocked() bool {
	return c.config[ateccconf.LockOffset+3] != byte(ateccconf.LockStateUnlocked)
}

func (c *Chip) dataLocked() bool {
	return c.config[ateccconf.LockOffset+2] != byte(ateccconf.LockStateUnlocked)
}
