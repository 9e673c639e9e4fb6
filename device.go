package atca

import (
	"errors"
	"time"

	"github.com/northvolt/go-atca/ateccconf"
)

// DeviceType represents a physical device type.
type DeviceType int

const (
	DeviceATECC608 DeviceType = iota
)

func (dt DeviceType) String() string {
	switch dt {
	case DeviceATECC608:
		return "ATECC608"
	default:
		return "unknown"
	}
}

// DeviceTypeFromInfo returns the device type based on the revision returned
// by the Info command.
func DeviceTypeFromInfo(revision []byte) (DeviceType, error) {
	if len(revision) < 3 {
		return 0, errors.New("atca: device type revision too small")
	}
	switch revision[2] {
	case 0x60:
		return DeviceATECC608, nil
	default:
		return 0, errors.New("atca: unknown device revision")
	}
}

// executionTimes maps opcodes to the maximum execution time of a command.
type executionTimes map[uint8]time.Duration

// deviceExecutionTimes608 holds execution times for ATECC608 per clock
// divider.
var deviceExecutionTimes608 = map[ateccconf.ClockDivider]executionTimes{
	ateccconf.ClockDividerM0: {
		opAES:         27 * time.Millisecond,
		opCheckMac:    40 * time.Millisecond,
		opCounter:     25 * time.Millisecond,
		opDeriveKey:   50 * time.Millisecond,
		opECDH:        75 * time.Millisecond,
		opGenDig:      25 * time.Millisecond,
		opGenKey:      115 * time.Millisecond,
		opInfo:        5 * time.Millisecond,
		opKDF:         165 * time.Millisecond,
		opLock:        35 * time.Millisecond,
		opMAC:         55 * time.Millisecond,
		opNonce:       20 * time.Millisecond,
		opPrivWrite:   50 * time.Millisecond,
		opRandom:      23 * time.Millisecond,
		opRead:        5 * time.Millisecond,
		opSecureBoot:  80 * time.Millisecond,
		opSelfTest:    250 * time.Millisecond,
		opSHA:         36 * time.Millisecond,
		opSign:        115 * time.Millisecond,
		opUpdateExtra: 10 * time.Millisecond,
		opVerify:      105 * time.Millisecond,
		opWrite:       45 * time.Millisecond,
	},
	ateccconf.ClockDividerM1: {
		opAES:         27 * time.Millisecond,
		opCheckMac:    40 * time.Millisecond,
		opCounter:     25 * time.Millisecond,
		opDeriveKey:   50 * time.Millisecond,
		opECDH:        172 * time.Millisecond,
		opGenDig:      35 * time.Millisecond,
		opGenKey:      215 * time.Millisecond,
		opInfo:        5 * time.Millisecond,
		opKDF:         165 * time.Millisecond,
		opLock:        35 * time.Millisecond,
		opMAC:         55 * time.Millisecond,
		opNonce:       20 * time.Millisecond,
		opPrivWrite:   50 * time.Millisecond,
		opRandom:      23 * time.Millisecond,
		opRead:        5 * time.Millisecond,
		opSecureBoot:  160 * time.Millisecond,
		opSelfTest:    625 * time.Millisecond,
		opSHA:         42 * time.Millisecond,
		opSign:        220 * time.Millisecond,
		opUpdateExtra: 10 * time.Millisecond,
		opVerify:      295 * time.Millisecond,
		opWrite:       45 * time.Millisecond,
	},
	ateccconf.ClockDividerM2: {
		opAES:         27 * time.Millisecond,
		opCheckMac:    40 * time.Millisecond,
		opCounter:     25 * time.Millisecond,
		opDeriveKey:   50 * time.Millisecond,
		opECDH:        531 * time.Millisecond,
		opGenDig:      35 * time.Millisecond,
		opGenKey:      653 * time.Millisecond,
		opInfo:        5 * time.Millisecond,
		opKDF:         165 * time.Millisecond,
		opLock:        35 * time.Millisecond,
		opMAC:         55 * time.Millisecond,
		opNonce:       20 * time.Millisecond,
		opPrivWrite:   50 * time.Millisecond,
		opRandom:      23 * time.Millisecond,
		opRead:        5 * time.Millisecond,
		opSecureBoot:  480 * time.Millisecond,
		opSelfTest:    2324 * time.Millisecond,
		opSHA:         75 * time.Millisecond,
		opSign:        665 * time.Millisecond,
		opUpdateExtra: 10 * time.Millisecond,
		opVerify:      1085 * time.Millisecond,
		opWrite:       45 * time.Millisecond,
	},
}

func getExecutionTime(dt DeviceType, div ateccconf.ClockDivider, opcode uint8) (time.Duration, error) {
	if dt != DeviceATECC608 {
		return 0, errors.New("atca: unknown execution time for device")
	}
	times, ok := deviceExecutionTimes608[div]
	if !ok {
		return 0, errors.New("atca: unknown clock divider")
	}
	t, ok := times[opcode]
	if !ok {
		return 0, errors.New("atca: unknown execution time for op")
	}
	return t, nil
}
