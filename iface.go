package atca

import (
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

type IfaceType int

const (
	IfaceI2C IfaceType = iota
	IfaceHID
	IfaceCustom
)

func (t IfaceType) String() string {
	switch t {
	case IfaceI2C:
		return "i2c"
	case IfaceHID:
		return "hid"
	case IfaceCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Config is the configuration object for a device handle.
//
// Logical device configurations describe the device type and logical
// interface, together with the timing and retry policy of the session.
type Config struct {
	// IfaceType affects how communication with the device is done.
	IfaceType IfaceType
	// DeviceType selects the execution time table.
	DeviceType DeviceType
	// I2C contains I²C specific configuration.
	I2C I2CConfig
	// HID contains HID specific configuration.
	HID HIDConfig

	// WakeDelay defines the time to wait for the device after waking it up.
	//
	// This represents the tWHI + tWLO and is configured based on device type.
	WakeDelay time.Duration
	// RxRetries is the number of extra polls while the device is busy.
	RxRetries int
	// PollInterval is the time between polls while the device is busy.
	PollInterval time.Duration
	// ExecMargin is added to the execution time of a command to form its
	// timeout.
	ExecMargin time.Duration
	// MaxAttempts is the number of attempts made on transport errors before
	// giving up.
	MaxAttempts int
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// CommandRetries is the number of times a command is re-sent when the
	// device reports a communication error or watchdog expiry.
	CommandRetries int
	// RejectConcurrent makes concurrent calls fail with ErrBusy instead of
	// waiting for the handle.
	RejectConcurrent bool

	// Debug is used for debug output.
	Debug Logger
}

type I2CConfig struct {
	// Address is the 7 bit address of the device.
	Address uint16
	// Speed is the bus clock. Zero keeps the current bus speed.
	Speed physic.Frequency
	Bus   i2c.Bus
}

type KitType int

const (
	KitTypeAuto KitType = iota
	KitTypeI2C
	KitTypeSWI
	KitTypeSPI
)

type HIDConfig struct {
	// DevIndex is the HID enumeration index to use unless DevIdentity is set.
	DevIndex int

	// KitType indicates the underlying interface to use.
	KitType KitType

	// DevIdentity is the identity of the device.
	//
	// For I²C, this is the I²C target address. For the SWI interface, this is
	// the bus number.
	DevIdentity uint8

	// VendorID of the kit.
	VendorID uint16

	// ProductID of the kit.
	ProductID uint16

	// PacketSize is the size of the USB packet.
	PacketSize int
}

// withDefaults fills in zero timing and retry values.
func (cfg Config) withDefaults() Config {
	if cfg.WakeDelay == 0 {
		cfg.WakeDelay = 1500 * time.Microsecond
	}
	if cfg.RxRetries == 0 {
		cfg.RxRetries = 20
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.ExecMargin == 0 {
		cfg.ExecMargin = 50 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 100 * time.Millisecond
	}
	if cfg.CommandRetries < 0 {
		cfg.CommandRetries = 0
	}
	return cfg
}

// ConfigATECC608_I2CDefault returns a default config for an ATECC608 device.
//
// The caller owns bus and is responsible for closing it after the device.
func ConfigATECC608_I2CDefault(bus i2c.Bus) Config {
	return Config{
		IfaceType:      IfaceI2C,
		DeviceType:     DeviceATECC608,
		WakeDelay:      1500 * time.Microsecond,
		RxRetries:      20,
		MaxAttempts:    3,
		CommandRetries: 2,
		I2C: I2CConfig{
			Address: 0x60,
			Speed:   400 * physic.KiloHertz,
			Bus:     bus,
		},
	}
}

const (
	vendorAtmel = 0x03eb

	productTrustPlatform = 0x2312
)

// ConfigATECC608_KitHIDDefault returns a configuration for the Kit protocol.
func ConfigATECC608_KitHIDDefault() Config {
	return Config{
		IfaceType:      IfaceHID,
		DeviceType:     DeviceATECC608,
		MaxAttempts:    3,
		CommandRetries: 2,
		HID: HIDConfig{
			DevIndex:    0,
			KitType:     KitTypeAuto,
			DevIdentity: 0,
			VendorID:    vendorAtmel,
			ProductID:   productTrustPlatform,
			PacketSize:  64,
		},
	}
}
