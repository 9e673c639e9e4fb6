// Package ateccconf describes the configuration zone of ATECC608 devices.
//
// The configuration zone is 128 bytes. The first 16 bytes are written by the
// factory and hold the serial number and the revision.
package ateccconf

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Default608 is an example configuration for ATECC608A.
//
// First 16 bytes as expected from a normal configuration is not included.
// These are fixed by the factory.
var Default608 = []byte{
	0x6a, 0x00, 0x00, 0x01, 0x85, 0x00, 0x82, 0x00, 0x85, 0x20, 0x85, 0x20, 0x85, 0x20, 0xc6, 0x46,
	0x8f, 0x0f, 0x9f, 0x8f, 0x0f, 0x0f, 0x8f, 0x0f, 0x0f, 0x0f, 0x0f, 0x0f, 0x0f, 0x0f, 0x0f, 0x0f,
	0x0d, 0x1f, 0x0f, 0x0f, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xf7, 0x00, 0x69, 0x76, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x55, 0x55, 0xff, 0xff, 0x0e, 0x60, 0x00, 0x00, 0x00, 0x00,
	0x53, 0x00, 0x53, 0x00, 0x73, 0x00, 0x73, 0x00, 0x73, 0x00, 0x38, 0x00, 0x7c, 0x00, 0x1c, 0x00,
	0x3c, 0x00, 0x1a, 0x00, 0x3c, 0x00, 0x30, 0x00, 0x3c, 0x00, 0x30, 0x00, 0x12, 0x00, 0x30, 0x00,
}

// Size is the size of the configuration zone.
const Size = 128

// Byte offsets within the configuration zone.
const (
	// PermanentOffset608 is the device offset which cannot be written to.
	PermanentOffset608 = 16

	// ChipModeOffset is the offset of the ChipMode byte.
	ChipModeOffset = 19

	// SlotConfigOffset is the offset of the 16 SlotConfig words.
	SlotConfigOffset = 20

	// UserExtraOffset is the offset of UserExtra, followed by UserExtraAdd.
	UserExtraOffset = 84

	LockOffsetBlock = 2
	LockOffsetWord  = 5

	// LockOffset is the byte offset to the lock bytes.
	//
	// Note: this offset is bigger than one block size.
	LockOffset = LockOffsetBlock*32 + LockOffsetWord*4
)

// DefaultConfig608 returns the example configuration.
func DefaultConfig608() *Config608 {
	var conf Config608
	if err := UnmarshalPartial(Default608, PermanentOffset608, &conf); err != nil {
		panic(err)
	}
	return &conf
}

// Config608 represents the configuration used in ATECC608 devices.
//
// Fields are laid out in the same order as on the device so the struct can be
// read and written with encoding/binary.
type Config608 struct {
	SN03                  [4]byte        `json:"sn03"`
	RevNum                [4]byte        `json:"revision"`
	SN48                  [5]byte        `json:"sn48"`
	AESEnable             AESEnable      `json:"aes_enable"`
	I2CEnable             byte           `json:"i2c_enable"`
	Reserved15            byte           `json:"reserved15"`
	I2CAddress            byte           `json:"i2c_address"`
	Reserved17            byte           `json:"reserved17"`
	CountMatch            byte           `json:"count_match"`
	ChipMode              ChipMode608    `json:"chip_mode"`
	SlotConfig            [16]SlotConfig `json:"slot_config"`
	Counter               [2][8]byte     `json:"counter"`
	UseLock               byte           `json:"use_lock"`
	VolatileKeyPermission byte           `json:"volatile_key_permission"`
	SecureBoot            [2]byte        `json:"secure_boot"`
	KdfIvLoc              byte           `json:"kdf_iv_loc"`
	KdfIvStr              [2]byte        `json:"kdf_iv_str"`
	Reserved68            [9]byte        `json:"reserved68"`
	UserExtra             byte           `json:"user_extra"`
	UserExtraAdd          byte           `json:"user_extra_add"`

	// LockValue indicates if the data zone has been locked.
	LockValue LockState `json:"lock_value"`
	// LockConfig indicates if the config zone has been locked.
	LockConfig LockState `json:"lock_config"`

	SlotLocked  SlotLocked    `json:"slot_locked"`
	ChipOptions ChipOptions   `json:"chip_options"`
	X509Format  [4]byte       `json:"x509_format"`
	KeyConfig   [16]KeyConfig `json:"key_config"`
}

// SerialNumber returns the 9 byte serial number.
//
// The serial number is split in two parts around the revision number.
func (c *Config608) SerialNumber() [9]byte {
	var sn [9]byte
	copy(sn[:4], c.SN03[:])
	copy(sn[4:], c.SN48[:])
	return sn
}

func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	err := binary.Write(&buf, binary.BigEndian, v)
	return buf.Bytes(), err
}

func Unmarshal(config []byte, data any) error {
	r := bytes.NewReader(config)
	return binary.Read(r, binary.BigEndian, data)
}

// UnmarshalPartial unmarshals config as if it was read starting at offset.
//
// Bytes outside of the given range are left as zero.
func UnmarshalPartial(config []byte, offset int, data any) error {
	switch data.(type) {
	case *Config608:
	default:
		return errors.New("atca: unsupported config")
	}
	if offset < 0 || offset+len(config) > Size {
		return errors.New("atca: config exceeds maximum size")
	}

	var c [Size]byte
	copy(c[offset:], config)
	return Unmarshal(c[:], data)
}
