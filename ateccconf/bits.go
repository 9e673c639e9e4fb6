package ateccconf

import "encoding/json"

type AESEnable struct {
	// Bits contains of
	// * enabled 1
	// * reserved 7
	Bits uint8
}

func (a AESEnable) Enabled() bool {
	return a.Bits&0x01 != 0
}

func (a AESEnable) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Enabled())
}

type ClockDivider uint8

const (
	// ClockDividerM0 is high speed.
	ClockDividerM0 = ClockDivider(0x00 >> 3)
	ClockDividerM1 = ClockDivider(0x28 >> 3)
	ClockDividerM2 = ClockDivider(0x68 >> 3)
)

func (c ClockDivider) String() string {
	switch c {
	case ClockDividerM0:
		return "m0"
	case ClockDividerM1:
		return "m1"
	case ClockDividerM2:
		return "m2"
	default:
		return "unknown"
	}
}

func (c ClockDivider) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

type ChipMode608 struct {
	// Bits consists of:
	// * UserExtraAdd     1
	// * TTLenable        1
	// * WatchdogDuration 1
	// * ClockDivider     5
	Bits uint8
}

type chipMode608Bits struct {
	UserExtraAdd     bool         `json:"user_extra_add"`
	TTLEnabled       bool         `json:"ttl_enabled"`
	WatchdogDuration bool         `json:"watchdog_duration"`
	ClockDivider     ClockDivider `json:"clock_divider"`
}

// UserExtraAdd reports if UserExtraAdd is used as alternate I2C address.
func (cm ChipMode608) UserExtraAdd() bool {
	return cm.Bits&0x01 != 0
}

func (cm ChipMode608) TTLEnabled() bool {
	return cm.Bits&0x02 != 0
}

// WatchdogDuration reports if the watchdog is set to 10s instead of 1.3s.
func (cm ChipMode608) WatchdogDuration() bool {
	return cm.Bits&0x04 != 0
}

func (cm ChipMode608) ClockDivider() ClockDivider {
	return ClockDivider(cm.Bits & 0xf8 >> 3)
}

func (cm ChipMode608) MarshalJSON() ([]byte, error) {
	return json.Marshal(chipMode608Bits{
		UserExtraAdd:     cm.UserExtraAdd(),
		TTLEnabled:       cm.TTLEnabled(),
		WatchdogDuration: cm.WatchdogDuration(),
		ClockDivider:     cm.ClockDivider(),
	})
}

// SlotConfig is stored little endian on the device, hence Bits1 holds the
// low byte.
type SlotConfig struct {
	// Bits1 consists of
	// * ReadKey (4)
	// * NoMac (1)
	// * LimitedUse (1)
	// * EncryptRead (1)
	// * IsSecret (1)
	Bits1 byte
	// Bits2 consists of
	// * WriteKey (4)
	// * WriteConfig (4)
	Bits2 byte
}

type slotConfigBits struct {
	ReadKey     uint8 `json:"read_key"`
	NoMAC       bool  `json:"no_mac"`
	LimitedUse  bool  `json:"limited_use"`
	EncryptRead bool  `json:"encrypt_read"`
	IsSecret    bool  `json:"is_secret"`
	WriteKey    uint8 `json:"write_key"`
	WriteConfig uint8 `json:"write_config"`
}

// Word returns the config as the 16 bit value documented in the datasheet.
func (sc SlotConfig) Word() uint16 {
	return uint16(sc.Bits2)<<8 | uint16(sc.Bits1)
}

func (sc SlotConfig) ReadKey() uint8     { return sc.Bits1 & 0x0f }
func (sc SlotConfig) NoMac() bool        { return sc.Bits1&0x10 != 0 }
func (sc SlotConfig) LimitedUse() bool   { return sc.Bits1&0x20 != 0 }
func (sc SlotConfig) EncryptRead() bool  { return sc.Bits1&0x40 != 0 }
func (sc SlotConfig) IsSecret() bool     { return sc.Bits1&0x80 != 0 }
func (sc SlotConfig) WriteKey() uint8    { return sc.Bits2 & 0x0f }
func (sc SlotConfig) WriteConfig() uint8 { return sc.Bits2 >> 4 }

// GenKeyEnabled reports if GenKey may create a new key in the slot once the
// data zone is locked.
func (sc SlotConfig) GenKeyEnabled() bool {
	return sc.WriteConfig()&0x02 != 0
}

func (sc SlotConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotConfigBits{
		ReadKey:     sc.ReadKey(),
		NoMAC:       sc.NoMac(),
		LimitedUse:  sc.LimitedUse(),
		EncryptRead: sc.EncryptRead(),
		IsSecret:    sc.IsSecret(),
		WriteKey:    sc.WriteKey(),
		WriteConfig: sc.WriteConfig(),
	})
}

type LockState byte

const (
	// LockStateLocked indicates a locked zone.
	LockStateLocked = LockState(0x00)
	// LockStateUnlocked indicates an unlocked zone.
	LockStateUnlocked = LockState(0x55)
)

func (m LockState) IsLocked() bool {
	return m != LockStateUnlocked
}

func (m LockState) String() string {
	switch m {
	case LockStateLocked:
		return "locked"
	case LockStateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

func (m LockState) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// SlotLocked holds one bit per slot, cleared when the slot is locked.
type SlotLocked uint16

func (l SlotLocked) IsLocked(slot int) bool {
	if slot < 0 || slot >= 16 {
		panic("slot locked contains only 16 slots")
	}
	return int(l)&(1<<slot) == 0
}

func (l SlotLocked) MarshalJSON() ([]byte, error) {
	slots := make([]bool, 16)
	for i := range slots {
		slots[i] = l.IsLocked(i)
	}
	return json.Marshal(slots)
}

type ChipOptions struct {
	// Bits1 consists of
	// * PowerOnSelfTest       1
	// * IoProtectionKeyEnable 1
	// * KdfAesEnable          1
	// * AutoClearFirstFail    1
	// * Reserved              4
	Bits1 byte
	// Bits2 consists of
	// * EcdhProtectionBits    2
	// * KdfProtectionBits     2
	// * IoProtectionKey       4
	Bits2 byte
}

type chipOptionsBits struct {
	PowerOnSelfTest        bool `json:"power_on_self_test"`
	IoProtectionKeyEnabled bool `json:"io_protection_key_enabled"`
	KdfAesEnable           bool `json:"kdf_aes_enabled"`
	EcdhProtectionBits     byte `json:"ecdh_protection_bits"`
	KdfProtectionBits      byte `json:"kdf_protection_bits"`
	IoProtectionKey        byte `json:"io_protection_key"`
}

func (co ChipOptions) PowerOnSelfTest() bool        { return co.Bits1&0x01 != 0 }
func (co ChipOptions) IoProtectionKeyEnabled() bool { return co.Bits1&0x02 != 0 }
func (co ChipOptions) KdfAesEnabled() bool          { return co.Bits1&0x04 != 0 }

// EcdhProtectionBits is 0 when the ECDH secret may be output in the clear.
func (co ChipOptions) EcdhProtectionBits() byte { return co.Bits2 & 0x03 }

// KdfProtectionBits is 0 when KDF output may be returned in the clear.
func (co ChipOptions) KdfProtectionBits() byte { return co.Bits2 & 0x0c >> 2 }

func (co ChipOptions) IoProtectionKey() byte { return co.Bits2 & 0xf0 >> 4 }

func (co ChipOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(chipOptionsBits{
		PowerOnSelfTest:        co.PowerOnSelfTest(),
		IoProtectionKeyEnabled: co.IoProtectionKeyEnabled(),
		KdfAesEnable:           co.KdfAesEnabled(),
		EcdhProtectionBits:     co.EcdhProtectionBits(),
		KdfProtectionBits:      co.KdfProtectionBits(),
		IoProtectionKey:        co.IoProtectionKey(),
	})
}

type KeyType uint8

const (
	// KeyTypePrivate is a P256 NIST ECC private key.
	KeyTypePrivate = KeyType(0x04)

	// KeyTypeAES is 2 AES 128-bit symmetric keys.
	KeyTypeAES = KeyType(0x06)

	// KeyTypeOther can contain any kind of data.
	KeyTypeOther = KeyType(0x07)
)

func (k KeyType) String() string {
	switch k {
	case KeyTypePrivate:
		return "private"
	case KeyTypeAES:
		return "aes"
	case KeyTypeOther:
		return "other"
	default:
		return "unknown"
	}
}

func (k KeyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

type KeyConfig struct {
	// Bits1 consists of
	// * Private           1
	// * PubInfo           1
	// * KeyType           3
	// * Lockable          1
	// * ReqRandom         1
	// * ReqAuth           1
	Bits1 byte
	// Bits2 consists of
	// * AuthKey           4
	// * PersistentDisable 1
	// * RFU               1
	// * X509id            2
	Bits2 byte
}

type keyConfigBits struct {
	Private           bool    `json:"private"`
	PubInfo           bool    `json:"pub_info"`
	KeyType           KeyType `json:"key_type"`
	Lockable          bool    `json:"lockable"`
	RequireRandom     bool    `json:"require_random"`
	RequireAuth       bool    `json:"require_auth"`
	AuthKey           byte    `json:"auth_key"`
	PersistentDisable bool    `json:"persistent_disable"`
}

func (kc KeyConfig) Private() bool           { return kc.Bits1&0x01 != 0 }
func (kc KeyConfig) PubInfo() bool           { return kc.Bits1&0x02 != 0 }
func (kc KeyConfig) KeyType() KeyType        { return KeyType(kc.Bits1 & 0x1c >> 2) }
func (kc KeyConfig) Lockable() bool          { return kc.Bits1&0x20 != 0 }
func (kc KeyConfig) RequireRandom() bool     { return kc.Bits1&0x40 != 0 }
func (kc KeyConfig) RequireAuth() bool       { return kc.Bits1&0x80 != 0 }
func (kc KeyConfig) AuthKey() byte           { return kc.Bits2 & 0x0f }
func (kc KeyConfig) PersistentDisable() bool { return kc.Bits2&0x10 != 0 }

func (kc KeyConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(keyConfigBits{
		Private:           kc.Private(),
		PubInfo:           kc.PubInfo(),
		KeyType:           kc.KeyType(),
		Lockable:          kc.Lockable(),
		RequireRandom:     kc.RequireRandom(),
		RequireAuth:       kc.RequireAuth(),
		AuthKey:           kc.AuthKey(),
		PersistentDisable: kc.PersistentDisable(),
	})
}
