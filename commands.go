package atca

import (
	"encoding/binary"

	"github.com/northvolt/go-atca/codec"
)

// General device command opcodes
const (
	opCheckMac    = 0x28 // CheckMac command op-code
	opDeriveKey   = 0x1c // DeriveKey command op-code
	opInfo        = 0x30 // Info command op-code
	opGenDig      = 0x15 // GenDig command op-code
	opGenKey      = 0x40 // GenKey command op-code
	opHMAC        = 0x11 // HMAC command op-code
	opLock        = 0x17 // Lock command op-code
	opMAC         = 0x08 // MAC command op-code
	opNonce       = 0x16 // Nonce command op-code
	opPause       = 0x01 // Pause command op-code
	opPrivWrite   = 0x46 // PrivWrite command op-code
	opRandom      = 0x1b // Random command op-code
	opRead        = 0x02 // Read command op-code
	opSign        = 0x41 // Sign command op-code
	opUpdateExtra = 0x20 // UpdateExtra command op-code
	opVerify      = 0x45 // Verify command op-code
	opWrite       = 0x12 // Write command op-code
	opECDH        = 0x43 // ECDH command op-code
	opCounter     = 0x24 // Counter command op-code
	opDelete      = 0x13 // Delete command op-code
	opSHA         = 0x47 // SHA command op-code
	opAES         = 0x51 // AES command op-code
	opKDF         = 0x56 // KDF command op-code
	opSecureBoot  = 0x80 // Secure Boot command op-code
	opSelfTest    = 0x77 // Self test command op-code
)

const (
	// blockSize is the size of a block
	blockSize = 32
	// wordSize is the size of a word
	wordSize = 4
)

// KeyIDTempKey selects TempKey instead of a slot for AES and KDF.
const KeyIDTempKey = 0xffff

type infoMode uint8

const (
	infoModeRevision infoMode = 0x0
)

func newInfoCommand(mode infoMode) (codec.Command, error) {
	return codec.NewCommand(opInfo, uint8(mode), 0, nil)
}

type lockZone uint8

const (
	lockZoneConfig   = lockZone(0x00)
	lockZoneData     = lockZone(0x01)
	lockZoneDataSlot = lockZone(0x02)
)

type lockMode uint8

const (
	lockModeNoCRC = lockMode(0x80)
)

func newLockCommand(zone lockZone, mode lockMode, crc uint16) (codec.Command, error) {
	return codec.NewCommand(opLock, uint8(zone)|uint8(mode), crc, nil)
}

// zoneReadWrite32 is the zone bit 7 set: access 32 bytes, otherwise 4 bytes.
const zoneReadWrite32 = 0x80

func newReadCommand(zone Zone, addr uint16, block bool) (codec.Command, error) {
	param1 := uint8(zone)
	if block {
		param1 |= zoneReadWrite32
	}
	return codec.NewCommand(opRead, param1, addr, nil)
}

const (
	genKeyModePrivate = 0x04 // generate private key
	genKeyModePublic  = 0x00 // calculate public key
)

func newGenKeyCommand(mode uint8, keyID uint16) (codec.Command, error) {
	return codec.NewCommand(opGenKey, mode, keyID, nil)
}

type randomMode uint8

const (
	randomModeUpdateSeed randomMode = 0x0
)

func newRandomCommand(mode randomMode) (codec.Command, error) {
	return codec.NewCommand(opRandom, uint8(mode), 0x0, nil)
}

type nonceTarget uint8

const (
	nonceTargetTempKey   nonceTarget = 0x0  // TempKey
	nonceTargetMsgDigBuf nonceTarget = 0x40 // Message Digest Buffer
	nonceTargetAltKeyBuf nonceTarget = 0x80 // Alternate Key Buffer
)

const (
	nonceModePassthrough = 0x03 // pass-through

	nonceModeInputLen64 = 0x20 // input size is 64 bytes
)

// newNonceLoadCommand loads numIn verbatim into target.
func newNonceLoadCommand(target nonceTarget, numIn []byte) (codec.Command, error) {
	param1 := uint8(nonceModePassthrough) | uint8(target)
	switch len(numIn) {
	case 32:
	case 64:
		param1 |= nonceModeInputLen64
	default:
		return codec.Command{}, &LengthError{Name: "nonce", Got: len(numIn), Want: "32 or 64"}
	}
	return codec.NewCommand(opNonce, param1, 0, numIn)
}

type signMode uint8

const (
	signModeExternal signMode = 0x80 // Sign mode bit 7: external
)

type signSource uint8

const (
	signSourceTempKey   signSource = 0x00 // Sign mode message source is TempKey
	signSourceMsgDigBuf signSource = 0x20 // Sign mode message source is the Message Digest Buffer
)

func newSignCommand(mode signMode, source signSource, keyID uint16) (codec.Command, error) {
	return codec.NewCommand(opSign, uint8(mode)|uint8(source), keyID, nil)
}

type verifyMode uint8

const (
	verifyModeExternal verifyMode = 0x02 // external
)

const verifyKeyP256 = 0x0004

type verifySource uint8

const (
	verifySourceTempKey   verifySource = 0x00 // TempKey
	verifySourceMsgDigBuf verifySource = 0x20 // Message Digest Buffer
)

func newVerifyExternCommand(source verifySource, sig, pub []byte) (codec.Command, error) {
	if err := checkLength("signature", sig, 64); err != nil {
		return codec.Command{}, err
	}
	if err := checkLength("public key", pub, 64); err != nil {
		return codec.Command{}, err
	}
	data := make([]byte, 0, 128)
	data = append(data, sig...)
	data = append(data, pub...)
	return codec.NewCommand(opVerify, uint8(verifyModeExternal)|uint8(source), verifyKeyP256, data)
}

func newWriteCommand(zone Zone, addr uint16, value []byte) (codec.Command, error) {
	param1 := uint8(zone)
	switch len(value) {
	case wordSize:
	case blockSize:
		param1 |= zoneReadWrite32
	default:
		return codec.Command{}, &LengthError{Name: "write", Got: len(value), Want: "4 or 32"}
	}
	return codec.NewCommand(opWrite, param1, addr, value)
}

type updateMode uint8

const (
	updateModeUserExtra    updateMode = 0x00
	updateModeUserExtraAdd updateMode = 0x01
)

func newUpdateExtraCommand(mode updateMode, newValue byte) (codec.Command, error) {
	return codec.NewCommand(opUpdateExtra, uint8(mode), uint16(newValue), nil)
}

type shaMode uint8

const (
	shaModeStart  shaMode = 0x00
	shaModeUpdate shaMode = 0x01
	shaModeEnd    shaMode = 0x02
)

// shaBlockSize is the input size of a SHA update.
const shaBlockSize = 64

func newSHACommand(mode shaMode, msg []byte) (codec.Command, error) {
	if mode == shaModeUpdate && len(msg) != shaBlockSize {
		return codec.Command{}, &LengthError{Name: "sha block", Got: len(msg), Want: "64"}
	}
	if len(msg) > shaBlockSize {
		return codec.Command{}, &LengthError{Name: "sha message", Got: len(msg), Want: "at most 64"}
	}
	return codec.NewCommand(opSHA, uint8(mode), uint16(len(msg)), msg)
}

const (
	ecdhModeTempKey = 0x08 // write the shared secret to TempKey
	ecdhModeOutput  = 0x0c // return the shared secret in clear
)

func newECDHCommand(mode uint8, keyID uint16, pub []byte) (codec.Command, error) {
	if err := checkLength("public key", pub, 64); err != nil {
		return codec.Command{}, err
	}
	return codec.NewCommand(opECDH, mode, keyID, pub)
}

func newKDFCommand(p KDFParams) (codec.Command, error) {
	if len(p.Message) > kdfMessageMax {
		return codec.Command{}, &LengthError{Name: "kdf message", Got: len(p.Message), Want: "at most 128"}
	}
	param1 := uint8(p.Algorithm) | uint8(p.Source) | uint8(p.Target)
	param2 := p.SourceKeyID&0xff | p.TargetKeyID<<8

	if p.Algorithm == KDFAlgAES && len(p.Message) != aesBlockSize {
		return codec.Command{}, &LengthError{Name: "kdf message", Got: len(p.Message), Want: "16"}
	}

	// The message size is carried in the most significant byte of details
	// for PRF and HKDF.
	details := p.Details
	if p.Algorithm != KDFAlgAES && details>>24 == 0 {
		details |= uint32(len(p.Message)) << 24
	}
	data := binary.LittleEndian.AppendUint32(nil, details)
	data = append(data, p.Message...)
	return codec.NewCommand(opKDF, param1, param2, data)
}

type aesMode uint8

const (
	aesModeEncrypt aesMode = 0x00
	aesModeDecrypt aesMode = 0x01
	aesModeGFM     aesMode = 0x03
)

func newAESCommand(mode aesMode, keyID uint16, keyBlock uint8, data []byte) (codec.Command, error) {
	return codec.NewCommand(opAES, uint8(mode)|keyBlock<<6, keyID, data)
}
