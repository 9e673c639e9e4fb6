package atca

import (
	"context"
	"errors"
	"fmt"

	"github.com/northvolt/go-atca/ateccconf"
	"github.com/northvolt/go-atca/codec"
)

// All functions in this file expect the caller to hold the handle.

// Zone is a configuration zone.
type Zone uint8

// Configuration zones.
const (
	ZoneConfig Zone = 0x00
	ZoneOTP    Zone = 0x01
	ZoneData   Zone = 0x02
)

func (z Zone) String() string {
	switch z {
	case ZoneConfig:
		return "config"
	case ZoneOTP:
		return "otp"
	case ZoneData:
		return "data"
	default:
		return "unknown"
	}
}

const (
	zoneSizeConfig = 128
	zoneSizeOTP    = 64
)

func getZoneSize(zone Zone, slot uint16) (int, error) {
	switch zone {
	case ZoneConfig:
		return zoneSizeConfig, nil
	case ZoneOTP:
		return zoneSizeOTP, nil
	case ZoneData:
		switch {
		case slot < 8:
			return 36, nil
		case slot == 8:
			return 416, nil
		case slot < 16:
			return 72, nil
		default:
			return 0, errors.New("atca: invalid slot received")
		}
	default:
		return 0, errors.New("atca: invalid zone received")
	}
}

// getAddr computes the address given the zone, slot, block, and offset.
func getAddr(zone Zone, slot uint16, block uint8, offset uint8) (uint16, error) {
	offset &= 0x07

	switch zone {
	case ZoneConfig, ZoneOTP:
		return uint16(block)<<3 | uint16(offset), nil
	case ZoneData:
		return slot<<3 | uint16(offset) | uint16(block)<<8, nil
	default:
		return 0, errors.New("atca: invalid zone received")
	}
}

// command builds and executes a command.
func (d *Dev) command(ctx context.Context, cmd codec.Command, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return d.execute(ctx, cmd)
}

// commandOutput executes a command and checks the size of its output.
func (d *Dev) commandOutput(ctx context.Context, cmd codec.Command, err error, size int) ([]byte, error) {
	out, err := d.command(ctx, cmd, err)
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, fmt.Errorf("atca: opcode %#02x: unexpected response size %d, want %d", cmd.Opcode, len(out), size)
	}
	return out, nil
}

func (d *Dev) info(ctx context.Context) ([]byte, error) {
	cmd, err := newInfoCommand(infoModeRevision)
	return d.commandOutput(ctx, cmd, err, 4)
}

func (d *Dev) lock(ctx context.Context, zone lockZone, mode lockMode, crc uint16) error {
	cmd, err := newLockCommand(zone, mode, crc)
	_, err = d.command(ctx, cmd, err)
	return err
}

func (d *Dev) readZone(ctx context.Context, zone Zone, slot uint16, block uint8, offset uint8, data []byte) (int, error) {
	if len(data) != blockSize && len(data) != wordSize {
		return 0, &LengthError{Name: "read zone", Got: len(data), Want: "4 or 32"}
	}

	addr, err := getAddr(zone, slot, block, offset)
	if err != nil {
		return 0, err
	}

	cmd, err := newReadCommand(zone, addr, len(data) == blockSize)
	out, err := d.commandOutput(ctx, cmd, err, len(data))
	if err != nil {
		return 0, err
	}
	return copy(data, out), nil
}

// readBytesZone reads len(data) bytes starting at the byte offset.
//
// Full blocks are read where possible. The tail of zones not ending on a
// block boundary is read word by word.
func (d *Dev) readBytesZone(ctx context.Context, zone Zone, slot uint16, offset int, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	zoneSize, err := getZoneSize(zone, slot)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset+len(data) > zoneSize {
		return 0, errors.New("atca: read exceeds zone size")
	}

	var buf [blockSize]byte
	n := 0
	for n < len(data) {
		pos := offset + n
		block := pos / blockSize
		start := block * blockSize
		chunk := buf[:]
		if start+blockSize > zoneSize {
			start = pos - pos%wordSize
			chunk = buf[:wordSize]
		}

		word := (start % blockSize) / wordSize
		if _, err := d.readZone(ctx, zone, slot, uint8(block), uint8(word), chunk); err != nil {
			return n, err
		}
		n += copy(data[n:], chunk[pos-start:])
	}
	return n, nil
}

func (d *Dev) readConfigZone(ctx context.Context) ([]byte, error) {
	buf := make([]byte, zoneSizeConfig)
	n, err := d.readBytesZone(ctx, ZoneConfig, 0, 0, buf)
	return buf[:n], err
}

// serialNumber returns the 9 byte serial number read when the handle was
// opened, reading it from the device if needed.
func (d *Dev) serialNumber(ctx context.Context) ([]byte, error) {
	if d.serial == nil {
		var buf [blockSize]byte
		if _, err := d.readZone(ctx, ZoneConfig, 0, 0, 0, buf[:]); err != nil {
			return nil, err
		}
		var conf ateccconf.Config608
		if err := ateccconf.UnmarshalPartial(buf[:], 0, &conf); err != nil {
			return nil, err
		}
		sn := conf.SerialNumber()
		d.serial = sn[:]
	}
	return append([]byte(nil), d.serial...), nil
}

func (d *Dev) isLocked(ctx context.Context, zone Zone) (bool, error) {
	var buf [wordSize]byte

	// Read the word with the lock bytes
	// (UserExtra, UserExtraAdd, LockValue, LockConfig)
	const block = ateccconf.LockOffsetBlock
	const offset = ateccconf.LockOffsetWord
	if _, err := d.readZone(ctx, ZoneConfig, 0, block, offset, buf[:]); err != nil {
		return false, err
	}

	var conf ateccconf.Config608
	if err := ateccconf.UnmarshalPartial(buf[:], ateccconf.LockOffset, &conf); err != nil {
		return false, err
	}

	switch zone {
	case ZoneConfig:
		return conf.LockConfig.IsLocked(), nil
	case ZoneData:
		return conf.LockValue.IsLocked(), nil
	default:
		return false, errors.New("atca: unknown lock zone")
	}
}

func (d *Dev) slotConfigs(ctx context.Context) ([16]ateccconf.SlotConfig, error) {
	var buf [32]byte
	if _, err := d.readBytesZone(ctx, ZoneConfig, 0, ateccconf.SlotConfigOffset, buf[:]); err != nil {
		return [16]ateccconf.SlotConfig{}, err
	}
	var conf ateccconf.Config608
	if err := ateccconf.UnmarshalPartial(buf[:], ateccconf.SlotConfigOffset, &conf); err != nil {
		return [16]ateccconf.SlotConfig{}, err
	}
	return conf.SlotConfig, nil
}

// genKey executes the GenKey command and returns the 64 byte public key.
func (d *Dev) genKey(ctx context.Context, mode uint8, keyID uint16) ([]byte, error) {
	cmd, err := newGenKeyCommand(mode, keyID)
	return d.commandOutput(ctx, cmd, err, 64)
}

// random executes the random command, which generates a 32 byte random number.
func (d *Dev) random(ctx context.Context) ([]byte, error) {
	cmd, err := newRandomCommand(randomModeUpdateSeed)
	return d.commandOutput(ctx, cmd, err, 32)
}

func (d *Dev) nonceLoad(ctx context.Context, target nonceTarget, numIn []byte) error {
	cmd, err := newNonceLoadCommand(target, numIn)
	_, err = d.command(ctx, cmd, err)
	return err
}

// sign signs the 32 byte digest using the private key in the specified slot.
//
// The digest is loaded into the Message Digest Buffer. Signature format is R
// and S integers in big-endian format, 64 bytes for the P256 curve.
func (d *Dev) sign(ctx context.Context, keyID uint16, digest []byte) ([]byte, error) {
	// make sure RNG has updated its seed
	if _, err := d.random(ctx); err != nil {
		return nil, err
	}
	if err := d.nonceLoad(ctx, nonceTargetMsgDigBuf, digest); err != nil {
		return nil, err
	}
	cmd, err := newSignCommand(signModeExternal, signSourceMsgDigBuf, keyID)
	return d.commandOutput(ctx, cmd, err, 64)
}

// verifyExtern verifies a raw R||S signature of digest against a raw X||Y
// public key.
//
// A signature that does not match returns false and no error.
func (d *Dev) verifyExtern(ctx context.Context, digest, sig, pub []byte) (bool, error) {
	if err := d.nonceLoad(ctx, nonceTargetMsgDigBuf, digest); err != nil {
		return false, err
	}
	cmd, err := newVerifyExternCommand(verifySourceMsgDigBuf, sig, pub)
	if _, err = d.command(ctx, cmd, err); err != nil {
		if errors.Is(err, ErrVerifyMiscompare) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// sha256 hashes msg using the SHA engine of the device.
func (d *Dev) sha256(ctx context.Context, msg []byte) ([]byte, error) {
	cmd, err := newSHACommand(shaModeStart, nil)
	if _, err = d.command(ctx, cmd, err); err != nil {
		return nil, err
	}
	for len(msg) >= shaBlockSize {
		cmd, err := newSHACommand(shaModeUpdate, msg[:shaBlockSize])
		if _, err = d.command(ctx, cmd, err); err != nil {
			return nil, err
		}
		msg = msg[shaBlockSize:]
	}
	cmd, err = newSHACommand(shaModeEnd, msg)
	return d.commandOutput(ctx, cmd, err, 32)
}

func (d *Dev) ecdh(ctx context.Context, mode uint8, keyID uint16, pub []byte) ([]byte, error) {
	cmd, err := newECDHCommand(mode, keyID, pub)
	if mode == ecdhModeOutput {
		return d.commandOutput(ctx, cmd, err, 32)
	}
	_, err = d.command(ctx, cmd, err)
	return nil, err
}

func (d *Dev) kdf(ctx context.Context, p KDFParams) ([]byte, error) {
	cmd, err := newKDFCommand(p)
	switch p.Target {
	case KDFTargetOutput:
		size := 32
		if p.Algorithm == KDFAlgAES {
			size = 16
		}
		return d.commandOutput(ctx, cmd, err, size)
	case KDFTargetOutputEnc:
		return d.commandOutput(ctx, cmd, err, 64)
	default:
		_, err = d.command(ctx, cmd, err)
		return nil, err
	}
}

func (d *Dev) aes(ctx context.Context, mode aesMode, keyID uint16, keyBlock uint8, data []byte) ([]byte, error) {
	cmd, err := newAESCommand(mode, keyID, keyBlock, data)
	return d.commandOutput(ctx, cmd, err, aesBlockSize)
}

func (d *Dev) write(ctx context.Context, zone Zone, addr uint16, data []byte) error {
	cmd, err := newWriteCommand(zone, addr, data)
	_, err = d.command(ctx, cmd, err)
	return err
}

func (d *Dev) writeZone(ctx context.Context, zone Zone, slot uint16, block uint8, offset uint8, data []byte) error {
	addr, err := getAddr(zone, slot, block, offset)
	if err != nil {
		return err
	}
	return d.write(ctx, zone, addr, data)
}

// writeBytesZone writes data starting at the byte offset.
//
// Aligned full blocks are written block-wise, the rest word by word. The word
// holding UserExtra, UserExtraAdd and the lock bytes is skipped; it can only
// be changed by UpdateExtra and Lock.
func (d *Dev) writeBytesZone(ctx context.Context, zone Zone, slot uint16, offset int, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if offset%wordSize != 0 {
		return 0, errors.New("atca: write offset not word aligned")
	}
	if len(data)%wordSize != 0 {
		return 0, &LengthError{Name: "write", Got: len(data), Want: "a multiple of 4"}
	}
	zoneSize, err := getZoneSize(zone, slot)
	if err != nil {
		return 0, err
	}
	if offset+len(data) > zoneSize {
		return 0, errors.New("atca: write exceeds zone size")
	}

	n := 0
	for n < len(data) {
		pos := offset + n
		block := uint8(pos / blockSize)
		word := uint8((pos % blockSize) / wordSize)

		inLockBlock := zone == ZoneConfig && block == ateccconf.LockOffsetBlock
		inLockWord := inLockBlock && word == ateccconf.LockOffsetWord

		if word == 0 && len(data)-n >= blockSize && !inLockBlock {
			if err := d.writeZone(ctx, zone, slot, block, 0, data[n:n+blockSize]); err != nil {
				return n, err
			}
			n += blockSize
			continue
		}
		if !inLockWord {
			if err := d.writeZone(ctx, zone, slot, block, word, data[n:n+wordSize]); err != nil {
				return n, err
			}
		}
		n += wordSize
	}
	return n, nil
}

// writeConfigZone writes all writable bytes of the configuration zone,
// followed by UserExtra and UserExtraAdd.
func (d *Dev) writeConfigZone(ctx context.Context, data []byte) (int, error) {
	// The first 16 bytes are skipped; be strict so no one misses that.
	if err := checkLength("config", data, zoneSizeConfig); err != nil {
		return 0, err
	}

	const offset = ateccconf.PermanentOffset608
	n, err := d.writeBytesZone(ctx, ZoneConfig, 0, offset, data[offset:])
	if err != nil {
		return n, err
	}

	// This may fail if either value is already non-zero.
	if err := d.updateExtra(ctx, updateModeUserExtra, data[ateccconf.UserExtraOffset]); err != nil {
		return n, err
	}
	return n, d.updateExtra(ctx, updateModeUserExtraAdd, data[ateccconf.UserExtraOffset+1])
}

// updateExtra updates one of the two extra bytes within the configuration
// zone (bytes 84 and 85).
func (d *Dev) updateExtra(ctx context.Context, mode updateMode, newValue byte) error {
	cmd, err := newUpdateExtraCommand(mode, newValue)
	_, err = d.command(ctx, cmd, err)
	return err
}
