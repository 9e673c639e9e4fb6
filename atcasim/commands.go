package atcasim

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/ateccconf"
	"github.com/northvolt/go-atca/codec"
	"golang.org/x/crypto/hkdf"
)

const (
	opInfo        = 0x30
	opLock        = 0x17
	opNonce       = 0x16
	opRandom      = 0x1b
	opRead        = 0x02
	opSign        = 0x41
	opUpdateExtra = 0x20
	opVerify      = 0x45
	opWrite       = 0x12
	opGenKey      = 0x40
	opECDH        = 0x43
	opSHA         = 0x47
	opAES         = 0x51
	opKDF         = 0x56
)

const (
	statusOK    = atca.StatusSuccess
	statusParse = atca.StatusParse
	statusExec  = atca.StatusExecution
	statusMiss  = atca.StatusVerifyMiscompare
)

// execute runs cmd and returns its output, or nil for status-only results.
func (c *Chip) execute(cmd codec.Command) ([]byte, uint8) {
	switch cmd.Opcode {
	case opInfo:
		if cmd.Param1 != 0 {
			return nil, statusParse
		}
		return append([]byte(nil), Revision[:]...), statusOK
	case opRead:
		return c.read(cmd)
	case opWrite:
		return nil, c.write(cmd)
	case opLock:
		return nil, c.lock(cmd)
	case opUpdateExtra:
		return nil, c.updateExtra(cmd)
	case opRandom:
		return c.random()
	case opNonce:
		return c.nonce(cmd)
	case opGenKey:
		return c.genKey(cmd)
	case opSign:
		return c.sign(cmd)
	case opVerify:
		return nil, c.verify(cmd)
	case opSHA:
		return c.hash(cmd)
	case opECDH:
		return c.ecdh(cmd)
	case opKDF:
		return c.kdf(cmd)
	case opAES:
		return c.aes(cmd)
	default:
		return nil, statusParse
	}
}

// zoneBytes returns the addressed word or block of a zone.
func (c *Chip) zoneBytes(param1 uint8, addr uint16) ([]byte, bool) {
	size := 4
	if param1&0x80 != 0 {
		size = 32
	}

	var zone []byte
	var offset int
	switch atca.Zone(param1 & 0x03) {
	case atca.ZoneConfig:
		zone = c.config[:]
		offset = int(addr>>3&0x1f)*32 + int(addr&0x07)*4
	case atca.ZoneOTP:
		zone = c.otp[:]
		offset = int(addr>>3&0x1f)*32 + int(addr&0x07)*4
	case atca.ZoneData:
		slot := addr >> 3 & 0x0f
		zone = c.slots[slot]
		offset = int(addr>>8)*32 + int(addr&0x07)*4
	default:
		return nil, false
	}
	if offset+size > len(zone) {
		return nil, false
	}
	return zone[offset : offset+size], true
}

func (c *Chip) read(cmd codec.Command) ([]byte, uint8) {
	b, ok := c.zoneBytes(cmd.Param1, cmd.Param2)
	if !ok {
		return nil, statusParse
	}
	return append([]byte(nil), b...), statusOK
}

func (c *Chip) write(cmd codec.Command) uint8 {
	b, ok := c.zoneBytes(cmd.Param1, cmd.Param2)
	if !ok || len(b) != len(cmd.Data) {
		return statusParse
	}
	if atca.Zone(cmd.Param1&0x03) == atca.ZoneConfig {
		offset := int(cmd.Param2>>3&0x1f)*32 + int(cmd.Param2&0x07)*4
		if c.configLocked() || offset < ateccconf.PermanentOffset608 {
			return statusExec
		}
		// UserExtra and the lock bytes are only changed by UpdateExtra and Lock.
		if offset < ateccconf.LockOffset+4 && offset+len(b) > ateccconf.LockOffset {
			return statusExec
		}
	}
	copy(b, cmd.Data)
	return statusOK
}

func (c *Chip) lock(cmd codec.Command) uint8 {
	switch cmd.Param1 & 0x03 {
	case 0x00:
		if c.configLocked() {
			return statusExec
		}
		c.config[ateccconf.LockOffset+3] = byte(ateccconf.LockStateLocked)
	case 0x01:
		if c.dataLocked() || !c.configLocked() {
			return statusExec
		}
		c.config[ateccconf.LockOffset+2] = byte(ateccconf.LockStateLocked)
	case 0x02:
		slot := cmd.Param1 >> 2 & 0x0f
		c.config[88+slot/8] &^= 1 << (slot % 8)
	default:
		return statusParse
	}
	return statusOK
}

func (c *Chip) updateExtra(cmd codec.Command) uint8 {
	var i int
	switch cmd.Param1 {
	case 0x00:
		i = ateccconf.UserExtraOffset
	case 0x01:
		i = ateccconf.UserExtraOffset + 1
	default:
		return statusParse
	}
	if c.config[i] != 0 {
		return statusExec
	}
	c.config[i] = byte(cmd.Param2)
	return statusOK
}

func (c *Chip) random() ([]byte, uint8) {
	b := make([]byte, 32)
	if _, err := c.rand.Read(b); err != nil {
		return nil, statusExec
	}
	return b, statusOK
}

func (c *Chip) nonce(cmd codec.Command) ([]byte, uint8) {
	mode := cmd.Param1 & 0x03
	if mode != 0x03 {
		// Random nonce: TempKey = SHA-256(RandOut || NumIn || opcode || mode || 0x00)
		if len(cmd.Data) != 20 {
			return nil, statusParse
		}
		rnd, status := c.random()
		if status != statusOK {
			return nil, status
		}
		h := sha256.New()
		h.Write(rnd)
		h.Write(cmd.Data)
		h.Write([]byte{opNonce, mode, 0x00})
		c.tempKey = [64]byte{}
		copy(c.tempKey[:], h.Sum(nil))
		c.tempValid = true
		return rnd, statusOK
	}

	size := 32
	if cmd.Param1&0x20 != 0 {
		size = 64
	}
	if len(cmd.Data) != size {
		return nil, statusParse
	}
	switch cmd.Param1 & 0xc0 {
	case 0x00:
		c.tempKey = [64]byte{}
		copy(c.tempKey[:], cmd.Data)
		c.tempValid = true
	case 0x40:
		c.msgDigBuf = [64]byte{}
		copy(c.msgDigBuf[:], cmd.Data)
	case 0x80:
		copy(c.altKeyBuf[:], cmd.Data)
	default:
		return nil, statusParse
	}
	return nil, statusOK
}

func (c *Chip) slotKey(keyID uint16) (*ecdsa.PrivateKey, uint8) {
	if keyID > 15 {
		return nil, statusParse
	}
	if c.keys[keyID] == nil {
		return nil, statusExec
	}
	return c.keys[keyID], statusOK
}

func rawPublic(pub *ecdsa.PublicKey) []byte {
	b := make([]byte, 64)
	pub.X.FillBytes(b[:32])
	pub.Y.FillBytes(b[32:])
	return b
}

func (c *Chip) genKey(cmd codec.Command) ([]byte, uint8) {
	switch cmd.Param1 {
	case 0x04:
		if cmd.Param2 > 15 {
			return nil, statusParse
		}
		k, err := ecdsa.GenerateKey(elliptic.P256(), c.rand)
		if err != nil {
			return nil, statusExec
		}
		c.keys[cmd.Param2] = k
		return rawPublic(&k.PublicKey), statusOK
	case 0x00:
		k, status := c.slotKey(cmd.Param2)
		if status != statusOK {
			return nil, status
		}
		return rawPublic(&k.PublicKey), statusOK
	default:
		return nil, statusParse
	}
}

// message returns the 32 byte message for Sign and Verify.
func (c *Chip) message(source uint8) ([]byte, uint8) {
	if source&0x20 != 0 {
		return c.msgDigBuf[:32], statusOK
	}
	if !c.tempValid {
		return nil, statusExec
	}
	return c.tempKey[:32], statusOK
}

func (c *Chip) sign(cmd codec.Command) ([]byte, uint8) {
	if cmd.Param1&0x80 == 0 {
		return nil, statusParse
	}
	k, status := c.slotKey(cmd.Param2)
	if status != statusOK {
		return nil, status
	}
	digest, status := c.message(cmd.Param1)
	if status != statusOK {
		return nil, status
	}
	r, s, err := ecdsa.Sign(c.rand, k, digest)
	if err != nil {
		return nil, statusExec
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, statusOK
}

func (c *Chip) verify(cmd codec.Command) uint8 {
	if cmd.Param1&0x07 != 0x02 || cmd.Param2 != 0x0004 || len(cmd.Data) != 128 {
		return statusParse
	}
	digest, status := c.message(cmd.Param1)
	if status != statusOK {
		return status
	}

	var r, s, x, y big.Int
	r.SetBytes(cmd.Data[:32])
	s.SetBytes(cmd.Data[32:64])
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     x.SetBytes(cmd.Data[64:96]),
		Y:     y.SetBytes(cmd.Data[96:128]),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return statusExec
	}
	if !ecdsa.Verify(pub, digest, &r, &s) {
		return statusMiss
	}
	return statusOK
}

func (c *Chip) hash(cmd codec.Command) ([]byte, uint8) {
	switch cmd.Param1 & 0x07 {
	case 0x00:
		c.sha = sha256.New()
		return nil, statusOK
	case 0x01:
		if c.sha == nil {
			return nil, statusExec
		}
		if len(cmd.Data) != 64 {
			return nil, statusParse
		}
		c.sha.Write(cmd.Data)
		return nil, statusOK
	case 0x02:
		if c.sha == nil {
			return nil, statusExec
		}
		if len(cmd.Data) > 63 || int(cmd.Param2) != len(cmd.Data) {
			return nil, statusParse
		}
		c.sha.Write(cmd.Data)
		sum := c.sha.Sum(nil)
		c.sha = nil
		return sum, statusOK
	default:
		return nil, statusParse
	}
}

func (c *Chip) ecdh(cmd codec.Command) ([]byte, uint8) {
	if len(cmd.Data) != 64 {
		return nil, statusParse
	}
	k, status := c.slotKey(cmd.Param2)
	if status != statusOK {
		return nil, status
	}
	priv, err := k.ECDH()
	if err != nil {
		return nil, statusExec
	}
	pub, err := ecdh.P256().NewPublicKey(append([]byte{0x04}, cmd.Data...))
	if err != nil {
		return nil, statusExec
	}
	pms, err := priv.ECDH(pub)
	if err != nil {
		return nil, statusExec
	}

	switch cmd.Param1 & 0x0e {
	case 0x0c:
		return pms, statusOK
	case 0x08:
		c.tempKey = [64]byte{}
		copy(c.tempKey[:], pms)
		c.tempValid = true
		return nil, statusOK
	default:
		return nil, statusParse
	}
}

func (c *Chip) kdfKey(source uint8, keyID uint16) ([]byte, uint8) {
	switch source {
	case 0x00:
		if !c.tempValid {
			return nil, statusExec
		}
		return c.tempKey[:32], statusOK
	case 0x01:
		if !c.tempValid {
			return nil, statusExec
		}
		return c.tempKey[32:], statusOK
	case 0x02:
		if keyID > 15 {
			return nil, statusParse
		}
		return c.slots[keyID][:32], statusOK
	default:
		return c.altKeyBuf[:], statusOK
	}
}

func (c *Chip) kdf(cmd codec.Command) ([]byte, uint8) {
	if len(cmd.Data) < 4 {
		return nil, statusParse
	}
	details := binary.LittleEndian.Uint32(cmd.Data[:4])
	input := cmd.Data[4:]

	key, status := c.kdfKey(cmd.Param1&0x03, cmd.Param2&0xff)
	if status != statusOK {
		return nil, status
	}

	var out []byte
	switch atca.KDFAlgorithm(cmd.Param1 & 0x60) {
	case atca.KDFAlgHKDF:
		if details&atca.KDFHKDFZeroKey != 0 {
			key = make([]byte, 32)
		}
		var msg []byte
		switch details & 0x03 {
		case atca.KDFHKDFMsgLocInput:
			size := int(details >> 24)
			if size > len(input) {
				return nil, statusParse
			}
			msg = input[:size]
		case atca.KDFHKDFMsgLocTempKey:
			msg = c.tempKey[:32]
		default:
			return nil, statusParse
		}
		// The device computes HMAC-SHA256 keyed with the source key.
		out = hkdf.Extract(sha256.New, msg, key)
	case atca.KDFAlgAES:
		if len(input) != 16 {
			return nil, statusParse
		}
		block, err := aes.NewCipher(key[:16])
		if err != nil {
			return nil, statusExec
		}
		out = make([]byte, 16)
		block.Encrypt(out, input)
	default:
		return nil, statusParse
	}

	targetID := cmd.Param2 >> 8
	switch atca.KDFTarget(cmd.Param1 & 0x1c) {
	case atca.KDFTargetTempKey:
		c.tempKey = [64]byte{}
		copy(c.tempKey[:], out)
		c.tempValid = true
	case atca.KDFTargetTempKeyUp:
		copy(c.tempKey[32:], out)
	case atca.KDFTargetSlot:
		if targetID > 15 {
			return nil, statusParse
		}
		copy(c.slots[targetID], out)
	case atca.KDFTargetAltKeyBuf:
		copy(c.altKeyBuf[:], out)
	case atca.KDFTargetOutput:
		return out, statusOK
	default:
		return nil, statusParse
	}
	return nil, statusOK
}

func (c *Chip) aesKey(keyID uint16, keyBlock uint8) ([]byte, uint8) {
	if keyID == atca.KeyIDTempKey {
		if !c.tempValid || keyBlock > 1 {
			return nil, statusExec
		}
		return c.tempKey[keyBlock*16 : keyBlock*16+16], statusOK
	}
	if keyID > 15 {
		return nil, statusParse
	}
	slot := c.slots[keyID]
	if int(keyBlock)*16+16 > len(slot) {
		return nil, statusParse
	}
	return slot[keyBlock*16 : keyBlock*16+16], statusOK
}

func (c *Chip) aes(cmd codec.Command) ([]byte, uint8) {
	if c.config[13]&0x01 == 0 {
		return nil, statusExec
	}
	mode := cmd.Param1 & 0x07
	if mode == 0x03 {
		if len(cmd.Data) != 32 {
			return nil, statusParse
		}
		var h, x [16]byte
		copy(h[:], cmd.Data[:16])
		copy(x[:], cmd.Data[16:])
		z := gfmul(h, x)
		return z[:], statusOK
	}

	if len(cmd.Data) != 16 {
		return nil, statusParse
	}
	key, status := c.aesKey(cmd.Param2, cmd.Param1>>6)
	if status != statusOK {
		return nil, status
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, statusExec
	}
	out := make([]byte, 16)
	switch mode {
	case 0x00:
		block.Encrypt(out, cmd.Data)
	case 0x01:
		block.Decrypt(out, cmd.Data)
	default:
		return nil, statusParse
	}
	return out, statusOK
}

// gfmul multiplies x and y in GF(2^128) with the bit order used by GCM.
func gfmul(x, y [16]byte) [16]byte {
	var z [16]byte
	v := y
	for i := 0; i < 128; i++ {
		if x[i/8]&(0x80>>(i%8)) != 0 {
			for j := range z {
				z[j] ^= v[j]
			}
		}
		lsb := v[15] & 1
		for j := 15; j > 0; j-- {
			v[j] = v[j]>>1 | v[j-1]<<7
		}
		v[0] >>= 1
		if lsb == 1 {
			v[0] ^= 0xe1
		}
	}
	return z
}
