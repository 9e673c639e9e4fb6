package atca

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"io"
	"math/big"

	"github.com/northvolt/go-atca/ateccconf"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Revision gets the device revision.
//
// This information is hard coded into the device. Use it to determine the
// version of the device.
func (d *Dev) Revision(ctx context.Context) ([]byte, error) {
	var rev []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		rev, err = d.info(ctx)
		return err
	})
	return rev, err
}

// Info is the same as Revision.
func (d *Dev) Info(ctx context.Context) ([]byte, error) {
	return d.Revision(ctx)
}

// SerialNumber returns the serial number of the device.
//
// The returned serial number will be 9 bytes.
func (d *Dev) SerialNumber(ctx context.Context) ([]byte, error) {
	var sn []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		sn, err = d.serialNumber(ctx)
		return err
	})
	return sn, err
}

// ReadZone reads a single word or block, depending on the size of b.
func (d *Dev) ReadZone(ctx context.Context, zone Zone, slot uint16, block uint8, offset uint8, b []byte) (int, error) {
	var n int
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = d.readZone(ctx, zone, slot, block, offset, b)
		return err
	})
	return n, err
}

// ReadBytesZone reads len(b) bytes from zone starting at the byte offset.
func (d *Dev) ReadBytesZone(ctx context.Context, zone Zone, slot uint16, offset int, b []byte) (int, error) {
	var n int
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = d.readBytesZone(ctx, zone, slot, offset, b)
		return err
	})
	return n, err
}

// ReadConfigZone reads the complete device configuration zone.
func (d *Dev) ReadConfigZone(ctx context.Context) ([]byte, error) {
	var b []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = d.readConfigZone(ctx)
		return err
	})
	return b, err
}

// SlotConfigs returns the configuration of all 16 slots.
func (d *Dev) SlotConfigs(ctx context.Context) ([16]ateccconf.SlotConfig, error) {
	var sc [16]ateccconf.SlotConfig
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		sc, err = d.slotConfigs(ctx)
		return err
	})
	return sc, err
}

// IsConfigZoneLocked returns true if the configuration zone is locked.
//
// This is the same as calling IsLocked(ctx, ZoneConfig).
func (d *Dev) IsConfigZoneLocked(ctx context.Context) (bool, error) {
	return d.IsLocked(ctx, ZoneConfig)
}

// IsDataZoneLocked returns true if the data zone is locked.
//
// This is the same as calling IsLocked(ctx, ZoneData).
func (d *Dev) IsDataZoneLocked(ctx context.Context) (bool, error) {
	return d.IsLocked(ctx, ZoneData)
}

func (d *Dev) IsLocked(ctx context.Context, zone Zone) (bool, error) {
	var locked bool
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		locked, err = d.isLocked(ctx, zone)
		return err
	})
	return locked, err
}

func (d *Dev) LockConfigZone(ctx context.Context) error {
	return d.transaction(ctx, func(ctx context.Context) error {
		return d.lock(ctx, lockZoneConfig, lockModeNoCRC, 0)
	})
}

func (d *Dev) LockDataZone(ctx context.Context) error {
	return d.transaction(ctx, func(ctx context.Context) error {
		return d.lock(ctx, lockZoneData, lockModeNoCRC, 0)
	})
}

func (d *Dev) LockDataSlot(ctx context.Context, slot uint8) error {
	if slot > 15 {
		return errors.New("atca: invalid slot")
	}
	return d.transaction(ctx, func(ctx context.Context) error {
		return d.lock(ctx, lockZoneDataSlot, lockMode(slot<<2), 0)
	})
}

// WriteBytesZone writes the data into the config, OTP or data zone.
//
// If ZoneConfig is unlocked, it may be written to. If ZoneData is unlocked,
// 32-byte writes are allowed to slots and OTP.
//
// Offset and length must be multiples of 4 or the write will fail.
func (d *Dev) WriteBytesZone(ctx context.Context, zone Zone, slot uint16, offset int, data []byte) error {
	return d.transaction(ctx, func(ctx context.Context) error {
		_, err := d.writeBytesZone(ctx, zone, slot, offset, data)
		return err
	})
}

// WriteConfigZone writes the data into the config zone.
//
// This method works similar to how WriteBytesZone work except that it also
// writes the UserExtra bytes if all other data was written successfully.
//
// Warning: if UserExtra or UserExtraAdd is not 0x55 ('U'), these values will
// be permanent and the corresponding zones will be locked. If so, this is
// irreversible!
func (d *Dev) WriteConfigZone(ctx context.Context, data []byte) error {
	if err := checkLength("config", data, zoneSizeConfig); err != nil {
		return err
	}
	return d.transaction(ctx, func(ctx context.Context) error {
		_, err := d.writeConfigZone(ctx, data)
		return err
	})
}

// Random returns a random reader.
//
// The underlying reader reads 32 byte random data from the device at a time.
//
// Use io.ReadFull to fill a buffer.
func (d *Dev) Random(ctx context.Context) io.Reader {
	return &randReader{ctx, d}
}

// RandomBytes returns 32 random bytes generated by the device.
func (d *Dev) RandomBytes(ctx context.Context) ([32]byte, error) {
	var r [32]byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.random(ctx)
		copy(r[:], b)
		return err
	})
	return r, err
}

// SHA256 computes the SHA-256 digest of msg on the device.
func (d *Dev) SHA256(ctx context.Context, msg []byte) ([32]byte, error) {
	var digest [32]byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.sha256(ctx, msg)
		copy(digest[:], b)
		return err
	})
	return digest, err
}

// GenerateKey generates a new random private key in slot and returns its
// public key.
func (d *Dev) GenerateKey(ctx context.Context, slot uint16) (*ecdsa.PublicKey, error) {
	return d.genKeyPublic(ctx, genKeyModePrivate, slot)
}

// PublicKey returns the public key of the private key in slot.
func (d *Dev) PublicKey(ctx context.Context, slot uint16) (*ecdsa.PublicKey, error) {
	return d.genKeyPublic(ctx, genKeyModePublic, slot)
}

func (d *Dev) genKeyPublic(ctx context.Context, mode uint8, slot uint16) (*ecdsa.PublicKey, error) {
	var pk []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		pk, err = d.genKey(ctx, mode, slot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return publicKeyFromRaw(pk), nil
}

// SignDigest signs a 32 byte digest using the private key in slot.
//
// The signature is returned as R and S, each 32 bytes big-endian.
func (d *Dev) SignDigest(ctx context.Context, slot uint16, digest []byte) ([64]byte, error) {
	var sig [64]byte
	if err := checkLength("digest", digest, 32); err != nil {
		return sig, err
	}
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.sign(ctx, slot, digest)
		copy(sig[:], b)
		return err
	})
	return sig, err
}

// Sign signs the digest using the private key in the specified slot.
//
// It returns the ASN.1 encoded signature.
func (d *Dev) Sign(ctx context.Context, slot uint16, digest []byte) ([]byte, error) {
	sig, err := d.SignDigest(ctx, slot, digest)
	if err != nil {
		return nil, err
	}

	var r, s big.Int
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r.SetBytes(sig[:32]))
		b.AddASN1BigInt(s.SetBytes(sig[32:]))
	})
	return b.Bytes()
}

// PrivateKey returns a crypto.Signer for the private key in slot.
func (d *Dev) PrivateKey(ctx context.Context, slot uint16) (crypto.Signer, error) {
	pub, err := d.PublicKey(ctx, slot)
	if err != nil {
		return nil, err
	}
	return &privateKey{ctx, pub, d, slot}, nil
}

// VerifyExtern verifies a signature using external input.
//
// The signature provided is expected to be in ASN.1 format. A signature that
// does not match returns false and no error.
func (d *Dev) VerifyExtern(ctx context.Context, digest, sig []byte, pub crypto.PublicKey) (bool, error) {
	if err := checkLength("digest", digest, 32); err != nil {
		return false, err
	}
	var (
		r, s  = big.Int{}, big.Int{}
		inner cryptobyte.String
	)
	input := cryptobyte.String(sig)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(&r) ||
		!inner.ReadASN1Integer(&s) ||
		!inner.Empty() {
		return false, errors.New("atca: invalid signature")
	}
	if r.BitLen() > 256 || s.BitLen() > 256 {
		return false, errors.New("atca: invalid signature")
	}
	var signature [64]byte
	r.FillBytes(signature[:32])
	s.FillBytes(signature[32:])

	pk, err := rawPublicKey(pub)
	if err != nil {
		return false, err
	}

	var ok bool
	err = d.transaction(ctx, func(ctx context.Context) error {
		var err error
		ok, err = d.verifyExtern(ctx, digest, signature[:], pk)
		return err
	})
	return ok, err
}

// ECDH computes the premaster secret between the private key in slot and the
// 64 byte public key pub (X and Y).
func (d *Dev) ECDH(ctx context.Context, slot uint16, pub []byte) ([32]byte, error) {
	var pms [32]byte
	if err := checkLength("public key", pub, 64); err != nil {
		return pms, err
	}
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.ecdh(ctx, ecdhModeOutput, slot, pub)
		copy(pms[:], b)
		return err
	})
	return pms, err
}

// ECDHTempKey computes the premaster secret like ECDH but leaves it in
// TempKey, where it can be used by KDF and AES.
func (d *Dev) ECDHTempKey(ctx context.Context, slot uint16, pub []byte) error {
	if err := checkLength("public key", pub, 64); err != nil {
		return err
	}
	return d.transaction(ctx, func(ctx context.Context) error {
		_, err := d.ecdh(ctx, ecdhModeTempKey, slot, pub)
		return err
	})
}

// KDF executes the KDF command.
//
// The derived key is returned when the target is KDFTargetOutput or
// KDFTargetOutputEnc. For other targets the result stays on the device and
// KDF returns nil.
func (d *Dev) KDF(ctx context.Context, p KDFParams) ([]byte, error) {
	if _, err := newKDFCommand(p); err != nil {
		return nil, err
	}
	var out []byte
	err := d.transaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = d.kdf(ctx, p)
		return err
	})
	return out, err
}

// NonceLoad loads a 32 or 64 byte value into TempKey.
func (d *Dev) NonceLoad(ctx context.Context, key []byte) error {
	if len(key) != 32 && len(key) != 64 {
		return &LengthError{Name: "nonce", Got: len(key), Want: "32 or 64"}
	}
	return d.transaction(ctx, func(ctx context.Context) error {
		return d.nonceLoad(ctx, nonceTargetTempKey, key)
	})
}

// AESEncryptBlock encrypts a single 16 byte block with the AES key in
// keyBlock of keyID. Use KeyIDTempKey to use the key in TempKey.
func (d *Dev) AESEncryptBlock(ctx context.Context, keyID uint16, keyBlock uint8, plaintext []byte) ([16]byte, error) {
	return d.aesBlock(ctx, aesModeEncrypt, keyID, keyBlock, plaintext)
}

// AESDecryptBlock decrypts a single 16 byte block.
func (d *Dev) AESDecryptBlock(ctx context.Context, keyID uint16, keyBlock uint8, ciphertext []byte) ([16]byte, error) {
	return d.aesBlock(ctx, aesModeDecrypt, keyID, keyBlock, ciphertext)
}

func (d *Dev) aesBlock(ctx context.Context, mode aesMode, keyID uint16, keyBlock uint8, in []byte) ([16]byte, error) {
	var out [16]byte
	if err := checkLength("aes block", in, aesBlockSize); err != nil {
		return out, err
	}
	if keyBlock > 3 {
		return out, errors.New("atca: invalid aes key block")
	}
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.aes(ctx, mode, keyID, keyBlock, in)
		copy(out[:], b)
		return err
	})
	return out, err
}

// GFM multiplies h and input in GF(2^128) as used by GHASH.
func (d *Dev) GFM(ctx context.Context, h, input []byte) ([16]byte, error) {
	var out [16]byte
	if err := checkLength("hash subkey", h, aesBlockSize); err != nil {
		return out, err
	}
	if err := checkLength("gfm input", input, aesBlockSize); err != nil {
		return out, err
	}
	err := d.transaction(ctx, func(ctx context.Context) error {
		b, err := d.gfm(ctx, h, input)
		copy(out[:], b)
		return err
	})
	return out, err
}

func (d *Dev) gfm(ctx context.Context, h, input []byte) ([]byte, error) {
	data := make([]byte, 0, 2*aesBlockSize)
	data = append(data, h...)
	data = append(data, input...)
	return d.aes(ctx, aesModeGFM, 0, 0, data)
}

func publicKeyFromRaw(pk []byte) *ecdsa.PublicKey {
	var x, y big.Int
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     x.SetBytes(pk[:32]),
		Y:     y.SetBytes(pk[32:]),
	}
}

// rawPublicKey returns the 64 byte X||Y encoding of a P256 public key.
func rawPublicKey(pub crypto.PublicKey) ([]byte, error) {
	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		if pub.Curve != elliptic.P256() {
			return nil, errors.New("atca: unsupported curve")
		}
		pk := make([]byte, 64)
		pub.X.FillBytes(pk[:32])
		pub.Y.FillBytes(pk[32:])
		return pk, nil
	case []byte:
		if err := checkLength("public key", pub, 64); err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, errors.New("atca: unsupported public key")
	}
}

type randReader struct {
	ctx context.Context
	d   *Dev
}

func (r *randReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	rnd, err := r.d.RandomBytes(r.ctx)
	if err != nil {
		return 0, err
	}
	return copy(b, rnd[:]), nil
}

// privateKey wraps a device and key slot for private cryptography.
//
// privateKey implements crypto.Signer and crypto.PrivateKey.
type privateKey struct {
	ctx  context.Context
	p    *ecdsa.PublicKey
	d    *Dev
	slot uint16
}

var _ crypto.Signer = &privateKey{}

// Public returns the public key corresponding to the opaque, private key.
//
// This implements crypto.Signer.
func (priv *privateKey) Public() crypto.PublicKey {
	return priv.p
}

// Sign signs digest with the private key. The device generates the nonce;
// rand is ignored.
//
// This implements crypto.Signer.
func (priv *privateKey) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.SHA256 && opts.HashFunc() != 0 {
		return nil, errors.New("atca: only SHA-256 digests can be signed")
	}
	return priv.d.Sign(priv.ctx, priv.slot, digest)
}
