package atca

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

const aesBlockSize = 16

// GCM tag sizes.
const (
	GCMTagSizeMin = 12
	GCMTagSizeMax = 16
)

// GCMState is the position of a GCMContext in the operation sequence.
type GCMState int

const (
	GCMUninitialized GCMState = iota
	GCMAAD                    // accepting additional data
	GCMUpdating               // accepting plaintext or ciphertext
	GCMFinished
)

func (s GCMState) String() string {
	switch s {
	case GCMUninitialized:
		return "uninitialized"
	case GCMAAD:
		return "aad"
	case GCMUpdating:
		return "updating"
	case GCMFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type gcmDirection int

const (
	gcmNone gcmDirection = iota
	gcmEncrypt
	gcmDecrypt
)

// GCMContext is an AES-GCM operation using a key on the device.
//
// Block encryption and GHASH multiplication run on the device, the rest of
// GCM on the host. A context is used for a single message: additional data
// first, then plaintext or ciphertext, then finish. Calls out of this order
// fail with ErrInvalidSequence. A failed call ends the operation.
//
// Each call runs as one transaction. When the key is in TempKey, other users
// of the handle must not replace TempKey until the operation is finished.
type GCMContext struct {
	d        *Dev
	keyID    uint16
	keyBlock uint8

	state GCMState
	dir   gcmDirection

	h  [aesBlockSize]byte // hash subkey
	j0 [aesBlockSize]byte // pre-counter block
	cb [aesBlockSize]byte // current counter block
	y  [aesBlockSize]byte // GHASH accumulator

	// ks is the key stream of cb, of which ksUsed bytes are consumed.
	ks     [aesBlockSize]byte
	ksUsed int

	// partial holds GHASH input not yet forming a full block.
	partial    [aesBlockSize]byte
	partialLen int

	aadLen  uint64
	dataLen uint64
}

// GCMInit starts an AES-GCM operation with the key in keyBlock of keyID and
// the given IV. Use KeyIDTempKey to use the key in TempKey.
func (d *Dev) GCMInit(ctx context.Context, keyID uint16, keyBlock uint8, iv []byte) (*GCMContext, error) {
	if len(iv) == 0 {
		return nil, &LengthError{Name: "iv", Got: 0, Want: "at least 1"}
	}
	if keyBlock > 3 {
		return nil, fmt.Errorf("atca: invalid aes key block %d", keyBlock)
	}

	g := &GCMContext{
		d:        d,
		keyID:    keyID,
		keyBlock: keyBlock,
		ksUsed:   aesBlockSize,
	}
	err := d.transaction(ctx, func(ctx context.Context) error {
		var zero [aesBlockSize]byte
		h, err := d.aes(ctx, aesModeEncrypt, keyID, keyBlock, zero[:])
		if err != nil {
			return err
		}
		copy(g.h[:], h)

		if len(iv) == 12 {
			copy(g.j0[:], iv)
			g.j0[aesBlockSize-1] = 1
			return nil
		}

		// J0 = GHASH(IV || 0-pad || 0^64 || len(IV) in bits)
		var j0 [aesBlockSize]byte
		for b := iv; len(b) > 0; {
			var block [aesBlockSize]byte
			n := copy(block[:], b)
			b = b[n:]
			if err := g.ghash(ctx, &j0, block[:]); err != nil {
				return err
			}
		}
		var lens [aesBlockSize]byte
		binary.BigEndian.PutUint64(lens[8:], uint64(len(iv))*8)
		if err := g.ghash(ctx, &j0, lens[:]); err != nil {
			return err
		}
		g.j0 = j0
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.cb = g.j0
	g.state = GCMAAD
	return g, nil
}

// GCMInitRand starts an AES-GCM operation with a 12 byte IV generated by the
// device. The IV is returned and must be sent along with the ciphertext.
func (d *Dev) GCMInitRand(ctx context.Context, keyID uint16, keyBlock uint8) (*GCMContext, []byte, error) {
	rnd, err := d.RandomBytes(ctx)
	if err != nil {
		return nil, nil, err
	}
	iv := append([]byte(nil), rnd[:12]...)
	g, err := d.GCMInit(ctx, keyID, keyBlock, iv)
	if err != nil {
		return nil, nil, err
	}
	return g, iv, nil
}

// State returns the position in the operation sequence.
func (g *GCMContext) State() GCMState {
	return g.state
}

// AADUpdate adds additional authenticated data. It may be called multiple
// times, but not after data has been processed.
func (g *GCMContext) AADUpdate(ctx context.Context, aad []byte) error {
	if g.state != GCMAAD {
		return g.sequenceError("aad update")
	}
	return g.run(ctx, func(ctx context.Context) error {
		g.aadLen += uint64(len(aad))
		return g.absorb(ctx, aad)
	})
}

// EncryptUpdate encrypts plaintext and returns the ciphertext of the same
// length.
func (g *GCMContext) EncryptUpdate(ctx context.Context, plaintext []byte) ([]byte, error) {
	return g.update(ctx, gcmEncrypt, plaintext)
}

// DecryptUpdate decrypts ciphertext and returns the plaintext of the same
// length. The plaintext must not be used before DecryptFinish succeeds.
func (g *GCMContext) DecryptUpdate(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return g.update(ctx, gcmDecrypt, ciphertext)
}

// EncryptFinish completes the encryption and returns the tag truncated to
// tagSize bytes.
func (g *GCMContext) EncryptFinish(ctx context.Context, tagSize int) ([]byte, error) {
	if g.state != GCMUpdating || g.dir != gcmEncrypt {
		return nil, g.sequenceError("encrypt finish")
	}
	if tagSize < GCMTagSizeMin || tagSize > GCMTagSizeMax {
		return nil, &LengthError{Name: "tag", Got: tagSize, Want: "12 to 16"}
	}
	var tag []byte
	err := g.run(ctx, func(ctx context.Context) error {
		t, err := g.tag(ctx)
		tag = t[:tagSize]
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// DecryptFinish completes the decryption and reports if tag is authentic.
func (g *GCMContext) DecryptFinish(ctx context.Context, tag []byte) (bool, error) {
	if g.state != GCMUpdating || g.dir != gcmDecrypt {
		return false, g.sequenceError("decrypt finish")
	}
	if len(tag) < GCMTagSizeMin || len(tag) > GCMTagSizeMax {
		return false, &LengthError{Name: "tag", Got: len(tag), Want: "12 to 16"}
	}
	var ok bool
	err := g.run(ctx, func(ctx context.Context) error {
		t, err := g.tag(ctx)
		ok = subtle.ConstantTimeCompare(t[:len(tag)], tag) == 1
		return err
	})
	return ok, err
}

func (g *GCMContext) update(ctx context.Context, dir gcmDirection, in []byte) ([]byte, error) {
	if g.state != GCMAAD && g.state != GCMUpdating {
		return nil, g.sequenceError("update")
	}
	if g.dir != gcmNone && g.dir != dir {
		return nil, g.sequenceError("update")
	}

	out := make([]byte, len(in))
	err := g.run(ctx, func(ctx context.Context) error {
		if g.state == GCMAAD {
			if err := g.flush(ctx); err != nil {
				return err
			}
			g.state = GCMUpdating
			g.dir = dir
		}

		for i := 0; i < len(in); {
			if g.ksUsed == aesBlockSize {
				inc32(&g.cb)
				ks, err := g.d.aes(ctx, aesModeEncrypt, g.keyID, g.keyBlock, g.cb[:])
				if err != nil {
					return err
				}
				copy(g.ks[:], ks)
				g.ksUsed = 0
			}
			n := subtle.XORBytes(out[i:], in[i:], g.ks[g.ksUsed:])
			g.ksUsed += n

			// GHASH always runs over the ciphertext.
			ct := out[i : i+n]
			if dir == gcmDecrypt {
				ct = in[i : i+n]
			}
			if err := g.absorb(ctx, ct); err != nil {
				return err
			}
			i += n
		}
		g.dataLen += uint64(len(in))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// run executes fn as one transaction and ends the operation on failure.
func (g *GCMContext) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.d.transaction(ctx, fn); err != nil {
		g.state = GCMFinished
		return err
	}
	return nil
}

// absorb feeds b into GHASH, keeping incomplete blocks in partial.
func (g *GCMContext) absorb(ctx context.Context, b []byte) error {
	for len(b) > 0 {
		n := copy(g.partial[g.partialLen:], b)
		g.partialLen += n
		b = b[n:]
		if g.partialLen == aesBlockSize {
			if err := g.ghash(ctx, &g.y, g.partial[:]); err != nil {
				return err
			}
			g.partialLen = 0
		}
	}
	return nil
}

// flush zero pads and absorbs any incomplete block.
func (g *GCMContext) flush(ctx context.Context) error {
	if g.partialLen == 0 {
		return nil
	}
	for i := g.partialLen; i < aesBlockSize; i++ {
		g.partial[i] = 0
	}
	g.partialLen = 0
	return g.ghash(ctx, &g.y, g.partial[:])
}

// ghash updates y = (y ^ block) * H.
func (g *GCMContext) ghash(ctx context.Context, y *[aesBlockSize]byte, block []byte) error {
	var x [aesBlockSize]byte
	subtle.XORBytes(x[:], y[:], block)
	out, err := g.d.gfm(ctx, g.h[:], x[:])
	if err != nil {
		return err
	}
	copy(y[:], out)
	return nil
}

func (g *GCMContext) tag(ctx context.Context) ([aesBlockSize]byte, error) {
	var t [aesBlockSize]byte
	if err := g.flush(ctx); err != nil {
		return t, err
	}
	var lens [aesBlockSize]byte
	binary.BigEndian.PutUint64(lens[:8], g.aadLen*8)
	binary.BigEndian.PutUint64(lens[8:], g.dataLen*8)
	if err := g.ghash(ctx, &g.y, lens[:]); err != nil {
		return t, err
	}

	s, err := g.d.aes(ctx, aesModeEncrypt, g.keyID, g.keyBlock, g.j0[:])
	if err != nil {
		return t, err
	}
	subtle.XORBytes(t[:], s, g.y[:])
	g.state = GCMFinished
	return t, nil
}

func (g *GCMContext) sequenceError(op string) error {
	return fmt.Errorf("atca: gcm %s in state %s: %w", op, g.state, ErrInvalidSequence)
}

// inc32 increments the rightmost 32 bits of the counter block.
func inc32(cb *[aesBlockSize]byte) {
	ctr := binary.BigEndian.Uint32(cb[12:])
	binary.BigEndian.PutUint32(cb[12:], ctr+1)
}
