package atca

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/northvolt/go-atca/codec"
)

func TestLengthValidation(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"sign digest", func() error {
			_, err := d.SignDigest(ctx, 0, make([]byte, 31))
			return err
		}},
		{"sign", func() error {
			_, err := d.Sign(ctx, 0, make([]byte, 33))
			return err
		}},
		{"verify digest", func() error {
			_, err := d.VerifyExtern(ctx, make([]byte, 20), nil, nil)
			return err
		}},
		{"ecdh", func() error {
			_, err := d.ECDH(ctx, 0, make([]byte, 63))
			return err
		}},
		{"ecdh tempkey", func() error { return d.ECDHTempKey(ctx, 0, make([]byte, 65)) }},
		{"nonce", func() error { return d.NonceLoad(ctx, make([]byte, 20)) }},
		{"aes block", func() error {
			_, err := d.AESEncryptBlock(ctx, 0, 0, make([]byte, 15))
			return err
		}},
		{"aes decrypt block", func() error {
			_, err := d.AESDecryptBlock(ctx, 0, 0, nil)
			return err
		}},
		{"gfm", func() error {
			_, err := d.GFM(ctx, make([]byte, 16), make([]byte, 17))
			return err
		}},
		{"kdf", func() error {
			_, err := d.KDF(ctx, KDFParams{Algorithm: KDFAlgAES, Message: make([]byte, 32)})
			return err
		}},
		{"config", func() error { return d.WriteConfigZone(ctx, make([]byte, 112)) }},
		{"iv", func() error {
			_, err := d.GCMInit(ctx, KeyIDTempKey, 0, nil)
			return err
		}},
	}
	for _, tt := range tests {
		err := tt.fn()
		if !errors.Is(err, ErrInvalidLength) {
			t.Errorf("%s: got %v, want ErrInvalidLength", tt.name, err)
		}
		var lerr *LengthError
		if !errors.As(err, &lerr) {
			t.Errorf("%s: got %T, want *LengthError", tt.name, err)
		}
	}
	if h.writes != 0 {
		t.Errorf("length errors reached the device: %d writes", h.writes)
	}
}

func TestReadConfigZone(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	conf, err := d.ReadConfigZone(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(conf, testConfigZone()) {
		t.Errorf("got % x", conf)
	}
	if len(h.frames) != 4 {
		t.Errorf("got %d reads, want 4 block reads", len(h.frames))
	}
}

func TestReadBytesZone(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	// Slot 0 is 36 bytes: one block followed by a single word.
	buf := make([]byte, 6)
	n, err := d.ReadBytesZone(context.Background(), ZoneData, 0, 30, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Fatalf("got %d bytes, want 6", n)
	}
	if len(h.frames) != 2 {
		t.Fatalf("got %d reads, want 2", len(h.frames))
	}
	if f := h.frames[0]; f.Param1 != 0x82 || f.Param2 != 0x0000 {
		t.Errorf("first read %+v", f)
	}
	if f := h.frames[1]; f.Param1 != 0x02 || f.Param2 != 0x0100 {
		t.Errorf("second read %+v", f)
	}
	// The responder fills reads with addr + index.
	want := []byte{30, 31, 0x00, 0x01, 0x02, 0x03}
	if !bytes.Equal(buf, want) {
		t.Errorf("got % x, want % x", buf, want)
	}

	if _, err := d.ReadBytesZone(context.Background(), ZoneData, 0, 33, buf); err == nil {
		t.Error("expected error reading past the end of the slot")
	}
}

func TestIsLocked(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	ctx := context.Background()

	for _, zone := range []Zone{ZoneConfig, ZoneData} {
		locked, err := d.IsLocked(ctx, zone)
		if err != nil {
			t.Fatal(err)
		}
		if locked {
			t.Errorf("%v: expected unlocked", zone)
		}
	}
	if f := h.frames[0]; f.Param1 != 0x00 || f.Param2 != 0x0015 {
		t.Errorf("lock word read %+v", f)
	}
	if _, err := d.IsLocked(ctx, ZoneOTP); err == nil {
		t.Error("expected error for otp zone")
	}
}

func TestSlotConfigs(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	sc, err := d.SlotConfigs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// testConfigZone fills bytes 20 to 51 with their offset.
	if got := sc[0].Word(); got != 21<<8|20 {
		t.Errorf("slot 0: got %#04x", got)
	}
	if got := sc[15].Word(); got != 51<<8|50 {
		t.Errorf("slot 15: got %#04x", got)
	}
}

func TestWriteBytesZoneSkipsLockWord(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	if err := d.WriteConfigZone(context.Background(), testConfigZone()); err != nil {
		t.Fatal(err)
	}
	var addrs []uint16
	for _, f := range h.frames {
		if f.Opcode == opWrite {
			addrs = append(addrs, f.Param2)
		}
	}
	for _, addr := range addrs {
		if addr == 0x15 {
			t.Errorf("lock word was written")
		}
	}
	// 4 words in block 0, block 1, 7 words in block 2, block 3.
	if len(addrs) != 4+1+7+1 {
		t.Errorf("got %d writes: %x", len(addrs), addrs)
	}
	last := h.frames[len(h.frames)-2:]
	if last[0].Opcode != opUpdateExtra || last[1].Opcode != opUpdateExtra {
		t.Errorf("expected trailing update extra, got %+v", last)
	}
}

func TestRandomReader(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())

	buf := make([]byte, 40)
	n, err := d.Random(context.Background()).Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 32 {
		t.Errorf("got %d bytes, want 32", n)
	}
	if buf[31] != 31 {
		t.Errorf("got % x", buf[:n])
	}
}

func TestVerifyExternMiscompare(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	next := h.respond
	h.respond = func(cmd codec.Command) []byte {
		if cmd.Opcode == opVerify {
			return codec.EncodeStatus(StatusVerifyMiscompare)
		}
		return next(cmd)
	}

	ok, err := d.verifyExtern(context.Background(), make([]byte, 32), make([]byte, 64), make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected verification to fail")
	}
}

func TestGCMSequence(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	ctx := context.Background()

	var zero GCMContext
	if err := zero.AADUpdate(ctx, nil); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("uninitialized aad: %v", err)
	}

	g, err := d.GCMInit(ctx, KeyIDTempKey, 0, make([]byte, 12))
	if err != nil {
		t.Fatal(err)
	}
	if g.State() != GCMAAD {
		t.Errorf("state: got %v, want %v", g.State(), GCMAAD)
	}
	if _, err := g.EncryptFinish(ctx, 16); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("finish before update: %v", err)
	}
	if err := g.AADUpdate(ctx, []byte("authenticated")); err != nil {
		t.Fatal(err)
	}
	ct, err := g.EncryptUpdate(ctx, []byte("helloworld"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ct) != 10 {
		t.Errorf("ciphertext: got %d bytes, want 10", len(ct))
	}
	if err := g.AADUpdate(ctx, []byte("late")); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("aad after data: %v", err)
	}
	if _, err := g.DecryptUpdate(ctx, ct); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("decrypt during encrypt: %v", err)
	}
	if _, err := g.EncryptFinish(ctx, 11); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short tag: %v", err)
	}
	tag, err := g.EncryptFinish(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(tag) != 12 {
		t.Errorf("tag: got %d bytes, want 12", len(tag))
	}
	if g.State() != GCMFinished {
		t.Errorf("state: got %v, want %v", g.State(), GCMFinished)
	}
	if _, err := g.EncryptUpdate(ctx, []byte("more")); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("update after finish: %v", err)
	}
	if _, err := g.EncryptFinish(ctx, 12); !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("finish after finish: %v", err)
	}
}

func TestGCMFailureEndsOperation(t *testing.T) {
	h := newScriptHAL()
	d := openTest(t, h, testConfig())
	ctx := context.Background()

	g, err := d.GCMInit(ctx, KeyIDTempKey, 0, make([]byte, 12))
	if err != nil {
		t.Fatal(err)
	}
	h.respond = func(cmd codec.Command) []byte {
		return codec.EncodeStatus(StatusExecution)
	}
	if _, err := g.EncryptUpdate(ctx, make([]byte, 16)); !errors.Is(err, ErrExecution) {
		t.Fatalf("unexpected error %v", err)
	}
	if g.State() != GCMFinished {
		t.Errorf("state: got %v, want %v", g.State(), GCMFinished)
	}
}

func TestInc32(t *testing.T) {
	cb := [16]byte{15: 0xff, 14: 0xff, 13: 0xff, 12: 0xff, 11: 0x01}
	inc32(&cb)
	want := [16]byte{11: 0x01}
	if cb != want {
		t.Errorf("got % x, want % x", cb, want)
	}
}

func TestPolicy(t *testing.T) {
	rejected := &DeviceRejectedError{Opcode: opSign, Status: StatusExecution}
	transport := &TransportError{Op: "send", Attempts: 3, Err: errors.New("bus")}

	tests := []struct {
		policy Policy
		err    error
		want   Action
	}{
		{AbortOnError, nil, Continue},
		{AbortOnError, rejected, Abort},
		{ContinueOnRejection, rejected, Continue},
		{ContinueOnRejection, transport, Abort},
		{ContinueOnRejection, ErrInvalidLength, Abort},
		{Policy{Rules: []Rule{{Err: ErrExecution, Action: Abort}, {Err: ErrDeviceRejected, Action: Continue}}}, rejected, Abort},
		{Policy{Default: Continue}, transport, Continue},
	}
	for i, tt := range tests {
		if got := tt.policy.Decide(tt.err); got != tt.want {
			t.Errorf("%d: got %v, want %v", i, got, tt.want)
		}
	}
}
