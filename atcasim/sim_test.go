package atcasim

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, c *Chip, op, p1 uint8, p2 uint16, data []byte) codec.Response {
	t.Helper()
	cmd, err := codec.NewCommand(op, p1, p2, data)
	require.NoError(t, err)
	frame, err := codec.Encode(cmd)
	require.NoError(t, err)

	require.NoError(t, c.Wake())
	_, err = c.Write(frame)
	require.NoError(t, err)

	buf := make([]byte, codec.ResponseSizeMax)
	n, err := c.Read(buf)
	require.NoError(t, err)
	resp, err := codec.Decode(buf[:n])
	require.NoError(t, err)
	return resp
}

func requireStatus(t *testing.T, want uint8, resp codec.Response) {
	t.Helper()
	require.True(t, resp.IsStatus(), "expected status response, got % x", resp.Payload)
	require.Equal(t, want, resp.Status())
}

func TestInfo(t *testing.T) {
	c := New()
	resp := run(t, c, opInfo, 0, 0, nil)
	assert.Equal(t, Revision[:], resp.Payload)
	assert.Equal(t, []uint8{opInfo}, c.Executed())
}

func TestReadConfigBlock(t *testing.T) {
	c := New()
	resp := run(t, c, opRead, 0x80, 0, nil)
	require.Len(t, resp.Payload, 32)
	assert.Equal(t, factory[:4], resp.Payload[:4])
	assert.Equal(t, byte(0x01), resp.Payload[19], "chip mode")

	resp = run(t, c, opRead, 0x00, 2<<3|5, nil)
	assert.Equal(t, []byte{0x00, 0x00, 0x55, 0x55}, resp.Payload)
}

func TestReadOutOfRange(t *testing.T) {
	c := New()
	requireStatus(t, statusParse, run(t, c, opRead, 0x80|0x02, 1<<8|3<<3, nil))
}

func TestWriteRequiresWake(t *testing.T) {
	c := New()
	frame, err := codec.Encode(codec.Command{Opcode: opInfo})
	require.NoError(t, err)
	_, err = c.Write(frame)
	assert.Error(t, err)
}

func TestBusyPolls(t *testing.T) {
	c := New(WithBusyPolls(2))
	frame, err := codec.Encode(codec.Command{Opcode: opInfo})
	require.NoError(t, err)
	require.NoError(t, c.Wake())
	_, err = c.Write(frame)
	require.NoError(t, err)

	buf := make([]byte, codec.ResponseSizeMax)
	for i := 0; i < 2; i++ {
		_, err = c.Read(buf)
		require.ErrorIs(t, err, atca.ErrNotReady)
	}
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestCorruptFrame(t *testing.T) {
	c := New()
	frame, err := codec.Encode(codec.Command{Opcode: opInfo})
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xff

	require.NoError(t, c.Wake())
	_, err = c.Write(frame)
	require.NoError(t, err)
	buf := make([]byte, codec.ResponseSizeMax)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, codec.EncodeStatus(atca.StatusCommunication), buf[:n])
}

func TestInjectStatus(t *testing.T) {
	c := New()
	c.InjectStatus(atca.StatusWatchdog)
	requireStatus(t, atca.StatusWatchdog, run(t, c, opInfo, 0, 0, nil))
	assert.Equal(t, Revision[:], run(t, c, opInfo, 0, 0, nil).Payload)
}

func TestFailWrites(t *testing.T) {
	c := New()
	c.FailWrites(1)
	frame, err := codec.Encode(codec.Command{Opcode: opInfo})
	require.NoError(t, err)
	require.NoError(t, c.Wake())
	_, err = c.Write(frame)
	assert.Error(t, err)
	_, err = c.Write(frame)
	assert.NoError(t, err)
}

func TestSignVerify(t *testing.T) {
	c := New()
	resp := run(t, c, opGenKey, 0x04, 0, nil)
	require.Len(t, resp.Payload, 64)
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(resp.Payload[:32]),
		Y:     new(big.Int).SetBytes(resp.Payload[32:]),
	}

	digest := sha256.Sum256([]byte("helloworld"))
	requireStatus(t, statusOK, run(t, c, opNonce, 0x43, 0, digest[:]))
	resp = run(t, c, opSign, 0xa0, 0, nil)
	require.Len(t, resp.Payload, 64)
	r := new(big.Int).SetBytes(resp.Payload[:32])
	s := new(big.Int).SetBytes(resp.Payload[32:])
	assert.True(t, ecdsa.Verify(pub, digest[:], r, s))

	data := append(append([]byte(nil), resp.Payload...), rawPublic(pub)...)
	requireStatus(t, statusOK, run(t, c, opVerify, 0x22, 0x0004, data))

	other := sha256.Sum256([]byte("hellowhirled"))
	requireStatus(t, statusOK, run(t, c, opNonce, 0x43, 0, other[:]))
	requireStatus(t, statusMiss, run(t, c, opVerify, 0x22, 0x0004, data))
}

func TestSignWithoutKey(t *testing.T) {
	c := New()
	requireStatus(t, statusExec, run(t, c, opSign, 0xa0, 3, nil))
}

func TestSHA(t *testing.T) {
	c := New()
	msg := make([]byte, 64+10)
	for i := range msg {
		msg[i] = byte(i)
	}
	requireStatus(t, statusOK, run(t, c, opSHA, 0x00, 0, nil))
	requireStatus(t, statusOK, run(t, c, opSHA, 0x01, 64, msg[:64]))
	resp := run(t, c, opSHA, 0x02, 10, msg[64:])
	want := sha256.Sum256(msg)
	assert.Equal(t, want[:], resp.Payload)

	requireStatus(t, statusExec, run(t, c, opSHA, 0x02, 0, nil))
}

func TestLock(t *testing.T) {
	c := New()
	requireStatus(t, statusExec, run(t, c, opLock, 0x81, 0, nil))
	requireStatus(t, statusOK, run(t, c, opLock, 0x80, 0, nil))
	assert.Equal(t, byte(0x00), c.Config()[87])
	requireStatus(t, statusExec, run(t, c, opLock, 0x80, 0, nil))
	requireStatus(t, statusOK, run(t, c, opLock, 0x81, 0, nil))
	assert.Equal(t, byte(0x00), c.Config()[86])
}

func TestUpdateExtra(t *testing.T) {
	c := New()
	requireStatus(t, statusOK, run(t, c, opUpdateExtra, 0x00, 0x42, nil))
	assert.Equal(t, byte(0x42), c.Config()[84])
	requireStatus(t, statusExec, run(t, c, opUpdateExtra, 0x00, 0x43, nil))
}

func TestWriteLockWordRejected(t *testing.T) {
	c := New()
	requireStatus(t, statusExec, run(t, c, opWrite, 0x00, 2<<3|5, []byte{1, 2, 3, 4}))
	requireStatus(t, statusOK, run(t, c, opWrite, 0x00, 2<<3|4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, c.Config()[80:84])
}

func TestSleepClearsTempKey(t *testing.T) {
	c := New()
	key := make([]byte, 32)
	requireStatus(t, statusOK, run(t, c, opNonce, 0x03, 0, key))
	resp := run(t, c, opAES, 0x00, atca.KeyIDTempKey, make([]byte, 16))
	require.Len(t, resp.Payload, 16)

	require.NoError(t, c.Sleep())
	requireStatus(t, statusExec, run(t, c, opAES, 0x00, atca.KeyIDTempKey, make([]byte, 16)))
}

func TestKDFHKDF(t *testing.T) {
	c := New()
	key := sha256.Sum256([]byte("key"))
	requireStatus(t, statusOK, run(t, c, opNonce, 0x03, 0, key[:]))

	msg := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	details := atca.KDFHKDFMsgLocInput | uint32(len(msg))<<24
	data := binary.LittleEndian.AppendUint32(nil, details)
	data = append(data, msg...)

	p1 := uint8(atca.KDFAlgHKDF) | uint8(atca.KDFSourceTempKey) | uint8(atca.KDFTargetOutput)
	resp := run(t, c, opKDF, p1, 0, data)

	mac := hmac.New(sha256.New, key[:])
	mac.Write(msg)
	assert.Equal(t, mac.Sum(nil), resp.Payload)
}

func TestKDFUnsupported(t *testing.T) {
	c := New()
	requireStatus(t, statusOK, run(t, c, opNonce, 0x03, 0, make([]byte, 32)))
	p1 := uint8(atca.KDFAlgPRF) | uint8(atca.KDFTargetOutput)
	requireStatus(t, statusParse, run(t, c, opKDF, p1, 0, make([]byte, 4)))
}

func TestGFMul(t *testing.T) {
	one := [16]byte{0x80}
	x := [16]byte{0x66, 0xe9, 0x4b, 0xd4, 0xef, 0x8a, 0x2c, 0x3b, 0x88, 0x4c, 0xfa, 0x59, 0xca, 0x34, 0x2b, 0x2e}
	y := [16]byte{0x03, 0x88, 0xda, 0xce, 0x60, 0xb6, 0xa3, 0x92, 0xf3, 0x28, 0xc2, 0xb9, 0x71, 0xb2, 0xfe, 0x78}

	assert.Equal(t, x, gfmul(x, one))
	assert.Equal(t, x, gfmul(one, x))
	assert.Equal(t, gfmul(x, y), gfmul(y, x))
	assert.Equal(t, [16]byte{}, gfmul(x, [16]byte{}))
}
