package codec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
)

func TestEncode(t *testing.T) {
	testCases := []struct {
		c Command
		b []byte
	}{
		{
			Command{Opcode: 0x30},
			[]byte{0x7, 0x30, 0x0, 0x0, 0x0, 0x03, 0x5d},
		},
		{
			Command{Opcode: 0x02, Param1: 0x80, Param2: 0x0010},
			append([]byte{0x7, 0x02, 0x80, 0x10, 0x00}, le(CRC16([]byte{0x7, 0x02, 0x80, 0x10, 0x00}))...),
		},
	}

	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			b, err := Encode(tc.c)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(b, tc.b) {
				t.Error(hex.Dump(b))
				t.Error(hex.Dump(tc.b))
			}
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := NewCommand(0x12, 0, 0, make([]byte, DataSizeMax+1))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want %v", err, ErrMalformed)
	}
}

// TestLoopback decodes encoded commands as if the device echoed them.
func TestLoopback(t *testing.T) {
	testCases := []Command{
		{Opcode: 0x30},
		{Opcode: 0x1b, Param1: 0x01},
		{Opcode: 0x16, Param1: 0x43, Param2: 0xbeef, Data: bytes.Repeat([]byte{0xa5}, 32)},
		{Opcode: 0x43, Param1: 0x0c, Param2: 0x0002, Data: bytes.Repeat([]byte{0x11, 0x22}, 32)},
		{Opcode: 0x12, Param1: 0x82, Param2: 0x0040, Data: make([]byte, DataSizeMax)},
	}

	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			b, err := Encode(tc)
			if err != nil {
				t.Fatal(err)
			}

			rsp, err := Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			want := append([]byte{tc.Opcode, tc.Param1}, le(tc.Param2)...)
			want = append(want, tc.Data...)
			if !bytes.Equal(rsp.Payload, want) {
				t.Errorf("got %x, want %x", rsp.Payload, want)
			}

			cmd, err := DecodeCommand(b)
			if err != nil {
				t.Fatal(err)
			}
			if cmd.Opcode != tc.Opcode || cmd.Param1 != tc.Param1 || cmd.Param2 != tc.Param2 || !bytes.Equal(cmd.Data, tc.Data) {
				t.Errorf("got %+v, want %+v", cmd, tc)
			}
		})
	}
}

func TestDecodeCorrupted(t *testing.T) {
	frames := [][]byte{
		EncodeStatus(0x00),
		EncodeResponse([]byte{0x00, 0x00, 0x60, 0x02}),
		EncodeResponse(bytes.Repeat([]byte{0x5a}, 64)),
	}

	for _, frame := range frames {
		// The count byte is skipped: corrupting it changes the frame size.
		for i := 1; i < len(frame); i++ {
			for _, mask := range []byte{0x01, 0x80, 0xff, 0x3c} {
				b := bytes.Clone(frame)
				b[i] ^= mask
				if _, err := Decode(b); !errors.Is(err, ErrChecksumMismatch) {
					t.Errorf("frame %x byte %d mask %#x: got %v, want %v", frame, i, mask, err, ErrChecksumMismatch)
				}
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	ok := EncodeResponse([]byte{0x00, 0x00, 0x60, 0x02})

	testCases := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"truncated", ok[:len(ok)-1], ErrTruncated},
		{"count too small", []byte{0x03, 0x00, 0x00}, ErrMalformed},
		{"count zero", []byte{0x00, 0x00, 0x00, 0x00}, ErrMalformed},
		{"count too large", append([]byte{0x20}, ok[1:]...), ErrTruncated},
		{"count above max", EncodeResponse(bytes.Repeat([]byte{0x11}, 100)), ErrMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.in)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			var codecErr *Error
			if !errors.As(err, &codecErr) {
				t.Errorf("got %T, want *Error", err)
			}
		})
	}
}

func TestDecodeCommandTooLarge(t *testing.T) {
	b := make([]byte, CommandSizeMax+1)
	b[0] = uint8(len(b))
	crc := CRC16(b[:len(b)-2])
	b[len(b)-2], b[len(b)-1] = uint8(crc), uint8(crc>>8)

	if _, err := DecodeCommand(b); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want %v", err, ErrMalformed)
	}
}

func TestDecodeStatus(t *testing.T) {
	rsp, err := Decode(EncodeStatus(0x0f))
	if err != nil {
		t.Fatal(err)
	}
	if !rsp.IsStatus() {
		t.Fatal("expected status response")
	}
	if rsp.Status() != 0x0f {
		t.Errorf("got %#x, want %#x", rsp.Status(), 0x0f)
	}

	// trailing bytes after the frame are ignored
	b := append(EncodeResponse([]byte{1, 2, 3, 4}), 0xff, 0xff)
	rsp, err = Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if rsp.IsStatus() || !bytes.Equal(rsp.Payload, []byte{1, 2, 3, 4}) {
		t.Errorf("got %x", rsp.Payload)
	}
}

func le(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
