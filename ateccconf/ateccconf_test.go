package ateccconf

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"testing"
)

var golden608 = append(
	// 16 first bytes are static inside of the device
	[]byte{
		0x01, 0x23, 0xa1, 0xb2, 0x00, 0x00, 0x60, 0x02,
		0xc3, 0xd4, 0xe5, 0xf6, 0xee, 0x01, 0x01, 0x00,
	}, Default608...,
)

func TestUnmarshal(t *testing.T) {
	var got Config608
	if err := Unmarshal(golden608, &got); err != nil {
		t.Fatal(err)
	}

	if want := [9]byte{0x01, 0x23, 0xa1, 0xb2, 0xc3, 0xd4, 0xe5, 0xf6, 0xee}; got.SerialNumber() != want {
		t.Errorf("serial: got %x, want %x", got.SerialNumber(), want)
	}
	if want := [4]byte{0x00, 0x00, 0x60, 0x02}; got.RevNum != want {
		t.Errorf("revision: got %x, want %x", got.RevNum, want)
	}
	if got.I2CAddress != 0x6a {
		t.Errorf("i2c address: got %#x, want %#x", got.I2CAddress, 0x6a)
	}
	if got.ChipMode.ClockDivider() != ClockDividerM0 {
		t.Errorf("clock divider: got %v, want %v", got.ChipMode.ClockDivider(), ClockDividerM0)
	}
	if got.LockValue.IsLocked() || got.LockConfig.IsLocked() {
		t.Errorf("locks: got %v %v, want unlocked", got.LockValue, got.LockConfig)
	}
	if !got.AESEnable.Enabled() {
		t.Error("aes: want enabled")
	}
	if got.SlotConfig[0].Word() != 0x0085 {
		t.Errorf("slot 0: got %#04x, want %#04x", got.SlotConfig[0].Word(), 0x0085)
	}
	if !got.SlotConfig[2].GenKeyEnabled() {
		t.Error("slot 2: want genkey enabled")
	}
	if !got.KeyConfig[0].Private() || got.KeyConfig[0].KeyType() != KeyTypePrivate {
		t.Errorf("key 0: got %+v", got.KeyConfig[0])
	}
	for i := 0; i < 16; i++ {
		if got.SlotLocked.IsLocked(i) {
			t.Errorf("slot %d: want unlocked", i)
		}
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	c := DefaultConfig608()

	b, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != Size {
		t.Fatalf("got %d bytes, want %d", len(b), Size)
	}

	got := b[PermanentOffset608:]
	want := Default608

	if !bytes.Equal(got, want) {
		t.Errorf(" got: %s", hex.Dump(got))
		t.Errorf("want: %s", hex.Dump(want))
	}
}

func TestUnmarshalPartial(t *testing.T) {
	var (
		want = Config608{
			I2CAddress: 0x6a,
			ChipMode:   ChipMode608{Bits: 1},
			SlotConfig: [16]SlotConfig{
				{Bits1: 0x85, Bits2: 0x00},
				{Bits1: 0x82, Bits2: 0x00},
			},
		}
		got Config608
	)
	if err := UnmarshalPartial(Default608[:8], PermanentOffset608, &got); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf(" got: %v", got)
		t.Errorf("want: %v", want)
	}
}

func TestUnmarshalPartialLock(t *testing.T) {
	var got Config608
	if err := UnmarshalPartial([]byte{0x00, 0x00, 0x00, 0x55}, LockOffset, &got); err != nil {
		t.Fatal(err)
	}
	if !got.LockValue.IsLocked() {
		t.Error("data zone: want locked")
	}
	if got.LockConfig.IsLocked() {
		t.Error("config zone: want unlocked")
	}
}

func TestUnmarshalPartialTooLarge(t *testing.T) {
	var got Config608
	if err := UnmarshalPartial(make([]byte, 8), Size-4, &got); err == nil {
		t.Error("want error")
	}
}

func TestClockDivider(t *testing.T) {
	testCases := []struct {
		bits byte
		want ClockDivider
	}{
		{0x00, ClockDividerM0},
		{0x29, ClockDividerM1},
		{0x6c, ClockDividerM2},
	}

	for _, tc := range testCases {
		t.Run(tc.want.String(), func(t *testing.T) {
			if got := (ChipMode608{Bits: tc.bits}).ClockDivider(); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	b, err := json.Marshal(DefaultConfig608())
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["lock_config"] != "unlocked" {
		t.Errorf("lock_config: got %v", m["lock_config"])
	}
	chipMode, ok := m["chip_mode"].(map[string]any)
	if !ok || chipMode["clock_divider"] != "m0" {
		t.Errorf("chip_mode: got %v", m["chip_mode"])
	}
}
