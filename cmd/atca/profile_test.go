package main

import (
	"strings"
	"testing"
	"time"

	"github.com/northvolt/go-atca"
	"periph.io/x/conn/v3/physic"
)

const testProfiles = `
profiles:
  board:
    bus: 1
    addr: "6c"
    speed: 400000
    wake-delay: 2ms
    max-attempts: 5
    command-retries: 0
  kit:
    iface: hid
    dev-identity: tngtls
  sim:
    iface: sim
    reject-concurrent: true
`

func TestReadProfiles(t *testing.T) {
	profiles, err := readProfiles(strings.NewReader(testProfiles))
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 3 {
		t.Fatalf("got %d profiles", len(profiles))
	}

	board := profiles["board"]
	if board.Iface != "i2c" {
		t.Errorf("default iface: got %q", board.Iface)
	}
	if board.Bus != 1 || board.Addr != "6c" {
		t.Errorf("got bus %d addr %q", board.Bus, board.Addr)
	}
	if board.WakeDelay != 2*time.Millisecond {
		t.Errorf("wake delay: got %v", board.WakeDelay)
	}
	if board.CommandRetries == nil || *board.CommandRetries != 0 {
		t.Errorf("command retries: got %v", board.CommandRetries)
	}

	if kit := profiles["kit"]; kit.Iface != "hid" || kit.DevIdentity != "tngtls" {
		t.Errorf("kit: got %+v", kit)
	}
	if !profiles["sim"].RejectConcurrent {
		t.Error("sim: expected reject-concurrent")
	}
}

func TestReadProfilesEmpty(t *testing.T) {
	profiles, err := readProfiles(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 0 {
		t.Errorf("got %d profiles", len(profiles))
	}
}

func TestReadProfilesInvalid(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"unknown field", "profiles:\n  a:\n    baud: 1\n"},
		{"unknown iface", "profiles:\n  a:\n    iface: swi\n"},
		{"bad duration", "profiles:\n  a:\n    wake-delay: soon\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := readProfiles(strings.NewReader(tc.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProfileApply(t *testing.T) {
	retries := 0
	p := profile{
		Speed:            100000,
		WakeDelay:        time.Millisecond,
		MaxAttempts:      4,
		CommandRetries:   &retries,
		ExecMargin:       time.Second,
		RejectConcurrent: true,
	}

	cfg := atca.ConfigATECC608_I2CDefault(nil)
	p.apply(&cfg)

	if cfg.I2C.Speed != 100*physic.KiloHertz {
		t.Errorf("speed: got %v", cfg.I2C.Speed)
	}
	if cfg.WakeDelay != time.Millisecond {
		t.Errorf("wake delay: got %v", cfg.WakeDelay)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("max attempts: got %d", cfg.MaxAttempts)
	}
	if cfg.CommandRetries != 0 {
		t.Errorf("command retries: got %d", cfg.CommandRetries)
	}
	if cfg.ExecMargin != time.Second {
		t.Errorf("exec margin: got %v", cfg.ExecMargin)
	}
	if !cfg.RejectConcurrent {
		t.Error("expected reject concurrent")
	}
}
