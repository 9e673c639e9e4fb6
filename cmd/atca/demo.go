package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

var errSkipped = errors.New("skipped after an earlier failure")

// demoPolicy continues past commands the device rejects, for example on a
// device without locked zones, and past steps depending on them.
var demoPolicy = atca.Policy{
	Rules: []atca.Rule{
		{Err: atca.ErrDeviceRejected, Action: atca.Continue},
		{Err: errSkipped, Action: atca.Continue},
	},
	Default: atca.Abort,
}

type demoConfig struct {
	rootConfig *rootConfig
	out        io.Writer
	err        io.Writer
	aead       bool
	abort      bool
}

type demoStep struct {
	name string
	run  func(ctx context.Context) error
}

// demo holds the results passed between steps.
type demo struct {
	d   *atca.Dev
	out io.Writer

	digest [32]byte
	pub    [4]*ecdsa.PublicKey
}

func (c *demoConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "demo")
	}

	// Failing to open always aborts.
	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	policy := demoPolicy
	if c.abort {
		policy = atca.AbortOnError
	}

	m := &demo{d: d, out: c.out}
	steps := m.cryptoSteps()
	if c.aead {
		steps = m.aeadSteps()
	}
	return m.run(ctx, policy, steps)
}

func (m *demo) run(ctx context.Context, policy atca.Policy, steps []demoStep) error {
	var failed int
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil {
			continue
		}
		failed++
		fmt.Fprintf(m.out, "%s: %v\n", s.name, err)
		if policy.Decide(err) == atca.Abort {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if failed > 0 {
		fmt.Fprintf(m.out, "%d of %d steps failed\n", failed, len(steps))
	}
	return nil
}

func (m *demo) cryptoSteps() []demoStep {
	return []demoStep{
		{"info", m.info},
		{"slot config", m.slotConfig},
		{"random", m.random},
		{"sha256", m.sha256("helloworld")},
		{"genkey 0", m.genKey(0)},
		{"sign", m.sign(0)},
		{"genkey 1", m.genKey(1)},
		{"genkey 2", m.genKey(2)},
		{"ecdh", m.ecdh(1, 2)},
	}
}

func (m *demo) aeadSteps() []demoStep {
	return []demoStep{
		{"info", m.info},
		{"genkey 0", m.genKey(0)},
		{"genkey 1", m.genKey(1)},
		{"genkey 2", m.genKey(2)},
		{"genkey 3", m.genKey(3)},
		{"sha256", m.sha256("helloworld")},
		{"sign", m.sign(1)},
		{"ecdh tempkey", m.ecdhTempKey(3, 2)},
		{"kdf", m.hkdfTempKey},
		{"aes-gcm", m.gcm},
	}
}

func (m *demo) info(ctx context.Context) error {
	rev, err := m.d.Revision(ctx)
	if err != nil {
		return err
	}
	sn, err := m.d.SerialNumber(ctx)
	if err != nil {
		return err
	}
	configLocked, err := m.d.IsConfigZoneLocked(ctx)
	if err != nil {
		return err
	}
	dataLocked, err := m.d.IsDataZoneLocked(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "rev %X S/N %X, zone lock status: %s, %s\n",
		rev, sn, yesNo(configLocked), yesNo(dataLocked))
	return nil
}

func (m *demo) slotConfig(ctx context.Context) error {
	slots, err := m.d.SlotConfigs(ctx)
	if err != nil {
		return err
	}
	for i, sc := range slots[:8] {
		fmt.Fprintf(m.out, "Slot[%d] config: %04x\n", i, sc.Word())
	}
	return nil
}

func (m *demo) random(ctx context.Context) error {
	rnd, err := m.d.RandomBytes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Random number: %x\n", rnd)
	return nil
}

func (m *demo) sha256(msg string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		digest, err := m.d.SHA256(ctx, []byte(msg))
		if err != nil {
			return err
		}
		m.digest = digest
		fmt.Fprintf(m.out, "Digest of %s is: %x\n", msg, digest)
		return nil
	}
}

func (m *demo) genKey(slot uint16) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		pub, err := m.d.GenerateKey(ctx, slot)
		if err != nil {
			return err
		}
		m.pub[slot] = pub
		fmt.Fprintf(m.out, "Generated public key in slot %d is: {X:%x, Y:%x}\n",
			slot, pub.X.FillBytes(make([]byte, 32)), pub.Y.FillBytes(make([]byte, 32)))
		return nil
	}
}

func (m *demo) sign(slot uint16) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if m.pub[slot] == nil {
			return errSkipped
		}
		sig, err := m.d.SignDigest(ctx, slot, m.digest[:])
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "Signature of digest is: {R:%x, S:%x}\n", sig[:32], sig[32:])
		return nil
	}
}

func (m *demo) ecdh(alice, bob uint16) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if m.pub[alice] == nil || m.pub[bob] == nil {
			return errSkipped
		}
		s1, err := m.d.ECDH(ctx, alice, rawPublicKey(m.pub[bob]))
		if err != nil {
			return err
		}
		s2, err := m.d.ECDH(ctx, bob, rawPublicKey(m.pub[alice]))
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "Computed ECDH premaster secret of Alice is: %x\n", s1)
		fmt.Fprintf(m.out, "Computed ECDH premaster secret of Bob is: %x\n", s2)
		if !bytes.Equal(s1[:], s2[:]) {
			return fmt.Errorf("premaster secrets differ")
		}
		return nil
	}
}

func (m *demo) ecdhTempKey(slot, peer uint16) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if m.pub[peer] == nil {
			return errSkipped
		}
		return m.d.ECDHTempKey(ctx, slot, rawPublicKey(m.pub[peer]))
	}
}

func (m *demo) hkdfTempKey(ctx context.Context) error {
	input := make([]byte, 16)
	for i := range input {
		input[i] = byte(i)
	}
	_, err := m.d.KDF(ctx, atca.KDFParams{
		Algorithm: atca.KDFAlgHKDF,
		Source:    atca.KDFSourceTempKey,
		Target:    atca.KDFTargetTempKey,
		Details:   atca.KDFHKDFMsgLocInput,
		Message:   input,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, "Derived key stored in TempKey")
	return nil
}

func (m *demo) gcm(ctx context.Context) error {
	g, iv, err := m.d.GCMInitRand(ctx, atca.KeyIDTempKey, 0)
	if err != nil {
		return err
	}
	if err := g.AADUpdate(ctx, []byte("authenticated")); err != nil {
		return err
	}
	ciphertext, err := g.EncryptUpdate(ctx, []byte("helloworldhellow"))
	if err != nil {
		return err
	}
	tag, err := g.EncryptFinish(ctx, atca.GCMTagSizeMin)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "IV: %s\nCiphertext: %s\nTag: %s\n",
		hex.EncodeToString(iv), hex.EncodeToString(ciphertext), hex.EncodeToString(tag))
	return nil
}

func rawPublicKey(pub *ecdsa.PublicKey) []byte {
	b := make([]byte, 64)
	pub.X.FillBytes(b[:32])
	pub.Y.FillBytes(b[32:])
	return b
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newDemoCmd(rootConfig *rootConfig, out io.Writer, err io.Writer) *ffcli.Command {
	cfg := demoConfig{
		rootConfig: rootConfig,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca demo", flag.ExitOnError)
	fs.BoolVar(&cfg.aead, "aead", false, "run the key agreement and AES-GCM sequence instead")
	fs.BoolVar(&cfg.abort, "abort", false, "stop at the first failing step")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "demo",
		ShortUsage: "demo [-aead]",
		ShortHelp:  "Runs a sequence of operations showing the hardware capabilities.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
