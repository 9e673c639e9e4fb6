package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

var (
	kdfAlgorithms = map[string]atca.KDFAlgorithm{
		"hkdf": atca.KDFAlgHKDF,
		"aes":  atca.KDFAlgAES,
		"prf":  atca.KDFAlgPRF,
	}
	kdfSources = map[string]atca.KDFSource{
		"tempkey":   atca.KDFSourceTempKey,
		"tempkeyup": atca.KDFSourceTempKeyUp,
		"slot":      atca.KDFSourceSlot,
		"altkeybuf": atca.KDFSourceAltKeyBuf,
	}
	kdfTargets = map[string]atca.KDFTarget{
		"tempkey":   atca.KDFTargetTempKey,
		"tempkeyup": atca.KDFTargetTempKeyUp,
		"slot":      atca.KDFTargetSlot,
		"altkeybuf": atca.KDFTargetAltKeyBuf,
		"output":    atca.KDFTargetOutput,
	}
)

type kdfConfig struct {
	rootConfig *rootConfig
	in         io.Reader
	out        io.Writer
	err        io.Writer
	alg        string
	source     string
	sourceKey  int
	target     string
	targetKey  int
	key        string
	msg        string
}

func (c *kdfConfig) params() (atca.KDFParams, error) {
	p := atca.KDFParams{
		SourceKeyID: uint16(c.sourceKey),
		TargetKeyID: uint16(c.targetKey),
	}
	var ok bool
	if p.Algorithm, ok = kdfAlgorithms[strings.ToLower(c.alg)]; !ok {
		return p, fmt.Errorf("kdf: unknown algorithm %q", c.alg)
	}
	if p.Source, ok = kdfSources[strings.ToLower(c.source)]; !ok {
		return p, fmt.Errorf("kdf: unknown source %q", c.source)
	}
	if p.Target, ok = kdfTargets[strings.ToLower(c.target)]; !ok {
		return p, fmt.Errorf("kdf: unknown target %q", c.target)
	}

	msg := c.msg
	if msg == "" {
		b, err := io.ReadAll(c.in)
		if err != nil {
			return p, err
		}
		msg = string(b)
	}
	var err error
	if p.Message, err = parseHex(msg); err != nil {
		return p, err
	}
	if p.Algorithm == atca.KDFAlgHKDF {
		p.Details = atca.KDFHKDFMsgLocInput
	}
	return p, nil
}

func (c *kdfConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "kdf")
	}

	p, err := c.params()
	if err != nil {
		return err
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	if c.key != "" {
		key, err := parseHex(c.key)
		if err != nil {
			return err
		}
		if err := d.NonceLoad(ctx, key); err != nil {
			return err
		}
	}

	out, err := d.KDF(ctx, p)
	if err != nil {
		return err
	}
	if out == nil {
		fmt.Fprintf(c.out, "Derived key written to %s\n", c.target)
		return nil
	}
	fmt.Fprintln(c.out, "Derived Key:")
	fmt.Fprintln(c.out, prettyHex(out))
	return nil
}

func newKDFCmd(
	rootConfig *rootConfig, in io.Reader, out io.Writer, err io.Writer,
) *ffcli.Command {
	cfg := kdfConfig{
		rootConfig: rootConfig,
		in:         in,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca kdf", flag.ExitOnError)
	fs.StringVar(&cfg.alg, "alg", "hkdf", "algorithm: hkdf, aes, prf")
	fs.StringVar(&cfg.source, "source", "tempkey", "input key: tempkey, tempkeyup, slot, altkeybuf")
	fs.IntVar(&cfg.sourceKey, "source-key", 0, "slot of the input key when the source is slot")
	fs.StringVar(&cfg.target, "target", "output", "derived key: output, tempkey, tempkeyup, slot, altkeybuf")
	fs.IntVar(&cfg.targetKey, "target-key", 0, "slot of the derived key when the target is slot")
	fs.StringVar(&cfg.key, "key", "", "load this hex key into TempKey first")
	fs.StringVar(&cfg.msg, "msg", "", "message as hex, read from stdin if empty")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "kdf",
		ShortUsage: "kdf [-msg hex | < hex]",
		ShortHelp:  "Derives a key using the hardware.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
