package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type aeadConfig struct {
	rootConfig *rootConfig
	in         io.Reader
	out        io.Writer
	err        io.Writer
	decrypt    bool
	slot       int
	block      uint
	key        string
	iv         string
	aad        string
	tag        string
	tagSize    int
}

func (c *aeadConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "aead")
	}

	in, err := io.ReadAll(c.in)
	if err != nil {
		return err
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	var keyID uint16 = atca.KeyIDTempKey
	if c.slot >= 0 {
		keyID = uint16(c.slot)
	}
	if c.key != "" {
		key, err := parseHex(c.key)
		if err != nil {
			return err
		}
		if err := d.NonceLoad(ctx, key); err != nil {
			return err
		}
	}

	if c.decrypt {
		return c.open(ctx, d, keyID, in)
	}
	return c.seal(ctx, d, keyID, in)
}

func (c *aeadConfig) init(ctx context.Context, d *atca.Dev, keyID uint16) (*atca.GCMContext, []byte, error) {
	if c.iv == "" {
		if c.decrypt {
			return nil, nil, fmt.Errorf("aead: decryption requires -iv")
		}
		return d.GCMInitRand(ctx, keyID, uint8(c.block))
	}
	iv, err := parseHex(c.iv)
	if err != nil {
		return nil, nil, err
	}
	g, err := d.GCMInit(ctx, keyID, uint8(c.block), iv)
	return g, iv, err
}

func (c *aeadConfig) seal(ctx context.Context, d *atca.Dev, keyID uint16, plaintext []byte) error {
	g, iv, err := c.init(ctx, d, keyID)
	if err != nil {
		return err
	}
	if err := g.AADUpdate(ctx, []byte(c.aad)); err != nil {
		return err
	}
	ciphertext, err := g.EncryptUpdate(ctx, plaintext)
	if err != nil {
		return err
	}
	tag, err := g.EncryptFinish(ctx, c.tagSize)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "IV:")
	fmt.Fprintln(c.out, prettyHex(iv))
	fmt.Fprintln(c.out, "\nCiphertext:")
	fmt.Fprintln(c.out, prettyHex(ciphertext))
	fmt.Fprintln(c.out, "\nTag:")
	fmt.Fprintln(c.out, prettyHex(tag))
	return nil
}

func (c *aeadConfig) open(ctx context.Context, d *atca.Dev, keyID uint16, in []byte) error {
	ciphertext, err := parseHex(string(in))
	if err != nil {
		return err
	}
	tag, err := parseHex(c.tag)
	if err != nil {
		return err
	}

	g, _, err := c.init(ctx, d, keyID)
	if err != nil {
		return err
	}
	if err := g.AADUpdate(ctx, []byte(c.aad)); err != nil {
		return err
	}
	plaintext, err := g.DecryptUpdate(ctx, ciphertext)
	if err != nil {
		return err
	}
	ok, err := g.DecryptFinish(ctx, tag)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aead: message authentication failed")
	}
	_, err = c.out.Write(plaintext)
	return err
}

func newAEADCmd(
	rootConfig *rootConfig, in io.Reader, out io.Writer, err io.Writer,
) *ffcli.Command {
	cfg := aeadConfig{
		rootConfig: rootConfig,
		in:         in,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca aead", flag.ExitOnError)
	fs.BoolVar(&cfg.decrypt, "decrypt", false, "decrypt hex ciphertext from stdin instead of encrypting stdin")
	fs.IntVar(&cfg.slot, "slot", -1, "slot of the AES key, TempKey if negative")
	fs.UintVar(&cfg.block, "block", 0, "16 byte key block within the slot")
	fs.StringVar(&cfg.key, "key", "", "load this hex key into TempKey first")
	fs.StringVar(&cfg.iv, "iv", "", "IV as hex, generated by the device when encrypting if empty")
	fs.StringVar(&cfg.aad, "aad", "", "additional authenticated data")
	fs.StringVar(&cfg.tag, "tag", "", "authentication tag as hex when decrypting")
	fs.IntVar(&cfg.tagSize, "tag-size", atca.GCMTagSizeMax, "tag size in bytes when encrypting")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "aead",
		ShortUsage: "aead [-decrypt] < data",
		ShortHelp:  "Encrypts or decrypts with AES-GCM using a key on the hardware.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
