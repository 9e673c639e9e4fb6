package main

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"github.com/peterbourgon/ff/v3/ffcli"
)

type ecdhConfig struct {
	rootConfig *rootConfig
	out        io.Writer
	err        io.Writer
	key        int
	gen        bool
	pub        string
}

func (c *ecdhConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "ecdh")
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	slot := uint16(c.key)
	devicePub, err := devicePublicKey(ctx, d, slot, c.gen)
	if err != nil {
		return err
	}
	pemPubKey, err := pemEncodePublicKey(devicePub)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Device Public Key:")
	fmt.Fprintln(c.out, pemPubKey)

	// With a peer key given only the device side can be computed.
	if c.pub != "" {
		peer, err := parseHex(c.pub)
		if err != nil {
			return err
		}
		if len(peer) == 65 && peer[0] == 0x04 {
			peer = peer[1:]
		}
		pms, err := d.ECDH(ctx, slot, peer)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "\nPremaster Secret:")
		fmt.Fprintln(c.out, prettyHex(pms[:]))
		return nil
	}

	hostKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	hostPub := hostKey.PublicKey().Bytes()
	fmt.Fprintln(c.out, "\nHost Public Key:")
	fmt.Fprintln(c.out, prettyHex(hostPub[1:]))

	pms, err := d.ECDH(ctx, slot, hostPub[1:])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "\nDevice Premaster Secret:")
	fmt.Fprintln(c.out, prettyHex(pms[:]))

	ecdhPub, err := devicePub.ECDH()
	if err != nil {
		return err
	}
	hostPMS, err := hostKey.ECDH(ecdhPub)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "\nHost Premaster Secret:")
	fmt.Fprintln(c.out, prettyHex(hostPMS))

	if !bytes.Equal(pms[:], hostPMS) {
		return fmt.Errorf("ecdh: premaster secrets differ")
	}
	fmt.Fprintln(c.out, "\nPremaster secrets match")
	return nil
}

func newECDHCmd(rootConfig *rootConfig, out io.Writer, err io.Writer) *ffcli.Command {
	cfg := ecdhConfig{
		rootConfig: rootConfig,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca ecdh", flag.ExitOnError)
	fs.IntVar(&cfg.key, "key", 0, "key id (slot number) of the private key")
	fs.BoolVar(&cfg.gen, "gen", false, "generate a new key in the slot first")
	fs.StringVar(&cfg.pub, "pub", "", "peer public key as hex (X||Y), a host key is generated if empty")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "ecdh",
		ShortUsage: "ecdh",
		ShortHelp:  "Computes an ECDH premaster secret using a private key on the hardware.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
