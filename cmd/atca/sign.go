package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type signConfig struct {
	rootConfig *rootConfig
	in         io.Reader
	out        io.Writer
	err        io.Writer
	key        int
	signer     string
	verifier   string
	gen        bool
}

func (c *signConfig) Exec(ctx context.Context, _ []string) error {
	var (
		signDevice   = c.signer == "device"
		verifyDevice = c.verifier == "device"
	)
	if c.rootConfig.verbose {
		fmt.Fprintf(c.err, "sign\n")
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	if (signDevice || verifyDevice) && !c.gen {
		if locked, err := d.IsLocked(ctx, atca.ZoneConfig); err != nil {
			return err
		} else if !locked {
			return fmt.Errorf("sign: device need to be locked before using it")
		}
	}

	var (
		priv *ecdsa.PrivateKey
		pub  crypto.PublicKey
	)
	switch {
	case signDevice && c.gen:
		pub, err = d.GenerateKey(ctx, uint16(c.key))
	case signDevice:
		pub, err = d.PublicKey(ctx, uint16(c.key))
	default:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err == nil {
			pub = priv.Public()
		}
	}
	if err != nil {
		return err
	}

	pemPubKey, err := pemEncodePublicKey(pub)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Signing Public Key:")
	fmt.Fprintln(c.out, pemPubKey)

	h := sha256.New()
	if _, err := io.Copy(h, c.in); err != nil {
		return err
	}

	message := h.Sum(nil)
	fmt.Fprintln(c.out, "\nMessage Digest:")
	fmt.Fprintln(c.out, prettyHex(message))

	fmt.Fprintln(c.out, "\nSignature:")
	var signature []byte
	if signDevice {
		fmt.Fprintln(c.out, "    Signing with device")
		if signature, err = d.Sign(ctx, uint16(c.key), message); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(c.out, "    Signing with host")
		signature, err = priv.Sign(rand.Reader, message, nil)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(c.out, prettyHex(signature))

	var verified bool
	fmt.Fprintln(c.out, "\nVerifying the signature:")
	if verifyDevice {
		fmt.Fprintln(c.out, "    Verifying with device")
		verified, err = d.VerifyExtern(ctx, message, signature, pub)
	} else {
		verified = ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), message, signature)
	}
	if err != nil {
		return err
	} else if verified {
		fmt.Fprintln(c.out, "    Signature is valid")
	} else {
		fmt.Fprintln(c.out, "    Signature is invalid")
	}

	return nil
}

func newSignCmd(
	rootConfig *rootConfig, in io.Reader, out io.Writer, err io.Writer,
) *ffcli.Command {
	cfg := signConfig{
		rootConfig: rootConfig,
		in:         in,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca sign", flag.ExitOnError)
	fs.IntVar(&cfg.key, "key", 0, "key id (slot number)")
	fs.StringVar(&cfg.signer, "signer", "device", "generate signature on device or host")
	fs.StringVar(&cfg.verifier, "verifier", "host", "verify signature on device or host")
	fs.BoolVar(&cfg.gen, "gen", false, "generate a new key in the slot before signing, also on unlocked devices")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "sign",
		ShortUsage: "sign < message",
		ShortHelp:  "Signs and verifies the signature using the hardware.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
