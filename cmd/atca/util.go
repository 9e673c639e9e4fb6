package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/atcasim"
	"github.com/northvolt/go-atca/trace"
	"github.com/peterbourgon/ff/v3/ffcli"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	defaultI2CAddress     = 0x60
	defaultDeviceIdentity = 0
)

// closers closes all of its elements in order.
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newATCA connects to the device selected by c. The closer closes the
// handle followed by the transport.
func newATCA(ctx context.Context, c *rootConfig) (*atca.Dev, io.Closer, error) {
	p, err := c.resolveProfile()
	if err != nil {
		return nil, nil, err
	}

	var (
		hal  atca.HAL
		cfg  atca.Config
		tail closers
	)
	switch p.Iface {
	case "i2c":
		hal, cfg, tail, err = newI2CHAL(p, c.trustPlatformFormat)
	case "hid":
		hal, cfg, tail, err = newHIDHAL(ctx, p, c.trustPlatformFormat)
	case "sim":
		if c.chip == nil {
			hal = atcasim.New()
		} else {
			hal = c.chip
		}
		cfg = atca.Config{IfaceType: atca.IfaceCustom, DeviceType: atca.DeviceATECC608}
	default:
		err = errors.New("atca: unknown interface")
	}
	if err != nil {
		return nil, nil, err
	}
	p.apply(&cfg)
	cfg.Debug = newLogger(c.verbose)

	if c.trace != "" {
		f, err := os.Create(c.trace)
		if err != nil {
			_ = tail.Close()
			return nil, nil, err
		}
		rec := trace.NewRecorder(f)
		hal = trace.NewHAL(hal, rec)
		tail = append(tail, rec)
	}

	d, err := atca.Open(ctx, hal, cfg)
	if err != nil {
		_ = tail.Close()
		return nil, nil, err
	}
	return d, append(closers{d}, tail...), nil
}

func newI2CHAL(p profile, trustPlatformFormat bool) (atca.HAL, atca.Config, closers, error) {
	i2cAddress, err := getI2CAddress(p.Addr, trustPlatformFormat)
	if err != nil {
		return nil, atca.Config{}, nil, err
	}

	if _, err = host.Init(); err != nil {
		return nil, atca.Config{}, nil, err
	}
	bus, err := i2creg.Open(strconv.Itoa(p.Bus))
	if err != nil {
		return nil, atca.Config{}, nil, fmt.Errorf("atca: failed to connect to bus: %w", err)
	}

	cfg := atca.ConfigATECC608_I2CDefault(bus)
	cfg.I2C.Address = i2cAddress
	p.apply(&cfg)
	hal, err := atca.NewI2CHAL(cfg)
	if err != nil {
		_ = bus.Close()
		return nil, atca.Config{}, nil, err
	}
	return hal, cfg, closers{bus}, nil
}

func newHIDHAL(ctx context.Context, p profile, trustPlatformFormat bool) (atca.HAL, atca.Config, closers, error) {
	identity, err := getHIDDeviceIdentity(p.DevIdentity, trustPlatformFormat)
	if err != nil {
		return nil, atca.Config{}, nil, err
	}

	cfg := atca.ConfigATECC608_KitHIDDefault()
	cfg.HID.DevIndex = p.DevIndex
	cfg.HID.DevIdentity = identity

	hal, closer, err := atca.NewHIDHAL(ctx, cfg)
	if err != nil {
		return nil, atca.Config{}, nil, err
	}
	return hal, cfg, closers{closer}, nil
}

func getI2CAddress(addrStr string, trustPlatformFormat bool) (uint16, error) {
	if addrStr == "" {
		return defaultI2CAddress, nil
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 16)
	if err != nil {
		return 0, err
	}

	if trustPlatformFormat {
		return uint16(addr >> 1), nil
	}
	return uint16(addr), nil
}

func hidDeviceIdentityFromName(idStr string) (uint16, error) {
	switch strings.ToUpper(idStr) {
	case "TNGTLS":
		return 0x35, nil
	case "TFLXTLS":
		return 0x36, nil
	case "MAHDA":
		return 0x60, nil
	default:
		return 0, errors.New("atca: unknown HID device identity")
	}
}

func getHIDDeviceIdentity(idStr string, trustPlatformFormat bool) (uint8, error) {
	if idStr == "" {
		return defaultDeviceIdentity, nil
	}
	id, err := hidDeviceIdentityFromName(idStr)
	if err != nil {
		id64, err := strconv.ParseUint(strings.TrimPrefix(idStr, "0x"), 16, 16)
		if err != nil {
			return 0, err
		}
		id = uint16(id64)
	}

	if trustPlatformFormat {
		return uint8(id), nil
	}
	return uint8(id << 1), nil
}

// parseHex decodes a hex string, ignoring whitespace and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func prettyHex(data []byte) string {
	return prettyHexIndent(data, "    ", "")
}

func prettyHexIndent(data []byte, prefix string, space string) string {
	var buf strings.Builder

	// prefix and space every 16 byte, and 2 hex, and one space/newline
	cols := 16
	size := (len(data)/cols+1)*(len(prefix)+len(space)+1) + len(data)*3
	buf.Grow(size)

	for i := range data {
		if i > 0 {
			switch i % cols {
			case 0:
				buf.WriteByte('\n')
			case cols / 2:
				buf.WriteByte(' ')
				buf.WriteString(space)
			default:
				buf.WriteByte(' ')
			}
		}
		if i%cols == 0 {
			buf.WriteString(prefix)
		}

		fmt.Fprintf(&buf, "%02X", data[i])
	}

	return buf.String()
}

func pemEncodePublicKey(pk crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pk)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})), nil
}

// devicePublicKey returns the public key of slot, generating a new key pair
// first when gen is set.
func devicePublicKey(ctx context.Context, d *atca.Dev, slot uint16, gen bool) (*ecdsa.PublicKey, error) {
	if gen {
		return d.GenerateKey(ctx, slot)
	}
	return d.PublicKey(ctx, slot)
}

func addLongHelp(cmd *ffcli.Command) *ffcli.Command {
	if cmd.LongHelp == "" {
		cmd.LongHelp = cmd.ShortHelp
	}

	cmd.LongHelp += atcaLongHelp

	return cmd
}

func newLogger(verbose bool) atca.Logger {
	if verbose {
		return log.New(os.Stderr, "", 0)
	}
	return nil
}
