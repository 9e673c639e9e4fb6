package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/northvolt/go-atca"
	"github.com/northvolt/go-atca/ateccconf"
	"github.com/peterbourgon/ff/v3/ffcli"
)

const (
	inputDefault = "default"
	inputHex     = "hex"
	inputJSON    = "json"
	inputDevice  = "device"

	outputGo     = "go"
	outputHex    = "hex"
	outputJSON   = "json"
	outputDevice = "device"
)

var allOutputs = []string{outputGo, outputHex, outputJSON, outputDevice}

type confConfig struct {
	rootConfig *rootConfig
	in         io.Reader
	out        io.Writer
	err        io.Writer
	input      string
	output     string
	dry        bool
	genKeys    bool
	newAddr    string
}

func (c *confConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintf(c.err, "config\n")
	}

	// Only connect to the device when needed, so configurations can be
	// converted between formats without hardware.
	p := provisioner{w: c.out, dry: c.dry}
	if c.input == inputDevice || c.output == outputDevice || c.genKeys {
		d, closer, err := newATCA(ctx, c.rootConfig)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := p.connect(ctx, d); err != nil {
			return err
		}
	}

	conf, err := createProvisionConfig(c.input, c.in, p.deviceConf)
	if err != nil {
		return err
	}

	if c.newAddr != "" {
		addr, err := getI2CAddress(c.newAddr, c.rootConfig.trustPlatformFormat)
		if err != nil {
			return err
		}
		conf.I2CAddress = byte(addr << 1)
	}

	if err := p.emit(ctx, c.output, conf); err != nil {
		return err
	}

	if c.genKeys && p.info.IsDataZoneLocked {
		fmt.Fprintln(c.out, "Generating New Keys")
		return p.keyGen(ctx)
	}
	return nil
}

// provisioner writes a configuration to a device and activates it.
type provisioner struct {
	w   io.Writer
	dry bool

	d          *atca.Dev
	info       *deviceInfo
	deviceConf ateccconf.Config608
}

func (p *provisioner) connect(ctx context.Context, d *atca.Dev) error {
	di, err := getDeviceInfo(ctx, d, 0)
	if err != nil {
		return err
	}
	if err := ateccconf.Unmarshal(di.ConfigZone, &p.deviceConf); err != nil {
		return err
	}
	p.d = d
	p.info = di
	return nil
}

func (p *provisioner) emit(ctx context.Context, output string, conf *ateccconf.Config608) error {
	b, err := ateccconf.Marshal(conf)
	if err != nil {
		return err
	}
	writable := b[ateccconf.PermanentOffset608:]

	switch output {
	case outputHex:
		fmt.Fprintln(p.w, prettyHexIndent(writable, "", " "))
	case outputGo:
		var src strings.Builder
		src.WriteString("[...]byte{")
		for i, v := range writable {
			if i%8 == 0 {
				src.WriteString("\n ")
			}
			fmt.Fprintf(&src, " 0x%02x,", v)
		}
		src.WriteString("\n}")
		fmt.Fprintln(p.w, src.String())
	case outputJSON:
		return writeJSON(p.w, conf)
	case outputDevice:
		return p.provision(ctx, conf, b)
	default:
		return fmt.Errorf("atca: valid outputs are %s", strings.Join(allOutputs, ", "))
	}
	return nil
}

func (p *provisioner) provision(ctx context.Context, conf *ateccconf.Config608, b []byte) error {
	fmt.Fprintln(p.w, "Serial number:")
	fmt.Fprintln(p.w, prettyHex(p.info.SerialNumber))
	fmt.Fprintln(p.w, "Current I2C Address:")
	fmt.Fprintln(p.w, prettyHex([]byte{p.deviceConf.I2CAddress}))
	fmt.Fprintln(p.w, "Provision I2C Address:")
	fmt.Fprintln(p.w, prettyHex([]byte{conf.I2CAddress}))

	if p.dry {
		fmt.Fprintln(p.w, "Configuration:")
		fmt.Fprintln(p.w, prettyHex(b[ateccconf.PermanentOffset608:]))
		fmt.Fprintln(p.w, `
WARNING! This operation is irreversible! Once you lock the configuration to the
device, you will not be able to change it.

To continue with this operation, re-run with -dry=false.`)
		return nil
	}

	fmt.Fprintln(p.w, "\nWriting Configuration")
	if p.info.IsConfigZoneLocked {
		fmt.Fprintln(p.w, "    Locked, skipping")
	} else {
		if err := p.d.WriteConfigZone(ctx, b); err != nil {
			return err
		}
		current, err := p.d.ReadConfigZone(ctx)
		if err != nil {
			return err
		}
		// The factory header is never written.
		if !bytes.Equal(current[ateccconf.PermanentOffset608:], b[ateccconf.PermanentOffset608:]) {
			return fmt.Errorf("configuration read from device does not match")
		}
		if err := p.d.LockConfigZone(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintln(p.w, "\nActivating Configuration")
	if p.info.IsDataZoneLocked {
		fmt.Fprintln(p.w, "    Already active")
		return nil
	}
	if err := p.keyGen(ctx); err != nil {
		return err
	}
	return p.d.LockDataZone(ctx)
}

// keyGen generates key pairs in every private key slot that accepts one.
func (p *provisioner) keyGen(ctx context.Context) error {
	configZone, err := p.d.ReadConfigZone(ctx)
	if err != nil {
		return err
	}
	var conf ateccconf.Config608
	if err := ateccconf.Unmarshal(configZone, &conf); err != nil {
		return err
	}

	for i := 0; i < len(conf.KeyConfig); i++ {
		if !conf.KeyConfig[i].Private() {
			continue
		}
		if reason := genKeyBlocked(&conf, i); reason != "" {
			fmt.Fprintf(p.w, "    Skipping key pair generation in slot %d: %s\n", i, reason)
			continue
		}
		if p.dry {
			fmt.Fprintf(p.w, "    Skipping key pair generation in slot %d: re-run with -dry=false to generate new key\n", i)
			continue
		}

		fmt.Fprintln(p.w, "    Generating key pair in slot", i)
		pub, err := p.d.GenerateKey(ctx, uint16(i))
		if err != nil {
			return err
		}
		pem, err := pemEncodePublicKey(pub)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.w, pem)
	}
	return nil
}

// genKeyBlocked returns why GenKey cannot run on the slot, or an empty
// string. Additional conditions apply once the data zone is locked.
func genKeyBlocked(conf *ateccconf.Config608, slot int) string {
	if !conf.LockValue.IsLocked() {
		return ""
	}
	switch {
	case !conf.SlotConfig[slot].GenKeyEnabled():
		return "GenKey is disabled"
	case conf.SlotLocked.IsLocked(slot):
		return "slot has been locked"
	case conf.KeyConfig[slot].RequireAuth():
		return "slot requires authorization"
	case conf.KeyConfig[slot].PersistentDisable():
		return "slot requires persistent latch"
	}
	return ""
}

// createProvisionConfig creates a configuration for provisioning a device.
func createProvisionConfig(provision string, r io.Reader, deviceConf ateccconf.Config608) (*ateccconf.Config608, error) {
	switch provision {
	case inputDefault:
		return ateccconf.DefaultConfig608(), nil
	case inputHex:
		in, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		b, err := parseHex(string(in))
		if err != nil {
			return nil, err
		}
		var conf ateccconf.Config608
		err = ateccconf.UnmarshalPartial(b, ateccconf.PermanentOffset608, &conf)
		return &conf, err
	case inputJSON:
		var conf ateccconf.Config608
		err := json.NewDecoder(r).Decode(&conf)
		return &conf, err
	case inputDevice:
		return &deviceConf, nil
	default:
		return nil, fmt.Errorf("valid config sources are default, device, hex, json")
	}
}

func newConfCmd(
	rootConfig *rootConfig, in io.Reader, out io.Writer, err io.Writer,
) *ffcli.Command {
	cfg := confConfig{
		rootConfig: rootConfig,
		in:         in,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca config", flag.ExitOnError)
	fs.StringVar(&cfg.input, "input", inputDefault, "Use this input for creating the provisioning configuration of the device: default (built-in), hex (stdin), json (stdin), device (read from device)")
	fs.StringVar(&cfg.output, "output", outputHex, "Use this output for the provisioning configuration: go, hex, json, device (write to device)")
	fs.BoolVar(&cfg.dry, "dry", true, "When disabled, data will be committed to device (this is irreversible!)")
	fs.StringVar(&cfg.newAddr, "new-addr", "", "Change I2C address to this")
	fs.BoolVar(&cfg.genKeys, "gen", false, "Generate new keys")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "config",
		ShortUsage: "config",
		ShortHelp:  "Writes a general purpose configuration to test the hardware.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}
