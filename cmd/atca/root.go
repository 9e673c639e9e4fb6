package main

import (
	"context"
	"flag"

	"github.com/northvolt/go-atca/atcasim"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type rootConfig struct {
	verbose             bool
	iface               string
	bus                 int
	addr                string
	trustPlatformFormat bool
	devIndex            int
	devIdentity         string
	profile             string
	profiles            string
	trace               string
	configFile          string

	// chip is the simulated device used for the sim interface. A new one
	// is created on every connect when nil.
	chip *atcasim.Chip
}

func (c *rootConfig) registerFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "increase log verbosity")
	fs.StringVar(&c.iface, "i", "i2c", "interface type, hid, i2c or sim")
	fs.IntVar(&c.bus, "bus", 0, "i2c bus to use")
	fs.StringVar(&c.addr, "addr", "", "i2c address in hex")
	fs.IntVar(&c.devIndex, "dev-index", 0, "device index when enumerating")
	fs.StringVar(&c.devIdentity, "dev-identity", "", "device identity is the I2C address or the bus number for the SWI interface device")
	fs.BoolVar(&c.trustPlatformFormat, "trust-platform-format", false, "use cryptoauthlib trust platform format instead of default common format")
	fs.StringVar(&c.profile, "profile", "", "named device profile to connect with")
	fs.StringVar(&c.profiles, "profiles", defaultProfilesPath(), "yaml file holding device profiles")
	fs.StringVar(&c.trace, "trace", "", "record all frames exchanged with the device to this file")
	fs.StringVar(&c.configFile, "config-file", "", "read flags from this file")
}

func (c *rootConfig) Exec(context.Context, []string) error {
	return flag.ErrHelp
}

// parseOptions makes every flag settable from ATCA_ environment variables
// and from a plain config file.
func parseOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix("ATCA"),
		ff.WithConfigFileFlag("config-file"),
		ff.WithConfigFileParser(ff.PlainParser),
	}
}

func newRootCmd() (*ffcli.Command, *rootConfig) {
	var cfg rootConfig

	fs := flag.NewFlagSet("atca", flag.ExitOnError)
	cfg.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "atca",
		ShortUsage: "atca [flags] <subcommand>",
		ShortHelp:  "Utilities to start developing and using your ATECC608 device.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	}), &cfg
}

var atcaLongHelp = `

GENERAL
If you use one of the dev kits with multiple secure elements, specify the device
identity to choose a specific element. Specify it similar to a I²C address or
use one of the common names for the configurations:

  TNGTLS     0x35 (0x6a)
  TFLXTLS    0x36 (0x6c)
  MAHDA      0x60 (0xc0)

Flags can also be set with environment variables prefixed by ATCA_, for
example ATCA_BUS=1, or in the file given by -config-file.

PROFILES
Connection settings can be stored as named profiles in a yaml file and
selected with -profile:

  profiles:
    pi:
      iface: i2c
      bus: 1
      addr: "0x60"
      speed: 400000
      wake-delay: 1500us
    kit:
      iface: hid
      dev-identity: TFLXTLS`
