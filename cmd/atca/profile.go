package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/northvolt/go-atca"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// profile holds the connection settings of a device.
type profile struct {
	Iface       string `yaml:"iface"`
	Bus         int    `yaml:"bus"`
	Addr        string `yaml:"addr"`
	DevIndex    int    `yaml:"dev-index"`
	DevIdentity string `yaml:"dev-identity"`

	// Speed is the I²C bus clock in Hz.
	Speed            int64         `yaml:"speed"`
	WakeDelay        time.Duration `yaml:"wake-delay"`
	MaxAttempts      int           `yaml:"max-attempts"`
	CommandRetries   *int          `yaml:"command-retries"`
	ExecMargin       time.Duration `yaml:"exec-margin"`
	RejectConcurrent bool          `yaml:"reject-concurrent"`
}

type profileFile struct {
	Profiles map[string]profile `yaml:"profiles"`
}

func defaultProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "atca", "profiles.yaml")
}

func readProfiles(r io.Reader) (map[string]profile, error) {
	var pf profileFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("atca: invalid profiles: %w", err)
	}
	for name, p := range pf.Profiles {
		switch p.Iface {
		case "i2c", "hid", "sim":
		case "":
			p.Iface = "i2c"
			pf.Profiles[name] = p
		default:
			return nil, fmt.Errorf("atca: profile %s: unknown interface %q", name, p.Iface)
		}
	}
	return pf.Profiles, nil
}

func loadProfile(path, name string) (profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return profile{}, err
	}
	defer f.Close()

	profiles, err := readProfiles(f)
	if err != nil {
		return profile{}, err
	}
	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return profile{}, fmt.Errorf("atca: unknown profile %q, have %s", name, strings.Join(names, ", "))
	}
	return p, nil
}

// resolveProfile returns the profile selected by -profile, or one built
// from the connection flags.
func (c *rootConfig) resolveProfile() (profile, error) {
	if c.profile != "" {
		return loadProfile(c.profiles, c.profile)
	}
	return profile{
		Iface:       c.iface,
		Bus:         c.bus,
		Addr:        c.addr,
		DevIndex:    c.devIndex,
		DevIdentity: c.devIdentity,
	}, nil
}

// apply copies the timing and retry settings of p to cfg.
func (p profile) apply(cfg *atca.Config) {
	if p.Speed > 0 {
		cfg.I2C.Speed = physic.Frequency(p.Speed) * physic.Hertz
	}
	if p.WakeDelay > 0 {
		cfg.WakeDelay = p.WakeDelay
	}
	if p.MaxAttempts > 0 {
		cfg.MaxAttempts = p.MaxAttempts
	}
	if p.CommandRetries != nil {
		cfg.CommandRetries = *p.CommandRetries
	}
	if p.ExecMargin > 0 {
		cfg.ExecMargin = p.ExecMargin
	}
	cfg.RejectConcurrent = p.RejectConcurrent
}
