package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/template"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type infoConfig struct {
	rootConfig *rootConfig
	out        io.Writer
	err        io.Writer
	json       bool
	key        int
}

func (c *infoConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintf(c.err, "info\n")
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	di, err := getDeviceInfo(ctx, d, uint16(c.key))
	if err != nil {
		return err
	}

	if c.json {
		return writeJSON(c.out, di)
	}
	return writeText(c.out, di)
}

const deviceInfoTemplate = `
Device Part:
    {{ .Name }} (revision {{ printf "%X" .Revision }})

Serial number:
{{ hex .SerialNumber }}

Configuration Zone:
{{ hex .ConfigZone }}

Slot Configuration:
{{- range $i, $sc := .SlotConfig }}
    Slot[{{ $i }}] config: {{ printf "%04x" $sc }}
{{- end }}

Check Device Locks
    Config Zone is {{ locked .IsConfigZoneLocked }}
    Data Zone is {{ locked .IsDataZoneLocked }}

{{ if .PublicKey -}}
{{ .PublicKey -}}
{{- end }}
Done
`

func writeText(w io.Writer, di *deviceInfo) error {
	funcs := template.FuncMap{
		"hex": prettyHex,
		"locked": func(b bool) string {
			if b {
				return "locked"
			}
			return "unlocked"
		},
	}
	t, err := template.New("info").Funcs(funcs).Parse(deviceInfoTemplate)
	if err != nil {
		return err
	}

	return t.Execute(w, di)
}

func writeJSON(w io.Writer, data any) error {
	j, err := json.MarshalIndent(data, "", " ")
	if err != nil {
		return err
	}
	_, err = w.Write(j)
	return err
}

func newInfoCmd(
	rootConfig *rootConfig, out io.Writer, err io.Writer,
) *ffcli.Command {
	cfg := infoConfig{
		rootConfig: rootConfig,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca info", flag.ExitOnError)
	fs.BoolVar(&cfg.json, "json", false, "output in json mode")
	fs.IntVar(&cfg.key, "key", 0, "slot of the public key shown once the data zone is locked")
	rootConfig.registerFlags(fs)

	return addLongHelp(&ffcli.Command{
		Name:       "info",
		ShortUsage: "info",
		ShortHelp:  "Returns information about the hardware security module.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	})
}

type deviceInfo struct {
	Name               string   `json:"name"`
	Revision           []byte   `json:"revision"`
	SerialNumber       []byte   `json:"serial_number"`
	ConfigZone         []byte   `json:"config_zone"`
	SlotConfig         []uint16 `json:"slot_config"`
	IsConfigZoneLocked bool     `json:"is_config_zone_locked"`
	IsDataZoneLocked   bool     `json:"is_data_zone_locked"`
	PublicKey          string   `json:"public_key,omitempty"`
}

func getDeviceInfo(ctx context.Context, d *atca.Dev, key uint16) (*deviceInfo, error) {
	var di = &deviceInfo{}

	info, err := d.Revision(ctx)
	if err != nil {
		return nil, err
	}
	di.Revision = info
	deviceType, err := atca.DeviceTypeFromInfo(info)
	if err != nil {
		return di, err
	}
	di.Name = deviceType.String()

	di.SerialNumber, err = d.SerialNumber(ctx)
	if err != nil {
		return di, err
	}

	di.ConfigZone, err = d.ReadConfigZone(ctx)
	if err != nil {
		return di, err
	}

	slots, err := d.SlotConfigs(ctx)
	if err != nil {
		return di, err
	}
	for _, sc := range slots {
		di.SlotConfig = append(di.SlotConfig, sc.Word())
	}

	di.IsConfigZoneLocked, err = d.IsLocked(ctx, atca.ZoneConfig)
	if err != nil {
		return di, err
	}

	di.IsDataZoneLocked, err = d.IsLocked(ctx, atca.ZoneData)
	if err != nil {
		return di, err
	}

	if di.IsDataZoneLocked {
		pk, err := d.PublicKey(ctx, key)
		if err != nil {
			return nil, err
		}

		pub, err := pemEncodePublicKey(pk)
		if err != nil {
			return nil, err
		}

		di.PublicKey = pub
	}

	return di, nil
}
