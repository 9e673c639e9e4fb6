/*
atca is a tool to communicate with the hardware security module.

It supports ATECC608 devices connected over I²C, through a USB HID kit, or
a built-in simulator.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
)

func main() {
	var (
		in  = os.Stdin
		out = os.Stdout
		err = os.Stderr
	)

	rootCmd, cfg := newRootCmd()
	rootCmd.Subcommands = []*ffcli.Command{
		newConfCmd(cfg, in, out, err),
		newInfoCmd(cfg, out, err),
		newRandCmd(cfg, out, err),
		newSignCmd(cfg, in, out, err),
		newECDHCmd(cfg, out, err),
		newKDFCmd(cfg, in, out, err),
		newAEADCmd(cfg, in, out, err),
		newDemoCmd(cfg, out, err),
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		var num = 0
		for range c {
			num += 1
			if num >= 3 {
				os.Exit(1)
			} else {
				cancel()
			}
		}
	}()

	if err := rootCmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		} else if !errors.Is(err, context.Canceled) {
			libPrefix := "atca: "
			msg := strings.TrimPrefix(err.Error(), libPrefix)
			fmt.Fprintf(os.Stderr, "%s: %s\n", rootCmd.Name, msg)
			os.Exit(1)
		} else if cfg.verbose {
			fmt.Fprintf(os.Stderr, "%s: cancelled\n", rootCmd.Name)
		}
	}
}
