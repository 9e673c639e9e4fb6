package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/northvolt/go-atca"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type randConfig struct {
	rootConfig *rootConfig
	out        io.Writer
	err        io.Writer
	bytes      int64
	timeout    time.Duration
	retries    int
	abort      bool
}

func (c *randConfig) Exec(ctx context.Context, _ []string) error {
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "random")
	}

	d, closer, err := newATCA(ctx, c.rootConfig)
	if err != nil {
		return err
	}
	defer closer.Close()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	policy := atca.ContinueOnRejection
	if c.abort {
		policy = atca.AbortOnError
	}

	written, rejected, err := c.copyRandom(ctx, d, policy)
	if c.rootConfig.verbose {
		fmt.Fprintln(c.err, "wrote", written, "rejected", rejected)
	}
	return err
}

// copyRandom writes blocks from the device to c.out until c.bytes are
// written or ctx is done. A timeout ends an unbounded read without error.
func (c *randConfig) copyRandom(ctx context.Context, d *atca.Dev, policy atca.Policy) (written int64, rejected int, err error) {
	for c.bytes <= 0 || written < c.bytes {
		rnd, err := d.RandomBytes(ctx)
		if ctx.Err() != nil {
			if c.bytes <= 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return written, rejected, nil
			}
			return written, rejected, fmt.Errorf("random: stopped after %d of %d bytes: %w", written, c.bytes, ctx.Err())
		}
		if policy.Decide(err) == atca.Abort {
			return written, rejected, fmt.Errorf("random: %w", err)
		}
		if err != nil {
			rejected++
			if rejected > c.retries {
				return written, rejected, fmt.Errorf("random: %d rejected reads: %w", rejected, err)
			}
			continue
		}

		b := rnd[:]
		if c.bytes > 0 && int64(len(b)) > c.bytes-written {
			b = b[:c.bytes-written]
		}
		n, err := c.out.Write(b)
		written += int64(n)
		if err != nil {
			return written, rejected, err
		}
	}
	return written, rejected, nil
}

func newRandCmd(rootConfig *rootConfig, out io.Writer, err io.Writer) *ffcli.Command {
	cfg := randConfig{
		rootConfig: rootConfig,
		out:        out,
		err:        err,
	}

	fs := flag.NewFlagSet("atca random", flag.ExitOnError)
	fs.Int64Var(&cfg.bytes, "bytes", 0, "bytes to read, 0 reads until timeout or interrupt")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "maximum time to read eg 1s, 500ms")
	fs.IntVar(&cfg.retries, "retries", 3, "rejected reads to tolerate before giving up")
	fs.BoolVar(&cfg.abort, "abort", false, "abort on the first rejected read")
	rootConfig.registerFlags(fs)

	return &ffcli.Command{
		Name:       "random",
		ShortUsage: "random [-bytes n] [-timeout d]",
		ShortHelp:  "Reads random bytes from device and outputs on stdout.",
		FlagSet:    fs,
		Options:    parseOptions(),
		Exec:       cfg.Exec,
	}
}
