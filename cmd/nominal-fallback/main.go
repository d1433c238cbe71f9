// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// nominal-fallback prints the batches stored in a fallback destination
// written by libnominal: either a framed fallback file or, for paths
// ending in .sqlite, .sqlite3 or .db, a fallback database.
//
// Usage:
//
//	nominal-fallback [--json] [--limit N] [--channel NAME] PATH...
//
// Text output lists each batch with its series and samples. With
// --json every batch is one JSON object per line, suitable for jq or
// for replaying into another system.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nominal-ffi/lib/engine"
	"github.com/bureau-foundation/nominal-ffi/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// errLimitReached stops a scan once --limit batches were printed.
var errLimitReached = errors.New("limit reached")

type options struct {
	json    bool
	limit   int
	channel string
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	var showVersion bool

	flagSet := pflag.NewFlagSet("nominal-fallback", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVar(&opts.json, "json", false, "print one JSON object per batch")
	flagSet.IntVar(&opts.limit, "limit", 0, "stop after this many batches per path (0 prints all)")
	flagSet.StringVar(&opts.channel, "channel", "", "only print series for this channel name")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: nominal-fallback [flags] PATH...\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Fprintf(stdout, "nominal-fallback %s\n", version.Full())
		return nil
	}

	paths := flagSet.Args()
	if len(paths) == 0 {
		flagSet.Usage()
		return errors.New("no fallback path given")
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", opts.limit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, path := range paths {
		if err := dump(ctx, path, opts, stdout); err != nil {
			return err
		}
	}
	return nil
}

// dump prints the batches of one fallback destination.
func dump(ctx context.Context, path string, opts options, stdout io.Writer) error {
	printer := newPrinter(path, opts, stdout)

	var err error
	if engine.IsDatabasePath(path) {
		err = engine.ScanFallbackDatabase(ctx, path, printer.batch)
	} else {
		err = engine.ScanFallbackFile(path, printer.batch)
	}
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

type printer struct {
	path    string
	opts    options
	out     io.Writer
	encoder *json.Encoder
	printed int
}

func newPrinter(path string, opts options, out io.Writer) *printer {
	return &printer{path: path, opts: opts, out: out, encoder: json.NewEncoder(out)}
}

func (p *printer) batch(batch *engine.Batch) error {
	if p.opts.limit > 0 && p.printed >= p.opts.limit {
		return errLimitReached
	}
	p.printed++

	if p.opts.channel != "" {
		kept := batch.Series[:0]
		for _, series := range batch.Series {
			if series.Channel == p.opts.channel {
				kept = append(kept, series)
			}
		}
		batch.Series = kept
	}

	if p.opts.json {
		return p.encoder.Encode(batch)
	}

	fmt.Fprintf(p.out, "%s: batch %d session=%s created=%s samples=%d\n",
		p.path,
		batch.Sequence,
		batch.Session,
		time.Unix(0, batch.CreatedAt).UTC().Format(time.RFC3339Nano),
		batch.SampleCount(),
	)
	if batch.Resource != "" {
		fmt.Fprintf(p.out, "  resource %s\n", batch.Resource)
	}
	for i := range batch.Series {
		series := &batch.Series[i]
		fmt.Fprintf(p.out, "  %s (%s, %d samples)\n", series.Descriptor(), series.Kind, series.Len())
		for j := 0; j < series.Len(); j++ {
			fmt.Fprintf(p.out, "    %d %s\n", series.Timestamps[j], series.ValueString(j))
		}
	}
	return nil
}
