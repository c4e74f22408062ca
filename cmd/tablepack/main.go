// Command tablepack converts a JSON surrogate table set into the packed
// msgpack+zstd form the analysis loads at startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/tables"
)

func main() {
	log := logging.NewFromEnv()
	if err := run(os.Args[1:], os.Stderr, log); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error(context.Background(), "tablepack failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer, log logging.Logger) error {
	fs := flag.NewFlagSet("tablepack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input surrogate set (.json)")
	out := fs.String("out", "", "output file (default: input with "+tables.PackedExt+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, ".json") + tables.PackedExt
	}
	if *out == *in {
		return fmt.Errorf("output would overwrite the input %q", *in)
	}

	set, err := tables.LoadFile(*in)
	if err != nil {
		return err
	}
	if err := tables.SaveFile(*out, set); err != nil {
		return err
	}

	info, err := os.Stat(*out)
	if err != nil {
		return err
	}
	log.Info(context.Background(), "packed surrogate tables",
		logging.String("in", *in),
		logging.String("out", *out),
		logging.Int("channels", len(set.Channels)),
		logging.Int("families", len(set.Surfaces)),
		logging.Int("bytes", int(info.Size())),
	)
	return nil
}
