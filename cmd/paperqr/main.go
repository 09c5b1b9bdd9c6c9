// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command paperqr stores files on paper as pages of QR codes and
// restores them from scans or photographs of the pages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pborman/getopt/v2"
	"github.com/rs/zerolog"

	"github.com/unixdj/paperqr/assemble"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/config"
	"github.com/unixdj/paperqr/layout"
	"github.com/unixdj/paperqr/register"
	"github.com/unixdj/paperqr/render"
	"github.com/unixdj/paperqr/scan"
)

const version = "v0.1.0"

// Exit codes.
const (
	exitOK           = iota
	exitError        // anything else
	exitUsage        // bad command line
	exitConfig       // bad configuration or parameters
	exitRegistration // page markers not found or unusable
	exitIncomplete   // blocks missing
	exitConflict     // contradictory blocks or decoder readings
	exitDamaged      // payload fails verification
)

// classify maps an error to an exit code.
func classify(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		return exitUsage
	case errors.Is(err, config.ErrConfig),
		errors.Is(err, block.ErrChunkSize),
		errors.Is(err, block.ErrTooLarge),
		errors.Is(err, layout.ErrOptions),
		errors.Is(err, layout.ErrInconsistentSymbolSize),
		errors.Is(err, render.ErrPageSize),
		errors.Is(err, errTerminal):
		return exitConfig
	case errors.Is(err, register.ErrMissingFiducials),
		errors.Is(err, register.ErrDegenerate):
		return exitRegistration
	case errors.Is(err, assemble.ErrNoRootBlock),
		errors.Is(err, assemble.ErrMissingOrForeignBlocks):
		return exitIncomplete
	case errors.Is(err, assemble.ErrConflictingDuplicateBlock),
		errors.Is(err, scan.ErrDecoderDisagreement):
		return exitConflict
	case errors.Is(err, assemble.ErrDataDamaged),
		errors.Is(err, block.ErrMalformedTag):
		return exitDamaged
	}
	return exitError
}

// A usageError is a command line error.
type usageError struct{ error }

func usagef(format string, v ...any) error {
	return usageError{fmt.Errorf(format, v...)}
}

var errTerminal = errors.New("paperqr: refusing to write binary data to a terminal")

type opt func()

func (opt) String() string                    { return "" }
func (o opt) Set(string, getopt.Option) error { o(); return nil }

func printVersion() {
	fmt.Println(`paperqr version ` + version + `
Copyright (c) 2025 Vadim Vygonets`)
	os.Exit(0)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Paper storage for files as pages of QR codes
Usage: paperqr encode -i input -o output.pdf [options]
       paperqr decode -o output [options] [image ...]
       paperqr -h | -V
Run "paperqr encode -h" or "paperqr decode -h" for the options.
`)
}

func printSetUsage(w io.Writer, s *getopt.Set, params, text string) {
	fmt.Fprint(w, "Usage: ", s.Program(), " ", s.UsageLine())
	if params != "" {
		fmt.Fprint(w, " ", params)
	}
	fmt.Fprint(w, "\n", text, "\n")
	s.PrintOptions(w)
}

// common holds the options shared by subcommands.
type common struct {
	cfgFile string
	verbose bool
}

func (c *common) flags(s *getopt.Set, help func()) {
	s.Flag(opt(help), 'h', "show this help").SetFlag()
	s.Flag(opt(printVersion), 'V', "print version and copyright").SetFlag()
	s.FlagLong(&c.cfgFile, "config", 'C', "TOML configuration file", "file")
	s.FlagLong(&c.verbose, "verbose", 'v', "log every cell")
}

func (c *common) config() (config.Config, error) {
	if c.cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(c.cfgFile)
}

// parse parses args with s, returning a usage error on failure.
func parse(s *getopt.Set, args []string) error {
	if err := s.Getopt(args, nil); err != nil {
		return usageError{err}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newLogger returns the console logger, coloured when w is a
// terminal.
func newLogger(w *os.File, verbose bool, session uuid.UUID) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}
	return zerolog.New(out).Level(level).With().Timestamp().
		Str("app", "paperqr").Stringer("session", session).Logger()
}

// create opens name for writing; "-" is standard output, which must
// not be a terminal for binary data.
func create(name string, binary bool) (io.WriteCloser, error) {
	if name == "-" {
		if binary && isTerminal(os.Stdout) {
			return nil, errTerminal
		}
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(name)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// writeFile writes to name, or to standard output for "-".
func writeFile(name string, binary bool, fn func(io.Writer) error) error {
	w, err := create(name, binary)
	if err != nil {
		return err
	}
	err = fn(w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

// readInput reads name, or standard input for "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usagef("no command given")
	}
	session := uuid.New()
	switch cmd := args[1]; cmd {
	case "encode":
		return encode(ctx, args[1:], session)
	case "decode":
		return decode(ctx, args[1:], session)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	case "-V", "--version", "version":
		printVersion()
		return nil
	default:
		return usagef("unknown command %q", cmd)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args)
	stop()
	code := classify(err)
	if err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, "paperqr") {
			msg = "paperqr: " + msg
		}
		fmt.Fprintln(os.Stderr, msg)
		if code == exitUsage {
			printUsage(os.Stderr)
		}
	}
	os.Exit(code)
}
