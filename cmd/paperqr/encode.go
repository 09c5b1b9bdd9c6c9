// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pborman/getopt/v2"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/layout"
	"github.com/unixdj/paperqr/render"
)

const (
	rasterScale  = 4 // pixels per module in --pbm and --png pages
	rasterBorder = 8 // white modules around --pbm and --png pages
)

type encodeFlags struct {
	common
	name, input, output string
	columns, rows       int
	level               string
	chunk               int
	pbm, png, blocks    string
}

func encode(ctx context.Context, args []string, session uuid.UUID) error {
	var f encodeFlags
	s := getopt.New()
	s.SetProgram("paperqr encode")
	f.common.flags(s, func() {
		printSetUsage(os.Stdout, s, "", `Encodes the input file into a PDF of QR code pages.
Options override the configuration file.`)
		os.Exit(0)
	})
	s.FlagLong(&f.name, "name", 'n', "job name printed on each page [input file name]", "name")
	s.FlagLong(&f.input, "input", 'i', `input file, or "-" for standard input`, "file")
	s.FlagLong(&f.output, "output", 'o', `output PDF, or "-" for standard output`, "file")
	s.FlagLong(&f.columns, "columns", 'c', "symbols per row [6]", "cols")
	s.FlagLong(&f.rows, "rows", 'r', "rows per page [8]", "rows")
	s.FlagLong(&f.level, "level", 'l', "error correction level, lowest to highest [l]", "l|m|q|h")
	s.FlagLong(&f.chunk, "chunk-size", 's', "payload characters per block [108]", "n")
	s.FlagLong(&f.pbm, "pbm", 0, `also write each page to prefix-N.pbm`, "prefix")
	s.FlagLong(&f.png, "png", 0, `also write each page to prefix-N.png`, "prefix")
	s.FlagLong(&f.blocks, "blocks", 0, `also write the block lines to file, for typing back in`, "file")
	if err := parse(s, args); err != nil {
		return err
	}
	switch {
	case s.NArgs() != 0:
		return usagef("unexpected argument %q", s.Arg(0))
	case f.input == "":
		return usagef("no input file (-i)")
	case f.output == "":
		return usagef("no output file (-o)")
	}

	cfg, err := f.config()
	if err != nil {
		return err
	}
	if s.IsSet("columns") {
		cfg.Layout.Columns = f.columns
	}
	if s.IsSet("rows") {
		cfg.Layout.Rows = f.rows
	}
	if s.IsSet("level") {
		if cfg.Layout.Level, err = paperqr.ParseLevel(f.level); err != nil {
			return usagef("-l %q: %v", f.level, err)
		}
	}
	if s.IsSet("chunk-size") {
		cfg.Framing.ChunkSize = f.chunk
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.name == "" {
		f.name = filepath.Base(f.input)
	}

	log := newLogger(os.Stderr, f.verbose, session)
	payload, err := readInput(f.input)
	if err != nil {
		return err
	}
	ds, err := block.Encode(payload, cfg.BlockOptions())
	if err != nil {
		return err
	}
	log.Info().Str("input", f.input).Str("size", humanize.Bytes(uint64(len(payload)))).
		Stringer("run", ds.RunID).Int("blocks", ds.Header.Length).
		Hex("sha256", ds.Header.Hash[:]).Msg("payload framed")
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := layout.Build(ds.Lines(), cfg.Encoder(), cfg.LayoutOptions())
	if err != nil {
		return err
	}
	log.Info().Int("pages", len(l.Pages)).Int("symbol", l.SymbolSize).
		Stringer("level", cfg.Layout.Level).Msg("pages laid out")

	po := cfg.PDFOptions()
	po.Name, po.Time, po.Version = f.name, time.Now(), version
	if err := writeFile(f.output, true, func(w io.Writer) error {
		return render.PDF(w, l, ds, po)
	}); err != nil {
		return err
	}
	log.Info().Str("output", f.output).Msg("PDF written")

	if f.pbm != "" {
		names, err := render.PBM(f.pbm, l, rasterScale, rasterBorder)
		if err != nil {
			return err
		}
		log.Info().Strs("files", names).Msg("PBM pages written")
	}
	if f.png != "" {
		names, err := render.PNG(f.png, l, rasterScale, rasterBorder)
		if err != nil {
			return err
		}
		log.Info().Strs("files", names).Msg("PNG pages written")
	}
	if f.blocks != "" {
		if err := writeFile(f.blocks, false, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, strings.Join(ds.Lines(), "\n"))
			return err
		}); err != nil {
			return err
		}
		log.Info().Str("file", f.blocks).Msg("block lines written")
	}
	return nil
}
