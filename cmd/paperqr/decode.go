// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pborman/getopt/v2"
	"github.com/rs/zerolog"

	"github.com/unixdj/paperqr/assemble"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/journal"
	"github.com/unixdj/paperqr/scan"
)

type decodeFlags struct {
	common
	images, texts []string
	output        string
	debug         string
	journal       string
	lastWins      bool
}

func decode(ctx context.Context, args []string, session uuid.UUID) error {
	var f decodeFlags
	s := getopt.New()
	s.SetProgram("paperqr decode")
	f.common.flags(s, func() {
		printSetUsage(os.Stdout, s, "[image ...]", `Restores a file from images of its pages and typed block lines.
Images may also be given as arguments.  Options override the
configuration file.`)
		os.Exit(0)
	})
	s.FlagLong(&f.images, "image", 'i', "page image; may be repeated", "file")
	s.FlagLong(&f.texts, "text", 't', "file of block lines; may be repeated", "file")
	s.FlagLong(&f.output, "output", 'o', `output file, or "-" for standard output`, "file")
	s.FlagLong(&f.debug, "debug", 'd', "write diagnostics to dir", "dir")
	s.FlagLong(&f.journal, "journal", 'j', "keep blocks read in database file across runs", "file")
	s.FlagLong(&f.lastWins, "last-wins", 0, "resolve duplicate blocks by the last one read")
	if err := parse(s, args); err != nil {
		return err
	}
	f.images = append(f.images, s.Args()...)
	switch {
	case f.output == "":
		return usagef("no output file (-o)")
	case len(f.images) == 0 && len(f.texts) == 0 && f.journal == "":
		return usagef("no input images (-i) or block lines (-t)")
	}

	cfg, err := f.config()
	if err != nil {
		return err
	}
	if f.lastWins {
		cfg.Assemble.Policy = assemble.LastWins
	}
	log := newLogger(os.Stderr, f.verbose, session)

	sc := scan.New(cfg.ScanOptions(log))
	pages, err := sc.Files(ctx, f.images)
	if err != nil {
		if f.debug != "" {
			if derr := diagnose(f.debug, pages, scan.Observations(pages), sc.Names(), log); derr != nil {
				log.Error().Err(derr).Msg("diagnostics not written")
			}
		}
		return err
	}
	obs := scan.Observations(pages)
	for _, name := range f.texts {
		o, err := readLines(name)
		if err != nil {
			return err
		}
		log.Info().Str("file", name).Int("blocks", len(o)).Msg("block lines read")
		obs = append(obs, o...)
	}
	if f.journal != "" {
		if obs, err = journalled(ctx, f.journal, session, obs, log); err != nil {
			return err
		}
	}
	if f.debug != "" {
		if err := diagnose(f.debug, pages, obs, sc.Names(), log); err != nil {
			return err
		}
	}

	res, err := assemble.Assemble(obs, cfg.AssembleOptions(log))
	if err != nil {
		return err
	}
	if err := writeFile(f.output, true, func(w io.Writer) error {
		_, err := w.Write(res.Payload)
		return err
	}); err != nil {
		return err
	}
	log.Info().Str("output", f.output).Str("size", humanize.Bytes(uint64(len(res.Payload)))).
		Stringer("run", res.RunID).Msg("payload restored")
	return nil
}

func readLines(name string) ([]block.Observation, error) {
	if name == "-" {
		return scan.ReadLines(os.Stdin, "<stdin>")
	}
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return scan.ReadLines(r, name)
}

// journalled records obs in the journal at path and returns every
// observation the journal holds.
func journalled(ctx context.Context, path string, session uuid.UUID, obs []block.Observation, log zerolog.Logger) ([]block.Observation, error) {
	j, err := journal.Open(path, log)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	if _, err := j.Begin(ctx, session); err != nil {
		return nil, err
	}
	if err := j.Record(ctx, session, obs); err != nil {
		return nil, err
	}
	all, err := j.Observations(ctx)
	if err != nil {
		return nil, err
	}
	ss, err := j.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("sessions", len(ss)).Int("blocks", len(all)).Int("new", len(obs)).
		Msg("journal loaded")
	return all, nil
}

// diagnose writes the annotated pages, detection statistics and block
// lines to dir.  Nil pages are skipped.
func diagnose(dir string, pages []*scan.Page, obs []block.Observation, names [2]string, log zerolog.Logger) error {
	d := scan.Debug{Dir: dir}
	st := scan.Tally(pages)
	if err := d.Pages(pages); err != nil {
		return err
	}
	if err := d.Stats(st, names); err != nil {
		return err
	}
	if err := d.Blocks(scan.Lines(obs)); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Int("cells", st.Total).Int("unread", st.Neither).
		Msg("diagnostics written")
	return nil
}
