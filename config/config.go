// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the settings of an encoding or decoding job
// and loads them from TOML files.
//
// A file need only name the settings it changes:
//
//	[framing]
//	chunk_size = 64
//
//	[layout]
//	columns = 4
//	rows    = 6
//	level   = "m"
//
//	[assemble]
//	policy = "last-wins"
package config // import "github.com/unixdj/paperqr/config"

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/assemble"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/layout"
	"github.com/unixdj/paperqr/render"
	"github.com/unixdj/paperqr/scan"
)

var ErrConfig = errors.New("paperqr: invalid configuration")

// Config is the complete configuration.
type Config struct {
	Framing  Framing  `toml:"framing"`
	Layout   Layout   `toml:"layout"`
	Page     Page     `toml:"page"`
	Scan     Scan     `toml:"scan"`
	Assemble Assemble `toml:"assemble"`
}

type Framing struct {
	ChunkSize int `toml:"chunk_size"` // base64 characters per block
}

type Layout struct {
	Columns    int           `toml:"columns"`
	Rows       int           `toml:"rows"`
	Level      paperqr.Level `toml:"level"`
	DotSpacing int           `toml:"dot_spacing"`
}

// Page sets the printed page, in millimetres, and its captions.
type Page struct {
	Width       float64 `toml:"width"`
	Height      float64 `toml:"height"`
	Left        float64 `toml:"left"`
	Right       float64 `toml:"right"`
	Top         float64 `toml:"top"`
	FontSize    float64 `toml:"font_size"` // points
	LineSpacing float64 `toml:"line_spacing"`
}

type Scan struct {
	Workers       int     `toml:"workers"` // 0 for one per CPU
	Upscale       int     `toml:"upscale"`
	MinMarkerSide float64 `toml:"min_marker_side"` // pixels
}

type Assemble struct {
	Policy assemble.Policy `toml:"policy"`
}

// Default returns the default configuration: 108 characters per
// block, 6 columns by 8 rows of level L symbols per A4 page.
func Default() Config {
	return Config{
		Framing: Framing{ChunkSize: 108},
		Layout:  Layout{Columns: 6, Rows: 8, Level: paperqr.L, DotSpacing: 3},
		Page: Page{
			Width:       210,
			Height:      297,
			Left:        30,
			Right:       30,
			Top:         50,
			FontSize:    10,
			LineSpacing: 5,
		},
		Scan:     Scan{Upscale: 2, MinMarkerSide: 7},
		Assemble: Assemble{Policy: assemble.Strict},
	}
}

// Load reads the TOML file at path over the defaults.  Keys not
// known to Config are an error.
func Load(path string) (Config, error) {
	c := Default()
	meta, err := toml.DecodeFile(path, &c)
	var perr toml.ParseError
	switch {
	case errors.As(err, &perr):
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	case err != nil:
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if u := meta.Undecoded(); len(u) != 0 {
		keys := make([]string, len(u))
		for i, k := range u {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: %s: unknown keys %s", ErrConfig, path,
			strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, v ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, v...)...))
		}
	}
	check(c.Framing.ChunkSize >= 1, "chunk_size %d < 1", c.Framing.ChunkSize)
	check(c.Layout.Columns >= 2, "columns %d < 2", c.Layout.Columns)
	check(c.Layout.Rows >= 1, "rows %d < 1", c.Layout.Rows)
	check(c.Layout.Level >= paperqr.L && c.Layout.Level <= paperqr.H,
		"level %d", int(c.Layout.Level))
	check(c.Layout.DotSpacing >= 0, "dot_spacing %d < 0", c.Layout.DotSpacing)
	p := c.Page
	check(p.Width > 0 && p.Height > 0, "page size %g x %g", p.Width, p.Height)
	check(p.Left >= 0 && p.Right >= 0 && p.Left+p.Right < p.Width,
		"margins %g and %g on width %g", p.Left, p.Right, p.Width)
	check(p.Top >= 0 && p.Top < p.Height, "top %g on height %g", p.Top, p.Height)
	check(p.FontSize > 0, "font_size %g", p.FontSize)
	check(p.LineSpacing > 0, "line_spacing %g", p.LineSpacing)
	check(c.Scan.Workers >= 0, "workers %d < 0", c.Scan.Workers)
	check(c.Scan.Upscale >= 1, "upscale %d < 1", c.Scan.Upscale)
	check(c.Scan.MinMarkerSide >= 0, "min_marker_side %g < 0", c.Scan.MinMarkerSide)
	check(c.Assemble.Policy.String() != "invalid", "policy %d", int(c.Assemble.Policy))
	return errors.Join(errs...)
}

// BlockOptions returns the framing options.
func (c Config) BlockOptions() block.Options {
	return block.Options{ChunkSize: c.Framing.ChunkSize}
}

// LayoutOptions returns the layout options.
func (c Config) LayoutOptions() layout.Options {
	return layout.Options{
		Columns:    c.Layout.Columns,
		Rows:       c.Layout.Rows,
		DotSpacing: c.Layout.DotSpacing,
	}
}

// Encoder returns the symbol encoder.
func (c Config) Encoder() paperqr.QREncoder {
	return paperqr.QREncoder{Level: c.Layout.Level}
}

// PDFOptions returns the page geometry; callers fill in the captions.
func (c Config) PDFOptions() render.PDFOptions {
	p := c.Page
	return render.PDFOptions{
		Width:       p.Width,
		Height:      p.Height,
		Left:        p.Left,
		Right:       p.Right,
		Top:         p.Top,
		FontSize:    p.FontSize,
		LineSpacing: p.LineSpacing,
	}
}

// ScanOptions returns the scanner options, logging to log.
func (c Config) ScanOptions(log zerolog.Logger) scan.Options {
	return scan.Options{
		Workers:       c.Scan.Workers,
		Upscale:       c.Scan.Upscale,
		MinMarkerSide: c.Scan.MinMarkerSide,
		Log:           log,
	}
}

// AssembleOptions returns the reassembly options, logging to log.
func (c Config) AssembleOptions(log zerolog.Logger) assemble.Options {
	return assemble.Options{Policy: c.Assemble.Policy, Log: log}
}
