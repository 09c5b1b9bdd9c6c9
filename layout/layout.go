// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout arranges the symbols of a dataset into pages.
//
// All coordinates are in modules.  Each page is a grid of cells, each
// cell one symbol plus a gap of S = marker.Size modules.  The symbol
// in column c, row r sits at (2S + c*Cell, 2S + r*Cell).  Fiducial
// markers 0, 1, 2 and 3 sit at (0,0), (Cell*Columns, 0),
// (0, Cell*Rows) and (Cell, 0), Rows counting only the rows used on
// that page.  A row of dots runs along the top and left margins
// between the markers.
package layout // import "github.com/unixdj/paperqr/layout"

import (
	"errors"
	"fmt"
	"image"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/marker"
)

// Spacing is the gap between symbols, and between the grid and the
// markers, in modules.
const Spacing = marker.Size

var (
	ErrInconsistentSymbolSize = errors.New("paperqr: inconsistent symbol size")
	ErrOptions                = errors.New("paperqr: invalid layout options")
	ErrEmpty                  = errors.New("paperqr: no blocks to lay out")
)

// A SizeError records a symbol whose size differs from that of the
// first symbol.
type SizeError struct {
	Index int // index of the offending line
	Want  int // modules per side of the first symbol
	Got   int // modules per side of the offending symbol
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("paperqr: symbol %d is %d modules across, want %d",
		e.Index, e.Got, e.Want)
}

func (e *SizeError) Is(target error) bool {
	return target == ErrInconsistentSymbolSize
}

// A SymbolEncoder turns a line of text into a square symbol, one
// pixel per module, with no quiet zone.
type SymbolEncoder interface {
	Encode(text string) (*paperqr.Bitmap, error)
}

// Options control Build.
type Options struct {
	Columns    int // columns per page, at least 2
	Rows       int // rows per page, at least 1
	DotSpacing int // distance between margin dots; 0 for no dots
}

// A Slot is the place of one symbol on a page.
type Slot struct {
	Index  int         // index of the line in the input
	Column int         // grid column
	Row    int         // grid row
	Origin image.Point // top left module of the symbol
}

// A Page is one printed page.
type Page struct {
	Number  int // from 0
	Rows    int // grid rows used on this page
	Slots   []Slot
	Markers [marker.Count]image.Point // top left module of each marker
	Pixels  []image.Point             // black modules
	Width   int
	Height  int
}

// Bounds returns the drawing area of the page.
func (p *Page) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// Bitmap rasterises the page, one pixel per module.
func (p *Page) Bitmap() *paperqr.Bitmap {
	b := paperqr.NewBitmap(p.Width, p.Height)
	for _, v := range p.Pixels {
		b.Set(v.X, v.Y, true)
	}
	return b
}

// A Layout is a dataset arranged into pages.
type Layout struct {
	Columns    int
	Rows       int // rows on a full page
	SymbolSize int // modules per side of every symbol
	CellSize   int // SymbolSize + Spacing
	Pages      []*Page
}

// Size returns the drawing size of a full page in modules.
func (l *Layout) Size() image.Point {
	return image.Pt(l.CellSize*l.Columns+Spacing, l.CellSize*l.Rows+Spacing)
}

// Build encodes lines and lays the symbols out in pages, row by row.
// The first symbol fixes the size of all others.
func Build(lines []string, enc SymbolEncoder, opt Options) (*Layout, error) {
	switch {
	case opt.Columns < 2:
		return nil, fmt.Errorf("%w: %d columns", ErrOptions, opt.Columns)
	case opt.Rows < 1:
		return nil, fmt.Errorf("%w: %d rows", ErrOptions, opt.Rows)
	case opt.DotSpacing < 0:
		return nil, fmt.Errorf("%w: dot spacing %d", ErrOptions, opt.DotSpacing)
	case len(lines) == 0:
		return nil, ErrEmpty
	}
	var marks [marker.Count]*paperqr.Bitmap
	for id := range marks {
		m, err := marker.Generate(id)
		if err != nil {
			return nil, err
		}
		marks[id] = m
	}
	l := &Layout{Columns: opt.Columns, Rows: opt.Rows}
	perPage := opt.Columns * opt.Rows
	for first := 0; first < len(lines); first += perPage {
		n := min(perPage, len(lines)-first)
		p := &Page{
			Number: len(l.Pages),
			Rows:   (n + opt.Columns - 1) / opt.Columns,
			Slots:  make([]Slot, 0, n),
		}
		for i := 0; i < n; i++ {
			idx := first + i
			sym, err := enc.Encode(lines[idx])
			if err != nil {
				return nil, fmt.Errorf("paperqr: symbol %d: %w", idx, err)
			}
			if l.SymbolSize == 0 {
				l.SymbolSize = sym.Width
				l.CellSize = sym.Width + Spacing
			}
			if got := sym.Width; got != l.SymbolSize || sym.Height != got {
				if got == l.SymbolSize {
					got = sym.Height
				}
				return nil, &SizeError{idx, l.SymbolSize, got}
			}
			s := Slot{Index: idx, Column: i % opt.Columns, Row: i / opt.Columns}
			s.Origin = image.Pt(2*Spacing+s.Column*l.CellSize, 2*Spacing+s.Row*l.CellSize)
			p.Slots = append(p.Slots, s)
			p.Pixels = append(p.Pixels, sym.Points(s.Origin)...)
		}
		l.place(p, &marks, opt.DotSpacing)
		l.Pages = append(l.Pages, p)
	}
	return l, nil
}

// place adds markers and margin dots to p.
func (l *Layout) place(p *Page, marks *[marker.Count]*paperqr.Bitmap, dots int) {
	cell, cols := l.CellSize, l.Columns
	p.Markers = [marker.Count]image.Point{
		{0, 0},
		{cell * cols, 0},
		{0, cell * p.Rows},
		{cell, 0},
	}
	for id, at := range p.Markers {
		p.Pixels = append(p.Pixels, marks[id].Points(at)...)
	}
	p.Width = cell*cols + Spacing
	p.Height = cell*p.Rows + Spacing
	if dots == 0 {
		return
	}
	const mid = Spacing / 2
	for y := Spacing + 2; y < cell*p.Rows-2; y += dots {
		p.Pixels = append(p.Pixels, image.Pt(mid, y))
	}
	for x := Spacing + 2; x < l.SymbolSize+Spacing-2; x += dots {
		p.Pixels = append(p.Pixels, image.Pt(x, mid))
	}
	for x := l.SymbolSize + 2*Spacing + 2; x < cell*cols-2; x += dots {
		p.Pixels = append(p.Pixels, image.Pt(x, mid))
	}
}
