// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scan reads blocks from images of printed pages.
//
// Each image is binarised, its fiducial markers are located and the
// cell grid registered.  Every cell is cropped and handed to two QR
// decoders.  When both read a cell they must agree; when one reads it
// its text is taken; when neither does the cell is left unread.  Pages
// and the cells within a page are processed concurrently, but results
// are always reported in page order, and column by column within a
// page.
package scan // import "github.com/unixdj/paperqr/scan"

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/marker"
	"github.com/unixdj/paperqr/register"
)

// Options control a Scanner.
type Options struct {
	Workers       int        // concurrent pages, and cells per page; GOMAXPROCS if 0
	Upscale       int        // crop magnification before decoding; 1 if 0
	MinMarkerSide float64    // smallest marker side in pixels; see marker.Options
	Decoders      [2]Decoder // ZXing and Goqr if nil
	Log           zerolog.Logger
}

// A Scanner reads pages.  It is safe for concurrent use.
type Scanner struct {
	opt Options
}

// New returns a Scanner with the given options.
func New(opt Options) *Scanner {
	if opt.Workers < 1 {
		opt.Workers = runtime.GOMAXPROCS(0)
	}
	if opt.Upscale < 1 {
		opt.Upscale = 1
	}
	if opt.Decoders[0] == nil {
		opt.Decoders[0] = ZXing{}
	}
	if opt.Decoders[1] == nil {
		opt.Decoders[1] = Goqr{}
	}
	return &Scanner{opt}
}

// Names returns the names of the two decoders.
func (s *Scanner) Names() [2]string {
	return [2]string{s.opt.Decoders[0].Name(), s.opt.Decoders[1].Name()}
}

// A Cell is the outcome of reading one grid cell.
type Cell struct {
	Pos  image.Point     // column and row
	Quad register.Quad   // outline in the image
	Crop image.Rectangle // area handed to the decoders
	Text string          // text read, if any
	Read [2]bool         // which decoders read the cell
}

// OK reports whether the cell was read.
func (c *Cell) OK() bool { return c.Read[0] || c.Read[1] }

// A Page is the outcome of reading one image.
type Page struct {
	File      string
	Number    int             // position among the input images, from 0
	Threshold uint8           // binarisation threshold
	Bitmap    *paperqr.Bitmap // binarised image
	Markers   map[int]register.Quad
	Grid      *register.Grid
	Cells     []Cell
	Blocks    []block.Observation
	Malformed int // cells read whose text is not a block
}

// Files loads and reads the images named by files.  On error the
// pages read so far are returned with it; pages not read are nil.
func (s *Scanner) Files(ctx context.Context, files []string) ([]*Page, error) {
	pages := make([]*Page, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opt.Workers)
	for i, f := range files {
		g.Go(func() error {
			img, err := LoadImage(f)
			if err != nil {
				return err
			}
			p, err := s.Image(ctx, f, i, img)
			pages[i] = p
			return err
		})
	}
	return pages, g.Wait()
}

// Image reads one image, the n-th input, named file.
func (s *Scanner) Image(ctx context.Context, file string, n int, img image.Image) (*Page, error) {
	log := s.opt.Log.With().Str("file", file).Logger()
	bm, t := Binarize(img)
	log.Info().Uint8("threshold", t).Msg("image binarised")
	p := &Page{File: file, Number: n, Threshold: t, Bitmap: bm}
	p.Markers = marker.Detect(bm, marker.Options{MinSide: s.opt.MinMarkerSide})
	grid, err := register.New(p.Markers)
	if err != nil {
		return p, fmt.Errorf("%s: %w", file, err)
	}
	p.Grid = grid
	log.Info().Int("columns", grid.Columns).Int("rows", grid.Rows).Msg("layout detected")

	pos := grid.Cells()
	p.Cells = make([]Cell, len(pos))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opt.Workers)
	for i, at := range pos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src := block.Provenance{File: file, Page: n, Cell: at}
			c, err := s.cell(bm, grid, at, src)
			p.Cells[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return p, err
	}

	unread := 0
	for _, c := range p.Cells {
		if !c.OK() {
			unread++
			log.Debug().Int("x", c.Pos.X+1).Int("y", c.Pos.Y+1).Msg("cell unread")
			continue
		}
		b, err := block.Parse(c.Text)
		if err != nil {
			p.Malformed++
			log.Warn().Err(err).Int("x", c.Pos.X+1).Int("y", c.Pos.Y+1).Msg("not a block")
			continue
		}
		log.Debug().Int("x", c.Pos.X+1).Int("y", c.Pos.Y+1).
			Stringer("run", b.RunID).Int("index", b.Index).Msg("cell read")
		p.Blocks = append(p.Blocks, block.Observation{
			Block:  b,
			Source: block.Provenance{File: file, Page: n, Cell: c.Pos},
		})
	}
	if unread != 0 {
		log.Warn().Int("unread", unread).Int("cells", len(p.Cells)).Msg("cells unread")
	}
	return p, nil
}

// cell reads the cell at grid position at.
func (s *Scanner) cell(bm *paperqr.Bitmap, g *register.Grid, at image.Point, src block.Provenance) (Cell, error) {
	c := Cell{Pos: at, Quad: g.Cell(at.X, at.Y), Crop: g.Crop(at.X, at.Y)}
	img := s.prepare(bm.Crop(c.Crop))
	var texts [2]string
	for i, d := range s.opt.Decoders {
		t, err := d.Decode(img)
		switch {
		case err == nil:
			texts[i], c.Read[i] = t, true
		case !errors.Is(err, ErrNotFound):
			return c, fmt.Errorf("%v: %s: %w", src, d.Name(), err)
		}
	}
	switch {
	case c.Read[0] && c.Read[1] && texts[0] != texts[1]:
		return c, &DisagreementError{src, s.Names(), texts}
	case c.Read[0]:
		c.Text = texts[0]
	case c.Read[1]:
		c.Text = texts[1]
	}
	return c, nil
}

// prepare surrounds a crop with a white margin and magnifies it.
func (s *Scanner) prepare(b *paperqr.Bitmap) image.Image {
	src := b.Image(1, max(b.Width, b.Height)/8+1)
	r := src.Bounds()
	n := s.opt.Upscale
	dst := image.NewGray(image.Rect(0, 0, r.Dx()*n, r.Dy()*n))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, r, draw.Src, nil)
	return dst
}

// Observations returns the blocks read from pages, in order.  Nil
// pages are skipped.
func Observations(pages []*Page) []block.Observation {
	var obs []block.Observation
	for _, p := range pages {
		if p == nil {
			continue
		}
		obs = append(obs, p.Blocks...)
	}
	return obs
}

// Stats counts cells by the decoders that read them.
type Stats struct {
	Total   int
	Only    [2]int // read by one decoder only
	Both    int
	Neither int
}

// Tally counts the cells of pages.
func Tally(pages []*Page) Stats {
	var s Stats
	for _, p := range pages {
		if p == nil {
			continue
		}
		for _, c := range p.Cells {
			s.Total++
			switch {
			case c.Read[0] && c.Read[1]:
				s.Both++
			case c.Read[0]:
				s.Only[0]++
			case c.Read[1]:
				s.Only[1]++
			default:
				s.Neither++
			}
		}
	}
	return s
}
