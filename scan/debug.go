// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"

	"github.com/unixdj/paperqr/register"
)

// A Debug writes diagnostics of a decoding session into a directory:
// an annotated copy of each page, the crop of every unread cell, the
// decoder statistics and the text of every block read.
type Debug struct {
	Dir string
}

// Pages writes page-N.png for every page, with markers outlined in
// blue and cells in green when read or red when not, and
// unrecognized.page-N.x-X.y-Y.png for every unread cell.  N, X and Y
// count from 1.
func (d Debug) Pages(pages []*Page) error {
	if err := os.MkdirAll(d.Dir, 0o777); err != nil {
		return err
	}
	for _, p := range pages {
		if p == nil {
			continue
		}
		if err := d.annotate(p); err != nil {
			return err
		}
		for _, c := range p.Cells {
			crop := p.Bitmap.Crop(c.Crop)
			if c.OK() || crop.Width == 0 || crop.Height == 0 {
				continue
			}
			name := fmt.Sprintf("unrecognized.page-%d.x-%d.y-%d.png", p.Number+1, c.Pos.X+1, c.Pos.Y+1)
			if err := d.write(name, func(f *os.File) error {
				return crop.EncodePNG(f, 1, 0)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d Debug) annotate(p *Page) error {
	dc := gg.NewContextForImage(p.Bitmap.Image(1, 0))
	width := 2.0
	if p.Grid != nil {
		width = max(width, p.Grid.MarkerSize/8)
	}
	dc.SetLineWidth(width)
	outline := func(q register.Quad) {
		for i := range q {
			a, b := q[i], q[(i+1)&3]
			dc.DrawLine(a.X, a.Y, b.X, b.Y)
		}
		dc.Stroke()
	}
	for id, q := range p.Markers {
		dc.SetRGB(0, 0, 1)
		outline(q)
		dc.SetRGB(0, 0.6, 0)
		dc.DrawString(fmt.Sprintf("id=%d", id), q[0].X, q[0].Y-width*2)
	}
	for _, c := range p.Cells {
		if c.OK() {
			dc.SetRGB(0, 0.6, 0)
		} else {
			dc.SetRGB(1, 0, 0)
		}
		outline(c.Quad)
		dc.DrawString(fmt.Sprintf("(%d,%d)", c.Pos.X+1, c.Pos.Y+1), c.Quad[3].X+width*3, c.Quad[3].Y-width*3)
	}
	return d.write(fmt.Sprintf("page-%d.png", p.Number+1), func(f *os.File) error {
		return dc.EncodePNG(f)
	})
}

// Stats writes detection_stats.json.  Decoder names key the counts of
// cells read by one decoder only.
func (d Debug) Stats(s Stats, names [2]string) error {
	m := map[string]int{
		"total":            s.Total,
		names[0] + "_only": s.Only[0],
		names[1] + "_only": s.Only[1],
		"both":             s.Both,
		"neither":          s.Neither,
	}
	b, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}
	return d.write("detection_stats.json", func(f *os.File) error {
		_, err := f.Write(append(b, '\n'))
		return err
	})
}

// Blocks writes blocks.txt, one block per line.
func (d Debug) Blocks(lines []string) error {
	return d.write("blocks.txt", func(f *os.File) error {
		_, err := f.WriteString(strings.Join(lines, "\n"))
		return err
	})
}

func (d Debug) write(name string, fn func(*os.File) error) error {
	if err := os.MkdirAll(d.Dir, 0o777); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(d.Dir, name))
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
