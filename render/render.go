// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package render writes laid out pages for printing, as PDF or as
// PBM or PNG rasters.
package render // import "github.com/unixdj/paperqr/render"

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/block"
	"github.com/unixdj/paperqr/layout"
)

var ErrPageSize = errors.New("paperqr: drawing does not fit the page")

// PDFOptions control PDF.  Lengths are in millimetres.  Zero values
// select the defaults shown.
type PDFOptions struct {
	Name    string    // job name printed on every page
	Time    time.Time // printed timestamp; now if zero
	Version string    // tool version printed at the foot

	Width       float64 // page width, 210
	Height      float64 // page height, 297
	Left        float64 // left margin, 30
	Right       float64 // right margin, 30
	Top         float64 // top of the drawing, 50
	FontSize    float64 // caption size in points, 10
	LineSpacing float64 // caption line spacing, 5
}

func (o PDFOptions) withDefaults() PDFOptions {
	def := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&o.Width, 210)
	def(&o.Height, 297)
	def(&o.Left, 30)
	def(&o.Right, 30)
	def(&o.Top, 50)
	def(&o.FontSize, 10)
	def(&o.LineSpacing, 5)
	if o.Time.IsZero() {
		o.Time = time.Now()
	}
	return o
}

// PixelSize returns the side of one module in millimetres when l is
// drawn across the page between the margins.
func (o PDFOptions) PixelSize(l *layout.Layout) float64 {
	o = o.withDefaults()
	return (o.Width - o.Left - o.Right) / float64(l.Size().X)
}

// captions returns the lines printed above the drawing of page n and
// the line printed below it.
func captions(l *layout.Layout, ds *block.Dataset, n int, o PDFOptions) ([]string, string) {
	return []string{
			"Name: " + o.Name,
			fmt.Sprintf("%s, run ID: %v, %d blocks, page %d of %d",
				o.Time.Format(time.DateTime), ds.RunID, ds.Header.Length, n+1, len(l.Pages)),
			"SHA-256: " + hex.EncodeToString(ds.Header.Hash[:]),
		},
		"paperqr " + o.Version
}

// PDF writes l as a PDF document, one page per layout page, with
// captions describing ds.
func PDF(w io.Writer, l *layout.Layout, ds *block.Dataset, opt PDFOptions) error {
	o := opt.withDefaults()
	px := o.PixelSize(l)
	size := l.Size()
	if px <= 0 || o.Top+float64(size.Y)*px+o.LineSpacing > o.Height {
		return fmt.Errorf("%w: %d x %d modules on %g x %g mm", ErrPageSize,
			size.X, size.Y, o.Width, o.Height)
	}
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: o.Width, Ht: o.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(o.Left, o.Top, o.Right)
	pdf.SetCreator("paperqr "+o.Version, true)
	pdf.SetTitle(o.Name, true)
	pdf.SetCreationDate(o.Time)
	pdf.SetModificationDate(o.Time)
	pdf.SetFillColor(0, 0, 0)
	tr := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	text := func(x, y float64, s string) {
		if t, err := tr.String(s); err == nil {
			s = t
		}
		pdf.Text(x, y, s)
	}
	for n, p := range l.Pages {
		pdf.AddPage()
		pdf.SetFont("Courier", "B", o.FontSize)
		head, foot := captions(l, ds, n, o)
		for i, s := range head {
			text(o.Left, o.Top-o.LineSpacing*float64(len(head)-i), s)
		}
		b := p.Bitmap()
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; {
				if !b.Black(x, y) {
					x++
					continue
				}
				x0 := x
				for x < b.Width && b.Black(x, y) {
					x++
				}
				pdf.Rect(o.Left+float64(x0)*px, o.Top+float64(y)*px,
					float64(x-x0)*px, px, "F")
			}
		}
		text(o.Left, o.Top+float64(b.Height)*px+o.LineSpacing, foot)
	}
	return pdf.Output(w)
}

// PBM writes every page of l to prefix-N.pbm, N counting from 1,
// scale pixels per module with border white modules around, and
// returns the names of the files written.
func PBM(prefix string, l *layout.Layout, scale, border int) ([]string, error) {
	return raster(prefix, "pbm", l, func(w io.Writer, b *paperqr.Bitmap) error {
		return b.EncodePBM(w, scale, border)
	})
}

// PNG is like PBM, writing prefix-N.png.
func PNG(prefix string, l *layout.Layout, scale, border int) ([]string, error) {
	return raster(prefix, "png", l, func(w io.Writer, b *paperqr.Bitmap) error {
		return b.EncodePNG(w, scale, border)
	})
}

func raster(prefix, ext string, l *layout.Layout, enc func(io.Writer, *paperqr.Bitmap) error) ([]string, error) {
	var names []string
	for _, p := range l.Pages {
		name := fmt.Sprintf("%s-%d.%s", prefix, p.Number+1, ext)
		f, err := os.Create(name)
		if err != nil {
			return names, err
		}
		err = enc(f, p.Bitmap())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return names, fmt.Errorf("%s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}
