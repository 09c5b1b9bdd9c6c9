// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package paperqr

import (
	"errors"
	"image"
	"image/color"
)

var ErrArgs = errors.New("paperqr: invalid arguments")

// A Bitmap is a rectangular 1-bit pixel grid.
// Rows are packed MSB first, Stride bytes apart.
type Bitmap struct {
	Bits   []byte // 1 is black, 0 is white
	Width  int    // pixels per row
	Height int    // number of rows
	Stride int    // number of bytes per row
}

// NewBitmap returns an all white bitmap of the given size.
func NewBitmap(w, h int) *Bitmap {
	w, h = max(w, 0), max(h, 0)
	stride := (w + 7) / 8
	return &Bitmap{
		Bits:   make([]byte, stride*h),
		Width:  w,
		Height: h,
		Stride: stride,
	}
}

func (b *Bitmap) isValid() bool {
	return b != nil && b.Width >= 0 && b.Height >= 0 &&
		b.Stride >= (b.Width+7)/8 && len(b.Bits) >= b.Stride*b.Height
}

// Black returns true if the pixel at (x,y) is black.
// Pixels outside the bitmap are white.
func (b *Bitmap) Black(x, y int) bool {
	return 0 <= x && x < b.Width && 0 <= y && y < b.Height &&
		b.Bits[y*b.Stride+x/8]&(1<<uint(7-x&7)) != 0
}

// Set sets the pixel at (x,y).  Pixels outside the bitmap are ignored.
func (b *Bitmap) Set(x, y int, black bool) {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return
	}
	i, m := y*b.Stride+x/8, byte(1)<<uint(7-x&7)
	if black {
		b.Bits[i] |= m
	} else {
		b.Bits[i] &^= m
	}
}

// Bounds returns the rectangle covered by b.
func (b *Bitmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Count returns the number of black pixels.
func (b *Bitmap) Count() int {
	n := 0
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				n++
			}
		}
	}
	return n
}

// Draw paints the black pixels of src onto b with the top left
// corner of src at p.
func (b *Bitmap) Draw(src *Bitmap, p image.Point) {
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			if src.Black(x, y) {
				b.Set(p.X+x, p.Y+y, true)
			}
		}
	}
}

// Crop returns a copy of the part of b inside r.  The parts of r
// outside b are white.
func (b *Bitmap) Crop(r image.Rectangle) *Bitmap {
	r = r.Canon()
	c := NewBitmap(r.Dx(), r.Dy())
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			if b.Black(r.Min.X+x, r.Min.Y+y) {
				c.Set(x, y, true)
			}
		}
	}
	return c
}

// Points returns the coordinates of all black pixels offset by p, in
// row-major order.
func (b *Bitmap) Points(p image.Point) []image.Point {
	var pts []image.Point
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				pts = append(pts, image.Pt(p.X+x, p.Y+y))
			}
		}
	}
	return pts
}

// Image returns an Image displaying the bitmap, scale image pixels
// per bitmap pixel, surrounded by border white bitmap pixels.
func (b *Bitmap) Image(scale, border int) image.Image {
	return &bitmapImage{b, max(scale, 1), max(border, 0)}
}

// bitmapImage implements image.Image
type bitmapImage struct {
	*Bitmap
	scale  int
	border int
}

var (
	whiteColor color.Color = color.Gray{0xFF}
	blackColor color.Color = color.Gray{0x00}
)

func (m *bitmapImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, (m.Width+2*m.border)*m.scale,
		(m.Height+2*m.border)*m.scale)
}

func (m *bitmapImage) At(x, y int) color.Color {
	if x < 0 || y < 0 {
		return whiteColor
	}
	if m.Black(x/m.scale-m.border, y/m.scale-m.border) {
		return blackColor
	}
	return whiteColor
}

func (m *bitmapImage) ColorModel() color.Model {
	return color.GrayModel
}

// Scale returns a copy of b enlarged n times in each direction.
func (b *Bitmap) Scale(n int) *Bitmap {
	n = max(n, 1)
	s := NewBitmap(b.Width*n, b.Height*n)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			if b.Black(x/n, y/n) {
				s.Set(x, y, true)
			}
		}
	}
	return s
}
