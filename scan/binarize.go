// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/unixdj/paperqr"
)

// LoadImage reads an image file in any of the supported formats:
// PNG, JPEG, GIF, TIFF, BMP and WebP.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Binarize converts img to gray and thresholds it by Otsu's method.
// Pixels no lighter than the returned threshold become black.
func Binarize(img image.Image) (*paperqr.Bitmap, uint8) {
	r := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(g, g.Bounds(), img, r.Min, draw.Src)
	var hist [256]int
	for y := 0; y < g.Rect.Dy(); y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+g.Rect.Dx()] {
			hist[v]++
		}
	}
	t := otsu(&hist)
	b := paperqr.NewBitmap(r.Dx(), r.Dy())
	for y := 0; y < b.Height; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < b.Width; x++ {
			if row[x] <= t {
				b.Set(x, y, true)
			}
		}
	}
	return b, t
}

// otsu returns the threshold maximising the variance between the
// classes at or below it and above it.
func otsu(h *[256]int) uint8 {
	var n, sum float64
	for i, c := range h {
		n += float64(c)
		sum += float64(i * c)
	}
	var (
		wb, sumb float64
		best     int
		bestVar  = -1.0
	)
	for t, c := range h {
		wb += float64(c)
		if wb == 0 {
			continue
		}
		wf := n - wb
		if wf == 0 {
			break
		}
		sumb += float64(t * c)
		d := sumb/wb - (sum-sumb)/wf
		if v := wb * wf * d * d; v > bestVar {
			best, bestVar = t, v
		}
	}
	return uint8(best)
}
