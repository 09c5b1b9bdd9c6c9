// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package marker draws and finds the fiducial markers that anchor the
// grid of a printed page.
//
// A marker is a 5x5 bit pattern surrounded by a one module black
// border, 7x7 modules in total.  The four patterns in use differ from
// each other, and from a QR finder pattern, under every rotation, so
// a marker found in an image of a rotated page still tells its own id
// and which of its corners is its top left.
package marker // import "github.com/unixdj/paperqr/marker"

import (
	"errors"
	"fmt"

	"github.com/unixdj/paperqr"
)

const (
	Size  = 7 // modules per side, border included
	Count = 4 // number of marker ids

	bits = Size - 2
)

var ErrID = errors.New("paperqr: invalid marker id")

// Inner bits of each marker, row by row, MSB leftmost, 1 is black.
var dict = [Count][bits]uint8{
	{0b01000, 0b10010, 0b00110, 0b10100, 0b11000},
	{0b00101, 0b11001, 0b10111, 0b00110, 0b11000},
	{0b01001, 0b01010, 0b01111, 0b11011, 0b11001},
	{0b01111, 0b11000, 0b11010, 0b10000, 0b01000},
}

// Generate returns the marker with the given id, one pixel per
// module.
func Generate(id int) (*paperqr.Bitmap, error) {
	if id < 0 || id >= Count {
		return nil, fmt.Errorf("%w: %d", ErrID, id)
	}
	b := paperqr.NewBitmap(Size, Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			b.Set(x, y, black(&dict[id], x, y))
		}
	}
	return b, nil
}

// black reports whether module (x,y) of the marker with inner bits p
// is black.
func black(p *[bits]uint8, x, y int) bool {
	if x == 0 || y == 0 || x == Size-1 || y == Size-1 {
		return true
	}
	return p[y-1]>>uint(bits-x)&1 != 0
}

// lookup returns the id of the marker with the given modules, or -1.
func lookup(m *[Size][Size]bool) int {
	for i := 0; i < Size; i++ {
		if !m[0][i] || !m[Size-1][i] || !m[i][0] || !m[i][Size-1] {
			return -1
		}
	}
next:
	for id := range dict {
		for y := 1; y < Size-1; y++ {
			for x := 1; x < Size-1; x++ {
				if m[y][x] != black(&dict[id], x, y) {
					continue next
				}
			}
		}
		return id
	}
	return -1
}
