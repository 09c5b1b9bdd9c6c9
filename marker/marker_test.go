// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package marker

import (
	"image"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/unixdj/paperqr"
)

func rows(b *paperqr.Bitmap) string {
	var s strings.Builder
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				s.WriteByte('#')
			} else {
				s.WriteByte('.')
			}
		}
		s.WriteByte('\n')
	}
	return s.String()
}

func TestGenerate3(t *testing.T) {
	b, err := Generate(3)
	require.NoError(t, err)
	assert.Equal(t, ""+
		"#######\n"+
		"#.#####\n"+
		"###...#\n"+
		"###.#.#\n"+
		"##....#\n"+
		"#.#...#\n"+
		"#######\n", rows(b))
}

func TestGenerateID(t *testing.T) {
	for _, id := range []int{-1, Count, 50} {
		_, err := Generate(id)
		assert.ErrorIs(t, err, ErrID)
	}
}

func modules(id int) [Size][Size]bool {
	var m [Size][Size]bool
	for y := range m {
		for x := range m[y] {
			m[y][x] = black(&dict[id], x, y)
		}
	}
	return m
}

func rotate(m [Size][Size]bool) [Size][Size]bool {
	var r [Size][Size]bool
	for y := range m {
		for x := range m[y] {
			r[x][Size-1-y] = m[y][x]
		}
	}
	return r
}

func TestDictionaryDistinct(t *testing.T) {
	for id := 0; id < Count; id++ {
		m := modules(id)
		assert.Equal(t, id, lookup(&m))
		for k := 1; k < 4; k++ {
			m = rotate(m)
			assert.Equal(t, -1, lookup(&m), "id %d rotated %d times", id, k)
		}
	}
}

func TestFinderRejected(t *testing.T) {
	var m [Size][Size]bool
	for y := range m {
		for x := range m[y] {
			ring := x == 0 || y == 0 || x == Size-1 || y == Size-1
			core := x >= 2 && x <= 4 && y >= 2 && y <= 4
			m[y][x] = ring || core
		}
	}
	for k := 0; k < 4; k++ {
		assert.Equal(t, -1, lookup(&m))
		m = rotate(m)
	}
}

func assertCorner(t *testing.T, want r2.Vec, got r2.Vec, delta float64, msg string, args ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, append([]any{msg}, args...)...)
	assert.InDelta(t, want.Y, got.Y, delta, append([]any{msg}, args...)...)
}

// sheet draws the four markers at scale 5 on a 200x160 page.
func sheet(t *testing.T) (*paperqr.Bitmap, [Count]image.Point) {
	const scale = 5
	pos := [Count]image.Point{{10, 10}, {150, 10}, {10, 110}, {60, 10}}
	b := paperqr.NewBitmap(200, 160)
	for id, p := range pos {
		m, err := Generate(id)
		require.NoError(t, err)
		b.Draw(m.Scale(scale), p)
	}
	return b, pos
}

func TestDetect(t *testing.T) {
	b, pos := sheet(t)
	found := Detect(b, Options{})
	require.Len(t, found, Count)
	for id, p := range pos {
		q := found[id]
		x, y := float64(p.X), float64(p.Y)
		assertCorner(t, r2.Vec{X: x, Y: y}, q[0], 1e-9, "marker %d", id)
		assertCorner(t, r2.Vec{X: x + 35, Y: y}, q[1], 1e-9, "marker %d", id)
		assertCorner(t, r2.Vec{X: x + 35, Y: y + 35}, q[2], 1e-9, "marker %d", id)
		assertCorner(t, r2.Vec{X: x, Y: y + 35}, q[3], 1e-9, "marker %d", id)
	}
}

// turn rotates b by 90 degrees clockwise.
func turn(b *paperqr.Bitmap) *paperqr.Bitmap {
	r := paperqr.NewBitmap(b.Height, b.Width)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				r.Set(b.Height-1-y, x, true)
			}
		}
	}
	return r
}

func TestDetectTurned(t *testing.T) {
	b, pos := sheet(t)
	h := float64(b.Height)
	found := Detect(turn(b), Options{})
	require.Len(t, found, Count)
	for id, p := range pos {
		x, y := float64(p.X), float64(p.Y)
		// The marker's own top left corner, after the turn.
		assertCorner(t, r2.Vec{X: h - y, Y: x}, found[id][0], 1e-9, "marker %d", id)
		assertCorner(t, r2.Vec{X: h - y, Y: x + 35}, found[id][1], 1e-9, "marker %d", id)
	}
}

// drawRotated draws marker id with its centre at c, side pixels
// across, rotated by angle radians.
func drawRotated(b *paperqr.Bitmap, id int, c r2.Vec, side, angle float64) {
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			p := r2.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			v := r2.Rotate(r2.Sub(p, c), -angle, r2.Vec{})
			mx := math.Floor((v.X + side/2) / side * Size)
			my := math.Floor((v.Y + side/2) / side * Size)
			if mx < 0 || my < 0 || mx >= Size || my >= Size {
				continue
			}
			if black(&dict[id], int(mx), int(my)) {
				b.Set(x, y, true)
			}
		}
	}
}

func TestDetectRotated(t *testing.T) {
	const side = 56.0
	for _, angle := range []float64{0.3, 1, 2.5, -0.6} {
		b := paperqr.NewBitmap(300, 300)
		centres := [Count]r2.Vec{{X: 60, Y: 60}, {X: 220, Y: 70}, {X: 80, Y: 230}, {X: 210, Y: 220}}
		for id, c := range centres {
			drawRotated(b, id, c, side, angle)
		}
		found := Detect(b, Options{})
		require.Len(t, found, Count, "angle %v", angle)
		for id, c := range centres {
			tl := r2.Add(c, r2.Rotate(r2.Vec{X: -side / 2, Y: -side / 2}, angle, r2.Vec{}))
			assertCorner(t, tl, found[id][0], 2, "marker %d angle %v", id, angle)
			assert.InDelta(t, side, found[id].Side(), 3, "marker %d angle %v", id, angle)
		}
	}
}

func TestDetectSmall(t *testing.T) {
	b := paperqr.NewBitmap(40, 40)
	m, err := Generate(0)
	require.NoError(t, err)
	b.Draw(m, image.Pt(5, 5))
	assert.Len(t, Detect(b, Options{}), 1)
	assert.Empty(t, Detect(b, Options{MinSide: 8}))
}

func TestDetectBlank(t *testing.T) {
	assert.Empty(t, Detect(paperqr.NewBitmap(50, 50), Options{}))
	b := paperqr.NewBitmap(50, 50)
	for y := 10; y < 40; y++ {
		for x := 10; x < 40; x++ {
			b.Set(x, y, true)
		}
	}
	assert.Empty(t, Detect(b, Options{}))
}
