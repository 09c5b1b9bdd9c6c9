// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package marker

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/register"
)

// Options control Detect.
type Options struct {
	MinSide float64 // shortest accepted side in pixels; Size if 0
	MaxSkew float64 // longest to shortest side ratio; 1.3 if 0
}

func (o Options) withDefaults() Options {
	if o.MinSide <= 0 {
		o.MinSide = Size
	}
	if o.MaxSkew <= 1 {
		o.MaxSkew = 1.3
	}
	return o
}

// Detect finds the markers in a binarised image.  The corners of
// each marker are reported clockwise from the marker's own top left
// corner.  When a marker id is found more than once, the largest
// candidate wins.
func Detect(b *paperqr.Bitmap, opt Options) map[int]register.Quad {
	opt = opt.withDefaults()
	found := make(map[int]register.Quad)
	for _, comp := range components(b, opt.MinSide) {
		q, ok := corners(comp)
		if !ok || !square(q, opt) {
			continue
		}
		for k := 0; k < 4; k++ {
			r := register.Quad{q[k], q[(k+1)&3], q[(k+2)&3], q[(k+3)&3]}
			m := sample(b, r)
			id := lookup(&m)
			if id < 0 {
				continue
			}
			if old, ok := found[id]; !ok || old.Side() < r.Side() {
				found[id] = r
			}
			break
		}
	}
	return found
}

// components returns the pixel centres of each 4-connected set of
// black pixels whose bounding box is at least minSide across.
func components(b *paperqr.Bitmap, minSide float64) [][]r2.Vec {
	w, h := b.Width, b.Height
	seen := make([]bool, w*h)
	var (
		comps [][]r2.Vec
		stack []int
	)
	for start := range seen {
		if seen[start] || !b.Black(start%w, start/w) {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		var pts []r2.Vec
		x0, y0, x1, y1 := w, h, -1, -1
		for len(stack) != 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			pts = append(pts, r2.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			x0, y0, x1, y1 = min(x0, x), min(y0, y), max(x1, x), max(y1, y)
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if j := ny*w + nx; !seen[j] && b.Black(nx, ny) {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		// The diagonal of a rotated square is longer than its side.
		if diag := math.Hypot(float64(x1-x0+1), float64(y1-y0+1)); diag >= minSide {
			comps = append(comps, pts)
		}
	}
	return comps
}

// corners estimates the outline of a square from its pixels: the
// point farthest from the centroid, the point farthest from that one,
// and the points farthest on either side of the line through both.
// The corners are returned clockwise on screen.
func corners(pts []r2.Vec) (register.Quad, bool) {
	var c r2.Vec
	for _, p := range pts {
		c = r2.Add(c, p)
	}
	c = r2.Scale(1/float64(len(pts)), c)
	a := farthest(pts, c)
	cc := farthest(pts, a)
	ac := r2.Sub(cc, a)
	var (
		b, d       r2.Vec
		smax, smin float64
	)
	for _, p := range pts {
		s := r2.Cross(ac, r2.Sub(p, a))
		if s > smax {
			smax, b = s, p
		}
		if s < smin {
			smin, d = s, p
		}
	}
	if smax <= 0 || smin >= 0 {
		return register.Quad{}, false
	}
	q := register.Quad{a, b, cc, d}
	if area(q) < 0 {
		q[1], q[3] = q[3], q[1]
	}
	// Pixel centres lie half a pixel inside the outline.
	m := r2.Scale(0.25, r2.Add(r2.Add(q[0], q[1]), r2.Add(q[2], q[3])))
	for i, v := range q {
		q[i] = r2.Add(v, r2.Scale(math.Sqrt2/2, r2.Unit(r2.Sub(v, m))))
	}
	return q, true
}

func farthest(pts []r2.Vec, from r2.Vec) r2.Vec {
	var (
		best r2.Vec
		dmax = -1.0
	)
	for _, p := range pts {
		if d := r2.Norm2(r2.Sub(p, from)); d > dmax {
			dmax, best = d, p
		}
	}
	return best
}

// area returns the signed area of q, positive when q runs clockwise
// on screen, where y grows downwards.
func area(q register.Quad) float64 {
	var s float64
	for i := range q {
		s += r2.Cross(q[i], q[(i+1)&3])
	}
	return s / 2
}

// square reports whether q is close enough to a square.
func square(q register.Quad, opt Options) bool {
	lo, hi := math.Inf(1), 0.0
	for i := range q {
		s := r2.Norm(r2.Sub(q[(i+1)&3], q[i]))
		lo, hi = math.Min(lo, s), math.Max(hi, s)
	}
	if lo < opt.MinSide || hi > lo*opt.MaxSkew {
		return false
	}
	d1, d2 := r2.Norm(r2.Sub(q[2], q[0])), r2.Norm(r2.Sub(q[3], q[1]))
	return math.Max(d1, d2) <= math.Min(d1, d2)*opt.MaxSkew
}

// sample reads the modules of a marker outlined by q.  Each module is
// the majority of five points around its centre.
func sample(b *paperqr.Bitmap, q register.Quad) [Size][Size]bool {
	var m [Size][Size]bool
	const d = 0.25
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			n := 0
			for _, o := range [5][2]float64{{0, 0}, {-d, 0}, {d, 0}, {0, -d}, {0, d}} {
				u := (float64(x) + 0.5 + o[0]) / Size
				v := (float64(y) + 0.5 + o[1]) / Size
				p := bilinear(q, u, v)
				if b.Black(int(math.Floor(p.X)), int(math.Floor(p.Y))) {
					n++
				}
			}
			m[y][x] = n >= 3
		}
	}
	return m
}

// bilinear maps (u,v) in the unit square onto q.
func bilinear(q register.Quad, u, v float64) r2.Vec {
	top := r2.Add(r2.Scale(1-u, q[0]), r2.Scale(u, q[1]))
	bot := r2.Add(r2.Scale(1-u, q[3]), r2.Scale(u, q[2]))
	return r2.Add(r2.Scale(1-v, top), r2.Scale(v, bot))
}
