// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package register maps the cell grid of a printed page onto an image
// of that page, given the four fiducial markers found in the image.
//
// Marker 0 sits at the top left corner of the grid, marker 1 at the
// top right, marker 2 at the bottom left, and marker 3 one cell to
// the right of marker 0.  The distances between marker centres give
// the number of columns and rows and the size of a cell; the grid is
// then an affine map, so rotation, scaling and translation of the
// page are tolerated, but perspective distortion is not.
package register // import "github.com/unixdj/paperqr/register"

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	ErrMissingFiducials = errors.New("paperqr: fiducial markers missing")
	ErrDegenerate       = errors.New("paperqr: degenerate marker geometry")
)

// Fiducials is the number of markers on a page.
const Fiducials = 4

// A Quad is a quadrilateral given by its corners in clockwise order,
// starting from the top left corner of the object it outlines.
type Quad [4]r2.Vec

// Center returns the midpoint of the diagonal from q[0] to q[2].
func (q Quad) Center() r2.Vec {
	return r2.Scale(0.5, r2.Add(q[0], q[2]))
}

// Side returns the length of the first side of q.
func (q Quad) Side() float64 {
	return r2.Norm(r2.Sub(q[1], q[0]))
}

// Bounds returns the smallest rectangle containing q, corners rounded
// to the nearest pixel.
func (q Quad) Bounds() image.Rectangle {
	min, max := q[0], q[0]
	for _, v := range q[1:] {
		min.X, min.Y = math.Min(min.X, v.X), math.Min(min.Y, v.Y)
		max.X, max.Y = math.Max(max.X, v.X), math.Max(max.Y, v.Y)
	}
	return image.Rect(round(min.X), round(min.Y), round(max.X), round(max.Y))
}

func round(f float64) int { return int(math.Round(f)) }

// A Grid is the cell grid of one page as it appears in an image.
type Grid struct {
	Columns    int
	Rows       int
	Origin     r2.Vec  // top left corner of cell (0,0)
	ColVec     r2.Vec  // offset from one column to the next
	RowVec     r2.Vec  // offset from one row to the next
	MarkerSize float64 // side of marker 0 in pixels
}

// New registers the grid outlined by markers, which must hold
// exactly the marker ids 0 to 3.
func New(markers map[int]Quad) (*Grid, error) {
	for id := 0; id < Fiducials; id++ {
		if _, ok := markers[id]; !ok {
			return nil, fmt.Errorf("%w: no marker %d", ErrMissingFiducials, id)
		}
	}
	if len(markers) != Fiducials {
		return nil, fmt.Errorf("%w: %d markers found", ErrMissingFiducials, len(markers))
	}
	var c [Fiducials]r2.Vec
	for id := range c {
		c[id] = markers[id].Center()
	}
	across, down := r2.Sub(c[1], c[0]), r2.Sub(c[2], c[0])
	width, height := r2.Norm(across), r2.Norm(down)
	cell := r2.Norm(r2.Sub(c[3], c[0]))
	if !(cell > 0) {
		return nil, fmt.Errorf("%w: zero cell size", ErrDegenerate)
	}
	cols, rows := round(width/cell), round(height/cell)
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("%w: %d x %d cells", ErrDegenerate, cols, rows)
	}
	ux, uy := r2.Unit(across), r2.Unit(down)
	ms := markers[0].Side()
	return &Grid{
		Columns:    cols,
		Rows:       rows,
		Origin:     r2.Add(c[0], r2.Scale(ms, r2.Add(ux, uy))),
		ColVec:     r2.Scale(width/float64(cols), ux),
		RowVec:     r2.Scale(height/float64(rows), uy),
		MarkerSize: ms,
	}, nil
}

// At returns the image point at grid coordinates (x,y), measured in
// cells from the origin.
func (g *Grid) At(x, y float64) r2.Vec {
	return r2.Add(g.Origin, r2.Add(r2.Scale(x, g.ColVec), r2.Scale(y, g.RowVec)))
}

// Cell returns the outline of the cell in column x, row y.
func (g *Grid) Cell(x, y int) Quad {
	fx, fy := float64(x), float64(y)
	return Quad{
		g.At(fx, fy),
		g.At(fx+1, fy),
		g.At(fx+1, fy+1),
		g.At(fx, fy+1),
	}
}

// Crop returns the bounding box of the cell in column x, row y.
func (g *Grid) Crop(x, y int) image.Rectangle {
	return g.Cell(x, y).Bounds()
}

// Cells returns the coordinates of every cell, column by column.
func (g *Grid) Cells() []image.Point {
	p := make([]image.Point, 0, g.Columns*g.Rows)
	for x := 0; x < g.Columns; x++ {
		for y := 0; y < g.Rows; y++ {
			p = append(p, image.Pt(x, y))
		}
	}
	return p
}
