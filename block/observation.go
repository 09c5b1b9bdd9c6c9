// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"
	"image"
)

// Provenance tells where a block was read.
type Provenance struct {
	File string      // image or text file name
	Page int         // page number among the input images, from 0
	Cell image.Point // grid cell, for images
	Line int         // line number, from 1, for text; 0 for images
}

func (p Provenance) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s page %d cell (%d,%d)", p.File, p.Page+1, p.Cell.X+1, p.Cell.Y+1)
}

// An Observation is a block as read from some source.
type Observation struct {
	Block  Block
	Source Provenance
}
