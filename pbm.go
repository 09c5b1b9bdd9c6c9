// Copyright 2011 The Go Authors.  All rights reserved.
// Copyright 2024 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package paperqr

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
)

// EncodePBM writes a Portable Bit Map image displaying b to w, for
// use with netpbm, scale image pixels per bitmap pixel, surrounded
// by border white bitmap pixels.
func (b *Bitmap) EncodePBM(w io.Writer, scale, border int) error {
	if !b.isValid() || scale < 1 || border < 0 {
		return ErrArgs
	}
	bw := bufio.NewWriter(w)
	width := scale * (b.Width + border*2)
	height := scale * (b.Height + border*2)
	if _, err := bw.WriteString("P4\n" + strconv.Itoa(width) + " " +
		strconv.Itoa(height) + "\n"); err != nil {
		return err
	}
	row := make([]byte, (width+7)/8)
	for i := 0; i < scale*border; i++ {
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	off := scale * border
	for y := 0; y < b.Height; y++ {
		srow := b.Bits[y*b.Stride : y*b.Stride+b.Stride]
		clear(row)
		if scale == 8 && off == 0 {
			pbmRow8(row, srow)
		} else {
			pbmRow(row, srow, b.Width, scale, off)
		}
		for i := 0; i < scale; i++ {
			if _, err := bw.Write(row); err != nil {
				return err
			}
		}
	}
	clear(row)
	for i := 0; i < scale*border; i++ {
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// pbmRow8 encodes a row of pixels in PBM format at scale 8 with no
// border: every source bit becomes one output byte.
func pbmRow8(row, srow []byte) {
	var b uint64
	for _, v := range srow {
		for i := 0; i < 8; i++ {
			b = b<<8 | uint64(-(v & 1))
			v >>= 1
		}
		if len(row) < 8 {
			break
		}
		binary.LittleEndian.PutUint64(row, b)
		row = row[8:]
	}
	for i := range row {
		row[i] = byte(b)
		b >>= 8
	}
}

// pbmRow encodes a row of siz pixels in PBM format, each pixel
// stretched to scale bits, starting off bits into row.
func pbmRow(row, srow []byte, siz, scale, off int) {
	for x := 0; x < siz; x++ {
		if srow[x/8]&(1<<uint(7-x&7)) == 0 {
			continue
		}
		for i, n := off+x*scale, off+(x+1)*scale; i < n; i++ {
			row[i/8] |= 1 << uint(7-i&7)
		}
	}
}
