// Copyright 2011 The Go Authors.  All rights reserved.
// Copyright 2024 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package paperqr

/*
Bespoke PNG Encoder

Bitmaps drawn by this package are mostly white, with long runs of
identical bytes and many rows repeating the row above: every bitmap
row is stretched to scale image rows, and a border adds blank rows
above and below.  The encoder limits its DEFLATE vocabulary to:

  - Encoding literals.
  - Repeating the previous row, possibly several times in one match.
  - Repeating the last byte to complete a run of equal bytes.

The Huffman codes are built from exact symbol counts of the image,
so a page of mostly white pixels costs a bit or two per run.

Pixels are written as a two colour palette, white at index 0 and
black at index 1, so that rows are packed exactly as in a Bitmap.
*/

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

var ErrLargeImage = errors.New("paperqr: image too large")

// EncodePNG writes a PNG image displaying b to w, scale image pixels
// per bitmap pixel, surrounded by border white bitmap pixels.
func (b *Bitmap) EncodePNG(w io.Writer, scale, border int) error {
	if !b.isValid() || b.Width == 0 || b.Height == 0 ||
		scale < 1 || border < 0 {
		return ErrArgs
	}
	width := scale * (b.Width + border*2)
	height := scale * (b.Height + border*2)
	if width > 32767*8 || height > 32767*8 {
		return ErrLargeImage // rows must fit the LZ77 window
	}
	var pw pngWriter
	pw.buf.WriteString(pngHeader)

	// Header block
	binary.BigEndian.PutUint32(pw.tmp[0:4], uint32(width))
	binary.BigEndian.PutUint32(pw.tmp[4:8], uint32(height))
	pw.tmp[8] = 1  // 1-bit
	pw.tmp[9] = 3  // palette
	pw.tmp[10] = 0 // deflate
	pw.tmp[11] = 0 // adaptive filtering
	pw.tmp[12] = 0 // no interlace
	pw.writeChunk("IHDR", pw.tmp[:13])
	pw.writeChunk("PLTE", []byte{0xff, 0xff, 0xff, 0x00, 0x00, 0x00})

	// Data
	z := b.deflate(width, scale, border)
	for len(z) != 0 {
		n := min(len(z), chunkSize)
		pw.writeChunk("IDAT", z[:n])
		z = z[n:]
	}

	// End
	pw.writeChunk("IEND", nil)
	_, err := pw.buf.WriteTo(w)
	return err
}

// A pngWriter assembles PNG chunks.
type pngWriter struct {
	buf   bytes.Buffer
	tmp   [13]byte
	start int
}

const (
	pngHeader = "\x89PNG\r\n\x1a\n"
	chunkSize = 0x8000 // IDAT chunks split after 32 KB
)

func (w *pngWriter) writeChunk(name string, data []byte) {
	w.start = w.buf.Len()
	// The name is written twice, the first copy is overwritten by
	// the length.
	w.buf.WriteString(name)
	w.buf.WriteString(name)
	w.buf.Write(data)
	c := w.buf.Bytes()[w.start:]
	binary.BigEndian.PutUint32(c, uint32(len(c)-8))
	binary.BigEndian.PutUint32(w.tmp[0:4], crc32.ChecksumIEEE(c[4:]))
	w.buf.Write(w.tmp[0:4])
}

// deflate returns the zlib stream of the image rows of b, width pixels
// wide, each row preceded by filter type None.
func (b *Bitmap) deflate(width, scale, border int) []byte {
	var d deflater
	line := make([]byte, 1+(width+7)/8)
	d.header(len(line))
	for i := 0; i < scale*border; i++ {
		d.row(line)
	}
	off := scale * border
	row := line[1:]
	for y := 0; y < b.Height; y++ {
		srow := b.Bits[y*b.Stride : y*b.Stride+b.Stride]
		clear(row)
		if scale == 8 && off == 0 {
			pbmRow8(row, srow)
		} else {
			pbmRow(row, srow, b.Width, scale, off)
		}
		for i := 0; i < scale; i++ {
			d.row(line)
		}
	}
	clear(row)
	for i := 0; i < scale*border; i++ {
		d.row(line)
	}
	return d.finish()
}

// A token is a literal, or a match of length n at distance dist.
type token struct {
	n, dist uint16 // n is 0 for literals
	lit     byte
}

// A deflater compresses image rows in one dynamic Huffman block.
type deflater struct {
	bitWriter
	toks    []token
	prev    []byte // previous row
	pending int    // bytes of repeated rows not yet matched
	adler32 adigest
}

// header writes the zlib header for rows of rlen bytes.
func (d *deflater) header(rlen int) {
	var cinfo byte // log2 LZ77 window size minus 8, size >= rlen.
	for n := (rlen - 1) >> 8; n != 0; n >>= 1 {
		cinfo++
	}
	d.tmp[0] = cinfo<<4 | 0x08
	d.tmp[1] = 0
	d.tmp[1] += uint8(31 - (uint16(d.tmp[0])<<8+uint16(d.tmp[1]))%31)
	d.buf.Write(d.tmp[0:2])
	d.adler32.Reset()
}

// row adds an image row.  Rows equal to the previous one accumulate
// into a single match.
func (d *deflater) row(line []byte) {
	d.adler32.Write(line)
	if len(line) >= 3 && bytes.Equal(line, d.prev) {
		d.pending += len(line)
		return
	}
	d.flush()
	for i := 0; i < len(line); {
		z := line[i]
		j := i + 1
		for j < len(line) && line[j] == z {
			j++
		}
		d.toks = append(d.toks, token{lit: z})
		if n := j - i - 1; n >= 3 {
			d.match(n, 1)
		} else {
			for ; n > 0; n-- {
				d.toks = append(d.toks, token{lit: z})
			}
		}
		i = j
	}
	d.prev = append(d.prev[:0], line...)
}

// flush emits the pending row repeat.
func (d *deflater) flush() {
	if d.pending != 0 {
		d.match(d.pending, len(d.prev))
		d.pending = 0
	}
}

// match adds matches covering n >= 3 bytes at distance dist.
func (d *deflater) match(n, dist int) {
	for n > 0 {
		m := min(n, 258)
		if r := n - m; r > 0 && r < 3 {
			m = n - 3
		}
		d.toks = append(d.toks, token{n: uint16(m), dist: uint16(dist)})
		n -= m
	}
}

// finish encodes the tokens and returns the zlib stream.
func (d *deflater) finish() []byte {
	d.flush()

	// Count symbols and build codes.
	var lf [nsyms]int
	var df [ndcodes]int
	lf[256] = 1 // end of block
	for _, t := range d.toks {
		if t.n == 0 {
			lf[t.lit]++
			continue
		}
		l, _ := lcode(int(t.n))
		lf[l]++
		dc, _ := dcode(int(t.dist))
		df[dc]++
	}
	if df == [ndcodes]int{} {
		df[0] = 1 // at least one distance code
	}
	flatten(lf[:], 15)
	flatten(df[:], 15)
	sym := buildCodes(make(ctable, nsyms), lf[:], 15)
	dist := buildCodes(make(ctable, ndcodes), df[:], 15)

	// Header code lengths, across both alphabets.
	all := make(ctable, 0, len(sym)+len(dist))
	all = append(append(all, sym...), dist...)
	codes := lenCodes(all)
	var hf [nhcodes]int
	for _, v := range codes {
		hf[v.cmd]++
	}
	flatten(hf[:], 7)
	hc := buildCodes(make(ctable, nhcodes), hf[:], 7)
	hlen := func(i int) byte {
		if i < len(hc) {
			return hc[i].nbit
		}
		return 0
	}
	nh := len(hcorder)
	for nh > 4 && hlen(hcorder[nh-1]) == 0 {
		nh--
	}

	d.writeBits(1, 1) // final block
	d.writeBits(2, 2) // compressed, dynamic Huffman tables
	d.writeBits(uint64(len(sym)-257), 5)
	d.writeBits(uint64(len(dist)-1), 5)
	d.writeBits(uint64(nh-4), 4)
	for _, i := range hcorder[:nh] {
		d.writeBits(uint64(hlen(i)), 3)
	}
	for _, v := range codes {
		d.code(hc.codex(v.cmd, v.arg))
	}

	for _, t := range d.toks {
		if t.n == 0 {
			d.code(sym.code(uint16(t.lit)))
			continue
		}
		d.xcode(sym.xcodex(lcode(int(t.n))))
		d.xcode(dist.xcodex(dcode(int(t.dist))))
	}
	d.code(sym.code(256)) // end of block
	d.flushBits()

	binary.BigEndian.PutUint32(d.tmp[0:], d.adler32.Sum32())
	d.buf.Write(d.tmp[0:4])
	return d.buf.Bytes()
}

// hcorder is the order of header code lengths (RFC1951 3.2.7).
var hcorder = [nhcodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// lcode returns the length code and extra bits for rlen.
func lcode(rlen int) (uint16, code) {
	/*
	        Extra               Extra               Extra
	   Code Bits Length(s) Code Bits Lengths   Code Bits Length(s)
	   ---- ---- ------     ---- ---- -------   ---- ---- -------
	    257   0     3       267   1   15,16     277   4   67-82
	    258   0     4       268   1   17,18     278   4   83-98
	    259   0     5       269   2   19-22     279   4   99-114
	    260   0     6       270   2   23-26     280   4  115-130
	    261   0     7       271   2   27-30     281   5  131-162
	    262   0     8       272   2   31-34     282   5  163-194
	    263   0     9       273   3   35-42     283   5  195-226
	    264   0    10       274   3   43-50     284   5  227-257
	    265   1  11,12      275   3   51-58     285   0    258
	    266   1  13,14      276   3   59-66
	*/
	if rlen -= 3; rlen == 0xff {
		return 285, code{}
	} else if rlen&^0xff != 0 {
		panic("paperqr: invalid repeat length")
	}
	r := uint16(rlen)
	var n uint16
	for 8<<n <= r {
		n++
	}
	// r>>n is [0,7] if n=0, otherwise [4,7].
	return 257 + n<<2 + r>>n, code{r & (1<<n - 1), byte(n)}
}

// dcode returns the distance code and extra bits for dist.
func dcode(dist int) (uint16, code) {
	/*
	        Extra           Extra               Extra
	   Code Bits Dist  Code Bits   Dist     Code Bits Distance
	   ---- ---- ----  ---- ----  ------    ---- ---- --------
	     0   0    1     10   4     33-48    20    9   1025-1536
	     1   0    2     11   4     49-64    21    9   1537-2048
	     2   0    3     12   5     65-96    22   10   2049-3072
	     3   0    4     13   5     97-128   23   10   3073-4096
	     4   1   5,6    14   6    129-192   24   11   4097-6144
	     5   1   7,8    15   6    193-256   25   11   6145-8192
	     6   2   9-12   16   7    257-384   26   12  8193-12288
	     7   2  13-16   17   7    385-512   27   12 12289-16384
	     8   3  17-24   18   8    513-768   28   13 16385-24576
	     9   3  25-32   19   8   769-1024   29   13 24577-32768
	*/
	if dist--; dist&^0x7fff != 0 {
		panic("paperqr: invalid repeat distance")
	}
	d := uint16(dist)
	var n uint16
	for 4<<n <= d {
		n++
	}
	// d>>n is [0,3] if n=0, otherwise [2,3].
	return n<<1 + d>>n, code{d & (1<<n - 1), byte(n)}
}

// A bitWriter is a write buffer for bit-oriented data like deflate.
type bitWriter struct {
	buf  bytes.Buffer
	tmp  [15]byte
	nbit byte
	bit  uint64
}

func (w *bitWriter) flushBits() {
	if n := w.nbit; n > 0 {
		binary.LittleEndian.PutUint64(w.tmp[:], w.bit)
		w.buf.Write(w.tmp[:(n+7)/8])
		w.bit, w.nbit = 0, 0
	}
}

func (w *bitWriter) writeBits(bit uint64, nbit byte) {
	n := w.nbit
	b := w.bit | bit<<n
	n += nbit
	if n >= 64 {
		binary.LittleEndian.PutUint64(w.tmp[:], b)
		w.buf.Write(w.tmp[:8])
		n -= 64
		b = bit >> (nbit - n)
	}
	w.bit, w.nbit = b, n
}

func (w *bitWriter) code(c code)   { w.writeBits(uint64(c.bit), c.nbit) }
func (w *bitWriter) xcode(c xcode) { w.writeBits(c.bit, c.nbit) }

type adigest struct {
	a, b uint32
}

func (d *adigest) Reset() { d.a, d.b = 1, 0 }

const amod = 65521

func (d *adigest) Write(p []byte) {
	// invariant: a, b < amod
	for len(p) != 0 {
		// 5552 bytes keep b under 2**32 between reductions.
		n := min(len(p), 5552)
		for _, pi := range p[:n] {
			d.a += uint32(pi)
			d.b += d.a
		}
		d.a %= amod
		d.b %= amod
		p = p[n:]
	}
}

func (d *adigest) Sum32() uint32 { return d.b<<16 | d.a }
