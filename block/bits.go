// Copyright 2011 The Go Authors.  All rights reserved.
// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// bits is a big-endian bit string.  Tags and headers are packed as
// contiguous fields of arbitrary width before base64 encoding.
type bits struct {
	b    []byte
	nbit int // bits written, or bits left to read
	rpos int // read position in bits
}

func (b *bits) bytes() []byte {
	if b.nbit%8 != 0 {
		panic("paperqr: fractional byte")
	}
	return b.b
}

// write appends the low nbit bits of v, nbit <= 32.
func (b *bits) write(v uint32, nbit int) {
	v <<= 32 - nbit
	if rem := -b.nbit & 7; rem != 0 {
		b.b[len(b.b)-1] |= byte(v >> (32 - rem))
		if rem >= nbit {
			b.nbit += nbit
			return
		}
		b.nbit += rem
		nbit -= rem
		v <<= rem
	}
	for n := nbit; n > 0; n -= 8 {
		b.b = append(b.b, byte(v>>24))
		v <<= 8
	}
	b.nbit += nbit
}

func (b *bits) writeBytes(p []byte) {
	for _, v := range p {
		b.write(uint32(v), 8)
	}
}

// read consumes nbit bits, nbit <= 32.
func (b *bits) read(nbit int) uint32 {
	var v uint32
	for ; nbit > 0 && b.rpos < b.nbit; nbit-- {
		bit := b.b[b.rpos/8] >> uint(7-b.rpos&7) & 1
		v = v<<1 | uint32(bit)
		b.rpos++
	}
	return v
}

func (b *bits) readBytes(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(b.read(8))
	}
	return p
}
