// Copyright 2011 The Go Authors.  All rights reserved.
// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package paperqr stores data on paper as pages of QR codes.

The root package holds the raster primitives shared by the encoder and
the decoder: Bitmap, a packed 1-bit image, and QREncoder, which turns a
block of text into a QR symbol.  Framing, page layout, registration of
scanned pages and reassembly live in the block, layout, register, scan
and assemble packages.
*/
package paperqr // import "github.com/unixdj/paperqr"

import (
	"errors"
	"fmt"
	"strings"

	"rsc.io/qr/coding"
)

// A Level denotes a QR error correction level.
// From least to most tolerant of errors, they are L, M, Q, H.
type Level int

const (
	L Level = iota // 20% redundant
	M              // 38% redundant
	Q              // 55% redundant
	H              // 65% redundant
)

var (
	ErrLevel   = errors.New("paperqr: invalid level")
	ErrTooLong = errors.New("paperqr: text too long to encode as QR")
)

func (l Level) String() string {
	if l < L || l > H {
		return "invalid"
	}
	return "LMQH"[l : l+1]
}

// ParseLevel parses a level name, one of l, m, q or h in either case.
func ParseLevel(s string) (Level, error) {
	if len(s) != 1 {
		return 0, ErrLevel
	}
	n := strings.IndexByte("lmqhLMQH", s[0])
	if n < 0 {
		return 0, ErrLevel
	}
	return Level(n & 3), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseLevel.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return fmt.Errorf("%w: %q", err, text)
	}
	*l = v
	return nil
}

// QREncoder encodes block text as QR symbols at a fixed level.
// The returned symbols have no quiet zone; spacing is the caller's.
type QREncoder struct {
	Level Level
}

// Encode returns the symbol for text as a square bitmap with one
// pixel per module.  Text is always encoded in byte mode, so that
// texts of equal length make symbols of equal size.
func (e QREncoder) Encode(text string) (*Bitmap, error) {
	if e.Level < L || e.Level > H {
		return nil, ErrLevel
	}
	enc := coding.String(text)
	l := coding.Level(e.Level)
	var v coding.Version
	for v = coding.MinVersion; ; v++ {
		if v > coding.MaxVersion {
			return nil, ErrTooLong
		}
		if enc.Bits(v) <= v.DataBytes(l)*8 {
			break
		}
	}
	p, err := coding.NewPlan(v, l, 0)
	if err != nil {
		return nil, err
	}
	c, err := p.Encode(enc)
	if err != nil {
		return nil, err
	}
	// rsc.io/qr packs rows MSB first, exactly as Bitmap does.
	return &Bitmap{
		Bits:   c.Bitmap,
		Width:  c.Size,
		Height: c.Size,
		Stride: c.Stride,
	}, nil
}
