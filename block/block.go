// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements the framing of a payload into blocks of
// text, each small enough for one QR code and decodable on its own.
//
// A run of blocks starts with the header block at index 0, which
// carries the number of blocks in the run and the SHA-256 digest of
// the payload.  Blocks 1 to Length-1 carry the base64 encoding of the
// payload in order.  Every block starts with an 8 character tag
// holding the 24-bit run identifier and the 24-bit block index.
package block // import "github.com/unixdj/paperqr/block"

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	RunIDBits = 24 // bits in a run identifier
	IndexBits = 24 // bits in a block index or length

	MaxIndex = 1<<IndexBits - 1 // largest block index

	TagSize    = (RunIDBits + IndexBits) / 6          // tag length in base64 characters
	HashSize   = sha256.Size                          // digest length in bytes
	HeaderSize = (IndexBits/8 + HashSize + 2) / 3 * 4 // header content length before padding

	// Pad is the character padding block content to the run's width.
	Pad = '='
)

var (
	ErrMalformedTag    = errors.New("paperqr: malformed block tag")
	ErrMalformedHeader = errors.New("paperqr: malformed header block")
	ErrChunkSize       = errors.New("paperqr: invalid chunk size")
	ErrTooLarge        = errors.New("paperqr: payload needs too many blocks")
)

// A RunID identifies the blocks produced by one encoding run.
// Only the low 24 bits are used.
type RunID uint32

func (r RunID) String() string { return fmt.Sprintf("%06x", uint32(r)) }

// NewRunID draws a run identifier from r.
func NewRunID(r io.Reader) (RunID, error) {
	var b [RunIDBits / 8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return RunID(b[0])<<16 | RunID(b[1])<<8 | RunID(b[2]), nil
}

// A Block is one unit of transport.
type Block struct {
	RunID   RunID
	Index   int
	Content string // base64 text, padded with '=' to the run's width
}

// Text returns the literal text of the block: its tag followed by
// its content.
func (b Block) Text() string {
	var w bits
	w.write(uint32(b.RunID), RunIDBits)
	w.write(uint32(b.Index), IndexBits)
	return base64.StdEncoding.EncodeToString(w.bytes()) + b.Content
}

// Parse splits the literal text of a block into its tag fields and
// content.  The content is returned as is, padding included.
func Parse(line string) (Block, error) {
	if len(line) < TagSize {
		return Block{}, fmt.Errorf("%w: %q too short", ErrMalformedTag, line)
	}
	half := TagSize / 2
	run, err := decodeField(line[:half])
	if err != nil {
		return Block{}, fmt.Errorf("%w: run id %q", ErrMalformedTag, line[:half])
	}
	idx, err := decodeField(line[half:TagSize])
	if err != nil {
		return Block{}, fmt.Errorf("%w: index %q", ErrMalformedTag, line[half:TagSize])
	}
	return Block{RunID(run), int(idx), line[TagSize:]}, nil
}

var strictEncoding = base64.StdEncoding.Strict()

// decodeField decodes 4 base64 characters into a 24-bit value.
func decodeField(s string) (uint32, error) {
	var buf [3]byte
	n, err := strictEncoding.Decode(buf[:], []byte(s))
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, errors.New("short field")
	}
	r := bits{b: buf[:], nbit: 24}
	return r.read(24), nil
}

// A Header is the content of block 0.
type Header struct {
	Length int            // number of blocks in the run, header included
	Hash   [HashSize]byte // SHA-256 digest of the payload
}

// Content returns the unpadded base64 content of the header block.
func (h Header) Content() string {
	var w bits
	w.write(uint32(h.Length), IndexBits)
	w.writeBytes(h.Hash[:])
	return base64.StdEncoding.EncodeToString(w.bytes())
}

// ParseHeader unpacks the content of a header block.  Trailing
// padding is ignored.
func ParseHeader(content string) (Header, error) {
	b, err := base64.RawStdEncoding.Strict().
		DecodeString(strings.TrimRight(content, string(Pad)))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if len(b) != IndexBits/8+HashSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(b))
	}
	r := bits{b: b, nbit: 8 * len(b)}
	var h Header
	h.Length = int(r.read(IndexBits))
	copy(h.Hash[:], r.readBytes(HashSize))
	return h, nil
}

// Options control Encode.
type Options struct {
	ChunkSize int       // base64 characters of payload per block
	Rand      io.Reader // source of the run identifier; crypto/rand if nil
}

// A Dataset is the complete output of one encoding run.
type Dataset struct {
	RunID  RunID
	Header Header
	Width  int     // content width of every block
	Blocks []Block // Blocks[i].Index == i
}

// Lines returns the literal texts of the blocks in index order.
// Every line has the same length.
func (d *Dataset) Lines() []string {
	l := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		l[i] = b.Text()
	}
	return l
}

// Encode splits payload into a dataset of blocks.
func Encode(payload []byte, opt Options) (*Dataset, error) {
	cs := opt.ChunkSize
	if cs < 1 {
		return nil, ErrChunkSize
	}
	rnd := opt.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	run, err := NewRunID(rnd)
	if err != nil {
		return nil, fmt.Errorf("paperqr: run id: %w", err)
	}
	text := base64.StdEncoding.EncodeToString(payload)
	n := (len(text) + cs - 1) / cs
	if n+1 > MaxIndex {
		return nil, ErrTooLarge
	}
	d := &Dataset{
		RunID:  run,
		Header: Header{Length: n + 1, Hash: sha256.Sum256(payload)},
		Width:  max(cs, HeaderSize),
		Blocks: make([]Block, 0, n+1),
	}
	d.add(d.Header.Content())
	for len(text) > cs {
		d.add(text[:cs])
		text = text[cs:]
	}
	if text != "" {
		d.add(text)
	}
	return d, nil
}

func (d *Dataset) add(chunk string) {
	d.Blocks = append(d.Blocks, Block{
		RunID:   d.RunID,
		Index:   len(d.Blocks),
		Content: chunk + strings.Repeat(string(Pad), d.Width-len(chunk)),
	})
}
