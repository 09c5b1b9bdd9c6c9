// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/assemble"
	"github.com/unixdj/paperqr/layout"
	"github.com/unixdj/paperqr/register"
)

const (
	scale  = 4 // pixels per module
	margin = 5 // white modules around each page
)

// pages lays out lines and rasterises every page.
func pages(t *testing.T, lines []string, cols, rows int) []*paperqr.Bitmap {
	t.Helper()
	l, err := layout.Build(lines, paperqr.QREncoder{Level: paperqr.L},
		layout.Options{Columns: cols, Rows: rows, DotSpacing: 3})
	require.NoError(t, err)
	bm := make([]*paperqr.Bitmap, len(l.Pages))
	for i, p := range l.Pages {
		bm[i] = p.Bitmap()
	}
	return bm
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

func payload(n int) string {
	var s strings.Builder
	for i := 0; s.Len() < n; i++ {
		fmt.Fprintf(&s, "line %d of the payload\n", i)
	}
	return s.String()[:n]
}

func TestFilesRoundTrip(t *testing.T) {
	text := payload(300)
	d := dataset(t, text, 48)
	require.Len(t, d.Blocks, 10)
	dir := t.TempDir()
	var files []string
	for i, b := range pages(t, d.Lines(), 3, 2) {
		name := filepath.Join(dir, fmt.Sprintf("page%d.png", i))
		f, err := os.Create(name)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, b.Image(scale, margin)))
		require.NoError(t, f.Close())
		files = append(files, name)
	}
	require.Len(t, files, 2)

	s := New(Options{Workers: 2})
	assert.Equal(t, [2]string{"zxing", "goqr"}, s.Names())
	pg, err := s.Files(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, pg, 2)
	for i, p := range pg {
		assert.Equal(t, i, p.Number)
		assert.Equal(t, files[i], p.File)
		require.NotNil(t, p.Grid)
		assert.Equal(t, 3, p.Grid.Columns)
		assert.Equal(t, 2, p.Grid.Rows)
		assert.Zero(t, p.Malformed)
	}
	// Cells are read column by column.
	assert.Equal(t, image.Pt(0, 1), pg[0].Cells[1].Pos)
	assert.Equal(t, 3, pg[0].Blocks[1].Block.Index)
	assert.Equal(t, 1, pg[0].Blocks[2].Block.Index)

	obs := Observations(pg)
	assert.ElementsMatch(t, d.Lines(), Lines(obs))
	for _, o := range obs {
		assert.Contains(t, files, o.Source.File)
	}

	st := Tally(pg)
	assert.Equal(t, 12, st.Total)
	assert.Equal(t, 2, st.Neither)
	assert.Equal(t, 10, st.Both+st.Only[0]+st.Only[1])

	res, err := assemble.Assemble(obs, assemble.Options{})
	require.NoError(t, err)
	assert.Equal(t, text, string(res.Payload))
	assert.Equal(t, d.RunID, res.RunID)
}

func TestImageTurned(t *testing.T) {
	text := payload(120)
	d := dataset(t, text, 32)
	bm := pages(t, d.Lines(), 3, 2)
	require.Len(t, bm, 1)
	p, err := New(Options{}).Image(context.Background(), "turned", 0,
		turn(bm[0]).Image(scale, margin))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Grid.Columns)
	assert.Equal(t, 2, p.Grid.Rows)
	read := 0
	for _, c := range p.Cells {
		if c.OK() {
			read++
		}
	}
	assert.Equal(t, len(d.Blocks), read)
	res, err := assemble.Assemble(p.Blocks, assemble.Options{})
	require.NoError(t, err)
	assert.Equal(t, text, string(res.Payload))
}

func TestImageUpscale(t *testing.T) {
	d := dataset(t, "upscaled", 16)
	bm := pages(t, d.Lines(), 2, 1)
	p, err := New(Options{Upscale: 2, Workers: 1}).Image(context.Background(),
		"up", 0, bm[0].Image(scale, margin))
	require.NoError(t, err)
	assert.ElementsMatch(t, d.Lines(), Lines(p.Blocks))
}

func TestImageNoMarkers(t *testing.T) {
	p, err := New(Options{}).Image(context.Background(), "blank", 0,
		paperqr.NewBitmap(200, 200).Image(1, 0))
	assert.ErrorIs(t, err, register.ErrMissingFiducials)
	assert.ErrorContains(t, err, "blank: ")
	require.NotNil(t, p)
	assert.Empty(t, p.Markers)
	assert.Nil(t, p.Grid)
}

// fake reads the same text from every image, or fails with err.
type fake struct {
	name string
	text string
	err  error
}

func (f fake) Name() string { return f.name }

func (f fake) Decode(image.Image) (string, error) { return f.text, f.err }

func TestImageDisagreement(t *testing.T) {
	d := dataset(t, "two readers", 16)
	img := pages(t, d.Lines(), 2, 1)[0].Image(scale, margin)
	s := New(Options{Decoders: [2]Decoder{
		fake{name: "one", text: d.Lines()[0]},
		fake{name: "two", text: d.Lines()[1]},
	}})
	_, err := s.Image(context.Background(), "page.png", 0, img)
	require.ErrorIs(t, err, ErrDecoderDisagreement)
	var de *DisagreementError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, [2]string{"one", "two"}, de.Decoders)
	assert.Equal(t, [2]string{d.Lines()[0], d.Lines()[1]}, de.Texts)
	assert.Equal(t, "page.png", de.Source.File)
	assert.Contains(t, err.Error(), "page.png page 1 cell (")
}

func TestImageOneReader(t *testing.T) {
	d := dataset(t, "only the second reader works", 16)
	img := pages(t, d.Lines(), 2, 2)[0].Image(scale, margin)
	s := New(Options{Decoders: [2]Decoder{
		fake{name: "none", err: ErrNotFound},
		ZXing{},
	}})
	p, err := s.Image(context.Background(), "page.png", 0, img)
	require.NoError(t, err)
	st := Tally([]*Page{p})
	assert.Zero(t, st.Only[0])
	assert.Zero(t, st.Both)
	assert.Equal(t, len(d.Blocks), st.Only[1])
	assert.ElementsMatch(t, d.Lines(), Lines(p.Blocks))
}

func TestImageAgreement(t *testing.T) {
	d := dataset(t, "agree", 16)
	img := pages(t, d.Lines(), 2, 1)[0].Image(scale, margin)
	line := d.Lines()[1]
	s := New(Options{Decoders: [2]Decoder{
		fake{name: "a", text: line},
		fake{name: "b", text: line},
	}})
	p, err := s.Image(context.Background(), "page.png", 0, img)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Both: 2}, Tally([]*Page{p}))
	require.Len(t, p.Blocks, 2)
	assert.Equal(t, line, p.Blocks[0].Block.Text())
}

func TestImageMalformed(t *testing.T) {
	d := dataset(t, "junk", 16)
	img := pages(t, d.Lines(), 2, 1)[0].Image(scale, margin)
	s := New(Options{Decoders: [2]Decoder{
		fake{name: "a", text: "http://"},
		fake{name: "b", err: ErrNotFound},
	}})
	p, err := s.Image(context.Background(), "page.png", 0, img)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Malformed)
	assert.Empty(t, p.Blocks)
}

func TestImageDecoderError(t *testing.T) {
	boom := errors.New("boom")
	d := dataset(t, "fails", 16)
	img := pages(t, d.Lines(), 2, 1)[0].Image(scale, margin)
	s := New(Options{Decoders: [2]Decoder{
		fake{name: "a", err: ErrNotFound},
		fake{name: "b", err: boom},
	}})
	_, err := s.Image(context.Background(), "page.png", 0, img)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, ": b: boom")
}

func TestFilesMissing(t *testing.T) {
	_, err := New(Options{}).Files(context.Background(),
		[]string{filepath.Join(t.TempDir(), "none.png")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilesPartial(t *testing.T) {
	d := dataset(t, "good page", 16)
	require.Len(t, d.Blocks, 2)
	dir := t.TempDir()
	files := []string{filepath.Join(dir, "good.png"), filepath.Join(dir, "blank.png")}
	for i, img := range []image.Image{
		pages(t, d.Lines(), 2, 1)[0].Image(scale, margin),
		paperqr.NewBitmap(200, 200).Image(1, 0),
	} {
		f, err := os.Create(files[i])
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	pg, err := New(Options{Workers: 1}).Files(context.Background(), files)
	assert.ErrorIs(t, err, register.ErrMissingFiducials)
	assert.ErrorContains(t, err, "blank.png: ")
	require.Len(t, pg, 2)
	require.NotNil(t, pg[0])
	require.NotNil(t, pg[1])
	assert.ElementsMatch(t, d.Lines(), Lines(Observations(pg)))
	assert.Nil(t, pg[1].Grid)
	assert.Equal(t, 2, Tally(pg).Total)

	// Unread files leave nil pages.
	assert.Empty(t, Observations([]*Page{nil, nil}))
	assert.Zero(t, Tally([]*Page{nil}))
}

func TestTally(t *testing.T) {
	p := []*Page{
		{Cells: []Cell{
			{Read: [2]bool{true, true}},
			{Read: [2]bool{true, false}},
			{},
		}},
		{Cells: []Cell{
			{Read: [2]bool{false, true}},
			{Read: [2]bool{false, true}},
		}},
	}
	assert.Equal(t, Stats{Total: 5, Only: [2]int{1, 2}, Both: 1, Neither: 1}, Tally(p))
}
