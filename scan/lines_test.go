// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unixdj/paperqr/block"
)

func dataset(t *testing.T, payload string, chunk int) *block.Dataset {
	t.Helper()
	d, err := block.Encode([]byte(payload), block.Options{
		ChunkSize: chunk,
		Rand:      bytes.NewReader([]byte{0x12, 0x34, 0x56}),
	})
	require.NoError(t, err)
	return d
}

func TestReadLines(t *testing.T) {
	d := dataset(t, "a payload long enough for a few blocks", 16)
	want := d.Lines()
	text := "\ufeff" + want[0] + "\r\n\r\n  " + want[1] + "  \n\t\n" +
		strings.Join(want[2:], "\r\n")
	obs, err := ReadLines(strings.NewReader(text), "blocks.txt")
	require.NoError(t, err)
	assert.Equal(t, want, Lines(obs))
	for i, o := range obs {
		assert.Equal(t, d.Blocks[i], o.Block)
		assert.Equal(t, "blocks.txt", o.Source.File)
	}
	assert.Equal(t, 1, obs[0].Source.Line)
	assert.Equal(t, 3, obs[1].Source.Line)
	assert.Equal(t, 5, obs[2].Source.Line)
	assert.Equal(t, "blocks.txt:3", obs[1].Source.String())
}

func TestReadLinesMalformed(t *testing.T) {
	d := dataset(t, "hello", 4)
	text := d.Lines()[0] + "\n\nshort\n"
	_, err := ReadLines(strings.NewReader(text), "in.txt")
	assert.ErrorIs(t, err, block.ErrMalformedTag)
	assert.ErrorContains(t, err, "in.txt:3:")
}

func TestReadLinesEmpty(t *testing.T) {
	obs, err := ReadLines(strings.NewReader("\n \r\n"), "empty")
	require.NoError(t, err)
	assert.Empty(t, obs)
}
