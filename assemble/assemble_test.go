// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package assemble

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unixdj/paperqr/block"
)

func encode(t *testing.T, payload []byte, chunk int, run uint32) *block.Dataset {
	t.Helper()
	d, err := block.Encode(payload, block.Options{
		ChunkSize: chunk,
		Rand:      bytes.NewReader([]byte{byte(run >> 16), byte(run >> 8), byte(run)}),
	})
	require.NoError(t, err)
	return d
}

// observe parses the lines of d as if read from a text file.
func observe(t *testing.T, d *block.Dataset, file string) []block.Observation {
	t.Helper()
	var obs []block.Observation
	for i, l := range d.Lines() {
		b, err := block.Parse(l)
		require.NoError(t, err)
		obs = append(obs, block.Observation{
			Block:  b,
			Source: block.Provenance{File: file, Line: i + 1},
		})
	}
	return obs
}

func without(obs []block.Observation, idx ...int) []block.Observation {
	var r []block.Observation
next:
	for _, o := range obs {
		for _, i := range idx {
			if o.Block.Index == i {
				continue next
			}
		}
		r = append(r, o)
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 3, 5, 100, 1000, 4096} {
		payload := make([]byte, n)
		rnd.Read(payload)
		for _, chunk := range []int{1, 4, 5, 108} {
			d := encode(t, payload, chunk, 0xabcdef)
			obs := observe(t, d, "in.txt")
			rnd.Shuffle(len(obs), func(i, j int) { obs[i], obs[j] = obs[j], obs[i] })
			for _, p := range []Policy{Strict, LastWins} {
				r, err := Assemble(obs, Options{Policy: p})
				require.NoError(t, err, "size %d chunk %d %v", n, chunk, p)
				assert.Equal(t, payload, r.Payload, "size %d chunk %d %v", n, chunk, p)
				assert.Equal(t, block.RunID(0xabcdef), r.RunID)
				assert.Equal(t, d.Header, r.Header)
			}
		}
	}
}

func TestHello(t *testing.T) {
	d := encode(t, []byte("hello"), 5, 0x3f1906)
	require.Len(t, d.Blocks, 3)
	r, err := Assemble(observe(t, d, "hello.txt"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(r.Payload))
	assert.Equal(t, "3f1906", r.RunID.String())
	assert.Equal(t, 3, r.Header.Length)
}

func TestEmpty(t *testing.T) {
	d := encode(t, nil, 108, 1)
	r, err := Assemble(observe(t, d, "empty.txt"), Options{})
	require.NoError(t, err)
	assert.Empty(t, r.Payload)
	assert.Equal(t, 1, r.Header.Length)
}

func TestTamper(t *testing.T) {
	d := encode(t, []byte("hello"), 5, 0x3f1906)
	obs := observe(t, d, "hello.txt")
	for _, c := range []string{"aGVsc", "bGVsb", "aGV!b", "aGVsbG"} {
		o := append([]block.Observation(nil), obs...)
		o[1].Block.Content = c + strings.Repeat("=", block.HeaderSize-len(c))
		_, err := Assemble(o, Options{})
		assert.ErrorIs(t, err, ErrDataDamaged, "content %q", c)
	}
}

func TestDamagedHeader(t *testing.T) {
	d := encode(t, []byte("hello"), 5, 0x3f1906)
	obs := observe(t, d, "hello.txt")
	obs[0].Block.Content = "AAAD" + obs[0].Block.Content[5:]
	_, err := Assemble(obs, Options{})
	assert.ErrorIs(t, err, ErrDataDamaged)
	assert.ErrorIs(t, err, block.ErrMalformedHeader)

	// A header claiming no blocks at all.
	h := block.Header{Length: 0}
	obs[0].Block.Content = h.Content()
	_, err = Assemble(obs, Options{})
	assert.ErrorIs(t, err, ErrDataDamaged)

	// A wrong digest.
	h = d.Header
	h.Hash[0] ^= 1
	obs[0].Block.Content = h.Content()
	_, err = Assemble(obs, Options{})
	assert.ErrorIs(t, err, ErrDataDamaged)
}

func TestNoRoot(t *testing.T) {
	d := encode(t, []byte("hello"), 5, 7)
	for _, p := range []Policy{Strict, LastWins} {
		_, err := Assemble(without(observe(t, d, "x"), 0), Options{Policy: p})
		assert.ErrorIs(t, err, ErrNoRootBlock)
	}
	_, err := Assemble(nil, Options{})
	assert.ErrorIs(t, err, ErrNoRootBlock)
}

func TestMissing(t *testing.T) {
	d := encode(t, bytes.Repeat([]byte("0123456789"), 10), 12, 7)
	require.Greater(t, len(d.Blocks), 8)
	for _, p := range []Policy{Strict, LastWins} {
		_, err := Assemble(without(observe(t, d, "x"), 3, 7), Options{Policy: p})
		require.ErrorIs(t, err, ErrMissingOrForeignBlocks)
		var me *MissingError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, []int{3, 7}, me.Indices)
		assert.Empty(t, me.Foreign)
		assert.Equal(t, "paperqr: blocks missing: 3, 7", err.Error())
	}
}

func TestForeign(t *testing.T) {
	payload := bytes.Repeat([]byte("paper"), 20)
	a := observe(t, encode(t, payload, 12, 0xaaaaaa), "a.txt")
	b := observe(t, encode(t, payload, 12, 0xbbbbbb), "b.txt")
	obs := append(without(a, 2), b[2])
	for _, p := range []Policy{Strict, LastWins} {
		_, err := Assemble(obs, Options{Policy: p})
		var me *MissingError
		require.True(t, errors.As(err, &me), "%v: %v", p, err)
		assert.Equal(t, []int{2}, me.Indices)
		assert.Equal(t, []int{2}, me.Foreign)
	}

	// Under Strict a block of another run never displaces the run's
	// own block, wherever it appears.
	obs = append(append([]block.Observation(nil), a...), b[1:]...)
	r, err := Assemble(obs, Options{})
	require.NoError(t, err)
	assert.Equal(t, payload, r.Payload)
	assert.Equal(t, block.RunID(0xaaaaaa), r.RunID)

	// Under LastWins it does.
	_, err = Assemble(obs, Options{Policy: LastWins})
	assert.ErrorIs(t, err, ErrMissingOrForeignBlocks)
}

func TestDuplicates(t *testing.T) {
	d := encode(t, bytes.Repeat([]byte("dup"), 50), 16, 42)
	obs := observe(t, d, "a.txt")
	obs = append(obs, observe(t, d, "b.txt")...)
	r, err := Assemble(obs, Options{})
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("dup"), 50), r.Payload)
}

func TestConflict(t *testing.T) {
	d := encode(t, []byte("hello"), 5, 0x3f1906)
	good := observe(t, d, "good.txt")
	bad := observe(t, d, "bad.txt")
	bad[1].Block.Content = "aGVsc" + bad[1].Block.Content[5:]

	obs := append(append([]block.Observation(nil), good...), bad[1])
	_, err := Assemble(obs, Options{})
	require.ErrorIs(t, err, ErrConflictingDuplicateBlock)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, block.Provenance{File: "good.txt", Line: 2}, ce.First)
	assert.Equal(t, block.Provenance{File: "bad.txt", Line: 2}, ce.Second)

	// LastWins takes the later block.
	_, err = Assemble(obs, Options{Policy: LastWins})
	assert.ErrorIs(t, err, ErrDataDamaged)
	obs = append([]block.Observation{bad[1]}, good...)
	r, err := Assemble(obs, Options{Policy: LastWins})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(r.Payload))
}

func TestPaddingDuplicates(t *testing.T) {
	d := encode(t, []byte("hello world!"), 16, 7)
	obs := observe(t, d, "scan.txt")
	require.True(t, strings.HasSuffix(obs[1].Block.Content, string(block.Pad)))
	typed := obs[1]
	typed.Block.Content = strings.TrimRight(typed.Block.Content, string(block.Pad))
	typed.Source = block.Provenance{File: "typed.txt", Line: 1}
	r, err := Assemble(append(obs, typed), Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(r.Payload))
}

func TestConflictingHeaders(t *testing.T) {
	a := observe(t, encode(t, []byte("one"), 8, 1), "a.txt")
	b := observe(t, encode(t, []byte("two"), 8, 2), "b.txt")
	_, err := Assemble(append(a, b...), Options{})
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, ce.Index)
}

func TestPolicy(t *testing.T) {
	for _, p := range []Policy{Strict, LastWins} {
		q, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, q)
	}
	_, err := ParsePolicy("first-wins")
	assert.ErrorIs(t, err, ErrPolicy)
	_, err = Assemble(nil, Options{Policy: 7})
	assert.ErrorIs(t, err, ErrPolicy)
	assert.Equal(t, "invalid", Policy(7).String())
}
