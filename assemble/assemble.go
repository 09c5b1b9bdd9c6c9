// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package assemble reconstructs a payload from blocks read in any
// order, from any number of sources, and verifies it.
//
// Reassembly proceeds through a fixed sequence of checks: blocks are
// indexed, the header block must be present, its metadata must parse,
// every data block of the header's run must be present, the data must
// decode, and its digest must match the header.  Each check that fails
// ends reassembly with its own error.
package assemble // import "github.com/unixdj/paperqr/assemble"

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unixdj/paperqr/block"
)

var (
	ErrNoRootBlock               = errors.New("paperqr: no root block in input data")
	ErrMissingOrForeignBlocks    = errors.New("paperqr: blocks missing or foreign")
	ErrConflictingDuplicateBlock = errors.New("paperqr: conflicting duplicate block")
	ErrDataDamaged               = errors.New("paperqr: data damaged")
	ErrPolicy                    = errors.New("paperqr: invalid conflict policy")
)

// A MissingError lists the data blocks of the run that were not
// found.  Foreign lists those among them for which only blocks of
// other runs were found.
type MissingError struct {
	Indices []int
	Foreign []int
}

func (e *MissingError) Error() string {
	s := "paperqr: blocks missing: " + joinInts(e.Indices)
	if len(e.Foreign) != 0 {
		s += " (from other runs: " + joinInts(e.Foreign) + ")"
	}
	return s
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissingOrForeignBlocks
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}

// A ConflictError records two different blocks claiming the same
// index.
type ConflictError struct {
	Index  int
	First  block.Provenance
	Second block.Provenance
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("paperqr: block %d differs between %v and %v",
		e.Index, e.First, e.Second)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictingDuplicateBlock
}

// A Policy decides between blocks observed at the same index.
type Policy int

const (
	// Strict collapses identical blocks, ignores blocks of other runs
	// and fails on two different blocks of the run at one index.
	Strict Policy = iota
	// LastWins keeps the last block observed at each index,
	// whatever its run.
	LastWins
)

var policyNames = [...]string{Strict: "strict", LastWins: "last-wins"}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "invalid"
	}
	return policyNames[p]
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	for i, v := range policyNames {
		if s == v {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrPolicy, s)
}

// UnmarshalText implements encoding.TextUnmarshaler using ParsePolicy.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Options control Assemble.
type Options struct {
	Policy Policy
	Log    zerolog.Logger // zero value discards
}

// A Result is a verified payload.
type Result struct {
	Payload []byte
	RunID   block.RunID
	Header  block.Header
}

// Assemble reconstructs and verifies the payload carried by obs.
func Assemble(obs []block.Observation, opt Options) (*Result, error) {
	log := opt.Log
	var ix index
	switch opt.Policy {
	case Strict:
		ix = strict(obs)
	case LastWins:
		ix = lastWins(obs)
	default:
		return nil, fmt.Errorf("%w: %d", ErrPolicy, opt.Policy)
	}
	log.Debug().Int("observations", len(obs)).Int("indices", len(ix)).
		Stringer("policy", opt.Policy).Msg("blocks indexed")

	roots := ix[0]
	if len(roots) == 0 {
		return nil, ErrNoRootBlock
	}
	if len(roots) > 1 {
		return nil, &ConflictError{0, roots[0].Source, roots[1].Source}
	}
	root := roots[0].Block

	hdr, err := block.ParseHeader(root.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataDamaged, err)
	}
	if hdr.Length < 1 {
		return nil, fmt.Errorf("%w: header claims %d blocks", ErrDataDamaged, hdr.Length)
	}
	log.Info().Stringer("run", root.RunID).Int("blocks", hdr.Length).
		Hex("sha256", hdr.Hash[:]).Msg("header found")

	var (
		text     strings.Builder
		missing  MissingError
		conflict *ConflictError
	)
	for i := 1; i < hdr.Length; i++ {
		var own []block.Observation
		foreign := false
		for _, o := range ix[i] {
			if o.Block.RunID == root.RunID {
				own = append(own, o)
			} else {
				foreign = true
			}
		}
		switch {
		case len(own) == 0:
			missing.Indices = append(missing.Indices, i)
			if foreign {
				missing.Foreign = append(missing.Foreign, i)
			}
		case len(own) > 1:
			if conflict == nil {
				conflict = &ConflictError{i, own[0].Source, own[1].Source}
			}
		default:
			text.WriteString(strings.TrimRight(own[0].Block.Content, string(block.Pad)))
		}
	}
	if conflict != nil {
		return nil, conflict
	}
	if len(missing.Indices) != 0 {
		return nil, &missing
	}

	payload, err := base64.RawStdEncoding.Strict().DecodeString(text.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataDamaged, err)
	}
	if sha256.Sum256(payload) != hdr.Hash {
		return nil, fmt.Errorf("%w: digest mismatch", ErrDataDamaged)
	}
	return &Result{Payload: payload, RunID: root.RunID, Header: hdr}, nil
}

// An index maps block indices to the candidate observations at each.
type index map[int][]block.Observation

// strict indexes obs, dropping repeated blocks.  The first
// observation of each distinct block is kept.  Blocks differing only
// in trailing padding are the same block.
func strict(obs []block.Observation) index {
	ix := make(index)
	type key struct {
		run     block.RunID
		content string
	}
	seen := make(map[int]map[key]bool)
	for _, o := range obs {
		i := o.Block.Index
		k := key{o.Block.RunID, strings.TrimRight(o.Block.Content, string(block.Pad))}
		if seen[i] == nil {
			seen[i] = make(map[key]bool)
		}
		if seen[i][k] {
			continue
		}
		seen[i][k] = true
		ix[i] = append(ix[i], o)
	}
	return ix
}

// lastWins indexes obs keeping the last observation at each index.
func lastWins(obs []block.Observation) index {
	ix := make(index)
	for _, o := range obs {
		ix[o.Block.Index] = []block.Observation{o}
	}
	return ix
}
