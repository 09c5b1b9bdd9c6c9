// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/unixdj/paperqr/block"
)

// ReadLines reads blocks from text, one per line, as transcribed by
// hand or written by the encoder.  A UTF-8 byte order mark, carriage
// returns, surrounding blanks and empty lines are ignored.  file
// names the source in the returned provenance.
func ReadLines(r io.Reader, file string) ([]block.Observation, error) {
	sc := bufio.NewScanner(transform.NewReader(r,
		unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	sc.Buffer(nil, 1<<20)
	var obs []block.Observation
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		b, err := block.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", file, n, err)
		}
		obs = append(obs, block.Observation{
			Block:  b,
			Source: block.Provenance{File: file, Line: n},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return obs, nil
}

// Lines returns the literal text of each observed block.
func Lines(obs []block.Observation) []string {
	l := make([]string, len(obs))
	for i, o := range obs {
		l[i] = o.Block.Text()
	}
	return l
}
