// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout_test

import (
	"fmt"
	"log"

	"github.com/unixdj/paperqr"
	"github.com/unixdj/paperqr/layout"
)

func ExampleBuild() {
	lines := []string{"one", "two", "three", "four", "five"}
	l, err := layout.Build(lines, paperqr.QREncoder{Level: paperqr.L},
		layout.Options{Columns: 2, Rows: 2, DotSpacing: 3})
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Println("symbol", l.SymbolSize, "cell", l.CellSize, "page", l.Size())
	for _, p := range l.Pages {
		fmt.Println("page", p.Number, "rows", p.Rows, "slots", len(p.Slots), "marker 2 at", p.Markers[2])
	}
	// Output:
	// symbol 21 cell 28 page (63,63)
	// page 0 rows 2 slots 4 marker 2 at (0,56)
	// page 1 rows 1 slots 1 marker 2 at (0,28)
}
