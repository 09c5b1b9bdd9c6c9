// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/unixdj/paperqr/block"
)

func ExampleEncode() {
	d, err := block.Encode([]byte("hello"), block.Options{
		ChunkSize: 5,
		Rand:      bytes.NewReader([]byte{0x3f, 0x19, 0x06}),
	})
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Println("run", d.RunID, "blocks", d.Header.Length)
	for _, l := range d.Lines() {
		fmt.Println(l[:16])
	}
	// Output:
	// run 3f1906 blocks 3
	// PxkGAAAAAAADLPJN
	// PxkGAAABaGVsb===
	// PxkGAAACG8======
}

func ExampleParse() {
	b, err := block.Parse("PxkGAAAe0XvadZWXJgUAl7Ztew")
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Println(b.RunID, b.Index, b.Content)
	// Output:
	// 3f1906 30 0XvadZWXJgUAl7Ztew
}
