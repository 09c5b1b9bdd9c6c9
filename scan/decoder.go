// Copyright 2025 Vadim Vygonets.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"errors"
	"fmt"
	"image"

	"github.com/liyue201/goqr"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/unixdj/paperqr/block"
)

var (
	ErrNotFound            = errors.New("paperqr: no symbol found")
	ErrDecoderDisagreement = errors.New("paperqr: decoders disagree")
)

// A Decoder reads the text of the QR symbol in an image.  Decode
// returns an error matching ErrNotFound when no symbol can be read.
// Decoders must be safe for concurrent use.
type Decoder interface {
	Name() string
	Decode(img image.Image) (string, error)
}

// ZXing decodes with the ZXing QR reader, which locates the symbol by
// its finder patterns.
type ZXing struct{}

func (ZXing) Name() string { return "zxing" }

func (ZXing) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return res.GetText(), nil
}

// Goqr decodes with goqr, a port of the quirc library.  It shares no
// code with ZXing, from symbol location to error correction, which
// makes it an independent check.
type Goqr struct{}

func (Goqr) Name() string { return "goqr" }

func (Goqr) Decode(img image.Image) (string, error) {
	codes, err := goqr.Recognize(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if len(codes) == 0 {
		return "", ErrNotFound
	}
	return string(codes[0].Payload), nil
}

// A DisagreementError records two decoders reading different texts
// from the same cell.
type DisagreementError struct {
	Source   block.Provenance
	Decoders [2]string
	Texts    [2]string
}

func (e *DisagreementError) Error() string {
	return fmt.Sprintf("paperqr: %v: %s read %q, %s read %q", e.Source,
		e.Decoders[0], e.Texts[0], e.Decoders[1], e.Texts[1])
}

func (e *DisagreementError) Is(target error) bool {
	return target == ErrDecoderDisagreement
}
