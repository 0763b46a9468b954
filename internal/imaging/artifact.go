// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package imaging turns raw frames into on-disk artifacts and computes the
// statistics reported for a capture.
package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/ManuGH/astrogate/internal/device"
)

// Extension is the file extension of capture artifacts.
const Extension = ".png"

// FrameImage wraps a frame as a 16-bit grayscale image.
func FrameImage(f *device.Frame) (*image.Gray16, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return nil, errors.New("empty frame")
	}
	if len(f.Pixels) != f.Width*f.Height {
		return nil, errors.New("frame size mismatch")
	}
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: f.At(x, y)})
		}
	}
	return img, nil
}

// Encode writes f as a 16-bit grayscale PNG.
func Encode(w io.Writer, f *device.Frame) error {
	img, err := FrameImage(f)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// Decode reads an artifact written by Encode.
func Decode(r io.Reader) (image.Image, error) {
	return png.Decode(r)
}

// BitDepth reports the per-channel depth of img's color model.
func BitDepth(img image.Image) int {
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return 16
	}
	return 8
}
