// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imaging

import (
	"image"
	"image/color"
	"math"
)

// Statistics are computed on 16-bit luminance values.
type Statistics struct {
	Min    uint16  `json:"min"`
	Max    uint16  `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	// MAD is the median absolute deviation from Median.
	MAD float64 `json:"mad"`
}

// luminance returns img as row-major 16-bit values.
func luminance(img image.Image) (vals []uint16, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	vals = make([]uint16, 0, w*h)
	if g, ok := img.(*image.Gray16); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				vals = append(vals, g.Gray16At(x, y).Y)
			}
		}
		return vals, w, h
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			vals = append(vals, color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
		}
	}
	return vals, w, h
}

// ComputeStatistics uses a full 16-bit histogram, so median and MAD are exact.
func ComputeStatistics(vals []uint16) Statistics {
	if len(vals) == 0 {
		return Statistics{}
	}
	hist := make([]int, 1<<16)
	st := Statistics{Min: math.MaxUint16}
	var sum float64
	for _, v := range vals {
		hist[v]++
		sum += float64(v)
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	n := len(vals)
	st.Mean = sum / float64(n)

	var sq float64
	for _, v := range vals {
		d := float64(v) - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(n))

	med := histMedian(hist, n)
	st.Median = float64(med)

	dev := make([]int, 1<<16)
	for v, c := range hist {
		if c == 0 {
			continue
		}
		d := v - med
		if d < 0 {
			d = -d
		}
		dev[d] += c
	}
	st.MAD = float64(histMedian(dev, n))
	return st
}

// histMedian returns the lower median of n samples binned in hist.
func histMedian(hist []int, n int) int {
	half := (n + 1) / 2
	acc := 0
	for v, c := range hist {
		acc += c
		if acc >= half {
			return v
		}
	}
	return len(hist) - 1
}
