// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imaging

import (
	"context"
	"image"
)

// Report is the analysis of one image.
type Report struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	BitDepth   int        `json:"bit_depth"`
	Statistics Statistics `json:"statistics"`
	Stars      int        `json:"stars"`
	HFR        float64    `json:"hfr"`
	StarList   []Star     `json:"star_list,omitempty"`
}

// Analyzer computes pixel statistics and detects stars.
type Analyzer struct {
	Detect DetectOptions
	// KeepStars includes the detected sources in the report.
	KeepStars bool
}

func (a Analyzer) Analyze(ctx context.Context, img image.Image) (Report, error) {
	vals, w, h := luminance(img)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	st := ComputeStatistics(vals)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	stars := DetectStars(vals, w, h, st, a.Detect)

	r := Report{
		Width:      w,
		Height:     h,
		BitDepth:   BitDepth(img),
		Statistics: st,
		Stars:      len(stars),
		HFR:        MedianHFR(stars),
	}
	if a.KeepStars {
		r.StarList = stars
	}
	return r, nil
}
