// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imaging

import (
	"math"
	"sort"
)

// Star is one detected source.
type Star struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Peak uint16  `json:"peak"`
	Flux float64 `json:"flux"`
	Area int     `json:"area"`
	HFR  float64 `json:"hfr"`
}

// DetectOptions tune star detection.
type DetectOptions struct {
	// Sigma is the detection threshold above background in robust sigmas.
	Sigma float64
	// MinArea and MaxArea bound the pixel count of a source.
	MinArea int
	MaxArea int
}

func (o DetectOptions) withDefaults() DetectOptions {
	if o.Sigma <= 0 {
		o.Sigma = 5
	}
	if o.MinArea <= 0 {
		o.MinArea = 3
	}
	if o.MaxArea <= 0 {
		o.MaxArea = 5000
	}
	return o
}

// DetectStars thresholds at median + Sigma*1.4826*MAD and groups
// 8-connected pixels into sources.
func DetectStars(vals []uint16, w, h int, st Statistics, opts DetectOptions) []Star {
	opts = opts.withDefaults()
	noise := math.Max(1, 1.4826*st.MAD)
	threshold := st.Median + opts.Sigma*noise

	visited := make([]bool, len(vals))
	var stars []Star
	var queue, comp []int

	for start, v := range vals {
		if visited[start] || float64(v) <= threshold {
			continue
		}
		queue = append(queue[:0], start)
		comp = comp[:0]
		visited[start] = true
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			comp = append(comp, i)
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if !visited[j] && float64(vals[j]) > threshold {
						visited[j] = true
						queue = append(queue, j)
					}
				}
			}
		}
		if len(comp) < opts.MinArea || len(comp) > opts.MaxArea {
			continue
		}
		stars = append(stars, measure(vals, w, comp, st.Median))
	}

	sort.Slice(stars, func(i, j int) bool { return stars[i].Flux > stars[j].Flux })
	return stars
}

func measure(vals []uint16, w int, comp []int, background float64) Star {
	s := Star{Area: len(comp)}
	var sx, sy float64
	for _, i := range comp {
		v := vals[i]
		f := math.Max(0, float64(v)-background)
		s.Flux += f
		sx += f * float64(i%w)
		sy += f * float64(i/w)
		if v > s.Peak {
			s.Peak = v
		}
	}
	if s.Flux == 0 {
		return s
	}
	s.X = sx / s.Flux
	s.Y = sy / s.Flux

	var sr float64
	for _, i := range comp {
		f := math.Max(0, float64(vals[i])-background)
		dx, dy := float64(i%w)-s.X, float64(i/w)-s.Y
		sr += f * math.Sqrt(dx*dx+dy*dy)
	}
	s.HFR = sr / s.Flux
	return s
}

// MedianHFR returns the median HFR of stars, or 0 when there are none.
func MedianHFR(stars []Star) float64 {
	if len(stars) == 0 {
		return 0
	}
	hfr := make([]float64, len(stars))
	for i, s := range stars {
		hfr[i] = s.HFR
	}
	sort.Float64s(hfr)
	mid := len(hfr) / 2
	if len(hfr)%2 == 0 {
		return (hfr[mid-1] + hfr[mid]) / 2
	}
	return hfr[mid]
}
