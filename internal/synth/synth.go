// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package synth generates synthetic multichannel recordings made of fixed
// spatial patterns that take turns, for testing microstate segmentation.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config describes a synthetic recording.
type Config struct {
	Channels      int         // Number of channels
	Samples       int         // Number of samples
	Patterns      [][]float64 // Spatial patterns, random when nil
	States        int         // Number of random patterns when Patterns is nil
	SegmentLength int         // Samples per pattern before switching to the next
	Frequency     float64     // Oscillation frequency in cycles per sample
	Amplitude     float64     // Peak amplitude of the oscillation, 1 when zero
	Noise         float64     // Standard deviation of the per-channel noise
	Seed          uint64
}

// Recording is a generated signal and its ground truth.
type Recording struct {
	Data     *mat.Dense // channels x samples
	Patterns *mat.Dense // states x channels, unit-norm rows
	Labels   []int      // pattern active at every sample
}

// Generate builds a recording where the patterns take turns every
// SegmentLength samples. The active pattern is scaled by a sine, so its
// polarity flips every half cycle, and independent Gaussian noise is added.
func Generate(cfg Config) (*Recording, error) {
	if cfg.Channels <= 0 || cfg.Samples <= 0 {
		return nil, errors.New("synth: channels and samples must be positive")
	}
	if cfg.SegmentLength <= 0 {
		return nil, errors.New("synth: segment length must be positive")
	}
	amplitude := cfg.Amplitude
	if amplitude == 0 {
		amplitude = 1
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0))

	patterns, err := patternMatrix(cfg, rng)
	if err != nil {
		return nil, err
	}
	states, _ := patterns.Dims()

	rec := &Recording{
		Data:     mat.NewDense(cfg.Channels, cfg.Samples, nil),
		Patterns: patterns,
		Labels:   make([]int, cfg.Samples),
	}
	for t := 0; t < cfg.Samples; t++ {
		state := (t / cfg.SegmentLength) % states
		rec.Labels[t] = state

		scale := amplitude * math.Sin(2*math.Pi*cfg.Frequency*float64(t))
		p := patterns.RawRowView(state)
		for c := 0; c < cfg.Channels; c++ {
			rec.Data.Set(c, t, scale*p[c]+cfg.Noise*rng.NormFloat64())
		}
	}

	return rec, nil
}

func patternMatrix(cfg Config, rng *rand.Rand) (*mat.Dense, error) {
	if cfg.Patterns == nil {
		if cfg.States <= 0 {
			return nil, errors.New("synth: states must be positive")
		}
		if cfg.Channels < 2 {
			return nil, errors.New("synth: random patterns need at least two channels")
		}
		patterns := mat.NewDense(cfg.States, cfg.Channels, nil)
		for s := 0; s < cfg.States; s++ {
			row := patterns.RawRowView(s)
			for c := range row {
				row[c] = rng.NormFloat64()
			}
			floats.AddConst(-floats.Sum(row)/float64(len(row)), row)
			floats.Scale(1/floats.Norm(row, 2), row)
		}
		return patterns, nil
	}

	if len(cfg.Patterns) == 0 {
		return nil, errors.New("synth: no patterns")
	}
	patterns := mat.NewDense(len(cfg.Patterns), cfg.Channels, nil)
	for s, p := range cfg.Patterns {
		if len(p) != cfg.Channels {
			return nil, fmt.Errorf("synth: pattern %d has %d channels, want %d", s, len(p), cfg.Channels)
		}
		norm := floats.Norm(p, 2)
		if norm == 0 {
			return nil, fmt.Errorf("synth: pattern %d is zero", s)
		}
		row := patterns.RawRowView(s)
		copy(row, p)
		floats.Scale(1/norm, row)
	}
	return patterns, nil
}
