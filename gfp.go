// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package microstates

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GFP returns the global field power of every sample: the mean of the
// squared channel values.
func GFP(data mat.Matrix) []float64 {
	channels, samples := data.Dims()
	gfp := make([]float64, samples)
	if channels == 0 {
		return gfp
	}

	col := make([]float64, channels)
	for t := 0; t < samples; t++ {
		mat.Col(col, t, data)
		gfp[t] = floats.Dot(col, col) / float64(channels)
	}
	return gfp
}

// FindPeaks returns the ascending indices of the local maxima of x, keeping
// only peaks at least minDistance samples apart. When two peaks are too close
// the higher one wins. The first and last samples are never peaks and a flat
// top reports its middle sample.
func FindPeaks(x []float64, minDistance int) []int {
	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		if x[i-1] >= x[i] {
			continue
		}

		ahead := i + 1
		for ahead < len(x)-1 && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead - 1
		}
	}

	if minDistance <= 1 || len(peaks) < 2 {
		return peaks
	}

	// Visit peaks from highest to lowest, ties going to the later peak, and
	// drop every neighbour that is too close to a kept one.
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < minDistance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < minDistance; k++ {
			keep[k] = false
		}
	}

	kept := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			kept = append(kept, p)
		}
	}
	return kept
}

// SelectPeaks finds the GFP peaks and, when maxPeaks is positive and more
// peaks than that were found, draws maxPeaks of them uniformly at random
// without replacement. The returned indices are ascending. A nil rng draws
// from the global source, so the choice is not reproducible.
func SelectPeaks(gfp []float64, minDistance, maxPeaks int, rng *rand.Rand) []int {
	peaks := FindPeaks(gfp, minDistance)
	if maxPeaks <= 0 || len(peaks) <= maxPeaks {
		return peaks
	}

	perm := rand.Perm
	if rng != nil {
		perm = rng.Perm
	}

	chosen := make([]int, maxPeaks)
	for i, j := range perm(len(peaks))[:maxPeaks] {
		chosen[i] = peaks[j]
	}
	sort.Ints(chosen)
	return chosen
}

// ZScore returns a copy of data where every channel (row) has zero mean and
// unit population variance across time. Constant channels become zero.
func ZScore(data mat.Matrix) *mat.Dense {
	channels, samples := data.Dims()
	if channels == 0 || samples == 0 {
		return &mat.Dense{}
	}

	out := mat.NewDense(channels, samples, nil)
	row := make([]float64, samples)
	for c := 0; c < channels; c++ {
		mat.Row(row, c, data)
		mean, std := stat.PopMeanStdDev(row, nil)
		floats.AddConst(-mean, row)
		if std > 0 {
			floats.Scale(1/std, row)
		} else {
			floats.Scale(0, row)
		}
		out.SetRow(c, row)
	}
	return out
}
