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
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Coverage returns the percentage (0-100) of samples labelled with state.
func Coverage(segmentation []int, state int) float64 {
	if len(segmentation) == 0 {
		return 0
	}

	var count int
	for _, s := range segmentation {
		if s == state {
			count++
		}
	}
	return 100 * float64(count) / float64(len(segmentation))
}

// PeakCoverage estimates how much of a window of data is spent in state,
// as a percentage of the window length.
//
// Only GFP peaks are matched against the maps. Every interior peak matched to
// state claims the samples from the midpoint with its previous peak up to the
// midpoint with its next peak. This is the quantity shown as live feedback
// while a recording is running.
func PeakCoverage(data, maps mat.Matrix, state, minDistance int) (float64, error) {
	channels, n := data.Dims()
	if channels == 0 || n == 0 {
		return 0, ErrEmptySignal
	}
	states, _ := maps.Dims()
	if state < 0 || state >= states {
		return 0, fmt.Errorf("%w: %d of %d", ErrUnknownState, state, states)
	}

	peaks := FindPeaks(GFP(data), minDistance)
	if len(peaks) < 3 {
		return 0, nil
	}

	atPeaks := mat.NewDense(channels, len(peaks), nil)
	col := make([]float64, channels)
	for i, t := range peaks {
		atPeaks.SetCol(i, mat.Col(col, t, data))
	}
	labels, err := Assign(maps, atPeaks)
	if err != nil {
		return 0, err
	}

	var count int
	for p := 1; p < len(peaks)-1; p++ {
		if labels[p] != state {
			continue
		}
		start := peaks[p-1] + (peaks[p]-peaks[p-1])/2
		end := peaks[p] + (peaks[p+1]-peaks[p])/2
		count += end - start
	}
	return 100 * float64(count) / float64(n), nil
}
