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
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Status describes how a clustering run ended. It is a bit set.
type Status uint8

const (
	// StatusConverged is set when the relative residual test was satisfied.
	StatusConverged Status = 1 << iota
	// StatusMaxIterReached is set when the iteration budget ran out first.
	StatusMaxIterReached
	// StatusDegenerateCluster is set when at least one state received no
	// samples in the last iteration, leaving a zero map.
	StatusDegenerateCluster
)

// Has reports whether all bits of flag are set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

func (s Status) String() string {
	if s == 0 {
		return "none"
	}

	var parts []string
	if s.Has(StatusConverged) {
		parts = append(parts, "converged")
	}
	if s.Has(StatusMaxIterReached) {
		parts = append(parts, "max-iterations-reached")
	}
	if s.Has(StatusDegenerateCluster) {
		parts = append(parts, "degenerate-cluster")
	}
	return strings.Join(parts, "|")
}

// Result is the outcome of a segmentation.
type Result struct {
	Maps         *mat.Dense // Topographic maps, one unit-norm row per state
	Segmentation []int      // State index for every sample of the full signal
	GEV          float64    // Global explained variance of the segmentation
	Residual     float64    // Residual noise of the last iteration
	Iterations   int        // Number of iterations performed
	Status       Status     // How the (winning) run ended
	Restart      int        // Index of the winning restart
	Peaks        int        // Number of samples the maps were fitted on
	Scores       []float64  // GEV of every restart, NaN for failed restarts
}

// States returns the number of maps in the result.
func (r *Result) States() int {
	if r.Maps == nil {
		return 0
	}
	n, _ := r.Maps.Dims()
	return n
}
