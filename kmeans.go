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
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KMeansParams configures a single run of the modified k-means algorithm.
type KMeansParams struct {
	States        int          // Number of microstates to find
	MaxIterations int          // Iteration budget
	Threshold     float64      // Convergence threshold on the relative residual decrease
	Logger        *slog.Logger // Receives warnings, nil discards them
}

// kmeansState is owned by exactly one run.
type kmeansState struct {
	maps         *mat.Dense // states x channels
	activation   *mat.Dense // states x fitting samples
	segmentation []int
	residual     float64
	iterations   int
	status       Status
}

// ModKMeans runs the modified k-means algorithm once.
//
// The maps are fitted on the given sample columns of data (all columns when
// samples is nil). The returned segmentation always covers every sample of
// data. Non-convergence and states that never activate are reported through
// Result.Status and the logger, not as errors.
func ModKMeans(ctx context.Context, data mat.Matrix, samples []int, p KMeansParams, rng *rand.Rand) (*Result, error) {
	channels, n := data.Dims()
	if channels == 0 || n == 0 {
		return nil, ErrEmptySignal
	}
	if err := validateStates(p.States, channels); err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = discardLogger()
	}

	fit, err := fittingSamples(data, samples)
	if err != nil {
		return nil, err
	}
	nfit, _ := fit.Dims()
	if nfit < p.States {
		return nil, fmt.Errorf("%w: %d states, %d samples", ErrNotEnoughSamples, p.States, nfit)
	}

	st := &kmeansState{
		maps:         mat.NewDense(p.States, channels, nil),
		activation:   mat.NewDense(p.States, nfit, nil),
		segmentation: make([]int, nfit),
		residual:     math.Inf(1),
	}

	// Random distinct samples as initial maps.
	for s, t := range rng.Perm(nfit)[:p.States] {
		row := st.maps.RawRowView(s)
		copy(row, fit.RawRowView(t))
		normalize(row)
	}

	dataSumSq := sumSquares(fit)
	denom := float64(nfit * max(channels-1, 1))

	prevResidual := math.Inf(1)
	converged := false
	for st.iterations < p.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.iterations++

		st.activation.Mul(st.maps, fit.T())
		argmaxColumns(st.activation, st.segmentation, math.Abs)

		st.status &^= StatusDegenerateCluster
		for s := 0; s < p.States; s++ {
			if !st.reestimate(s, fit) {
				logger.Warn("some microstates are never activated",
					"state", s,
					"iteration", st.iterations)
				st.status |= StatusDegenerateCluster
			}
		}

		st.residual = math.Abs(dataSumSq-st.explainedEnergy(fit)) / denom
		if prevResidual-st.residual < p.Threshold*st.residual {
			logger.Debug("modified k-means converged", "iterations", st.iterations)
			converged = true
			break
		}
		prevResidual = st.residual
	}

	if converged {
		st.status |= StatusConverged
	} else {
		logger.Warn("modified k-means failed to converge",
			"iterations", st.iterations,
			"residual", st.residual)
		st.status |= StatusMaxIterReached
	}

	segmentation, err := Assign(st.maps, data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Maps:         st.maps,
		Segmentation: segmentation,
		GEV:          math.NaN(),
		Residual:     st.residual,
		Iterations:   st.iterations,
		Status:       st.status,
		Peaks:        nfit,
	}, nil
}

// reestimate recomputes the map of state s as the activation-weighted sum of
// the samples assigned to it. It reports false when the map is left zero:
// either no sample was assigned, or every assigned sample had zero
// activation (a zero map only wins all-zero samples, on ties).
func (st *kmeansState) reestimate(s int, fit *mat.Dense) bool {
	row := st.maps.RawRowView(s)
	for c := range row {
		row[c] = 0
	}

	for t, state := range st.segmentation {
		if state != s {
			continue
		}
		floats.AddScaled(row, st.activation.At(s, t), fit.RawRowView(t))
	}
	if floats.Norm(row, 2) == 0 {
		return false
	}
	normalize(row)
	return true
}

// explainedEnergy sums the squared element-wise product of every sample with
// the map it is assigned to.
func (st *kmeansState) explainedEnergy(fit *mat.Dense) float64 {
	var sum float64
	for t, s := range st.segmentation {
		m := st.maps.RawRowView(s)
		for c, v := range fit.RawRowView(t) {
			e := m[c] * v
			sum += e * e
		}
	}
	return sum
}

// Assign labels every sample (column) of data with the map (row of maps) that
// has the largest squared activation. The sign of maps and samples does not
// matter. Ties go to the lowest state index.
func Assign(maps, data mat.Matrix) ([]int, error) {
	states, mc := maps.Dims()
	channels, n := data.Dims()
	if channels == 0 || n == 0 {
		return nil, ErrEmptySignal
	}
	if states == 0 {
		return nil, ErrInvalidStates
	}
	if mc != channels {
		return nil, fmt.Errorf("%w: maps have %d channels, data has %d", ErrShapeMismatch, mc, channels)
	}

	var activation mat.Dense
	activation.Mul(maps, data)

	segmentation := make([]int, n)
	argmaxColumns(&activation, segmentation, func(v float64) float64 { return v * v })
	return segmentation, nil
}

// argmaxColumns writes, for every column of m, the row with the largest score.
func argmaxColumns(m *mat.Dense, dst []int, score func(float64) float64) {
	rows, cols := m.Dims()
	for t := 0; t < cols; t++ {
		best, bestScore := 0, score(m.At(0, t))
		for s := 1; s < rows; s++ {
			if v := score(m.At(s, t)); v > bestScore {
				best, bestScore = s, v
			}
		}
		dst[t] = best
	}
}

// fittingSamples copies the selected columns of data into the rows of a new
// matrix, one sample per row.
func fittingSamples(data mat.Matrix, samples []int) (*mat.Dense, error) {
	channels, n := data.Dims()
	if samples == nil {
		return mat.DenseCopyOf(data.T()), nil
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no fitting samples", ErrNotEnoughSamples)
	}

	fit := mat.NewDense(len(samples), channels, nil)
	for i, t := range samples {
		if t < 0 || t >= n {
			return nil, fmt.Errorf("%w: sample index %d out of range", ErrShapeMismatch, t)
		}
		mat.Col(fit.RawRowView(i), t, data)
	}
	return fit, nil
}

func validateStates(states, channels int) error {
	if states < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidStates, states)
	}
	if states > channels {
		return fmt.Errorf("%w: %d states, %d channels", ErrTooManyStates, states, channels)
	}
	return nil
}

// normalize scales x to unit Euclidean norm. A zero vector is left untouched.
func normalize(x []float64) {
	if norm := floats.Norm(x, 2); norm > 0 {
		floats.Scale(1/norm, x)
	}
}

func sumSquares(m *mat.Dense) float64 {
	rows, _ := m.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		sum += floats.Dot(row, row)
	}
	return sum
}
