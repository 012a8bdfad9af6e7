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
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// peakStream is the PCG stream used for peak subsampling. Restart i uses
// stream i, so this one never collides with a restart.
const peakStream = math.MaxUint64

// Segment segments data (channels x samples) into microstates.
//
// The maps are fitted on the peaks of the global field power with several
// randomly initialized runs of the modified k-means algorithm; the run with
// the highest global explained variance is returned. Its segmentation covers
// every sample of data.
func Segment(ctx context.Context, data mat.Matrix, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = discardLogger()
	}

	channels, n := data.Dims()
	if channels == 0 || n == 0 {
		return nil, ErrEmptySignal
	}
	if err := validateStates(o.states, channels); err != nil {
		return nil, err
	}
	if o.restarts < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRestarts, o.restarts)
	}
	if o.jobs < 1 {
		o.jobs = runtime.GOMAXPROCS(0)
	}
	if !o.seeded {
		o.seed = rand.Uint64()
	}

	logger.Info("finding microstates",
		"states", o.states,
		"restarts", o.restarts,
		"seed", o.seed)

	signal := data
	if o.normalize {
		signal = ZScore(data)
	}

	gfp := GFP(signal)
	peaks := SelectPeaks(gfp, o.minPeakDistance, o.maxPeaks, rand.New(rand.NewPCG(o.seed, peakStream)))
	if peaks == nil {
		// An empty, non-nil set keeps ModKMeans from falling back to every sample.
		peaks = []int{}
	}
	logger.Info("selected GFP peaks", "peaks", len(peaks), "samples", n)

	gfpSumSq := floats.Dot(gfp, gfp)
	params := KMeansParams{
		States:        o.states,
		MaxIterations: o.maxIterations,
		Threshold:     o.threshold,
	}

	results := make([]*Result, o.restarts)
	errs := make([]error, o.restarts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for i := 0; i < o.restarts; i++ {
		g.Go(func() error {
			p := params
			p.Logger = logger.With("restart", i)

			res, err := ModKMeans(gctx, signal, peaks, p, rand.New(rand.NewPCG(o.seed, uint64(i))))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				errs[i] = fmt.Errorf("restart %d: %w", i, err)
				return nil
			}

			res.GEV = gev(signal, res.Maps, res.Segmentation, gfp, gfpSumSq)
			res.Restart = i
			p.Logger.Info("GEV of found microstates",
				"gev", res.GEV,
				"iterations", res.Iterations,
				"status", res.Status.String())

			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make([]float64, o.restarts)
	var best *Result
	for i, res := range results {
		if res == nil {
			scores[i] = math.NaN()
			continue
		}
		scores[i] = res.GEV
		if best == nil || res.GEV > best.GEV {
			best = res
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoValidRestart, errors.Join(errs...))
	}
	best.Scores = scores

	logger.Info("selected best restart", "restart", best.Restart, "gev", best.GEV)

	return best, nil
}

// GEV returns the global explained variance of a segmentation: the squared
// spatial correlation between every sample and its assigned map, weighted by
// the squared global field power and normalized by the total squared GFP.
func GEV(data, maps mat.Matrix, segmentation []int) (float64, error) {
	channels, n := data.Dims()
	if channels == 0 || n == 0 {
		return 0, ErrEmptySignal
	}
	states, mc := maps.Dims()
	if mc != channels {
		return 0, fmt.Errorf("%w: maps have %d channels, data has %d", ErrShapeMismatch, mc, channels)
	}
	if len(segmentation) != n {
		return 0, fmt.Errorf("%w: %d labels for %d samples", ErrInvalidSegmentation, len(segmentation), n)
	}
	for t, s := range segmentation {
		if s < 0 || s >= states {
			return 0, fmt.Errorf("%w: sample %d has state %d", ErrInvalidSegmentation, t, s)
		}
	}

	gfp := GFP(data)
	return gev(data, maps, segmentation, gfp, floats.Dot(gfp, gfp)), nil
}

// gev assumes validated inputs. Samples whose correlation is undefined (a
// constant sample or a dead map) explain nothing.
func gev(data, maps mat.Matrix, segmentation []int, gfp []float64, gfpSumSq float64) float64 {
	if gfpSumSq == 0 {
		return 0
	}

	channels, _ := data.Dims()
	x := make([]float64, channels)
	m := make([]float64, channels)

	var sum float64
	for t, s := range segmentation {
		mat.Col(x, t, data)
		mat.Row(m, s, maps)
		corr := corrVector(x, m)
		if math.IsNaN(corr) {
			continue
		}
		v := gfp[t] * corr
		sum += v * v
	}
	return sum / gfpSumSq
}
