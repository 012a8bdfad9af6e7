// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package microstates_test

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/OpenPSG/microstates"
	"github.com/OpenPSG/microstates/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// twoPatterns is a 4 channel, 1000 sample recording alternating between two
// orthogonal patterns every 100 samples.
func twoPatterns(t *testing.T, noise float64) *synth.Recording {
	t.Helper()

	rec, err := synth.Generate(synth.Config{
		Channels:      4,
		Samples:       1000,
		Patterns:      [][]float64{{1, 1, -1, -1}, {1, -1, 1, -1}},
		SegmentLength: 100,
		Frequency:     0.05,
		Noise:         noise,
		Seed:          42,
	})
	require.NoError(t, err)
	return rec
}

func defaultParams(states int) microstates.KMeansParams {
	return microstates.KMeansParams{
		States:        states,
		MaxIterations: microstates.DefaultMaxIterations,
		Threshold:     microstates.DefaultThreshold,
	}
}

func requireUnitOrZeroRows(t *testing.T, maps *mat.Dense) {
	t.Helper()

	rows, _ := maps.Dims()
	for s := 0; s < rows; s++ {
		norm := floats.Norm(maps.RawRowView(s), 2)
		if norm != 0 {
			require.InDelta(t, 1.0, norm, 1e-9, "map %d", s)
		}
	}
}

func TestModKMeans(t *testing.T) {
	rec := twoPatterns(t, 0.05)
	peaks := microstates.FindPeaks(microstates.GFP(rec.Data), 2)

	res, err := microstates.ModKMeans(context.Background(), rec.Data, peaks, defaultParams(2), rand.New(rand.NewPCG(3, 0)))
	require.NoError(t, err)

	assert.True(t, res.Status.Has(microstates.StatusConverged), res.Status.String())
	assert.False(t, res.Status.Has(microstates.StatusMaxIterReached))
	assert.Equal(t, len(peaks), res.Peaks)
	assert.Greater(t, res.Iterations, 0)

	require.Equal(t, 2, res.States())
	requireUnitOrZeroRows(t, res.Maps)

	// Fitted on peaks, labelled everywhere.
	require.Len(t, res.Segmentation, 1000)
	for _, s := range res.Segmentation {
		require.True(t, s == 0 || s == 1)
	}
}

func TestModKMeansDeterministic(t *testing.T) {
	rec := twoPatterns(t, 0.2)

	a, err := microstates.ModKMeans(context.Background(), rec.Data, nil, defaultParams(3), rand.New(rand.NewPCG(9, 1)))
	require.NoError(t, err)
	b, err := microstates.ModKMeans(context.Background(), rec.Data, nil, defaultParams(3), rand.New(rand.NewPCG(9, 1)))
	require.NoError(t, err)

	assert.True(t, mat.Equal(a.Maps, b.Maps))
	assert.Equal(t, a.Segmentation, b.Segmentation)
	assert.Equal(t, a.Residual, b.Residual)
}

func TestModKMeansDegenerateCluster(t *testing.T) {
	// Every sample points the same way, so the second state can never win.
	data := mat.NewDense(2, 5, []float64{
		1, 2, 3, 4, 5,
		0, 0, 0, 0, 0,
	})

	var logs bytes.Buffer
	p := defaultParams(2)
	p.MaxIterations = 3
	p.Logger = slog.New(slog.NewJSONHandler(&logs, nil))

	res, err := microstates.ModKMeans(context.Background(), data, nil, p, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	// The fit is perfect, so the residual is zero and can never decrease
	// by a positive fraction of itself.
	assert.Zero(t, res.Residual)
	assert.True(t, res.Status.Has(microstates.StatusDegenerateCluster), res.Status.String())
	assert.True(t, res.Status.Has(microstates.StatusMaxIterReached), res.Status.String())
	assert.Equal(t, []float64{0, 0}, res.Maps.RawRowView(1))
	assert.InDelta(t, 1.0, floats.Norm(res.Maps.RawRowView(0), 2), 1e-12)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, res.Segmentation)

	assert.Contains(t, logs.String(), "some microstates are never activated")
	assert.Contains(t, logs.String(), `"state":1`)
	assert.Contains(t, logs.String(), `"iteration":1`)
}

func TestModKMeansZeroSampleMap(t *testing.T) {
	// The first sample is all zeros. A map drawn from it wins that sample on
	// ties but can never be estimated from it.
	data := mat.NewDense(3, 4, []float64{
		0, 1, 0, 2,
		0, 0, 1, 1,
		0, 1, 1, -1,
	})

	var zeroMaps int
	for seed := uint64(0); seed < 20; seed++ {
		var logs bytes.Buffer
		p := defaultParams(3)
		p.MaxIterations = 20
		p.Logger = slog.New(slog.NewJSONHandler(&logs, nil))

		res, err := microstates.ModKMeans(context.Background(), data, nil, p, rand.New(rand.NewPCG(seed, 0)))
		require.NoError(t, err)
		requireUnitOrZeroRows(t, res.Maps)

		for s := 0; s < 3; s++ {
			if floats.Norm(res.Maps.RawRowView(s), 2) != 0 {
				continue
			}
			zeroMaps++
			assert.True(t, res.Status.Has(microstates.StatusDegenerateCluster), "seed %d: %s", seed, res.Status)
			assert.Contains(t, logs.String(), "some microstates are never activated", "seed %d", seed)
		}
	}
	require.Positive(t, zeroMaps)
}

func TestModKMeansMaxIterations(t *testing.T) {
	rec := twoPatterns(t, 0.05)

	p := defaultParams(2)
	p.MaxIterations = 1

	res, err := microstates.ModKMeans(context.Background(), rec.Data, nil, p, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	// The first iteration has no previous residual to compare against.
	assert.True(t, res.Status.Has(microstates.StatusMaxIterReached), res.Status.String())
	assert.False(t, res.Status.Has(microstates.StatusConverged))
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Segmentation, 1000)
}

func TestModKMeansErrors(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 1))
	data := mat.NewDense(3, 10, nil)

	_, err := microstates.ModKMeans(ctx, &mat.Dense{}, nil, defaultParams(2), rng)
	assert.ErrorIs(t, err, microstates.ErrEmptySignal)

	_, err = microstates.ModKMeans(ctx, data, nil, defaultParams(0), rng)
	assert.ErrorIs(t, err, microstates.ErrInvalidStates)

	_, err = microstates.ModKMeans(ctx, data, nil, defaultParams(4), rng)
	assert.ErrorIs(t, err, microstates.ErrTooManyStates)

	_, err = microstates.ModKMeans(ctx, data, []int{1}, defaultParams(2), rng)
	assert.ErrorIs(t, err, microstates.ErrNotEnoughSamples)

	_, err = microstates.ModKMeans(ctx, data, []int{}, defaultParams(1), rng)
	assert.ErrorIs(t, err, microstates.ErrNotEnoughSamples)

	_, err = microstates.ModKMeans(ctx, data, []int{1, 10}, defaultParams(2), rng)
	assert.ErrorIs(t, err, microstates.ErrShapeMismatch)
}

func TestModKMeansCancelled(t *testing.T) {
	rec := twoPatterns(t, 0.05)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := microstates.ModKMeans(ctx, rec.Data, nil, defaultParams(2), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssignPolarityInvariant(t *testing.T) {
	rec := twoPatterns(t, 0.3)

	seg, err := microstates.Assign(rec.Patterns, rec.Data)
	require.NoError(t, err)

	flippedMaps := mat.DenseCopyOf(rec.Patterns)
	row := flippedMaps.RawRowView(1)
	floats.Scale(-1, row)

	flippedData := mat.DenseCopyOf(rec.Data)
	for _, j := range []int{0, 17, 250, 999} {
		col := mat.Col(nil, j, flippedData)
		floats.Scale(-1, col)
		flippedData.SetCol(j, col)
	}

	got, err := microstates.Assign(flippedMaps, rec.Data)
	require.NoError(t, err)
	assert.Equal(t, seg, got)

	got, err = microstates.Assign(rec.Patterns, flippedData)
	require.NoError(t, err)
	assert.Equal(t, seg, got)

	got, err = microstates.Assign(flippedMaps, flippedData)
	require.NoError(t, err)
	assert.Equal(t, seg, got)
}

func TestAssignIdempotent(t *testing.T) {
	rec := twoPatterns(t, 0.1)

	res, err := microstates.ModKMeans(context.Background(), rec.Data, nil, defaultParams(2), rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seg, err := microstates.Assign(res.Maps, rec.Data)
		require.NoError(t, err)
		assert.Equal(t, res.Segmentation, seg)
	}
}

func TestAssignErrors(t *testing.T) {
	_, err := microstates.Assign(mat.NewDense(2, 3, nil), mat.NewDense(4, 10, nil))
	assert.ErrorIs(t, err, microstates.ErrShapeMismatch)

	_, err = microstates.Assign(mat.NewDense(2, 3, nil), &mat.Dense{})
	assert.ErrorIs(t, err, microstates.ErrEmptySignal)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "none", microstates.Status(0).String())
	assert.Equal(t, "converged|degenerate-cluster",
		(microstates.StatusConverged | microstates.StatusDegenerateCluster).String())
	assert.Equal(t, "max-iterations-reached", microstates.StatusMaxIterReached.String())
}
