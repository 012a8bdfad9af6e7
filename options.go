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
	"io"
	"log/slog"
	"runtime"
)

// Defaults used by Segment.
const (
	DefaultStates          = 4
	DefaultRestarts        = 10
	DefaultMaxIterations   = 1000
	DefaultThreshold       = 1e-6
	DefaultMinPeakDistance = 2
	DefaultMaxPeaks        = 10000
)

type options struct {
	states          int
	restarts        int
	maxIterations   int
	threshold       float64
	normalize       bool
	minPeakDistance int
	maxPeaks        int
	seed            uint64
	seeded          bool
	jobs            int
	logger          *slog.Logger
}

func defaultOptions() options {
	return options{
		states:          DefaultStates,
		restarts:        DefaultRestarts,
		maxIterations:   DefaultMaxIterations,
		threshold:       DefaultThreshold,
		minPeakDistance: DefaultMinPeakDistance,
		maxPeaks:        DefaultMaxPeaks,
		jobs:            runtime.GOMAXPROCS(0),
	}
}

// Option configures Segment.
type Option func(*options)

// WithStates sets the number of microstates to find.
func WithStates(n int) Option {
	return func(o *options) {
		o.states = n
	}
}

// WithRestarts sets the number of randomly initialized runs; the run with the
// highest global explained variance wins.
func WithRestarts(n int) Option {
	return func(o *options) {
		o.restarts = n
	}
}

// WithMaxIterations sets the iteration budget of every run.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithThreshold sets the convergence threshold, relative to the residual noise.
func WithThreshold(thresh float64) Option {
	return func(o *options) {
		o.threshold = thresh
	}
}

// WithNormalize z-scores every channel across time before segmenting.
func WithNormalize(normalize bool) Option {
	return func(o *options) {
		o.normalize = normalize
	}
}

// WithMinPeakDistance sets the minimum distance, in samples, between GFP peaks.
func WithMinPeakDistance(n int) Option {
	return func(o *options) {
		o.minPeakDistance = n
	}
}

// WithMaxPeaks limits the number of GFP peaks used for fitting. Peaks are
// picked at random. Zero or a negative value uses every peak.
func WithMaxPeaks(n int) Option {
	return func(o *options) {
		o.maxPeaks = n
	}
}

// WithSeed makes a segmentation reproducible. Without it a random seed is
// drawn and logged.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithJobs sets how many restarts may run concurrently.
// Values below one fall back to GOMAXPROCS.
func WithJobs(n int) Option {
	return func(o *options) {
		o.jobs = n
	}
}

// WithLogger sets the logger receiving progress and warnings.
// If nil is passed, logging is disabled.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
