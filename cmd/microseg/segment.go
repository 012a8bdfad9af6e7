// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/OpenPSG/microstates"
	"github.com/OpenPSG/microstates/edf"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

type segmentFlags struct {
	states          int
	restarts        int
	maxIterations   int
	threshold       float64
	normalize       bool
	minPeakDistance int
	maxPeaks        int
	seed            uint64
	jobs            int
	channels        []string
	mapsOut         string
	target          int
}

func newSegmentCmd(logger func(*cobra.Command) (*slog.Logger, error)) *cobra.Command {
	var f segmentFlags

	cmd := &cobra.Command{
		Use:   "segment <recording.edf>",
		Short: "Find the microstates of an EDF recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger(cmd)
			if err != nil {
				return err
			}

			data, rate, err := readRecording(args[0], f.channels)
			if err != nil {
				return err
			}
			channels, samples := data.Dims()
			log.Info("loaded recording", "file", args[0], "channels", channels, "samples", samples, "rate", rate)

			opts := []microstates.Option{
				microstates.WithStates(f.states),
				microstates.WithRestarts(f.restarts),
				microstates.WithMaxIterations(f.maxIterations),
				microstates.WithThreshold(f.threshold),
				microstates.WithNormalize(f.normalize),
				microstates.WithMinPeakDistance(f.minPeakDistance),
				microstates.WithMaxPeaks(f.maxPeaks),
				microstates.WithJobs(f.jobs),
				microstates.WithLogger(log),
			}
			if cmd.Flags().Changed("seed") {
				opts = append(opts, microstates.WithSeed(f.seed))
			}

			res, err := microstates.Segment(cmd.Context(), data, opts...)
			if err != nil {
				return err
			}

			if err := printSummary(cmd.OutOrStdout(), res, rate); err != nil {
				return err
			}

			if f.target >= 0 {
				signal := mat.Matrix(data)
				if f.normalize {
					signal = microstates.ZScore(data)
				}
				pct, err := microstates.PeakCoverage(signal, res.Maps, f.target, f.minPeakDistance)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "feedback state %d: %.1f%%\n", f.target, pct)
			}

			if f.mapsOut != "" {
				if err := writeMaps(f.mapsOut, res.Maps); err != nil {
					return err
				}
				log.Info("wrote maps", "file", f.mapsOut)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.states, "states", microstates.DefaultStates, "number of microstates")
	flags.IntVar(&f.restarts, "restarts", microstates.DefaultRestarts, "number of random initializations")
	flags.IntVar(&f.maxIterations, "max-iterations", microstates.DefaultMaxIterations, "iteration budget per restart")
	flags.Float64Var(&f.threshold, "threshold", microstates.DefaultThreshold, "convergence threshold")
	flags.BoolVar(&f.normalize, "normalize", false, "z-score every channel before segmenting")
	flags.IntVar(&f.minPeakDistance, "min-peak-distance", microstates.DefaultMinPeakDistance, "minimum distance between GFP peaks, in samples")
	flags.IntVar(&f.maxPeaks, "max-peaks", microstates.DefaultMaxPeaks, "maximum number of GFP peaks to fit on, 0 for all")
	flags.Uint64Var(&f.seed, "seed", 0, "random seed (random when unset)")
	flags.IntVar(&f.jobs, "jobs", 0, "restarts run in parallel, 0 for one per CPU")
	flags.StringSliceVar(&f.channels, "channels", nil, "signal labels to use (default all but annotations)")
	flags.StringVar(&f.mapsOut, "maps-out", "", "write the maps as space separated text, one map per line")
	flags.IntVar(&f.target, "feedback-state", -1, "print the share of the recording spent in this state")

	return cmd
}

func readRecording(path string, channels []string) (*mat.Dense, float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	er, err := edf.Open(file)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening %s: %w", path, err)
	}
	return er.ReadMatrix(channels...)
}

func printSummary(w io.Writer, res *microstates.Result, rate float64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "GEV: %.4f (restart %d, %d iterations, %s)\n", res.GEV, res.Restart, res.Iterations, res.Status)
	fmt.Fprintf(bw, "fitted on %d GFP peaks, %d samples (%.1f s)\n", res.Peaks, len(res.Segmentation), float64(len(res.Segmentation))/rate)
	for s := 0; s < res.States(); s++ {
		fmt.Fprintf(bw, "state %d: coverage %.1f%%\n", s, microstates.Coverage(res.Segmentation, s))
	}
	return bw.Flush()
}
