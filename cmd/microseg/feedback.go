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
	"log/slog"
	"math"

	"github.com/OpenPSG/microstates"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

type feedbackFlags struct {
	maps            string
	state           int
	window          float64
	minPeakDistance int
	normalize       bool
	channels        []string
}

func newFeedbackCmd(logger func(*cobra.Command) (*slog.Logger, error)) *cobra.Command {
	var f feedbackFlags

	cmd := &cobra.Command{
		Use:   "feedback <recording.edf>",
		Short: "Replay a recording window by window against fixed maps",
		Long: "Replay a recording window by window against maps saved with\n" +
			"segment --maps-out, printing the share of every window spent in one state.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger(cmd)
			if err != nil {
				return err
			}
			if f.window <= 0 {
				return fmt.Errorf("window must be positive, got %g", f.window)
			}

			maps, err := readMaps(f.maps)
			if err != nil {
				return err
			}
			data, rate, err := readRecording(args[0], f.channels)
			if err != nil {
				return err
			}

			channels, samples := data.Dims()
			states, mc := maps.Dims()
			if mc != channels {
				return fmt.Errorf("%w: maps have %d channels, recording has %d",
					microstates.ErrShapeMismatch, mc, channels)
			}
			if f.state < 0 || f.state >= states {
				return fmt.Errorf("%w: %d of %d", microstates.ErrUnknownState, f.state, states)
			}

			size := max(1, int(math.Round(f.window*rate)))
			log.Info("replaying recording",
				"file", args[0], "maps", states, "state", f.state, "window", size)

			bw := bufio.NewWriter(cmd.OutOrStdout())
			var total float64
			var windows int
			for start := 0; start < samples; start += size {
				end := min(start+size, samples)

				var window mat.Matrix = data.Slice(0, channels, start, end)
				if f.normalize {
					window = microstates.ZScore(window)
				}
				pct, err := microstates.PeakCoverage(window, maps, f.state, f.minPeakDistance)
				if err != nil {
					return err
				}

				fmt.Fprintf(bw, "window %d (%.1f-%.1f s): %.1f%%\n",
					windows, float64(start)/rate, float64(end)/rate, pct)
				total += pct
				windows++
			}
			fmt.Fprintf(bw, "mean: %.1f%%\n", total/float64(windows))
			return bw.Flush()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.maps, "maps", "", "maps written by segment --maps-out")
	flags.IntVar(&f.state, "state", 0, "state to report")
	flags.Float64Var(&f.window, "window", 2, "window length in seconds")
	flags.IntVar(&f.minPeakDistance, "min-peak-distance", microstates.DefaultMinPeakDistance, "minimum distance between GFP peaks, in samples")
	flags.BoolVar(&f.normalize, "normalize", false, "z-score every window before matching")
	flags.StringSliceVar(&f.channels, "channels", nil, "signal labels to use (default all but annotations)")
	cmd.MarkFlagRequired("maps")

	return cmd
}
