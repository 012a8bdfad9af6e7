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
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/OpenPSG/microstates/edf"
	"github.com/OpenPSG/microstates/internal/synth"
	"github.com/spf13/cobra"
)

// Labels of the 10-20 system, used in order for synthetic channels.
var electrodes = []string{
	"Fp1", "Fp2", "F7", "F3", "Fz", "F4", "F8", "T3", "C3", "Cz",
	"C4", "T4", "T5", "P3", "Pz", "P4", "T6", "O1", "O2",
}

type synthFlags struct {
	channels  int
	states    int
	duration  float64
	rate      int
	segmentMs float64
	frequency float64
	amplitude float64
	noise     float64
	seed      uint64
}

func newSynthCmd(logger func(*cobra.Command) (*slog.Logger, error)) *cobra.Command {
	var f synthFlags

	cmd := &cobra.Command{
		Use:   "synth <output.edf>",
		Short: "Write a synthetic recording with known microstates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger(cmd)
			if err != nil {
				return err
			}
			if f.rate <= 0 || f.duration <= 0 {
				return fmt.Errorf("rate and duration must be positive")
			}
			if f.channels > len(electrodes) {
				return fmt.Errorf("at most %d channels are supported", len(electrodes))
			}

			rec, err := synth.Generate(synth.Config{
				Channels:      f.channels,
				Samples:       int(math.Round(f.duration * float64(f.rate))),
				States:        f.states,
				SegmentLength: max(1, int(math.Round(f.segmentMs*float64(f.rate)/1000))),
				Frequency:     f.frequency / float64(f.rate),
				Amplitude:     f.amplitude,
				Noise:         f.noise,
				Seed:          f.seed,
			})
			if err != nil {
				return err
			}

			// Leave room for the noise so little is clipped.
			limit := math.Ceil(f.amplitude + 5*f.noise)
			signals := make([]edf.Signal, f.channels)
			for c := range signals {
				signals[c] = edf.Signal{
					Label:             electrodes[c],
					TransducerType:    "Synthetic",
					PhysicalDimension: "uV",
					PhysicalMin:       -limit,
					PhysicalMax:       limit,
					DigitalMin:        math.MinInt16,
					DigitalMax:        math.MaxInt16,
					SamplesPerRecord:  f.rate,
				}
			}

			file, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			ew, err := edf.Create(file, edf.Header{
				Version:            edf.Version0,
				PatientID:          "X X X Synthetic",
				RecordingID:        fmt.Sprintf("Startdate X X microseg synth seed %d", f.seed),
				StartTime:          time.Now().UTC().Truncate(time.Second),
				DataRecordDuration: time.Second,
				Signals:            signals,
			})
			if err != nil {
				return err
			}
			if err := ew.WriteMatrix(rec.Data); err != nil {
				return err
			}
			if err := ew.Close(); err != nil {
				return err
			}

			log.Info("wrote synthetic recording",
				"file", args[0], "channels", f.channels, "states", f.states, "seconds", f.duration)
			return file.Close()
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.channels, "channels", 8, "number of channels")
	flags.IntVar(&f.states, "states", 4, "number of generating patterns")
	flags.Float64Var(&f.duration, "duration", 30, "length in seconds")
	flags.IntVar(&f.rate, "rate", 256, "sample rate in Hz")
	flags.Float64Var(&f.segmentMs, "segment", 100, "time each pattern stays active, in milliseconds")
	flags.Float64Var(&f.frequency, "frequency", 10, "oscillation frequency in Hz")
	flags.Float64Var(&f.amplitude, "amplitude", 50, "peak amplitude in uV")
	flags.Float64Var(&f.noise, "noise", 2, "noise standard deviation in uV")
	flags.Uint64Var(&f.seed, "seed", 1, "random seed")

	return cmd
}
