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
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/OpenPSG/microstates"
	"github.com/OpenPSG/microstates/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSynthThenSegment(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "synth.edf")
	maps := filepath.Join(dir, "maps.txt")

	_, logs, err := run(t, "synth", recording, "--channels", "6", "--states", "3", "--duration", "8", "--seed", "5")
	require.NoError(t, err)
	assert.Contains(t, logs, "wrote synthetic recording")

	file, err := os.Open(recording)
	require.NoError(t, err)
	defer file.Close()
	er, err := edf.Open(file)
	require.NoError(t, err)
	hdr := er.Header()
	assert.Equal(t, 8, hdr.DataRecords)
	require.Len(t, hdr.Signals, 6)
	assert.Equal(t, "Fp1", hdr.Signals[0].Label)
	assert.InDelta(t, 256.0, hdr.SampleRate(0), 1e-9)

	out, logs, err := run(t, "segment", recording,
		"--states", "3", "--restarts", "3", "--seed", "9", "--jobs", "2",
		"--maps-out", maps, "--feedback-state", "0", "--log-level", "debug")
	require.NoError(t, err)

	assert.Contains(t, out, "GEV: ")
	assert.Contains(t, out, "state 2: coverage")
	assert.Contains(t, out, "feedback state 0:")
	assert.Contains(t, logs, "loaded recording")
	assert.Contains(t, logs, "selected best restart")

	text, err := os.ReadFile(maps)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, strings.Fields(line), 6)
	}
}

func TestSegmentChannelSubset(t *testing.T) {
	recording := filepath.Join(t.TempDir(), "synth.edf")

	_, _, err := run(t, "synth", recording, "--channels", "4", "--states", "2", "--duration", "4")
	require.NoError(t, err)

	out, _, err := run(t, "segment", recording, "--states", "2", "--restarts", "2", "--channels", "Fp1,F7,F3")
	require.NoError(t, err)
	assert.Contains(t, out, "state 1: coverage")

	_, _, err = run(t, "segment", recording, "--channels", "Oz")
	assert.ErrorIs(t, err, edf.ErrUnknownLabel)
}

func TestCommandErrors(t *testing.T) {
	_, _, err := run(t, "segment", filepath.Join(t.TempDir(), "missing.edf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = run(t, "segment", "x.edf", "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")

	_, _, err = run(t, "synth", filepath.Join(t.TempDir(), "x.edf"), "--channels", "40")
	assert.Error(t, err)
}

func TestFeedbackReplaysSavedMaps(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "synth.edf")
	maps := filepath.Join(dir, "maps.txt")

	_, _, err := run(t, "synth", recording, "--channels", "6", "--states", "3", "--duration", "8", "--seed", "3")
	require.NoError(t, err)
	_, _, err = run(t, "segment", recording, "--states", "3", "--restarts", "3", "--seed", "4", "--maps-out", maps)
	require.NoError(t, err)

	var sum float64
	for state := 0; state < 3; state++ {
		out, logs, err := run(t, "feedback", recording, "--maps", maps, "--state", strconv.Itoa(state), "--window", "2")
		require.NoError(t, err)
		assert.Contains(t, logs, "replaying recording")

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 5)
		assert.True(t, strings.HasPrefix(lines[0], "window 0 (0.0-2.0 s): "), lines[0])
		assert.True(t, strings.HasPrefix(lines[3], "window 3 (6.0-8.0 s): "), lines[3])

		mean, ok := strings.CutPrefix(lines[4], "mean: ")
		require.True(t, ok, lines[4])
		v, err := strconv.ParseFloat(strings.TrimSuffix(mean, "%"), 64)
		require.NoError(t, err)
		sum += v
	}

	// Every window is almost entirely claimed by one state or another.
	assert.Greater(t, sum, 80.0)
	assert.LessOrEqual(t, sum, 100.5)
}

func TestFeedbackErrors(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "synth.edf")
	maps := filepath.Join(dir, "maps.txt")

	_, _, err := run(t, "synth", recording, "--channels", "4", "--states", "2", "--duration", "4")
	require.NoError(t, err)
	_, _, err = run(t, "segment", recording, "--states", "2", "--restarts", "1", "--maps-out", maps)
	require.NoError(t, err)

	_, _, err = run(t, "feedback", recording)
	assert.Error(t, err)

	_, _, err = run(t, "feedback", recording, "--maps", maps, "--state", "2")
	assert.ErrorIs(t, err, microstates.ErrUnknownState)

	_, _, err = run(t, "feedback", recording, "--maps", maps, "--channels", "Fp1,Fp2")
	assert.ErrorIs(t, err, microstates.ErrShapeMismatch)

	_, _, err = run(t, "feedback", recording, "--maps", maps, "--window", "0")
	assert.ErrorContains(t, err, "window must be positive")
}

func TestMapsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maps.txt")

	maps := mat.NewDense(2, 3, []float64{
		0.1, -0.7071067811865476, 1e-300,
		-1, 0, 0.3333333333333333,
	})
	require.NoError(t, writeMaps(path, maps))

	got, err := readMaps(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(maps, got))

	ragged := filepath.Join(dir, "ragged.txt")
	require.NoError(t, os.WriteFile(ragged, []byte("1 2 3\n4 5\n"), 0o644))
	_, err = readMaps(ragged)
	assert.ErrorContains(t, err, "expected 3 values, got 2")

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# no maps\n\n"), 0o644))
	_, err = readMaps(empty)
	assert.ErrorIs(t, err, errNoMaps)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("1 x 3\n"), 0o644))
	_, err = readMaps(bad)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}
