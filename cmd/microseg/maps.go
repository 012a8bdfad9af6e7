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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var errNoMaps = errors.New("no maps in file")

// writeMaps writes one map per line with space separated values.
func writeMaps(path string, maps *mat.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(file)
	rows, cols := maps.Dims()
	for s := 0; s < rows; s++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%.18e", maps.At(s, c))
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// readMaps reads maps written by writeMaps. Blank lines and lines starting
// with '#' are skipped. Every map must have the same number of channels.
func readMaps(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		values   []float64
		channels int
		states   int
	)
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if states == 0 {
			channels = len(fields)
		} else if len(fields) != channels {
			return nil, fmt.Errorf("%s:%d: expected %d values, got %d", path, line, channels, len(fields))
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			values = append(values, v)
		}
		states++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if states == 0 {
		return nil, fmt.Errorf("%s: %w", path, errNoMaps)
	}

	return mat.NewDense(states, channels, values), nil
}
