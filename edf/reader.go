// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	// Parse fields based on EDF/EDF+ specifications
	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startDate, err := time.Parse("02.01.06", strings.TrimSpace(string(b[168:176])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	hdr.DataRecordDuration, err = time.ParseDuration(fmt.Sprintf("%ss", strings.TrimSpace(string(b[244:252]))))
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("invalid signal count: %d", hdr.SignalCount)
	}

	// Signal headers are stored field by field, each field repeated for every signal.
	hdr.Signals = make([]Signal, hdr.SignalCount)
	fields := []struct {
		width int
		set   func(s *Signal, v []byte)
	}{
		{16, func(s *Signal, v []byte) { s.Label = strings.TrimSpace(string(v)) }},
		{80, func(s *Signal, v []byte) { s.TransducerType = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.PhysicalDimension = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.PhysicalMin = parseFloat(v) }},
		{8, func(s *Signal, v []byte) { s.PhysicalMax = parseFloat(v) }},
		{8, func(s *Signal, v []byte) { s.DigitalMin = parseInt(v) }},
		{8, func(s *Signal, v []byte) { s.DigitalMax = parseInt(v) }},
		{80, func(s *Signal, v []byte) { s.Prefiltering = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.SamplesPerRecord = parseInt(v) }},
		{32, func(s *Signal, v []byte) { s.Reserved = strings.TrimSpace(string(v)) }},
	}
	for _, field := range fields {
		v := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, v); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			field.set(&hdr.Signals[i], v)
		}
	}

	return &Reader{
		r:   r,
		hdr: hdr,
	}, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() Header {
	return *er.hdr
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r             io.ReadSeeker
	hdr           *Header
	signal        Signal
	currentRecord int       // Current record being processed
	currentSample int       // Current sample in the record
	recordSize    int       // Total size of one data record
	signalOffset  int       // Byte offset of the signal in a record
	buf           []byte    // Raw samples of the current record
	samples       []float64 // Physical samples of the current record
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("%w: %d", ErrSignalIndex, signalIndex)
	}

	signalOffset := 0
	for _, sig := range er.hdr.Signals[:signalIndex] {
		signalOffset += sig.SamplesPerRecord * 2
	}

	signal := er.hdr.Signals[signalIndex]
	return &SignalReader{
		r:            er.r,
		hdr:          er.hdr,
		signal:       signal,
		recordSize:   er.hdr.recordSize(),
		signalOffset: signalOffset,
		buf:          make([]byte, signal.SamplesPerRecord*2),
	}, nil
}

// Read fills the provided float64 slice with the physical values from the signal.
func (sr *SignalReader) Read(data []float64) (int, error) {
	n := 0
	for n < len(data) {
		if sr.samples == nil || sr.currentSample >= len(sr.samples) {
			if sr.currentRecord >= sr.hdr.DataRecords {
				return n, io.EOF // End of data records
			}
			if err := sr.loadRecord(); err != nil {
				return n, err
			}
		}

		copied := copy(data[n:], sr.samples[sr.currentSample:])
		n += copied
		sr.currentSample += copied
	}

	return n, nil
}

// loadRecord reads the signal's part of the current data record and advances
// to the next one.
func (sr *SignalReader) loadRecord() error {
	pos := int64(sr.hdr.HeaderBytes) + int64(sr.currentRecord)*int64(sr.recordSize) + int64(sr.signalOffset)
	if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to position: %w", err)
	}
	if _, err := io.ReadFull(sr.r, sr.buf); err != nil {
		return fmt.Errorf("error reading sample data: %w", err)
	}

	if sr.samples == nil {
		sr.samples = make([]float64, sr.signal.SamplesPerRecord)
	}
	for i := range sr.samples {
		digitalValue := int16(binary.LittleEndian.Uint16(sr.buf[i*2:]))
		sr.samples[i] = convertDigitalToPhysical(digitalValue, sr.signal.DigitalMin, sr.signal.DigitalMax, sr.signal.PhysicalMin, sr.signal.PhysicalMax)
	}

	sr.currentSample = 0
	sr.currentRecord++
	return nil
}

// ReadMatrix reads whole signals into a matrix with one row per signal and
// one column per sample, and returns it with the common sampling rate in Hz.
//
// Signals are selected by label, in the given order. Without labels every
// signal except EDF+ annotations is read.
func (er *Reader) ReadMatrix(labels ...string) (*mat.Dense, float64, error) {
	indices, err := er.selectSignals(labels)
	if err != nil {
		return nil, 0, err
	}

	rate := er.hdr.SampleRate(indices[0])
	samplesPerRecord := er.hdr.Signals[indices[0]].SamplesPerRecord
	for _, i := range indices[1:] {
		if er.hdr.Signals[i].SamplesPerRecord != samplesPerRecord {
			return nil, 0, fmt.Errorf("%w: %q and %q", ErrSampleRateMismatch,
				er.hdr.Signals[indices[0]].Label, er.hdr.Signals[i].Label)
		}
	}

	samples := samplesPerRecord * er.hdr.DataRecords
	if samples <= 0 {
		return nil, 0, fmt.Errorf("%w: recording has no samples", ErrNoSignals)
	}

	m := mat.NewDense(len(indices), samples, nil)
	for row, i := range indices {
		sr, err := er.Signal(i)
		if err != nil {
			return nil, 0, err
		}
		if _, err := sr.Read(m.RawRowView(row)); err != nil {
			return nil, 0, fmt.Errorf("error reading signal %q: %w", er.hdr.Signals[i].Label, err)
		}
	}

	return m, rate, nil
}

func (er *Reader) selectSignals(labels []string) ([]int, error) {
	var indices []int
	if len(labels) == 0 {
		for i, sig := range er.hdr.Signals {
			if !sig.IsAnnotations() {
				indices = append(indices, i)
			}
		}
	} else {
		for _, label := range labels {
			i := er.signalIndex(label)
			if i < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
			}
			indices = append(indices, i)
		}
	}

	if len(indices) == 0 {
		return nil, ErrNoSignals
	}
	return indices, nil
}

func (er *Reader) signalIndex(label string) int {
	for i, sig := range er.hdr.Signals {
		if sig.Label == label {
			return i
		}
	}
	return -1
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseFloat(b []byte) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(b []byte) int {
	i, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return i
}
