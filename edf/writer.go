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
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)

	ew := &Writer{w: w, hdr: &hdr}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record to the EDF file.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	var totalSamples int
	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
		totalSamples += len(signal)
	}
	if totalSamples*2 > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", totalSamples*2, maxRecordBytes)
	}

	// Records are appended after everything written so far.
	pos := int64(ew.hdr.HeaderBytes) + int64(ew.dataRecords)*int64(ew.hdr.recordSize())
	if _, err := ew.w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to record: %w", err)
	}

	writer := bufio.NewWriter(ew.w)
	buf := make([]byte, 2)
	for i, signal := range signals {
		sig := ew.hdr.Signals[i]
		for _, sample := range signal {
			binary.LittleEndian.PutUint16(buf, uint16(convertPhysicalToDigital(sample, sig.PhysicalMin, sig.PhysicalMax, sig.DigitalMin, sig.DigitalMax)))
			if _, err := writer.Write(buf); err != nil {
				return err
			}
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// WriteMatrix writes a matrix with one row per signal and one column per
// sample as consecutive data records. Every signal must have the same number
// of samples per record. A trailing partial record is padded with zeros.
func (ew *Writer) WriteMatrix(m mat.Matrix) error {
	rows, cols := m.Dims()
	if rows != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, rows)
	}
	if rows == 0 {
		return ErrNoSignals
	}

	per := ew.hdr.Signals[0].SamplesPerRecord
	for _, sig := range ew.hdr.Signals[1:] {
		if sig.SamplesPerRecord != per {
			return ErrSampleRateMismatch
		}
	}
	if per <= 0 {
		return fmt.Errorf("invalid samples per record: %d", per)
	}

	record := make([][]float64, rows)
	for i := range record {
		record[i] = make([]float64, per)
	}
	for start := 0; start < cols; start += per {
		for i := range record {
			for j := range record[i] {
				if t := start + j; t < cols {
					record[i][j] = m.At(i, t)
				} else {
					record[i][j] = 0
				}
			}
		}
		if err := ew.WriteRecord(record); err != nil {
			return err
		}
	}

	return nil
}

// writeHeader writes the EDF header at the start of the file.
func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	ew.hdr.HeaderBytes = 256 + (ew.hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)
	fields := []string{
		fmt.Sprintf("%-8s", ew.hdr.Version),
		fmt.Sprintf("%-80s", ew.hdr.PatientID),
		fmt.Sprintf("%-80s", ew.hdr.RecordingID),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("02.01.06")),
		fmt.Sprintf("%-8s", ew.hdr.StartTime.Format("15.04.05")),
		fmt.Sprintf("%-8d", ew.hdr.HeaderBytes),
		fmt.Sprintf("%-44s", ""), // Reserved
		fmt.Sprintf("%-8d", ew.hdr.DataRecords),
		formatDuration(ew.hdr.DataRecordDuration.Seconds()),
		fmt.Sprintf("%-4d", ew.hdr.SignalCount),
	}

	// Signal headers are written field by field.
	signalFields := []func(s Signal) string{
		func(s Signal) string { return fmt.Sprintf("%-16s", s.Label) },
		func(s Signal) string { return fmt.Sprintf("%-80s", s.TransducerType) },
		func(s Signal) string { return fmt.Sprintf("%-8s", s.PhysicalDimension) },
		func(s Signal) string { return formatPhysicalValue(s.PhysicalMin) },
		func(s Signal) string { return formatPhysicalValue(s.PhysicalMax) },
		func(s Signal) string { return fmt.Sprintf("%-8d", s.DigitalMin) },
		func(s Signal) string { return fmt.Sprintf("%-8d", s.DigitalMax) },
		func(s Signal) string { return fmt.Sprintf("%-80s", s.Prefiltering) },
		func(s Signal) string { return fmt.Sprintf("%-8d", s.SamplesPerRecord) },
		func(s Signal) string { return fmt.Sprintf("%-32s", "") }, // Reserved
	}
	for _, field := range signalFields {
		for _, signal := range ew.hdr.Signals {
			fields = append(fields, field(signal))
		}
	}

	for _, field := range fields {
		if _, err := writer.WriteString(field); err != nil {
			return err
		}
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using
// the calibration factors, clamping to the digital range.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := ((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin)
	digital = math.Max(float64(dmin), math.Min(float64(dmax), math.Round(digital)))
	return int16(digital)
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		// Fall back to no decimal
		s = fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprintf("%-8s", s)
}

func formatDuration(seconds float64) string {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if len(s) > 8 {
		s = s[:8]
	}
	return fmt.Sprintf("%-8s", s)
}
