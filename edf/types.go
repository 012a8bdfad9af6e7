// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package edf reads and writes EDF/EDF+ recordings as channel x sample matrices.
package edf

import (
	"errors"
	"time"
)

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

// AnnotationsLabel is the label of the EDF+ annotations signal, which does not
// carry samples.
const AnnotationsLabel = "EDF Annotations"

var (
	// ErrSignalIndex is returned for a signal index outside the header.
	ErrSignalIndex = errors.New("edf: signal index out of range")
	// ErrUnknownLabel is returned when a requested signal label is not in the header.
	ErrUnknownLabel = errors.New("edf: unknown signal label")
	// ErrNoSignals is returned when there is no data signal to read.
	ErrNoSignals = errors.New("edf: no data signals")
	// ErrSampleRateMismatch is returned when signals read into one matrix
	// have different sample rates.
	ErrSampleRateMismatch = errors.New("edf: signals have different sample rates")
)

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	DataRecordDuration time.Duration // Duration of a single data record in seconds
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// SampleRate returns the sampling rate of signal i in Hz.
func (h *Header) SampleRate(i int) float64 {
	if i < 0 || i >= len(h.Signals) || h.DataRecordDuration <= 0 {
		return 0
	}
	return float64(h.Signals[i].SamplesPerRecord) / h.DataRecordDuration.Seconds()
}

// recordSize is the size of one data record in bytes.
func (h *Header) recordSize() int {
	var size int
	for _, sig := range h.Signals {
		size += sig.SamplesPerRecord * 2
	}
	return size
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// IsAnnotations reports whether the signal is the EDF+ annotations channel.
func (s Signal) IsAnnotations() bool {
	return s.Label == AnnotationsLabel
}
