// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package microstates

import "errors"

var (
	// ErrEmptySignal is returned when the signal has no channels or no samples.
	ErrEmptySignal = errors.New("microstates: empty signal")

	// ErrShapeMismatch is returned when two operands do not have the same shape.
	ErrShapeMismatch = errors.New("microstates: shape mismatch")

	// ErrInvalidStates is returned when fewer than one state is requested.
	ErrInvalidStates = errors.New("microstates: number of states must be at least 1")

	// ErrTooManyStates is returned when more states than channels are requested.
	ErrTooManyStates = errors.New("microstates: more states than channels")

	// ErrNotEnoughSamples is returned when there are fewer fitting samples
	// than states to initialize.
	ErrNotEnoughSamples = errors.New("microstates: not enough samples to initialize states")

	// ErrInvalidRestarts is returned when fewer than one restart is requested.
	ErrInvalidRestarts = errors.New("microstates: number of restarts must be at least 1")

	// ErrNoValidRestart is returned when no restart produced a usable result.
	ErrNoValidRestart = errors.New("microstates: no valid restart")

	// ErrUnknownState is returned when a state index does not name a map.
	ErrUnknownState = errors.New("microstates: unknown state")

	// ErrInvalidSegmentation is returned when a segmentation does not match
	// the signal length or refers to a state that does not exist.
	ErrInvalidSegmentation = errors.New("microstates: invalid segmentation")
)
