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
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Axis selects which dimension of a matrix holds the elements of each vector.
type Axis int

const (
	// Columns treats every column as a vector (channels of one sample).
	Columns Axis = iota
	// Rows treats every row as a vector.
	Rows
)

// CorrVectors computes the correlation of every pair of corresponding vectors
// in a and b, without computing the full cross-correlation matrix.
//
// A vector with zero norm after centering yields NaN.
func CorrVectors(a, b mat.Matrix, axis Axis) ([]float64, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, ar, ac, br, bc)
	}

	n, length := ac, ar
	if axis == Rows {
		n, length = ar, ac
	}

	corr := make([]float64, n)
	av := make([]float64, length)
	bv := make([]float64, length)
	for i := 0; i < n; i++ {
		if axis == Rows {
			mat.Row(av, i, a)
			mat.Row(bv, i, b)
		} else {
			mat.Col(av, i, a)
			mat.Col(bv, i, b)
		}
		corr[i] = corrVector(av, bv)
	}

	return corr, nil
}

// corrVector centers and normalizes x and y in place and returns their dot product.
func corrVector(x, y []float64) float64 {
	floats.AddConst(-floats.Sum(x)/float64(len(x)), x)
	floats.AddConst(-floats.Sum(y)/float64(len(y)), y)

	// 0/0 gives NaN, which is what callers expect for constant vectors.
	return floats.Dot(x, y) / (floats.Norm(x, 2) * floats.Norm(y, 2))
}
