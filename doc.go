// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package microstates segments multichannel EEG into microstates: a small
// number of recurring topographic maps, each sample being assigned to the map
// it matches best regardless of polarity.
//
// Maps are fitted on the peaks of the global field power (GFP) with the
// modified k-means algorithm of Pascual-Marqui et al. (1995). Several randomly
// initialized runs are performed and the one with the highest global
// explained variance (GEV) is kept.
//
//	res, err := microstates.Segment(ctx, data,
//		microstates.WithStates(4),
//		microstates.WithSeed(42),
//	)
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.GEV, res.Segmentation[:10])
//
// data is a gonum matrix with one row per channel and one column per sample;
// the edf subpackage reads such matrices from EDF/EDF+ recordings.
package microstates
