// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package scoring fuses vulnerability scores from independent frameworks
// (CVSS, EPSS, KEV, SSVC, LEV) into one universal 0-100 risk score.
//
// Everything in this package is a pure function of its arguments: no I/O,
// no clocks, no package-level mutable state. Callers may invoke it from any
// number of goroutines.
package scoring

import "math"

// Range is a closed numeric interval.
type Range struct {
	Min, Max float64
}

// Common ranges.
var (
	CVSSRange    = Range{0, 10}
	PercentRange = Range{0, 100}
)

// Normalize linearly rescales value from one range onto another. A
// zero-width source range maps everything to to.Min. The result is not
// clamped.
func Normalize(value float64, from, to Range) float64 {
	if from.Max == from.Min {
		return to.Min
	}
	return to.Min + (value-from.Min)*(to.Max-to.Min)/(from.Max-from.Min)
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// finite returns v, or 0 for NaN and infinities.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
