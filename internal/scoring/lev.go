// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package scoring

import "math"

// levFactor scales EPSS into the likely-exploited estimate.
const levFactor = 1.25

// DeriveLEV estimates the Likely Exploited Vulnerability probability from an
// EPSS score, capped at 1 and rounded to four decimals. It returns nil when
// there is no positive EPSS score to derive from.
func DeriveLEV(epss *float64) *float64 {
	if epss == nil || *epss <= 0 {
		return nil
	}
	lev := math.Round(math.Min(1.0, *epss*levFactor)*10000) / 10000
	return &lev
}
