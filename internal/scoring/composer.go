// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

// KEVBonus is added on top of the weighted composite for catalog members.
const KEVBonus = 20.0

// Composer computes universal scores. The zero value uses
// DefaultFrameworkCeiling.
type Composer struct {
	// FrameworkCeiling is the reported-framework count at which
	// completeness confidence saturates.
	FrameworkCeiling float64
}

// Compose scores raw with the default Composer.
func Compose(raw types.FrameworkScoreSet, w weights.Configuration) types.UniversalScoreResult {
	return Composer{}.Compose(raw, w)
}

// Compose fuses raw into a universal score under w. Weights are applied as
// given, even when they do not validate, so an in-progress edit can be
// previewed. Missing frameworks contribute zero.
//
// The LEV weight is intentionally not part of the composite.
func (c Composer) Compose(raw types.FrameworkScoreSet, w weights.Configuration) types.UniversalScoreResult {
	set := raw.Clamped()

	cvssN := Normalize(set.CVSS(), CVSSRange, PercentRange)
	epssN := set.EPSS() * 100
	ssvcN := float64(SSVCPoints(set.SSVCDecision))
	var kevBonus float64
	if set.IsKEV {
		kevBonus = KEVBonus
	}

	// Non-finite weights count as zero so the result stays in [0,100].
	cvssPts := cvssN * finite(w.Get(types.FrameworkCVSS))
	epssPts := epssN * finite(w.Get(types.FrameworkEPSS))
	ssvcPts := ssvcN * finite(w.Get(types.FrameworkSSVC))
	final := clamp(cvssPts+epssPts+ssvcPts+kevBonus, 0, 100)

	agreement := Agreement([]float64{cvssN, epssN})
	confidence := Confidence(set.Reported(), agreement, c.FrameworkCeiling)

	return types.UniversalScoreResult{
		UniversalRiskScore: round2(final),
		Breakdown: types.Breakdown{
			CVSSPoints: round2(cvssPts),
			EPSSPoints: round2(epssPts),
			SSVCPoints: round2(ssvcPts),
			KEVBonus:   kevBonus,
		},
		FrameworkAgreement: round2(agreement),
		ScoringConfidence:  round2(confidence),
		ConflictFlags:      DetectConflicts(set),
	}
}
