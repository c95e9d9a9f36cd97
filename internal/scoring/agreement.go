// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package scoring

// agreementNormalizer is the population variance of two 0-100 scores that
// sit at opposite ends of the scale. Stored scores depend on this value.
const agreementNormalizer = 2500.0

// DefaultFrameworkCeiling is the framework count at which completeness
// confidence reaches its maximum.
const DefaultFrameworkCeiling = 11.0

// Agreement estimates how well independent 0-100 scores agree, as
// 1 - variance/2500 clamped to [0,1]. Fewer than two scores agree
// trivially.
func Agreement(scores []float64) float64 {
	if len(scores) < 2 {
		return 1.0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var sq float64
	for _, s := range scores {
		sq += (s - mean) * (s - mean)
	}
	variance := sq / float64(len(scores))

	return clamp(1-variance/agreementNormalizer, 0, 1)
}

// Confidence combines data completeness with framework agreement. reported
// is the number of frameworks that supplied a value; ceiling is the count at
// which completeness saturates (DefaultFrameworkCeiling when <= 1).
func Confidence(reported int, agreement, ceiling float64) float64 {
	if ceiling <= 1 {
		ceiling = DefaultFrameworkCeiling
	}
	base := Normalize(float64(reported), Range{1, ceiling}, Range{0.5, 1.0})
	return min(1.0, base*(0.8+agreement*0.2))
}
