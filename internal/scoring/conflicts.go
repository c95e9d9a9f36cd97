// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package scoring

import "github.com/bonial-oss/vuln-fusion/internal/types"

// Conflict labels.
const (
	ConflictHighCVSSLowEPSS = "High CVSS, Low EPSS"
	ConflictLowCVSSHighEPSS = "Low CVSS, High EPSS"
	ConflictKEVNonHighCVSS  = "KEV with non-High CVSS"
)

// DetectConflicts flags framework pairs that disagree in a way worth a
// human look. Missing CVSS or EPSS values read as zero. The result is never
// nil.
func DetectConflicts(set types.FrameworkScoreSet) []string {
	cvss := set.CVSS()
	epss := set.EPSS()

	conflicts := []string{}
	if cvss >= 7.0 && epss < 0.02 {
		conflicts = append(conflicts, ConflictHighCVSSLowEPSS)
	}
	if cvss < 5.0 && epss > 0.5 {
		conflicts = append(conflicts, ConflictLowCVSSHighEPSS)
	}
	if set.IsKEV && cvss < 7.0 {
		conflicts = append(conflicts, ConflictKEVNonHighCVSS)
	}
	return conflicts
}
