// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"math"
	"regexp"
)

// Framework names used as weight configuration keys.
const (
	FrameworkCVSS = "cvss"
	FrameworkEPSS = "epss"
	FrameworkKEV  = "kev"
	FrameworkSSVC = "ssvc"
	FrameworkLEV  = "lev"
)

// SSVCDecision is a Stakeholder-Specific Vulnerability Categorization outcome.
type SSVCDecision string

const (
	SSVCTrack     SSVCDecision = "Track"
	SSVCTrackStar SSVCDecision = "Track*"
	SSVCAttend    SSVCDecision = "Attend"
	SSVCAct       SSVCDecision = "Act"
)

var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// ValidCVEID reports whether id looks like CVE-YYYY-NNNN with four or more
// sequence digits.
func ValidCVEID(id string) bool {
	return cveIDPattern.MatchString(id)
}

// FrameworkScoreSet is the per-CVE bundle of raw framework scores. Nil
// pointers mean the framework did not report.
type FrameworkScoreSet struct {
	CVEID        string             `json:"cve_id"`
	CVSSScore    *float64           `json:"cvss_score,omitempty"`
	EPSSScore    *float64           `json:"epss_score,omitempty"`
	IsKEV        bool               `json:"is_kev"`
	SSVCDecision SSVCDecision       `json:"ssvc_decision,omitempty"`
	LEVScore     *float64           `json:"lev_score,omitempty"`
	VendorScores map[string]float64 `json:"vendor_scores,omitempty"`
}

// Clamped returns a copy with every present numeric field forced into its
// documented bound. Upstream feeds are not trusted to stay in range.
func (s FrameworkScoreSet) Clamped() FrameworkScoreSet {
	out := s
	out.CVSSScore = clampPtr(s.CVSSScore, 0, 10)
	out.EPSSScore = clampPtr(s.EPSSScore, 0, 1)
	out.LEVScore = clampPtr(s.LEVScore, 0, 1)
	if s.VendorScores != nil {
		out.VendorScores = make(map[string]float64, len(s.VendorScores))
		for k, v := range s.VendorScores {
			out.VendorScores[k] = v
		}
	}
	return out
}

// Reported counts the frameworks that supplied a value. KEV membership is
// always known, so it always counts.
func (s FrameworkScoreSet) Reported() int {
	n := 1
	if s.CVSSScore != nil {
		n++
	}
	if s.EPSSScore != nil {
		n++
	}
	if s.SSVCDecision != "" {
		n++
	}
	if s.LEVScore != nil {
		n++
	}
	return n + len(s.VendorScores)
}

// CVSS returns the CVSS score or 0 when absent.
func (s FrameworkScoreSet) CVSS() float64 { return valueOr(s.CVSSScore) }

// EPSS returns the EPSS probability or 0 when absent.
func (s FrameworkScoreSet) EPSS() float64 { return valueOr(s.EPSSScore) }

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clampPtr(p *float64, lo, hi float64) *float64 {
	if p == nil {
		return nil
	}
	v := math.Max(lo, math.Min(hi, *p))
	if math.IsNaN(*p) {
		v = lo
	}
	return &v
}

// Breakdown holds the weighted contribution of each framework.
type Breakdown struct {
	CVSSPoints float64 `json:"cvss_points"`
	EPSSPoints float64 `json:"epss_points"`
	SSVCPoints float64 `json:"ssvc_points"`
	KEVBonus   float64 `json:"kev_bonus"`
}

// UniversalScoreResult is the fused output for one score set.
type UniversalScoreResult struct {
	UniversalRiskScore float64   `json:"universal_risk_score"`
	Breakdown          Breakdown `json:"breakdown"`
	FrameworkAgreement float64   `json:"framework_agreement"`
	ScoringConfidence  float64   `json:"scoring_confidence"`
	ConflictFlags      []string  `json:"conflict_flags"`
}

// ScoredCVE pairs a score set with its fused result.
type ScoredCVE struct {
	Input  FrameworkScoreSet    `json:"input"`
	Result UniversalScoreResult `json:"result"`
}
