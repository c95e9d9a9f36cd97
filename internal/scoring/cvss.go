// SPDX-FileCopyrightText: 2025 Anchore, Inc.
// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Severity mapping based on Grype (https://github.com/anchore/grype),
// licensed under Apache-2.0.

package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// BaseScoreFromVector computes the base score of a CVSS v2, v3.0, v3.1 or
// v4.0 vector string.
func BaseScoreFromVector(vector string) (float64, error) {
	vector = strings.TrimSpace(vector)
	switch {
	case strings.HasPrefix(vector, "CVSS:4.0/"):
		v, err := gocvss40.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS v4.0 vector: %w", err)
		}
		return v.Score(), nil
	case strings.HasPrefix(vector, "CVSS:3.1/"):
		v, err := gocvss31.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS v3.1 vector: %w", err)
		}
		return v.BaseScore(), nil
	case strings.HasPrefix(vector, "CVSS:3.0/"):
		v, err := gocvss30.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS v3.0 vector: %w", err)
		}
		return v.BaseScore(), nil
	case vector == "":
		return 0, fmt.Errorf("empty CVSS vector")
	default:
		v, err := gocvss20.ParseVector(strings.Trim(vector, "()"))
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS v2 vector: %w", err)
		}
		return v.BaseScore(), nil
	}
}

// cvssEntry is one vendor entry of Trivy's CVSS map, e.g.
// {"nvd": {"V3Score": 9.8, "V3Vector": "CVSS:3.1/..."}}.
type cvssEntry struct {
	V2Score   *float64 `json:"V2Score"`
	V2Vector  string   `json:"V2Vector"`
	V3Score   *float64 `json:"V3Score"`
	V3Vector  string   `json:"V3Vector"`
	V40Score  *float64 `json:"V40Score"`
	V40Vector string   `json:"V40Vector"`
}

// best returns the highest-version score available for the entry, falling
// back to computing it from the vector when only the vector was published.
func (e cvssEntry) best() (float64, bool) {
	candidates := []struct {
		score  *float64
		vector string
	}{
		{e.V40Score, e.V40Vector},
		{e.V3Score, e.V3Vector},
		{e.V2Score, e.V2Vector},
	}
	for _, c := range candidates {
		if c.score != nil {
			return *c.score, true
		}
		if c.vector == "" {
			continue
		}
		if score, err := BaseScoreFromVector(c.vector); err == nil {
			return score, true
		}
	}
	return 0, false
}

// AverageCVSSBaseScore averages the per-vendor base scores found in Trivy's
// CVSS JSON. It returns false when no vendor supplied a usable score.
func AverageCVSSBaseScore(cvssRaw json.RawMessage) (float64, bool) {
	if len(cvssRaw) == 0 {
		return 0, false
	}
	var vendors map[string]cvssEntry
	if err := json.Unmarshal(cvssRaw, &vendors); err != nil {
		return 0, false
	}
	var sum float64
	var count int
	for _, entry := range vendors {
		if score, ok := entry.best(); ok {
			sum += score
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// SeverityBaseScore maps a Trivy severity label onto a representative CVSS
// base score. It is only used when a finding carries no CVSS data at all and
// severity fallback is enabled. Unknown labels report false.
func SeverityBaseScore(severity string) (float64, bool) {
	switch strings.ToLower(severity) {
	case "negligible":
		return 0.5, true
	case "low":
		return 3.0, true
	case "medium":
		return 5.0, true
	case "high":
		return 7.5, true
	case "critical":
		return 9.0, true
	default:
		return 0, false
	}
}
