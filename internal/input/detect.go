// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package input detects and decodes the documents accepted on stdin.
package input

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// Format identifies the kind of input document.
type Format int

const (
	// FormatTrivy is a Trivy JSON report.
	FormatTrivy Format = iota
	// FormatScoreSets is a list of framework score sets.
	FormatScoreSets
	// FormatSARIF is a SARIF 2.1.0 log, as written by trivy -f sarif.
	FormatSARIF
)

func (f Format) String() string {
	switch f {
	case FormatTrivy:
		return "trivy"
	case FormatScoreSets:
		return "score-sets"
	case FormatSARIF:
		return "sarif"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ErrUnrecognized is returned for valid JSON in none of the formats.
var ErrUnrecognized = errors.New("unrecognized input format: not Trivy JSON, SARIF or score sets")

// ParseResult carries the decoded document; exactly one payload is set.
type ParseResult struct {
	Format      Format
	TrivyReport *types.Report
	SARIFReport *types.SARIFReport
	ScoreSets   []types.FrameworkScoreSet
}

// Parse detects the input format and decodes it. Score sets may be given as
// {"scores": [...]} or as a bare array; every set needs a well-formed CVE ID.
func Parse(data []byte) (*ParseResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var sets []types.FrameworkScoreSet
		if err := json.Unmarshal(trimmed, &sets); err != nil {
			return nil, fmt.Errorf("parsing score sets: %w", err)
		}
		return scoreSets(sets)
	}

	// Decode only the keys that tell the formats apart.
	var head struct {
		Schema        string                    `json:"$schema"`
		Version       string                    `json:"version"`
		Runs          json.RawMessage           `json:"runs"`
		SchemaVersion *int                      `json:"SchemaVersion"`
		Scores        []types.FrameworkScoreSet `json:"scores"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}

	// SARIF: runs plus a 2.1.0 version or a sarif schema URI
	if head.Runs != nil && (head.Version == "2.1.0" || strings.Contains(strings.ToLower(head.Schema), "sarif")) {
		var report types.SARIFReport
		if err := json.Unmarshal(trimmed, &report); err != nil {
			return nil, fmt.Errorf("parsing SARIF: %w", err)
		}
		return &ParseResult{Format: FormatSARIF, SARIFReport: &report}, nil
	}

	// Trivy JSON: has SchemaVersion
	if head.SchemaVersion != nil {
		var report types.Report
		if err := json.Unmarshal(trimmed, &report); err != nil {
			return nil, fmt.Errorf("parsing Trivy JSON: %w", err)
		}
		return &ParseResult{Format: FormatTrivy, TrivyReport: &report}, nil
	}

	if head.Scores != nil {
		return scoreSets(head.Scores)
	}

	return nil, ErrUnrecognized
}

func scoreSets(sets []types.FrameworkScoreSet) (*ParseResult, error) {
	for i, s := range sets {
		if !types.ValidCVEID(s.CVEID) {
			return nil, fmt.Errorf("score set %d: invalid CVE ID %q", i, s.CVEID)
		}
	}
	if sets == nil {
		sets = []types.FrameworkScoreSet{}
	}
	return &ParseResult{Format: FormatScoreSets, ScoreSets: sets}, nil
}
