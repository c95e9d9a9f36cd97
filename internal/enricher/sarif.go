// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/vuln-fusion/internal/scoring"
	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// SARIFProperty is the result property that carries the fusion block.
const SARIFProperty = "vulnFusion"

// SARIFResult holds the enriched SARIF log, the scores attached to it and
// policy violation status.
type SARIFResult struct {
	Report          *types.SARIFReport
	Scores          []types.ScoredCVE
	PolicyViolation bool
}

// sarifRule is what scoring needs from a reporting descriptor.
type sarifRule struct {
	Severity string
	CVSS     *float64
}

// sarifTarget is one CVE result awaiting its score.
type sarifTarget struct {
	run, result int
	cveID       string
	cvss        *float64
}

// EnrichSARIF scores every result whose ruleId is a CVE ID. The CVSS base
// score comes from the rule properties; EPSS and KEV come from the feeds.
// The fusion block is stored under result.properties.vulnFusion. Results
// for other rules, such as misconfigurations, pass through unscored.
func (e *Enricher) EnrichSARIF(ctx context.Context, report *types.SARIFReport, cfg Config) (*SARIFResult, error) {
	cfg = e.snapshot(cfg)

	var targets []sarifTarget
	fusions := make([][]*types.Fusion, len(report.Runs))
	for i := range report.Runs {
		run := &report.Runs[i]
		fusions[i] = make([]*types.Fusion, len(run.Results))
		index := e.ruleIndex(run)
		for j, res := range run.Results {
			if !types.ValidCVEID(res.RuleID) {
				continue
			}
			targets = append(targets, sarifTarget{
				run:    i,
				result: j,
				cveID:  res.RuleID,
				cvss:   ruleCVSS(index, res, cfg.SeverityFallback),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, tgt := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fusion := e.fuse(tgt.cveID, tgt.cvss, cfg)
			raw, err := json.Marshal(fusion)
			if err != nil {
				return fmt.Errorf("marshaling fusion for %s: %w", tgt.cveID, err)
			}
			res := &report.Runs[tgt.run].Results[tgt.result]
			if res.Properties == nil {
				res.Properties = make(map[string]json.RawMessage)
			}
			res.Properties[SARIFProperty] = raw
			fusions[tgt.run][tgt.result] = fusion
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &SARIFResult{Report: report}
	for i := range report.Runs {
		run := &report.Runs[i]
		kept := run.Results[:0]
		for j, res := range run.Results {
			f := fusions[i][j]
			if !cfg.keep(f) {
				continue
			}
			kept = append(kept, res)
			if f != nil {
				out.Scores = append(out.Scores, types.ScoredCVE{Input: f.Inputs, Result: f.Result})
			}
			if cfg.violates(f) {
				out.PolicyViolation = true
			}
		}
		run.Results = kept
	}

	e.logger.Debug("SARIF log enriched", "findings", len(targets), "policy_violation", out.PolicyViolation)
	return out, nil
}

// ruleIndex maps rule IDs of a run to their severity and CVSS data. A run
// whose tool object cannot be decoded is scored from result levels alone.
func (e *Enricher) ruleIndex(run *types.SARIFRun) map[string]sarifRule {
	rules, err := run.Rules()
	if err != nil {
		e.logger.Warn("ignoring unreadable SARIF rules", "error", err)
		return nil
	}
	index := make(map[string]sarifRule, len(rules))
	for _, r := range rules {
		index[r.ID] = sarifRule{
			Severity: severityFromTags(r.Properties),
			CVSS:     cvssFromRuleProperties(r.Properties),
		}
	}
	return index
}

// ruleCVSS resolves the CVSS base score for a result. With fallback set, a
// result without CVSS data uses its rule severity, or its level when the
// rule carries no severity tag.
func ruleCVSS(index map[string]sarifRule, res types.SARIFResult, fallback bool) *float64 {
	rule, ok := index[res.RuleID]
	if ok && rule.CVSS != nil {
		score := *rule.CVSS
		return &score
	}
	if !fallback {
		return nil
	}
	severity := rule.Severity
	if severity == "" {
		severity = levelSeverity(res.Level)
	}
	if score, ok := scoring.SeverityBaseScore(severity); ok {
		return &score
	}
	return nil
}

var severityTags = map[string]bool{
	"CRITICAL":   true,
	"HIGH":       true,
	"MEDIUM":     true,
	"LOW":        true,
	"NEGLIGIBLE": true,
}

// severityFromTags returns the first Trivy severity found in the rule tags.
func severityFromTags(props map[string]json.RawMessage) string {
	var tags []string
	if err := json.Unmarshal(props["tags"], &tags); err != nil {
		return ""
	}
	for _, tag := range tags {
		if upper := strings.ToUpper(tag); severityTags[upper] {
			return upper
		}
	}
	return ""
}

// cvssFromRuleProperties averages the positive cvssv3_baseScore and
// cvssv40_baseScore values. Without either it reads the code scanning
// security-severity string.
func cvssFromRuleProperties(props map[string]json.RawMessage) *float64 {
	var sum float64
	var count int
	for _, key := range []string{"cvssv3_baseScore", "cvssv40_baseScore"} {
		var score float64
		if err := json.Unmarshal(props[key], &score); err != nil || score <= 0 {
			continue
		}
		sum += score
		count++
	}
	if count > 0 {
		avg := sum / float64(count)
		return &avg
	}

	var text string
	if err := json.Unmarshal(props["security-severity"], &text); err != nil {
		return nil
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || !(score > 0 && score <= 10) {
		return nil
	}
	return &score
}

// levelSeverity maps a SARIF level onto a Trivy severity.
func levelSeverity(level string) string {
	switch strings.ToLower(level) {
	case "error":
		return "HIGH"
	case "note":
		return "LOW"
	default:
		return "MEDIUM"
	}
}
