// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package enricher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/vuln-fusion/internal/cache"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/epss"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/kev"
	"github.com/bonial-oss/vuln-fusion/internal/scoring"
	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

// DefaultWorkers is the scoring concurrency used when Config.Workers is unset.
const DefaultWorkers = 4

// Enricher attaches universal risk scores to Trivy findings and score sets.
type Enricher struct {
	epss    *epss.Source
	kev     *kev.Source
	results *cache.Results
	logger  *slog.Logger
}

// Config holds scoring, filtering and policy options for enrichment.
type Config struct {
	Weights          weights.Configuration
	OrganizationID   string
	FrameworkCeiling float64
	Workers          int

	// SSVC, when set, supplies the technical impact, automatable and
	// mission impact answers used to decide SSVC for every finding.
	// Exploitation is derived per finding: active when KEV-listed,
	// otherwise SSVC.Exploitation (default "none").
	SSVC *scoring.SSVCInputs

	// SeverityFallback uses the Trivy severity label as a CVSS stand-in
	// when a finding carries no CVSS data.
	SeverityFallback bool

	MinScore      float64
	KEVOnly       bool
	ConflictsOnly bool
	FailOnKEV     bool
	FailOnScore   float64
}

// Result holds the enriched report and policy violation status.
type Result struct {
	Report          *types.Report
	PolicyViolation bool
}

// SetResult holds scored score sets and policy violation status.
type SetResult struct {
	Scores          []types.ScoredCVE
	PolicyViolation bool
}

// New creates a new Enricher with the given data sources.
// Either source may be nil if disabled; results may be nil to disable
// memoization.
func New(epssSource *epss.Source, kevSource *kev.Source, results *cache.Results) *Enricher {
	return &Enricher{
		epss:    epssSource,
		kev:     kevSource,
		results: results,
		logger:  slog.Default(),
	}
}

// WithLogger returns e with a different logger.
func (e *Enricher) WithLogger(l *slog.Logger) *Enricher {
	e.logger = l
	return e
}

// Enrich scores every vulnerability of a Trivy report, including suppressed
// findings, applies filters, and checks policy violations. Suppressed
// findings are never filtered and never trigger policy.
func (e *Enricher) Enrich(ctx context.Context, report *types.Report, cfg Config) (*Result, error) {
	cfg = e.snapshot(cfg)

	// Step 1: collect every finding to score.
	var targets []*types.Vulnerability
	for i := range report.Results {
		res := &report.Results[i]
		for j := range res.Vulnerabilities {
			targets = append(targets, &res.Vulnerabilities[j])
		}
		for j := range res.ExperimentalModifiedFindings {
			if res.ExperimentalModifiedFindings[j].IsVulnerability() {
				targets = append(targets, &res.ExperimentalModifiedFindings[j].Finding)
			}
		}
	}

	// Step 2: score concurrently; each worker only touches its own finding.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, vuln := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vuln.Fusion = e.fuseVulnerability(vuln, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 3: apply filters.
	for i := range report.Results {
		res := &report.Results[i]
		if !cfg.filtering() {
			continue
		}
		filtered := make([]types.Vulnerability, 0, len(res.Vulnerabilities))
		for _, vuln := range res.Vulnerabilities {
			if cfg.keep(vuln.Fusion) {
				filtered = append(filtered, vuln)
			}
		}
		res.Vulnerabilities = filtered
	}

	// Step 4: check policy violations (don't remove, just flag).
	policyViolation := false
	for _, res := range report.Results {
		for _, vuln := range res.Vulnerabilities {
			if cfg.violates(vuln.Fusion) {
				policyViolation = true
			}
		}
	}

	e.logger.Debug("report enriched", "findings", len(targets), "policy_violation", policyViolation)
	return &Result{Report: report, PolicyViolation: policyViolation}, nil
}

// ScoreSets fuses caller-supplied score sets. Missing EPSS scores and KEV
// membership are filled in from the loaded feeds; LEV is derived from EPSS
// when absent. Filters and policy apply as in Enrich.
func (e *Enricher) ScoreSets(ctx context.Context, sets []types.FrameworkScoreSet, cfg Config) (*SetResult, error) {
	cfg = e.snapshot(cfg)

	scored := make([]types.ScoredCVE, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range sets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set := e.complete(sets[i])
			scored[i] = types.ScoredCVE{Input: set, Result: e.score(set, cfg)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &SetResult{Scores: make([]types.ScoredCVE, 0, len(scored))}
	for _, s := range scored {
		f := &types.Fusion{Inputs: s.Input, Result: s.Result}
		if !cfg.keep(f) {
			continue
		}
		out.Scores = append(out.Scores, s)
		if cfg.violates(f) {
			out.PolicyViolation = true
		}
	}
	return out, nil
}

// snapshot freezes the weights for the batch and fills defaults.
func (e *Enricher) snapshot(cfg Config) Config {
	if cfg.Weights == nil {
		cfg.Weights = weights.Default()
	} else {
		cfg.Weights = cfg.Weights.Clone()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if err := cfg.Weights.Validate(); err != nil {
		e.logger.Warn("scoring with an invalid weight configuration", "error", err)
	}
	return cfg
}

// fuseVulnerability assembles the score set for a Trivy finding from the
// feeds and its CVSS data, then scores it.
func (e *Enricher) fuseVulnerability(vuln *types.Vulnerability, cfg Config) *types.Fusion {
	var cvss *float64
	if score, ok := scoring.AverageCVSSBaseScore(vuln.CVSS); ok {
		cvss = &score
	} else if cfg.SeverityFallback {
		if score, ok := scoring.SeverityBaseScore(vuln.Severity); ok {
			cvss = &score
		}
	}
	return e.fuse(vuln.VulnerabilityID, cvss, cfg)
}

// fuse fills the feed data for cveID around an optional CVSS base score and
// scores the resulting set.
func (e *Enricher) fuse(cveID string, cvss *float64, cfg Config) *types.Fusion {
	set := types.FrameworkScoreSet{CVEID: cveID, CVSSScore: cvss}
	fusion := &types.Fusion{}

	if e.epss != nil {
		fusion.EPSS = &types.EPSSData{
			ModelVersion: e.epss.ModelVersion(),
			ScoreDate:    e.epss.ScoreDate(),
		}
		if entry := e.epss.Lookup(cveID); entry != nil {
			score, percentile := entry.Score, entry.Percentile
			fusion.EPSS.Score = &score
			fusion.EPSS.Percentile = &percentile
			set.EPSSScore = &score
		}
	}

	if e.kev != nil {
		fusion.KEV = &types.KEVData{}
		if entry := e.kev.Lookup(cveID); entry != nil {
			fusion.KEV = kevData(entry)
			set.IsKEV = true
		}
	}

	set.LEVScore = scoring.DeriveLEV(set.EPSSScore)

	if cfg.SSVC != nil {
		outcome := scoring.DecideSSVC(ssvcInputs(*cfg.SSVC, set.IsKEV))
		set.SSVCDecision = outcome.Decision
		fusion.Rationale = outcome.Rationale
	}

	fusion.Inputs = set
	fusion.Result = e.score(set, cfg)
	return fusion
}

// complete fills gaps in a caller-supplied score set from the feeds.
func (e *Enricher) complete(set types.FrameworkScoreSet) types.FrameworkScoreSet {
	if set.EPSSScore == nil && e.epss != nil {
		if entry := e.epss.Lookup(set.CVEID); entry != nil {
			score := entry.Score
			set.EPSSScore = &score
		}
	}
	if !set.IsKEV && e.kev != nil && e.kev.Lookup(set.CVEID) != nil {
		set.IsKEV = true
	}
	if set.LEVScore == nil {
		set.LEVScore = scoring.DeriveLEV(set.EPSSScore)
	}
	return set
}

// score runs the composer, consulting the result cache first.
func (e *Enricher) score(set types.FrameworkScoreSet, cfg Config) types.UniversalScoreResult {
	key := cache.Fingerprint(set, cfg.OrganizationID, cfg.Weights.Hash())
	if res, ok := e.results.Get(key); ok {
		return res
	}
	res := scoring.Composer{FrameworkCeiling: cfg.FrameworkCeiling}.Compose(set, cfg.Weights)
	e.results.Add(key, res)
	return res
}

func ssvcInputs(defaults scoring.SSVCInputs, listed bool) scoring.SSVCInputs {
	in := defaults
	switch {
	case listed:
		in.Exploitation = "active"
	case in.Exploitation == "":
		in.Exploitation = "none"
	}
	return in
}

func kevData(entry *types.KEVEntry) *types.KEVData {
	return &types.KEVData{
		Listed:                     true,
		DateAdded:                  entry.DateAdded,
		DueDate:                    entry.DueDate,
		RequiredAction:             entry.RequiredAction,
		KnownRansomwareCampaignUse: entry.KnownRansomwareCampaignUse,
		VendorProject:              entry.VendorProject,
		Product:                    entry.Product,
	}
}

func (cfg Config) filtering() bool {
	return cfg.MinScore > 0 || cfg.KEVOnly || cfg.ConflictsOnly
}

// keep reports whether a scored finding survives the filters.
func (cfg Config) keep(f *types.Fusion) bool {
	if f == nil {
		return !cfg.filtering()
	}
	if cfg.MinScore > 0 && f.Result.UniversalRiskScore < cfg.MinScore {
		return false
	}
	if cfg.KEVOnly && !f.Inputs.IsKEV {
		return false
	}
	if cfg.ConflictsOnly && len(f.Result.ConflictFlags) == 0 {
		return false
	}
	return true
}

// violates reports whether a scored finding breaks the configured policy.
func (cfg Config) violates(f *types.Fusion) bool {
	if f == nil {
		return false
	}
	if cfg.FailOnKEV && f.Inputs.IsKEV {
		return true
	}
	return cfg.FailOnScore > 0 && f.Result.UniversalRiskScore >= cfg.FailOnScore
}
