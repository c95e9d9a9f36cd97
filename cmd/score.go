// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/vuln-fusion/internal/cache"
	"github.com/bonial-oss/vuln-fusion/internal/config"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/epss"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/kev"
	"github.com/bonial-oss/vuln-fusion/internal/enricher"
	"github.com/bonial-oss/vuln-fusion/internal/input"
	"github.com/bonial-oss/vuln-fusion/internal/output"
	"github.com/bonial-oss/vuln-fusion/internal/store"
	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

// ScoreOptions holds the score command flag values.
type ScoreOptions struct {
	NoEPSS           bool
	NoKEV            bool
	Format           string
	Output           string
	MinScore         float64
	KEVOnly          bool
	ConflictsOnly    bool
	FailOnKEV        bool
	FailOnScore      float64
	SortBy           string
	SkipDBUpdate     bool
	CacheDir         string
	Persist          bool
	SeverityFallback bool
	HideSuppressed   bool
	Workers          int

	// Weights are "framework=value" overrides applied to the configured
	// weights for this run only.
	Weights []string
}

func newScoreCommand(g *globals) *cobra.Command {
	opts := &ScoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a Trivy JSON or SARIF report, or a list of framework score sets, read from stdin",
		Long: `score reads a Trivy JSON report, a SARIF log or framework score sets
from stdin, fills in EPSS probabilities and CISA KEV membership from the
cached feeds, and attaches a universal risk score to every finding.

SARIF results whose ruleId is a CVE ID get the score under
properties.vulnFusion; the CVSS base score is read from the rule
properties (cvssv3_baseScore, cvssv40_baseScore).

Score sets are accepted as {"scores": [...]} or as a bare JSON array:
  [{"cve_id": "CVE-2024-0001", "cvss_score": 9.8, "ssvc_decision": "Act"}]`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runScore(c, g, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.NoEPSS, "no-epss", false, "Disable EPSS enrichment")
	flags.BoolVar(&opts.NoKEV, "no-kev", false, "Disable KEV enrichment")
	flags.StringVar(&opts.Format, "format", "json", "Output format: json, table")
	flags.StringVarP(&opts.Output, "output", "o", "", "Write to file instead of stdout")
	flags.Float64Var(&opts.MinScore, "min-score", 0, "Only show findings with a universal score >= value")
	flags.BoolVar(&opts.KEVOnly, "kev-only", false, "Only show findings present in KEV")
	flags.BoolVar(&opts.ConflictsOnly, "conflicts-only", false, "Only show findings with framework conflicts")
	flags.BoolVar(&opts.FailOnKEV, "fail-on-kev", false, "Exit code 1 if any KEV finding remains")
	flags.Float64Var(&opts.FailOnScore, "fail-on-score", 0, "Exit code 1 if any finding scores >= value")
	flags.StringVar(&opts.SortBy, "sort-by", output.SortByScore, "Sort table by: score, epss, severity, cve, confidence")
	flags.BoolVar(&opts.SkipDBUpdate, "skip-db-update", false, "Use cached data without update check")
	flags.StringVar(&opts.CacheDir, "cache-dir", "", "Override cache directory")
	flags.BoolVar(&opts.Persist, "persist", false, "Store the scores in the configured database")
	flags.BoolVar(&opts.SeverityFallback, "severity-fallback", false, "Use the Trivy severity as CVSS when a finding has no CVSS data")
	flags.BoolVar(&opts.HideSuppressed, "hide-suppressed", false, "Omit the suppressed findings table")
	flags.IntVar(&opts.Workers, "workers", 0, "Concurrent scoring workers (default from config)")
	flags.StringSliceVar(&opts.Weights, "weight", nil, "Override a weight for this run, e.g. --weight epss=0.4")

	return cmd
}

// runScore orchestrates the full scoring pipeline.
func runScore(c *cobra.Command, g *globals, opts *ScoreOptions) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := g.cfg

	// Step 1: validate flags before touching stdin or the network.
	if opts.Format != "json" && opts.Format != "table" {
		return usageError("unsupported output format: %s", opts.Format)
	}
	if !output.ValidSortKey(opts.SortBy) {
		return usageError("unsupported sort key: %s", opts.SortBy)
	}
	weightCfg, err := weights.ParseAssignments(cfg.Weights, opts.Weights)
	if err != nil {
		return usageError("%v", err)
	}
	if err := weightCfg.Validate(); err != nil && opts.Persist {
		return &ExitError{Code: ExitInvalidWeights, Message: fmt.Sprintf("refusing to persist scores: %v", err)}
	}

	// Step 2: read and detect the input.
	data, err := io.ReadAll(c.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) == 0 {
		return usageError("no input provided on stdin")
	}
	parsed, err := input.Parse(data)
	if err != nil {
		return usageError("parsing input: %v", err)
	}

	// Step 3: load the feeds.
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	var epssSource *epss.Source
	var kevSource *kev.Source
	feeds := cfg.Feeds
	if !opts.NoEPSS {
		epssSource = epss.NewSource(cacheDir, epss.WithTTL(feeds.TTL), epss.WithBaseURL(feeds.EPSSURL))
		if err := epssSource.Load(ctx, opts.SkipDBUpdate); err != nil {
			return fmt.Errorf("loading EPSS data: %w", err)
		}
	}
	if !opts.NoKEV {
		kevSource = kev.NewSource(cacheDir, kev.WithTTL(feeds.TTL), kev.WithURLs(feeds.KEVURL, feeds.KEVFallbackURL))
		if err := kevSource.Load(ctx, opts.SkipDBUpdate); err != nil {
			return fmt.Errorf("loading KEV data: %w", err)
		}
	}

	// Step 4: score.
	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Workers
	}
	e := enricher.New(epssSource, kevSource, cache.NewResults(cfg.ResultCache.Size, cfg.ResultCache.TTL))
	ecfg := enricher.Config{
		Weights:          weightCfg,
		OrganizationID:   cfg.OrganizationID,
		FrameworkCeiling: cfg.FrameworkCeiling,
		Workers:          workers,
		SSVC:             cfg.SSVC.Inputs(),
		SeverityFallback: opts.SeverityFallback,
		MinScore:         opts.MinScore,
		KEVOnly:          opts.KEVOnly,
		ConflictsOnly:    opts.ConflictsOnly,
		FailOnKEV:        opts.FailOnKEV,
		FailOnScore:      opts.FailOnScore,
	}

	w, closeOutput, err := openOutput(c, opts.Output)
	if err != nil {
		return err
	}
	defer closeOutput()

	tableCfg := output.TableConfig{
		ShowEPSS:       !opts.NoEPSS,
		ShowKEV:        !opts.NoKEV,
		ShowSSVC:       ecfg.SSVC != nil,
		SortBy:         opts.SortBy,
		HideSuppressed: opts.HideSuppressed,
		IsTerminal:     output.IsOutputToTerminal(w),
	}

	var (
		policyViolation bool
		scored          []types.ScoredCVE
	)
	switch parsed.Format {
	case input.FormatTrivy:
		result, err := e.Enrich(ctx, parsed.TrivyReport, ecfg)
		if err != nil {
			return fmt.Errorf("enriching report: %w", err)
		}
		policyViolation = result.PolicyViolation
		scored = reportScores(result.Report)

		if opts.Format == "table" {
			err = output.WriteTable(w, result.Report, tableCfg)
		} else {
			err = output.WriteJSON(w, result.Report)
		}
		if err != nil {
			return err
		}

	case input.FormatSARIF:
		result, err := e.EnrichSARIF(ctx, parsed.SARIFReport, ecfg)
		if err != nil {
			return fmt.Errorf("enriching SARIF report: %w", err)
		}
		policyViolation = result.PolicyViolation
		scored = result.Scores

		if opts.Format == "table" {
			err = output.WriteScoreTable(w, result.Scores, tableCfg)
		} else {
			err = output.WriteJSON(w, result.Report)
		}
		if err != nil {
			return err
		}

	case input.FormatScoreSets:
		tableCfg.ShowSSVC = true
		result, err := e.ScoreSets(ctx, parsed.ScoreSets, ecfg)
		if err != nil {
			return fmt.Errorf("scoring score sets: %w", err)
		}
		policyViolation = result.PolicyViolation
		scored = result.Scores

		if opts.Format == "table" {
			err = output.WriteScoreTable(w, result.Scores, tableCfg)
		} else {
			err = output.WriteJSON(w, result.Scores)
		}
		if err != nil {
			return err
		}
	}

	// Step 5: persist.
	if opts.Persist {
		if err := persistScores(ctx, cfg.Database, cfg.OrganizationID, weightCfg.Hash(), scored); err != nil {
			return err
		}
	}

	// Step 6: check policy violation.
	if policyViolation {
		return &ExitError{Code: ExitPolicyViolation, Message: "policy violation detected"}
	}
	return nil
}

// reportScores collects the scored regular findings of a report.
func reportScores(report *types.Report) []types.ScoredCVE {
	var out []types.ScoredCVE
	for _, res := range report.Results {
		for _, v := range res.Vulnerabilities {
			if v.Fusion == nil || !types.ValidCVEID(v.VulnerabilityID) {
				continue
			}
			out = append(out, types.ScoredCVE{Input: v.Fusion.Inputs, Result: v.Fusion.Result})
		}
	}
	return out
}

func persistScores(ctx context.Context, db config.DatabaseConfig, organizationID, weightsHash string, scores []types.ScoredCVE) (err error) {
	s, err := openStore(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()

	for _, sc := range scores {
		if err := s.UpsertScore(ctx, organizationID, weightsHash, sc); err != nil {
			return err
		}
	}
	slog.Info("scores persisted", "count", len(scores), "organization", organizationID)
	return nil
}

func openStore(ctx context.Context, db config.DatabaseConfig) (store.Store, error) {
	s, err := store.Open(ctx, store.Config{Driver: db.Driver, Path: db.Path, DSN: db.DSN})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}
