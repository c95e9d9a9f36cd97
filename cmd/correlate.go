// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/vuln-fusion/internal/correlation"
	"github.com/bonial-oss/vuln-fusion/internal/output"
	"github.com/bonial-oss/vuln-fusion/internal/store"
	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// CorrelateOptions holds the correlate command flag values.
type CorrelateOptions struct {
	CVEID       string
	Product     string
	StaticScore float64
	Evidence    []string
	Format      string
	Output      string
	Persist     bool
}

func newCorrelateCommand(g *globals) *cobra.Command {
	opts := &CorrelateOptions{}

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Adjust a static score with runtime evidence from SIEM and RMM exports",
		Long: `correlate looks for running processes and installed components of a product
in one or more evidence exports (YAML or JSON), checks for a confirmed exploit
proof, and multiplies the static universal score into the true risk score with
a containment priority.

When --static-score is omitted, the score stored by "score --persist" for the
CVE and organization is used.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runCorrelate(c, g, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.CVEID, "cve", "", "CVE identifier")
	flags.StringVar(&opts.Product, "product", "", "Affected product name as it appears in process and inventory data")
	flags.Float64Var(&opts.StaticScore, "static-score", 0, "Static universal risk score (default: read from the database)")
	flags.StringSliceVar(&opts.Evidence, "evidence", nil, "Evidence export file (repeatable)")
	flags.StringVar(&opts.Format, "format", "table", "Output format: json, table")
	flags.StringVarP(&opts.Output, "output", "o", "", "Write to file instead of stdout")
	flags.BoolVar(&opts.Persist, "persist", false, "Store the assessment in the configured database")
	_ = cmd.MarkFlagRequired("cve")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("evidence")

	return cmd
}

func runCorrelate(c *cobra.Command, g *globals, opts *CorrelateOptions) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := g.cfg

	if !types.ValidCVEID(opts.CVEID) {
		return usageError("invalid CVE ID %q", opts.CVEID)
	}
	if strings.TrimSpace(opts.Product) == "" {
		return usageError("product must not be empty")
	}
	if math.IsNaN(opts.StaticScore) || math.IsInf(opts.StaticScore, 0) {
		return usageError("static score must be a finite number")
	}
	if opts.Format != "json" && opts.Format != "table" {
		return usageError("unsupported output format: %s", opts.Format)
	}

	var sources []correlation.EvidenceSource
	var proofs correlation.ProofStores
	for _, path := range opts.Evidence {
		src, err := correlation.LoadFile(path)
		if err != nil {
			return usageError("%v", err)
		}
		sources = append(sources, src)
		proofs = append(proofs, src)
	}

	var db store.Store
	if opts.Persist || !c.Flags().Changed("static-score") {
		s, err := openStore(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer s.Close()
		db = s
	}

	static := opts.StaticScore
	if !c.Flags().Changed("static-score") {
		rec, err := db.GetScore(ctx, cfg.OrganizationID, opts.CVEID)
		if errors.Is(err, store.ErrNotFound) {
			return usageError("no stored score for %s in organization %q; run score --persist or pass --static-score",
				opts.CVEID, cfg.OrganizationID)
		}
		if err != nil {
			return err
		}
		static = rec.Result.UniversalRiskScore
		slog.Debug("using stored static score", "score", static, "weights_hash", rec.WeightsHash)
	}

	correlator := &correlation.Correlator{Sources: sources, Proofs: proofs, Logger: slog.Default()}
	report, err := correlator.Correlate(ctx, correlation.Finding{
		CVEID:       opts.CVEID,
		Product:     opts.Product,
		StaticScore: static,
	})
	if err != nil {
		return fmt.Errorf("correlating runtime evidence: %w", err)
	}

	if opts.Persist {
		if err := db.UpsertRuntime(ctx, cfg.OrganizationID, report); err != nil {
			return err
		}
	}

	w, closeOutput, err := openOutput(c, opts.Output)
	if err != nil {
		return err
	}
	defer closeOutput()

	if opts.Format == "json" {
		return output.WriteJSON(w, report)
	}
	return output.WriteCorrelation(w, report, output.IsOutputToTerminal(w))
}
