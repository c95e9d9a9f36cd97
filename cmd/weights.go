// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/vuln-fusion/internal/config"
	"github.com/bonial-oss/vuln-fusion/internal/output"
	"github.com/bonial-oss/vuln-fusion/internal/scoring"
	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

func newWeightsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Inspect, preview and persist the framework weight configuration",
	}
	cmd.AddCommand(
		newWeightsShowCommand(g),
		newWeightsValidateCommand(g),
		newWeightsPreviewCommand(g),
		newWeightsSetCommand(g),
		newWeightsResetCommand(g),
	)
	return cmd
}

func newWeightsShowCommand(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configured weights",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return writeWeights(c, format, g.cfg.Weights)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: json, table")
	return cmd
}

func newWeightsValidateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [framework=value...]",
		Short: "Check the configured weights, optionally with overrides applied",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := weights.ParseAssignments(g.cfg.Weights, args)
			if err != nil {
				return usageError("%v", err)
			}
			if err := cfg.Validate(); err != nil {
				return invalidWeights(err)
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "weights are valid (total %.2f)\n", cfg.Total())
			return err
		},
	}
}

func newWeightsPreviewCommand(g *globals) *cobra.Command {
	var (
		cvss, epss float64
		kev        bool
		ssvc       string
	)
	cmd := &cobra.Command{
		Use:   "preview [framework=value...]",
		Short: "Score a sample finding with adjusted weights without saving them",
		Long: `preview applies framework=value overrides on top of the configured weights
and scores a sample finding with them. Invalid weights are reported but still
used, so partially adjusted configurations can be explored.`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := weights.ParseAssignments(g.cfg.Weights, args)
			if err != nil {
				return usageError("%v", err)
			}
			set := types.FrameworkScoreSet{
				CVEID:        "CVE-0000-0000",
				CVSSScore:    &cvss,
				EPSSScore:    &epss,
				IsKEV:        kev,
				SSVCDecision: types.SSVCDecision(ssvc),
			}
			res := scoring.Composer{FrameworkCeiling: g.cfg.FrameworkCeiling}.Compose(set, cfg)

			w := c.OutOrStdout()
			isTerminal := output.IsOutputToTerminal(w)
			if err := output.WriteWeights(w, cfg, isTerminal); err != nil {
				return err
			}
			fmt.Fprintln(w)
			return output.WriteBreakdown(w, res, isTerminal)
		},
	}
	flags := cmd.Flags()
	flags.Float64Var(&cvss, "cvss", 9.8, "Sample CVSS base score")
	flags.Float64Var(&epss, "epss", 0.95, "Sample EPSS probability")
	flags.BoolVar(&kev, "kev", true, "Sample KEV membership")
	flags.StringVar(&ssvc, "ssvc", string(types.SSVCAct), "Sample SSVC decision")
	return cmd
}

func newWeightsSetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "set framework=value...",
		Short: "Persist adjusted weights to the config file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := weights.ParseAssignments(g.cfg.Weights, args)
			if err != nil {
				return usageError("%v", err)
			}
			return saveWeights(c, g, cfg)
		},
	}
}

func newWeightsResetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the recommended weights in the config file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return saveWeights(c, g, weights.Default())
		},
	}
}

func saveWeights(c *cobra.Command, g *globals, cfg weights.Configuration) error {
	path, err := config.Path(g.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.SaveWeights(path, cfg); err != nil {
		if errors.Is(err, weights.ErrInvalidWeights) {
			return invalidWeights(err)
		}
		return err
	}
	g.cfg.Weights = cfg
	slog.Info("weights saved", "path", path, "hash", cfg.Hash()[:12])
	return writeWeights(c, "table", cfg)
}

func writeWeights(c *cobra.Command, format string, cfg weights.Configuration) error {
	w := c.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		return output.WriteJSON(w, cfg)
	case "table":
		return output.WriteWeights(w, cfg, output.IsOutputToTerminal(w))
	default:
		return usageError("unsupported output format: %s", format)
	}
}

func invalidWeights(err error) *ExitError {
	return &ExitError{Code: ExitInvalidWeights, Message: err.Error()}
}
