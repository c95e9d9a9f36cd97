// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bonial-oss/vuln-fusion/internal/output"
	"github.com/bonial-oss/vuln-fusion/internal/scoring"
)

func newSSVCCommand(g *globals) *cobra.Command {
	var (
		in     scoring.SSVCInputs
		format string
	)
	cmd := &cobra.Command{
		Use:   "ssvc",
		Short: "Decide an SSVC outcome (Act, Attend, Track*, Track) from decision-point answers",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			// Unset answers fall back to the organization defaults.
			defaults := g.cfg.SSVC
			fill(&in.Exploitation, defaults.Exploitation, "none")
			fill(&in.TechnicalImpact, defaults.TechnicalImpact, "")
			fill(&in.Automatable, defaults.Automatable, "")
			fill(&in.MissionImpact, defaults.MissionImpact, "")

			outcome := scoring.DecideSSVC(in)
			w := c.OutOrStdout()
			switch format {
			case "json":
				return output.WriteJSON(w, struct {
					scoring.SSVCInputs
					scoring.SSVCOutcome
					Points int `json:"points"`
				}{in, outcome, scoring.SSVCPoints(outcome.Decision)})
			case "table":
				return output.WriteDecision(w, outcome.Decision, scoring.SSVCPoints(outcome.Decision),
					outcome.Rationale, output.IsOutputToTerminal(w))
			default:
				return usageError("unsupported output format: %s", format)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.Exploitation, "exploitation", "", "Exploitation status: active, poc, none")
	flags.StringVar(&in.TechnicalImpact, "technical-impact", "", "Technical impact: total, partial")
	flags.StringVar(&in.Automatable, "automatable", "", "Automatable: yes, no")
	flags.StringVar(&in.MissionImpact, "mission-impact", "", "Mission impact: critical, high, medium, low")
	flags.StringVar(&format, "format", "table", "Output format: json, table")
	return cmd
}

func fill(dst *string, values ...string) {
	for _, v := range values {
		if *dst != "" {
			return
		}
		*dst = v
	}
}
