// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

// frameworkOrder fixes the display order of the built-in frameworks;
// custom keys follow alphabetically.
var frameworkOrder = []string{
	types.FrameworkCVSS, types.FrameworkEPSS, types.FrameworkKEV, types.FrameworkSSVC, types.FrameworkLEV,
}

// WriteWeights renders a weight configuration with its total and validity.
func WriteWeights(w io.Writer, cfg weights.Configuration, isTerminal bool) error {
	tw := newTableWriter(w, isTerminal)
	tw.SetAutoMerge(false)
	tw.SetHeaders("Framework", "Weight")
	for _, name := range orderedFrameworks(cfg) {
		tw.AddRow(name, fmt.Sprintf("%.2f", cfg.Get(name)))
	}
	tw.AddRow("Total", fmt.Sprintf("%.2f", cfg.Total()))
	tw.Render()

	status := "valid"
	if err := cfg.Validate(); err != nil {
		status = "invalid: " + err.Error()
	}
	_, err := fmt.Fprintf(w, "Status: %s\n", status)
	return err
}

// WriteBreakdown renders the per-framework contributions of one result.
func WriteBreakdown(w io.Writer, res types.UniversalScoreResult, isTerminal bool) error {
	b := res.Breakdown
	tw := newTableWriter(w, isTerminal)
	tw.SetAutoMerge(false)
	tw.SetHeaders("Component", "Points")
	tw.AddRow("CVSS", fmt.Sprintf("%.2f", b.CVSSPoints))
	tw.AddRow("EPSS", fmt.Sprintf("%.2f", b.EPSSPoints))
	tw.AddRow("SSVC", fmt.Sprintf("%.2f", b.SSVCPoints))
	tw.AddRow("KEV bonus", fmt.Sprintf("%.2f", b.KEVBonus))
	tw.AddRow("Universal score", colorizeScore(res.UniversalRiskScore, isTerminal))
	tw.Render()

	_, err := fmt.Fprintf(w, "Agreement: %.2f  Confidence: %.2f  Conflicts: %s\n",
		res.FrameworkAgreement, res.ScoringConfidence, joinConflicts(res.ConflictFlags))
	return err
}

func orderedFrameworks(cfg weights.Configuration) []string {
	seen := make(map[string]bool, len(frameworkOrder))
	names := make([]string, 0, len(cfg))
	for _, name := range frameworkOrder {
		seen[name] = true
		if _, ok := cfg[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range cfg {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func joinConflicts(flags []string) string {
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, "; ")
}
