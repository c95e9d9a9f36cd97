// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

var priorityColors = map[types.ContainmentPriority]func(a ...any) string{
	types.ContainmentImmediate: color.New(color.FgRed, color.Bold).SprintFunc(),
	types.ContainmentHigh:      color.New(color.FgHiRed).SprintFunc(),
	types.ContainmentLow:       color.New(color.FgBlue).SprintFunc(),
}

// WriteCorrelation renders a correlation report as a summary table followed
// by the SIEM events that made the finding active.
func WriteCorrelation(w io.Writer, report types.CorrelationReport, isTerminal bool) error {
	rt := report.Runtime
	writeHeading(w, fmt.Sprintf("%s (%s)", report.CVEID, report.Product), isTerminal)
	fmt.Fprintln(w)

	priority := string(rt.ContainmentPriority)
	if fn, ok := priorityColors[rt.ContainmentPriority]; ok && isTerminal {
		priority = fn(priority)
	}

	tw := newTableWriter(w, isTerminal)
	tw.SetAutoMerge(false)
	tw.SetHeaders("Field", "Value")
	tw.AddRow("Static Score", fmt.Sprintf("%.2f", report.StaticRiskScore))
	tw.AddRow("Active", yesNo(rt.IsActive))
	tw.AddRow("Exploit Proof", proofCell(rt))
	tw.AddRow("Multiplier", fmt.Sprintf("%.1fx", rt.Multiplier))
	tw.AddRow("True Risk", fmt.Sprintf("%.2f", rt.TrueRiskScore))
	tw.AddRow("Containment", priority)
	tw.AddRow("Processes", dashIfEmpty(strings.Join(rt.ActiveProcesses, "\n")))
	tw.AddRow("Hosts", dashIfEmpty(strings.Join(rt.AffectedHosts, "\n")))
	tw.Render()

	if len(report.SIEMEvents) == 0 {
		return nil
	}

	title := fmt.Sprintf("SIEM Events (Total: %d)", len(report.SIEMEvents))
	fmt.Fprintln(w)
	writeHeading(w, title, isTerminal)
	et := newTableWriter(w, isTerminal)
	et.SetHeaders("Timestamp", "Host", "Process")
	for _, ev := range report.SIEMEvents {
		et.AddRow(dashIfEmpty(ev.Timestamp), dashIfEmpty(ev.Host), dashIfEmpty(ev.Process))
	}
	et.Render()
	return nil
}

func proofCell(rt types.RuntimeRiskResult) string {
	if !rt.ExploitProofAvailable {
		return "NO"
	}
	if rt.ExploitProofID == "" {
		return "YES"
	}
	return "YES (" + rt.ExploitProofID + ")"
}

// WriteDecision renders an SSVC decision with its rationale.
func WriteDecision(w io.Writer, decision types.SSVCDecision, points int, rationale string, isTerminal bool) error {
	label := string(decision)
	if isTerminal {
		_, _ = fmt.Fprintf(w, "%s %s (%d points)\n", color.New(color.Bold).Sprint("Decision:"), label, points)
	} else {
		_, _ = fmt.Fprintf(w, "Decision: %s (%d points)\n", label, points)
	}
	_, err := fmt.Fprintf(w, "Rationale: %s\n", rationale)
	return err
}
