// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	aqtable "github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

const maxTitleWords = 12

// Sort keys accepted by TableConfig.SortBy.
const (
	SortByScore      = "score"
	SortByEPSS       = "epss"
	SortBySeverity   = "severity"
	SortByCVE        = "cve"
	SortByConfidence = "confidence"
)

// ValidSortKey reports whether key is empty or one of the supported sort keys.
func ValidSortKey(key string) bool {
	switch key {
	case "", SortByScore, SortByEPSS, SortBySeverity, SortByCVE, SortByConfidence:
		return true
	}
	return false
}

// TableConfig controls which columns are displayed and how rows are sorted.
type TableConfig struct {
	ShowEPSS       bool
	ShowKEV        bool
	ShowSSVC       bool
	SortBy         string // one of the SortBy* keys, "" preserves order
	HideSuppressed bool   // exclude suppressed vulnerabilities section
	IsTerminal     bool   // true when output goes to a terminal (enables ANSI styling)
}

// IsOutputToTerminal returns true if the writer is stdout connected to a
// character device (TTY). Matching Trivy's behavior, returns false on Windows.
func IsOutputToTerminal(output io.Writer) bool {
	return output == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
}

// vulnRow holds a reference to a vulnerability for table rendering.
type vulnRow struct {
	vuln  *types.Vulnerability
	index int // original index for stable sort
}

// WriteTable writes an enriched report as a table grouped by target.
func WriteTable(w io.Writer, report *types.Report, cfg TableConfig) error {
	first := true
	for i := range report.Results {
		result := &report.Results[i]
		vulns := result.Vulnerabilities
		hasSuppressed := !cfg.HideSuppressed && hasVulnFindings(result.ExperimentalModifiedFindings)

		if len(vulns) == 0 && !hasSuppressed {
			continue
		}

		if !first {
			fmt.Fprintln(w)
		}
		first = false

		writeTargetHeader(w, result, cfg.IsTerminal)

		if len(vulns) > 0 {
			rows := make([]vulnRow, len(vulns))
			for j := range vulns {
				rows[j] = vulnRow{vuln: &vulns[j], index: j}
			}
			sortRows(rows, cfg.SortBy)
			writeVulnTable(w, rows, cfg)
		}

		if hasSuppressed {
			writeSuppressedSection(w, result.ExperimentalModifiedFindings, cfg)
		}
	}

	if first {
		writeVulnTable(w, nil, cfg)
	}

	return nil
}

// WriteScoreTable renders fused score sets, one row per CVE.
func WriteScoreTable(w io.Writer, scores []types.ScoredCVE, cfg TableConfig) error {
	rows := make([]types.ScoredCVE, len(scores))
	copy(rows, scores)
	sortScored(rows, cfg.SortBy)

	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders("Vulnerability", "CVSS", "EPSS", "KEV", "SSVC", "Score", "Agreement", "Confidence", "Conflicts")
	for _, s := range rows {
		tw.AddRow(
			s.Input.CVEID,
			formatOptional(s.Input.CVSSScore, "%.1f"),
			formatOptional(s.Input.EPSSScore, "%.2f"),
			yesNo(s.Input.IsKEV),
			dashIfEmpty(string(s.Input.SSVCDecision)),
			colorizeScore(s.Result.UniversalRiskScore, cfg.IsTerminal),
			fmt.Sprintf("%.2f", s.Result.FrameworkAgreement),
			fmt.Sprintf("%.2f", s.Result.ScoringConfidence),
			formatConflicts(s.Result.ConflictFlags),
		)
	}
	tw.Render()
	return nil
}

// writeTargetHeader writes the target name with formatting and severity summary.
func writeTargetHeader(w io.Writer, result *types.Result, isTerminal bool) {
	target := result.Target
	if result.Type != "" {
		target = fmt.Sprintf("%s (%s)", result.Target, result.Type)
	}
	writeHeading(w, target, isTerminal)
	fmt.Fprintln(w, severitySummary(result.Vulnerabilities))
	fmt.Fprintln(w)
}

func writeHeading(w io.Writer, text string, isTerminal bool) {
	if isTerminal {
		_ = tml.Fprintf(w, "<underline><bold>%s</bold></underline>\n", text)
		return
	}
	fmt.Fprintln(w, text)
	fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(text)))
}

// newTableWriter creates a table writer with the standard configuration
// matching Trivy's output format: borders, auto-merge, and row separators.
// When isTerminal is true, header and line styles use ANSI formatting.
func newTableWriter(w io.Writer, isTerminal bool) *aqtable.Table {
	tw := aqtable.New(w)
	if isTerminal {
		tw.SetHeaderStyle(aqtable.StyleBold)
		tw.SetLineStyle(aqtable.StyleDim)
	}
	tw.SetBorders(true)
	tw.SetAutoMerge(true)
	tw.SetRowLines(true)
	return tw
}

// writeVulnTable renders a vulnerability table using aquasecurity/table.
func writeVulnTable(w io.Writer, rows []vulnRow, cfg TableConfig) {
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders(headerNames(cfg)...)
	for _, row := range rows {
		tw.AddRow(rowCells(row.vuln, cfg)...)
	}
	tw.Render()
}

// writeSuppressedSection renders the suppressed vulnerabilities header and table.
func writeSuppressedSection(w io.Writer, findings []types.ModifiedFinding, cfg TableConfig) {
	var total int
	for i := range findings {
		if findings[i].IsVulnerability() {
			total++
		}
	}
	if total == 0 {
		return
	}

	title := fmt.Sprintf("Suppressed Vulnerabilities (Total: %d)", total)
	if cfg.IsTerminal {
		_ = tml.Fprintf(w, "\n<underline>%s</underline>\n\n", title)
	} else {
		fmt.Fprintf(w, "\n%s\n", title)
		fmt.Fprintf(w, "%s\n", strings.Repeat("=", utf8.RuneCountInString(title)))
	}

	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders(suppressedHeaderNames(cfg)...)
	for i := range findings {
		if !findings[i].IsVulnerability() {
			continue
		}
		tw.AddRow(suppressedRowCells(&findings[i], cfg)...)
	}
	tw.Render()
}

// headerNames returns column header names based on config.
func headerNames(cfg TableConfig) []string {
	cols := []string{"Library", "Vulnerability", "Severity", "Status", "Installed Version", "Fixed Version", "Title"}
	return append(cols, fusionHeaderNames(cfg)...)
}

// fusionHeaderNames returns the score columns shared by both tables.
func fusionHeaderNames(cfg TableConfig) []string {
	cols := []string{"Score", "Confidence", "Conflicts"}
	if cfg.ShowEPSS {
		cols = append(cols, "EPSS", "EPSS %ile")
	}
	if cfg.ShowKEV {
		cols = append(cols, "KEV")
	}
	if cfg.ShowSSVC {
		cols = append(cols, "SSVC")
	}
	return cols
}

// rowCells returns the cell values for a single vulnerability row.
func rowCells(v *types.Vulnerability, cfg TableConfig) []string {
	severity := v.Severity
	if cfg.IsTerminal {
		severity = colorizeSeverity(severity)
	}
	cols := []string{
		v.PkgName,
		v.VulnerabilityID,
		severity,
		v.ExtraString("Status"),
		v.InstalledVersion,
		v.FixedVersion,
		titleWithURL(v, cfg.IsTerminal),
	}
	return append(cols, fusionCells(v, cfg)...)
}

// fusionCells returns the score cell values for a vulnerability.
func fusionCells(v *types.Vulnerability, cfg TableConfig) []string {
	cols := []string{formatScore(v, cfg.IsTerminal), formatConfidence(v), formatVulnConflicts(v)}
	if cfg.ShowEPSS {
		cols = append(cols, formatEPSSScore(v), formatEPSSPercentile(v))
	}
	if cfg.ShowKEV {
		cols = append(cols, formatKEV(v))
	}
	if cfg.ShowSSVC {
		cols = append(cols, formatSSVC(v))
	}
	return cols
}

// severitySummary returns a line like:
// Total: 5 (UNKNOWN: 0, LOW: 2, MEDIUM: 1, HIGH: 1, CRITICAL: 1)
func severitySummary(vulns []types.Vulnerability) string {
	counts := map[string]int{
		"UNKNOWN":  0,
		"LOW":      0,
		"MEDIUM":   0,
		"HIGH":     0,
		"CRITICAL": 0,
	}
	for _, v := range vulns {
		sev := strings.ToUpper(v.Severity)
		if _, ok := counts[sev]; ok {
			counts[sev]++
		} else {
			counts["UNKNOWN"]++
		}
	}
	return fmt.Sprintf("Total: %d (UNKNOWN: %d, LOW: %d, MEDIUM: %d, HIGH: %d, CRITICAL: %d)",
		len(vulns), counts["UNKNOWN"], counts["LOW"], counts["MEDIUM"], counts["HIGH"], counts["CRITICAL"])
}

// severityColors maps severity names to color functions matching Trivy's palette.
var severityColors = map[string]func(a ...any) string{
	"UNKNOWN":  color.New(color.FgCyan).SprintFunc(),
	"LOW":      color.New(color.FgBlue).SprintFunc(),
	"MEDIUM":   color.New(color.FgYellow).SprintFunc(),
	"HIGH":     color.New(color.FgHiRed).SprintFunc(),
	"CRITICAL": color.New(color.FgRed).SprintFunc(),
}

// colorizeSeverity returns the severity string wrapped in ANSI color codes.
func colorizeSeverity(severity string) string {
	if fn, ok := severityColors[strings.ToUpper(severity)]; ok {
		return fn(severity)
	}
	return severity
}

// scoreSeverity buckets a universal score into the Trivy severity palette.
func scoreSeverity(score float64) string {
	switch {
	case score >= 80:
		return "CRITICAL"
	case score >= 60:
		return "HIGH"
	case score >= 40:
		return "MEDIUM"
	case score > 0:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

func colorizeScore(score float64, isTerminal bool) string {
	s := fmt.Sprintf("%.2f", score)
	if !isTerminal {
		return s
	}
	return severityColors[scoreSeverity(score)](s)
}

// severityRank returns a numeric rank for sorting (higher = more severe).
func severityRank(severity string) int {
	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return 5
	case "HIGH":
		return 4
	case "MEDIUM":
		return 3
	case "LOW":
		return 2
	case "NEGLIGIBLE":
		return 1
	default:
		return 0
	}
}

// sortRows sorts the vulnerability rows based on the given sort key.
func sortRows(rows []vulnRow, sortBy string) {
	switch sortBy {
	case SortByScore:
		sort.SliceStable(rows, func(i, j int) bool {
			return scoreValue(rows[i].vuln) > scoreValue(rows[j].vuln)
		})
	case SortByEPSS:
		sort.SliceStable(rows, func(i, j int) bool {
			return epssValue(rows[i].vuln) > epssValue(rows[j].vuln)
		})
	case SortBySeverity:
		sort.SliceStable(rows, func(i, j int) bool {
			return severityRank(rows[i].vuln.Severity) > severityRank(rows[j].vuln.Severity)
		})
	case SortByCVE:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].vuln.VulnerabilityID < rows[j].vuln.VulnerabilityID
		})
	case SortByConfidence:
		sort.SliceStable(rows, func(i, j int) bool {
			return confidenceValue(rows[i].vuln) > confidenceValue(rows[j].vuln)
		})
	default:
		// preserve original order
	}
}

// sortScored sorts score sets; severity falls back to the raw CVSS score.
func sortScored(rows []types.ScoredCVE, sortBy string) {
	var less func(a, b types.ScoredCVE) bool
	switch sortBy {
	case SortByScore:
		less = func(a, b types.ScoredCVE) bool { return a.Result.UniversalRiskScore > b.Result.UniversalRiskScore }
	case SortByEPSS:
		less = func(a, b types.ScoredCVE) bool { return a.Input.EPSS() > b.Input.EPSS() }
	case SortBySeverity:
		less = func(a, b types.ScoredCVE) bool { return a.Input.CVSS() > b.Input.CVSS() }
	case SortByCVE:
		less = func(a, b types.ScoredCVE) bool { return a.Input.CVEID < b.Input.CVEID }
	case SortByConfidence:
		less = func(a, b types.ScoredCVE) bool { return a.Result.ScoringConfidence > b.Result.ScoringConfidence }
	default:
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// scoreValue extracts the universal risk score, returning 0 if unscored.
func scoreValue(v *types.Vulnerability) float64 {
	if v.Fusion != nil {
		return v.Fusion.Result.UniversalRiskScore
	}
	return 0
}

func confidenceValue(v *types.Vulnerability) float64 {
	if v.Fusion != nil {
		return v.Fusion.Result.ScoringConfidence
	}
	return 0
}

// epssValue extracts the EPSS score from a vulnerability, returning 0 if nil.
func epssValue(v *types.Vulnerability) float64 {
	if v.Fusion != nil && v.Fusion.EPSS != nil && v.Fusion.EPSS.Score != nil {
		return *v.Fusion.EPSS.Score
	}
	return 0
}

// titleWithURL builds the Title cell content: truncates the title to
// maxTitleWords words (matching Trivy) and appends PrimaryURL on a new line.
// When isTerminal is true, the URL is colored blue.
func titleWithURL(v *types.Vulnerability, isTerminal bool) string {
	title := truncateWords(v.ExtraString("Title"), maxTitleWords)
	url := v.ExtraString("PrimaryURL")
	if url != "" {
		if isTerminal {
			url = tml.Sprintf("<blue>%s</blue>", url)
		}
		if title != "" {
			return title + "\n" + url
		}
		return url
	}
	return title
}

// truncateWords limits text to maxWords words, appending "..." if truncated.
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// formatScore formats the universal risk score or returns "-" if unscored.
func formatScore(v *types.Vulnerability, isTerminal bool) string {
	if v.Fusion == nil {
		return "-"
	}
	return colorizeScore(v.Fusion.Result.UniversalRiskScore, isTerminal)
}

func formatConfidence(v *types.Vulnerability) string {
	if v.Fusion == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", v.Fusion.Result.ScoringConfidence)
}

func formatVulnConflicts(v *types.Vulnerability) string {
	if v.Fusion == nil {
		return "-"
	}
	return formatConflicts(v.Fusion.Result.ConflictFlags)
}

// formatConflicts stacks conflict labels one per line.
func formatConflicts(flags []string) string {
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, "\n")
}

// formatEPSSScore formats the EPSS score or returns "-" if nil.
func formatEPSSScore(v *types.Vulnerability) string {
	if v.Fusion != nil && v.Fusion.EPSS != nil {
		return formatOptional(v.Fusion.EPSS.Score, "%.2f")
	}
	return "-"
}

// formatEPSSPercentile formats the EPSS percentile (0-1 scaled to 0-100) or returns "-" if nil.
func formatEPSSPercentile(v *types.Vulnerability) string {
	if v.Fusion != nil && v.Fusion.EPSS != nil && v.Fusion.EPSS.Percentile != nil {
		return fmt.Sprintf("%.1f", *v.Fusion.EPSS.Percentile*100)
	}
	return "-"
}

// formatKEV returns "YES" if the vulnerability is in the KEV catalog, "NO" otherwise.
func formatKEV(v *types.Vulnerability) string {
	return yesNo(v.Fusion != nil && v.Fusion.Inputs.IsKEV)
}

func formatSSVC(v *types.Vulnerability) string {
	if v.Fusion == nil {
		return "-"
	}
	return dashIfEmpty(string(v.Fusion.Inputs.SSVCDecision))
}

func formatOptional(p *float64, format string) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf(format, *p)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// suppressedHeaderNames returns column header names for the suppressed section.
func suppressedHeaderNames(cfg TableConfig) []string {
	cols := []string{"Library", "Vulnerability", "Severity", "Status", "Statement", "Source"}
	return append(cols, fusionHeaderNames(cfg)...)
}

// suppressedRowCells returns the cell values for a single suppressed finding row.
func suppressedRowCells(mf *types.ModifiedFinding, cfg TableConfig) []string {
	v := &mf.Finding
	severity := v.Severity
	if cfg.IsTerminal {
		severity = colorizeSeverity(severity)
	}
	cols := []string{
		v.PkgName,
		v.VulnerabilityID,
		severity,
		mf.Status,
		mf.Statement,
		mf.Source,
	}
	return append(cols, fusionCells(v, cfg)...)
}

// hasVulnFindings reports whether any modified finding is a vulnerability.
func hasVulnFindings(findings []types.ModifiedFinding) bool {
	for i := range findings {
		if findings[i].IsVulnerability() {
			return true
		}
	}
	return false
}
