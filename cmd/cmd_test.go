// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

const scoreSetsInput = `{"scores": [
	{"cve_id": "CVE-2023-4966", "cvss_score": 8.1, "epss_score": 0.9377, "is_kev": true, "ssvc_decision": "Act"},
	{"cve_id": "CVE-2024-0002", "cvss_score": 2.0}
]}`

// execute runs the CLI in an isolated home directory.
func execute(t *testing.T, home, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "want *ExitError, got %v", err)
	return exitErr.Code
}

func TestScore_ScoreSetsJSON(t *testing.T) {
	out, err := execute(t, t.TempDir(), scoreSetsInput, "score", "--no-epss", "--no-kev")
	require.NoError(t, err)

	var scores []types.ScoredCVE
	require.NoError(t, json.Unmarshal([]byte(out), &scores))
	require.Len(t, scores, 2)
	assert.Equal(t, "CVE-2023-4966", scores[0].Input.CVEID)
	assert.InDelta(t, 90.53, scores[0].Result.UniversalRiskScore, 1e-9)
	assert.InDelta(t, 8.0, scores[1].Result.UniversalRiskScore, 1e-9)
}

func TestScore_Table(t *testing.T) {
	out, err := execute(t, t.TempDir(), scoreSetsInput,
		"score", "--no-epss", "--no-kev", "--format", "table", "--sort-by", "cve")
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, "CVE-2023-4966"), strings.Index(out, "CVE-2024-0002"))
	assert.Contains(t, out, "90.53")
	assert.Contains(t, out, "Confidence")
}

func TestScore_FeedsFollowConfig(t *testing.T) {
	const epssCSV = "#model_version:v2025.03.14,score_date:2026-02-12T00:00:00+0000\ncve,epss,percentile\nCVE-2024-1234,0.97000,0.99800\n"
	const kevJSON = `{"catalogVersion": "2026.02.12", "vulnerabilities": [{"cveID": "CVE-2024-1234"}]}`

	var epssHits, kevHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/epss/"):
			epssHits.Add(1)
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(epssCSV))
			_ = gz.Close()
		case r.URL.Path == "/kev.json":
			kevHits.Add(1)
			_, _ = w.Write([]byte(kevJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	home := t.TempDir()
	configPath := filepath.Join(home, "fusion.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
feeds:
  ttl: 1h
  epss_url: %[1]s/epss
  kev_url: %[1]s/kev.json
  kev_fallback_url: %[1]s/kev.json
`, srv.URL)), 0o600))

	input := `[{"cve_id": "CVE-2024-1234", "cvss_score": 9.8}]`
	out, err := execute(t, home, input, "score", "--config", configPath)
	require.NoError(t, err)
	assert.EqualValues(t, 1, epssHits.Load())
	assert.EqualValues(t, 1, kevHits.Load())

	var scores []types.ScoredCVE
	require.NoError(t, json.Unmarshal([]byte(out), &scores))
	require.Len(t, scores, 1)
	require.NotNil(t, scores[0].Input.EPSSScore)
	assert.InDelta(t, 0.97, *scores[0].Input.EPSSScore, 1e-9)
	assert.True(t, scores[0].Input.IsKEV)

	// Inside the configured TTL the snapshots are reused.
	_, err = execute(t, home, input, "score", "--config", configPath)
	require.NoError(t, err)
	assert.EqualValues(t, 1, epssHits.Load())
	assert.EqualValues(t, 1, kevHits.Load())

	// A shorter TTL from the environment makes them stale.
	t.Setenv("VULN_FUSION_FEEDS_TTL", "1ns")
	_, err = execute(t, home, input, "score", "--config", configPath)
	require.NoError(t, err)
	assert.EqualValues(t, 2, epssHits.Load())
	assert.EqualValues(t, 2, kevHits.Load())
}

func TestScore_SARIF(t *testing.T) {
	const sarifInput = `{
		"$schema": "https://json.schemastore.org/sarif-2.1.0.json",
		"version": "2.1.0",
		"runs": [{
			"tool": {"driver": {"name": "Trivy", "rules": [
				{"id": "CVE-2024-0001", "properties": {"cvssv3_baseScore": 9.0}},
				{"id": "DS002", "properties": {"tags": ["misconfiguration"]}}
			]}},
			"results": [
				{"ruleId": "CVE-2024-0001", "level": "error", "message": {"text": "openssl"}, "locations": []},
				{"ruleId": "DS002", "level": "warning", "message": {"text": "root user"}}
			]
		}]
	}`

	out, err := execute(t, t.TempDir(), sarifInput, "score", "--no-epss", "--no-kev")
	require.NoError(t, err)

	var report types.SARIFReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Runs, 1)
	results := report.Runs[0].Results
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Extras, "locations")
	assert.NotContains(t, results[1].Properties, "vulnFusion")

	var fusion types.Fusion
	require.NoError(t, json.Unmarshal(results[0].Properties["vulnFusion"], &fusion))
	assert.InDelta(t, 36.0, fusion.Result.UniversalRiskScore, 1e-9)

	out, err = execute(t, t.TempDir(), sarifInput, "score", "--no-epss", "--no-kev", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "CVE-2024-0001")
	assert.NotContains(t, out, "DS002")

	_, err = execute(t, t.TempDir(), sarifInput, "score", "--no-epss", "--no-kev", "--fail-on-score", "36")
	assert.Equal(t, ExitPolicyViolation, exitCode(t, err))
}

func TestScore_Policy(t *testing.T) {
	_, err := execute(t, t.TempDir(), scoreSetsInput, "score", "--no-epss", "--no-kev", "--fail-on-score", "90")
	assert.Equal(t, ExitPolicyViolation, exitCode(t, err))

	out, err := execute(t, t.TempDir(), scoreSetsInput, "score", "--no-epss", "--no-kev", "--min-score", "50", "--fail-on-kev")
	assert.Equal(t, ExitPolicyViolation, exitCode(t, err))
	assert.NotContains(t, out, "CVE-2024-0002")
}

func TestScore_UsageErrors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"empty stdin", "", nil},
		{"bad json", "{", nil},
		{"unknown document", `{"foo": 1}`, nil},
		{"bad format", scoreSetsInput, []string{"--format", "sarif"}},
		{"bad sort key", scoreSetsInput, []string{"--sort-by", "risk"}},
		{"bad weight", scoreSetsInput, []string{"--weight", "cvss"}},
		{"nan weight", scoreSetsInput, []string{"--weight", "epss=NaN"}},
		{"infinite weight", scoreSetsInput, []string{"--weight", "cvss=Inf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"score", "--no-epss", "--no-kev"}, tt.args...)
			_, err := execute(t, t.TempDir(), tt.stdin, args...)
			assert.Equal(t, ExitUsage, exitCode(t, err))
		})
	}
}

func TestScore_InvalidWeightsBlockPersistOnly(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, scoreSetsInput, "score", "--no-epss", "--no-kev", "--weight", "cvss=0.9")
	require.NoError(t, err, "invalid weights still score")

	_, err = execute(t, home, scoreSetsInput, "score", "--no-epss", "--no-kev", "--weight", "cvss=0.9", "--persist")
	assert.Equal(t, ExitInvalidWeights, exitCode(t, err))
}

func TestScoreThenCorrelate(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, scoreSetsInput, "score", "--no-epss", "--no-kev", "--persist", "--org", "acme")
	require.NoError(t, err)

	evidence := filepath.Join(home, "evidence.yaml")
	require.NoError(t, os.WriteFile(evidence, []byte(`
siem_events:
  - host: web-01
    process: citrix-adc
components:
  - host: web-01
    name: Citrix ADC
exploit_proofs:
  - id: proof-7
    cve_id: CVE-2023-4966
    maturity_level: weaponized
    validation_status: confirmed
`), 0o600))

	out, err := execute(t, home, "", "correlate", "--org", "acme",
		"--cve", "CVE-2023-4966", "--product", "citrix", "--evidence", evidence, "--format", "json", "--persist")
	require.NoError(t, err)

	var report types.CorrelationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.InDelta(t, 90.53, report.StaticRiskScore, 1e-9)
	assert.True(t, report.Runtime.IsActive)
	assert.InDelta(t, 3.0, report.Runtime.Multiplier, 1e-9)
	assert.InDelta(t, 100.0, report.Runtime.TrueRiskScore, 1e-9)
	assert.Equal(t, types.ContainmentImmediate, report.Runtime.ContainmentPriority)
	assert.Equal(t, "proof-7", report.Runtime.ExploitProofID)
}

func TestCorrelate_MissingStoredScore(t *testing.T) {
	home := t.TempDir()
	evidence := filepath.Join(home, "evidence.yaml")
	require.NoError(t, os.WriteFile(evidence, []byte("siem_events: []\n"), 0o600))

	_, err := execute(t, home, "", "correlate", "--cve", "CVE-2024-0001", "--product", "nginx", "--evidence", evidence)
	assert.Equal(t, ExitUsage, exitCode(t, err))

	out, err := execute(t, home, "", "correlate", "--cve", "CVE-2024-0001", "--product", "nginx",
		"--evidence", evidence, "--static-score", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "0.3x")
	assert.Contains(t, out, "12.00")
}

func TestCorrelate_RejectsBadArguments(t *testing.T) {
	home := t.TempDir()
	evidence := filepath.Join(home, "evidence.yaml")
	require.NoError(t, os.WriteFile(evidence, []byte("siem_events:\n  - host: web-01\n    process: nginx\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"empty product", []string{"--product", "", "--static-score", "40"}},
		{"blank product", []string{"--product", "   ", "--static-score", "40"}},
		{"nan static score", []string{"--product", "nginx", "--static-score", "NaN"}},
		{"infinite static score", []string{"--product", "nginx", "--static-score", "+Inf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"correlate", "--cve", "CVE-2024-0001", "--evidence", evidence}, tt.args...)
			out, err := execute(t, home, "", args...)
			assert.Equal(t, ExitUsage, exitCode(t, err))
			assert.Empty(t, out)
		})
	}
}

func TestWeights_SetValidateReset(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, "", "weights", "set", "cvss=0.9")
	assert.Equal(t, ExitInvalidWeights, exitCode(t, err))
	_, statErr := os.Stat(filepath.Join(home, ".vuln-fusion", "config.yaml"))
	assert.True(t, os.IsNotExist(statErr), "invalid weights are never written")

	_, err = execute(t, home, "", "weights", "set", "cvss=0.5", "kev=0.1")
	require.NoError(t, err)

	out, err := execute(t, home, "", "weights", "show", "--format", "json")
	require.NoError(t, err)
	var shown map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.InDelta(t, 0.5, shown["cvss"], 1e-9)
	assert.InDelta(t, 0.1, shown["kev"], 1e-9)

	_, err = execute(t, home, "", "weights", "validate", "epss=0.9")
	assert.Equal(t, ExitInvalidWeights, exitCode(t, err))

	out, err = execute(t, home, "", "weights", "preview", "epss=0.9")
	require.NoError(t, err, "preview never blocks on invalid weights")
	assert.Contains(t, out, "invalid")

	_, err = execute(t, home, "", "weights", "reset")
	require.NoError(t, err)
	out, err = execute(t, home, "", "weights", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestSSVC(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "ssvc",
		"--exploitation", "poc", "--technical-impact", "total", "--automatable", "yes", "--mission-impact", "medium")
	require.NoError(t, err)
	assert.Contains(t, out, "Decision: Attend (70 points)")

	out, err = execute(t, t.TempDir(), "", "ssvc", "--technical-impact", "total", "--format", "json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Track*", decoded["decision"])
	assert.Equal(t, "none", decoded["exploitation"])
	assert.EqualValues(t, 50, decoded["points"])
}
