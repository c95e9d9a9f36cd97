// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

func TestWriteJSON_Report(t *testing.T) {
	score := 0.85
	percentile := 0.95

	report := types.Report{
		SchemaVersion: 2,
		ArtifactName:  "myimage:latest",
		ArtifactType:  "container_image",
		Results: []types.Result{
			{
				Target: "myimage:latest (alpine 3.18)",
				Class:  "os-pkgs",
				Type:   "alpine",
				Vulnerabilities: []types.Vulnerability{
					{
						VulnerabilityID:  "CVE-2023-0001",
						PkgName:          "openssl",
						InstalledVersion: "3.0.0",
						FixedVersion:     "3.0.1",
						Severity:         "HIGH",
						Fusion: &types.Fusion{
							Inputs: types.FrameworkScoreSet{CVEID: "CVE-2023-0001", EPSSScore: &score, IsKEV: true},
							Result: types.UniversalScoreResult{UniversalRiskScore: 45.5, ConflictFlags: []string{}},
							EPSS: &types.EPSSData{
								Score:      &score,
								Percentile: &percentile,
							},
							KEV: &types.KEVData{
								Listed:    true,
								DateAdded: "2024-01-15",
							},
						},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	output := buf.Bytes()

	// Verify it is valid JSON.
	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(output, &parsed))

	// Verify indentation (should start with "{\n  ").
	assert.True(t, bytes.HasPrefix(output, []byte("{\n  ")), "output is not indented as expected")

	// Verify SchemaVersion is present.
	assert.Contains(t, parsed, "SchemaVersion")

	// Parse Results to find Fusion.
	var results []json.RawMessage
	require.NoError(t, json.Unmarshal(parsed["Results"], &results))
	require.Len(t, results, 1)

	var resultObj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(results[0], &resultObj))

	var vulns []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resultObj["Vulnerabilities"], &vulns))
	require.Len(t, vulns, 1)

	require.Contains(t, vulns[0], "Fusion")

	var f types.Fusion
	require.NoError(t, json.Unmarshal(vulns[0]["Fusion"], &f))

	assert.InDelta(t, 45.5, f.Result.UniversalRiskScore, 1e-9)
	assert.True(t, f.Inputs.IsKEV)

	require.NotNil(t, f.EPSS)
	require.NotNil(t, f.EPSS.Score)
	assert.InDelta(t, 0.85, *f.EPSS.Score, 1e-9)

	require.NotNil(t, f.KEV)
	assert.True(t, f.KEV.Listed)
}

func TestWriteJSON_ScoreSets(t *testing.T) {
	cvss := 9.8
	scores := []types.ScoredCVE{
		{
			Input: types.FrameworkScoreSet{CVEID: "CVE-2024-0001", CVSSScore: &cvss},
			Result: types.UniversalScoreResult{
				UniversalRiskScore: 39.2,
				Breakdown:          types.Breakdown{CVSSPoints: 39.2},
				FrameworkAgreement: 1,
				ScoringConfidence:  0.55,
				ConflictFlags:      []string{"High CVSS, Low EPSS"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, scores))

	var parsed []map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed, 1)

	result := parsed[0]["result"]
	for _, key := range []string{"universal_risk_score", "breakdown", "framework_agreement", "scoring_confidence", "conflict_flags"} {
		assert.Contains(t, result, key)
	}
	assert.JSONEq(t, `["High CVSS, Low EPSS"]`, string(result["conflict_flags"]))
	assert.NotContains(t, parsed[0]["input"], "epss_score", "absent frameworks are omitted")
}

func TestWriteJSON_EscapeHTML(t *testing.T) {
	// Verify SetEscapeHTML(false) works: angle brackets should not be escaped.
	data := map[string]string{
		"url": "https://example.com/path?a=1&b=2",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, data))

	output := buf.String()
	assert.NotContains(t, output, `\u0026`)
}
