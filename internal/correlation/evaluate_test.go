// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package correlation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

var activity = []types.SIEMEvent{
	{Host: "web-01", Process: "nginx"},
	{Host: "web-02", Process: "nginx"},
	{Host: "web-01", Process: "nginx-worker"},
}

func TestEvaluate_Multipliers(t *testing.T) {
	tests := []struct {
		name       string
		siem       []types.SIEMEvent
		proof      *types.ExploitProof
		multiplier float64
	}{
		{"dormant without proof", nil, nil, 0.3},
		{"dormant with proof", nil, &types.ExploitProof{ID: "p1", Maturity: types.MaturityWeaponized}, 0.8},
		{"active without proof", activity, nil, 1.5},
		{"active weaponized", activity, &types.ExploitProof{ID: "p1", Maturity: types.MaturityWeaponized}, 3.0},
		{"active functional", activity, &types.ExploitProof{ID: "p1", Maturity: types.MaturityFunctional}, 2.5},
		{"active poc", activity, &types.ExploitProof{ID: "p1", Maturity: types.MaturityPoC}, 2.0},
		{"active unspecified maturity", activity, &types.ExploitProof{ID: "p1"}, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(10, tt.siem, nil, tt.proof)
			assert.InDelta(t, tt.multiplier, got.Multiplier, 1e-9)
			assert.InDelta(t, 10*tt.multiplier, got.TrueRiskScore, 1e-9)
			assert.Equal(t, len(tt.siem) > 0, got.IsActive)
			assert.Equal(t, tt.proof != nil, got.ExploitProofAvailable)
		})
	}
}

func TestEvaluate_Containment(t *testing.T) {
	weaponized := &types.ExploitProof{ID: "p1", Maturity: types.MaturityWeaponized}
	poc := &types.ExploitProof{ID: "p2", Maturity: types.MaturityPoC}

	tests := []struct {
		name     string
		static   float64
		siem     []types.SIEMEvent
		proof    *types.ExploitProof
		priority types.ContainmentPriority
		score    float64
	}{
		{"just above high threshold", 75.1, activity, nil, types.ContainmentHigh, 100},
		{"exactly one hundred stays low", 50, activity, poc, types.ContainmentLow, 100},
		{"clamped score still immediate", 80, activity, poc, types.ContainmentImmediate, 100},
		{"exactly one fifty is high", 50, activity, weaponized, types.ContainmentHigh, 100},
		{"dormant never escalates", 100, nil, nil, types.ContainmentLow, 30},
		{"moderate active", 40, activity, nil, types.ContainmentLow, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.static, tt.siem, nil, tt.proof)
			assert.Equal(t, tt.priority, got.ContainmentPriority)
			assert.InDelta(t, tt.score, got.TrueRiskScore, 1e-9)
		})
	}
}

func TestEvaluate_Bounded(t *testing.T) {
	for _, static := range []float64{-50, 0, 33.333, 100, 1000} {
		got := Evaluate(static, activity, nil, &types.ExploitProof{Maturity: types.MaturityWeaponized})
		assert.GreaterOrEqual(t, got.TrueRiskScore, 0.0)
		assert.LessOrEqual(t, got.TrueRiskScore, 100.0)
	}
	assert.InDelta(t, 10.0, Evaluate(33.333, nil, nil, nil).TrueRiskScore, 1e-9)
}

func TestEvaluate_NonFiniteStatic(t *testing.T) {
	got := Evaluate(math.NaN(), activity, nil, nil)
	assert.Equal(t, 0.0, got.TrueRiskScore)
	assert.Equal(t, types.ContainmentLow, got.ContainmentPriority)

	got = Evaluate(math.Inf(1), activity, nil, nil)
	assert.Equal(t, 100.0, got.TrueRiskScore)
	assert.Equal(t, types.ContainmentImmediate, got.ContainmentPriority)

	_, err := json.Marshal(got)
	assert.NoError(t, err)
}

func TestEvaluate_DedupsEvidence(t *testing.T) {
	got := Evaluate(50, activity, nil, nil)

	assert.Equal(t, []string{"nginx", "nginx-worker"}, got.ActiveProcesses)
	assert.Equal(t, []string{"web-01", "web-02"}, got.AffectedHosts)

	sparse := Evaluate(50, []types.SIEMEvent{{Process: "sshd"}, {Host: "bastion"}}, nil, nil)
	assert.True(t, sparse.IsActive)
	assert.Equal(t, []string{"sshd"}, sparse.ActiveProcesses)
	assert.Equal(t, []string{"bastion"}, sparse.AffectedHosts)
}

func TestEvaluate_EmptyEvidence(t *testing.T) {
	got := Evaluate(50, nil, []types.InstalledComponent{{Name: "nginx"}}, nil)

	assert.False(t, got.IsActive)
	assert.NotNil(t, got.ActiveProcesses)
	assert.Empty(t, got.ActiveProcesses)
	assert.NotNil(t, got.AffectedHosts)
	assert.Empty(t, got.ExploitProofID)
	assert.Nil(t, got.ValidationEvidence)
}

func TestEvaluate_SurfacesProof(t *testing.T) {
	evidence := json.RawMessage(`{"sandbox":"run-42","result":"shell"}`)
	proof := &types.ExploitProof{
		ID:                 "proof-7",
		CVEID:              "CVE-2024-3400",
		Maturity:           types.MaturityFunctional,
		ValidationStatus:   "confirmed",
		ValidationEvidence: evidence,
	}

	got := Evaluate(20, nil, nil, proof)

	assert.True(t, got.ExploitProofAvailable)
	assert.Equal(t, "proof-7", got.ExploitProofID)
	assert.JSONEq(t, string(evidence), string(got.ValidationEvidence))
	assert.InDelta(t, 16.0, got.TrueRiskScore, 1e-9)
}
