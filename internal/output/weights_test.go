// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/vuln-fusion/internal/types"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

func TestWriteWeights(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, weights.Default(), false))

	output := buf.String()
	assertOrder(t, output, "cvss", "epss", "kev", "ssvc", "lev", "Total")
	assert.Contains(t, output, "0.40")
	assert.Contains(t, output, "1.00")
	assert.Contains(t, output, "Status: valid")
}

func TestWriteWeights_Invalid(t *testing.T) {
	cfg := weights.Default().Adjust("cvss", 0.9).Adjust("custom", 0.05)

	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, cfg, false))

	output := buf.String()
	assertOrder(t, output, "lev", "custom")
	assert.Contains(t, output, "1.55")
	assert.Contains(t, output, "weights must sum to 1.0 (current sum: 1.55)")
}

func TestWriteBreakdown(t *testing.T) {
	res := types.UniversalScoreResult{
		UniversalRiskScore: 90.53,
		Breakdown:          types.Breakdown{CVSSPoints: 39.2, EPSSPoints: 28.5, SSVCPoints: 10, KEVBonus: 20},
		FrameworkAgreement: 0.99,
		ScoringConfidence:  0.69,
		ConflictFlags:      []string{},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBreakdown(&buf, res, false))

	output := buf.String()
	for _, expected := range []string{"39.20", "28.50", "10.00", "20.00", "90.53", "Agreement: 0.99", "Confidence: 0.69", "Conflicts: none"} {
		assert.Contains(t, output, expected)
	}
}
