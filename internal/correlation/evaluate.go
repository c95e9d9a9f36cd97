// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package correlation turns a static risk score into a runtime-adjusted one
// using SIEM activity, RMM inventory and exploit-proof evidence.
package correlation

import (
	"math"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// Runtime multipliers applied to the static score.
const (
	multiplierDormant          = 0.3
	multiplierDormantWithProof = 0.8
	multiplierActive           = 1.5
	multiplierActiveWeaponized = 3.0
	multiplierActiveFunctional = 2.5
	multiplierActiveOtherProof = 2.0
)

// Containment thresholds, compared against the unclamped true risk.
const (
	immediateAbove = 150.0
	highAbove      = 100.0
)

// Evaluate combines a static score with runtime evidence. Containment
// priority is decided on the raw product of score and multiplier, before the
// displayed score is clamped to [0,100], so saturated scores still escalate.
// rmm is accepted for symmetry with the evidence sources; inventory alone
// does not change the multiplier. A NaN static score counts as 0.
func Evaluate(static float64, siem []types.SIEMEvent, rmm []types.InstalledComponent, proof *types.ExploitProof) types.RuntimeRiskResult {
	if math.IsNaN(static) {
		static = 0
	}
	isActive := len(siem) > 0
	processes := make([]string, 0, len(siem))
	hosts := make([]string, 0, len(siem))
	seenProc := make(map[string]struct{}, len(siem))
	seenHost := make(map[string]struct{}, len(siem))
	for _, ev := range siem {
		if _, ok := seenProc[ev.Process]; !ok && ev.Process != "" {
			seenProc[ev.Process] = struct{}{}
			processes = append(processes, ev.Process)
		}
		if _, ok := seenHost[ev.Host]; !ok && ev.Host != "" {
			seenHost[ev.Host] = struct{}{}
			hosts = append(hosts, ev.Host)
		}
	}

	multiplier := runtimeMultiplier(isActive, proof)
	raw := static * multiplier

	priority := types.ContainmentLow
	switch {
	case raw > immediateAbove:
		priority = types.ContainmentImmediate
	case raw > highAbove:
		priority = types.ContainmentHigh
	}

	result := types.RuntimeRiskResult{
		IsActive:              isActive,
		ExploitProofAvailable: proof != nil,
		Multiplier:            multiplier,
		TrueRiskScore:         math.Max(0, math.Min(100, math.Round(raw*100)/100)),
		ActiveProcesses:       processes,
		AffectedHosts:         hosts,
		ContainmentPriority:   priority,
	}
	if proof != nil {
		result.ExploitProofID = proof.ID
		result.ValidationEvidence = proof.ValidationEvidence
	}
	return result
}

func runtimeMultiplier(active bool, proof *types.ExploitProof) float64 {
	switch {
	case !active && proof == nil:
		return multiplierDormant
	case !active:
		return multiplierDormantWithProof
	case proof == nil:
		return multiplierActive
	}
	switch proof.Maturity {
	case types.MaturityWeaponized:
		return multiplierActiveWeaponized
	case types.MaturityFunctional:
		return multiplierActiveFunctional
	default:
		return multiplierActiveOtherProof
	}
}
