// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"strings"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// SSVCPoints maps an SSVC decision onto the 0-100 scale. Unknown or empty
// decisions are worth nothing.
func SSVCPoints(d types.SSVCDecision) int {
	switch d {
	case types.SSVCAct:
		return 100
	case types.SSVCAttend:
		return 70
	case types.SSVCTrackStar:
		return 50
	case types.SSVCTrack:
		return 20
	default:
		return 0
	}
}

// SSVCInputs are the decision-point answers of the deployer tree.
// Exploitation is active, poc or none; TechnicalImpact total or partial;
// Automatable yes or no; MissionImpact critical, high, medium or low.
type SSVCInputs struct {
	Exploitation    string `json:"exploitation"`
	TechnicalImpact string `json:"technical_impact"`
	Automatable     string `json:"automatable"`
	MissionImpact   string `json:"mission_impact"`
}

// SSVCOutcome is a decision with the reason it was reached.
type SSVCOutcome struct {
	Decision  types.SSVCDecision `json:"decision"`
	Rationale string             `json:"rationale"`
}

const (
	rationaleActive     = "The vulnerability is actively being exploited in the wild. Immediate action is required to mitigate the threat."
	rationalePoCAct     = "Proof-of-concept exploit code is available, and the potential mission impact is high or critical. This combination warrants immediate action."
	rationalePoCAttend  = "Proof-of-concept exploit code exists, and the mission impact is medium. This requires attention sooner rather than later."
	rationaleAutoAttend = "The vulnerability has total technical impact and is automatable, with a high or critical mission impact. It should be attended to promptly."
	rationaleTrackStar  = "The vulnerability has a high potential for future exploitation (total impact) but no known exploits exist yet. It should be closely monitored and patched on an accelerated timeline."
	rationaleTrack      = "The vulnerability has limited technical impact or low mission impact, with no publicly available exploit code. Standard patching procedures are sufficient."
)

// DecideSSVC walks the SSVC decision tree. Answers are case-insensitive;
// anything unrecognised falls through to Track.
func DecideSSVC(in SSVCInputs) SSVCOutcome {
	expl := strings.ToLower(in.Exploitation)
	tech := strings.ToLower(in.TechnicalImpact)
	auto := strings.ToLower(in.Automatable)
	mission := strings.ToLower(in.MissionImpact)
	highMission := mission == "critical" || mission == "high"

	switch expl {
	case "active":
		return SSVCOutcome{types.SSVCAct, rationaleActive}
	case "poc":
		switch {
		case highMission:
			return SSVCOutcome{types.SSVCAct, rationalePoCAct}
		case mission == "medium":
			return SSVCOutcome{types.SSVCAttend, rationalePoCAttend}
		}
	case "none":
		if tech == "total" {
			if auto == "yes" && highMission {
				return SSVCOutcome{types.SSVCAttend, rationaleAutoAttend}
			}
			return SSVCOutcome{types.SSVCTrackStar, rationaleTrackStar}
		}
	}
	return SSVCOutcome{types.SSVCTrack, rationaleTrack}
}
