// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "encoding/json"

// Maturity is the exploit-proof maturity level.
type Maturity string

const (
	MaturityPoC        Maturity = "poc"
	MaturityFunctional Maturity = "functional"
	MaturityWeaponized Maturity = "weaponized"
)

// ContainmentPriority is the urgency tier for isolating or patching an asset.
type ContainmentPriority string

const (
	ContainmentImmediate ContainmentPriority = "immediate"
	ContainmentHigh      ContainmentPriority = "high"
	ContainmentLow       ContainmentPriority = "low"
)

// SIEMEvent is a single log hit returned by a SIEM activity query.
type SIEMEvent struct {
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp"`
	Host      string `json:"host" yaml:"host"`
	Process   string `json:"process" yaml:"process"`
	CVEID     string `json:"cve_id,omitempty" yaml:"cve_id"`
}

// InstalledComponent is a software inventory entry reported by an RMM tool.
type InstalledComponent struct {
	Host    string `json:"host,omitempty" yaml:"host"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version"`
}

// ExploitProof is a validated exploit record for a CVE.
type ExploitProof struct {
	ID                 string          `json:"id" yaml:"id"`
	CVEID              string          `json:"cve_id" yaml:"cve_id"`
	Maturity           Maturity        `json:"maturity_level,omitempty" yaml:"maturity_level"`
	ValidationStatus   string          `json:"validation_status,omitempty" yaml:"validation_status"`
	ValidationEvidence json.RawMessage `json:"validation_evidence,omitempty" yaml:"-"`
}

// RuntimeRiskResult is the runtime-adjusted view of a static score.
type RuntimeRiskResult struct {
	IsActive              bool                `json:"is_active"`
	ExploitProofAvailable bool                `json:"exploit_proof_available"`
	Multiplier            float64             `json:"multiplier"`
	TrueRiskScore         float64             `json:"true_risk_score"`
	ActiveProcesses       []string            `json:"active_processes"`
	AffectedHosts         []string            `json:"affected_hosts"`
	ContainmentPriority   ContainmentPriority `json:"containment_priority"`
	ExploitProofID        string              `json:"exploit_proof_id,omitempty"`
	ValidationEvidence    json.RawMessage     `json:"validation_evidence,omitempty"`
}

// CorrelationReport bundles the evidence gathered for a finding with the
// evaluated runtime risk.
type CorrelationReport struct {
	ID              string               `json:"id"`
	CVEID           string               `json:"cve_id"`
	Product         string               `json:"product"`
	StaticRiskScore float64              `json:"static_risk_score"`
	Runtime         RuntimeRiskResult    `json:"runtime"`
	SIEMEvents      []SIEMEvent          `json:"siem_events"`
	Components      []InstalledComponent `json:"components"`
}
