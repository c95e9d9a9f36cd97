// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/json"
	"fmt"
)

// Report is the subset of Trivy's JSON report that the scorer reads. All
// other data is passed through untouched.
type Report struct {
	SchemaVersion int             `json:"SchemaVersion"`
	ArtifactName  string          `json:"ArtifactName"`
	ArtifactType  string          `json:"ArtifactType"`
	Metadata      json.RawMessage `json:"Metadata,omitempty"`
	Results       []Result        `json:"Results"`
}

// Result is one scan target of a Trivy report.
type Result struct {
	Target            string          `json:"Target"`
	Class             string          `json:"Class,omitempty"`
	Type              string          `json:"Type,omitempty"`
	Vulnerabilities   []Vulnerability `json:"Vulnerabilities,omitempty"`
	Packages          json.RawMessage `json:"Packages,omitempty"`
	Misconfigurations json.RawMessage `json:"Misconfigurations,omitempty"`
	Secrets           json.RawMessage `json:"Secrets,omitempty"`
	Licenses          json.RawMessage `json:"Licenses,omitempty"`

	ExperimentalModifiedFindings []ModifiedFinding `json:"ExperimentalModifiedFindings,omitempty"`
}

// ModifiedFinding is a finding Trivy suppressed (e.g. via .trivyignore or
// VEX) and reported only with --show-suppressed.
type ModifiedFinding struct {
	Type      string        `json:"Type"`
	Status    string        `json:"Status"`
	Statement string        `json:"Statement,omitempty"`
	Source    string        `json:"Source,omitempty"`
	Finding   Vulnerability `json:"Finding"`
}

// IsVulnerability reports whether the suppressed finding is a vulnerability
// rather than a misconfiguration or secret.
func (m ModifiedFinding) IsVulnerability() bool {
	return m.Type == "vulnerability"
}

// Vulnerability is a single Trivy finding. Unknown keys land in Extras and
// are written back on marshal.
type Vulnerability struct {
	VulnerabilityID  string          `json:"VulnerabilityID"`
	PkgName          string          `json:"PkgName"`
	InstalledVersion string          `json:"InstalledVersion"`
	FixedVersion     string          `json:"FixedVersion,omitempty"`
	Severity         string          `json:"Severity"`
	CVSS             json.RawMessage `json:"CVSS,omitempty"`
	Fusion           *Fusion         `json:"Fusion,omitempty"`

	Extras map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON splits the object into typed fields and Extras.
func (v *Vulnerability) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	fields := map[string]*string{
		"VulnerabilityID":  &v.VulnerabilityID,
		"PkgName":          &v.PkgName,
		"InstalledVersion": &v.InstalledVersion,
		"FixedVersion":     &v.FixedVersion,
		"Severity":         &v.Severity,
	}
	for key, dst := range fields {
		raw, ok := all[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		delete(all, key)
	}

	if raw, ok := all["CVSS"]; ok {
		v.CVSS = raw
		delete(all, "CVSS")
	}
	if raw, ok := all["Fusion"]; ok {
		v.Fusion = &Fusion{}
		if err := json.Unmarshal(raw, v.Fusion); err != nil {
			return fmt.Errorf("decoding Fusion: %w", err)
		}
		delete(all, "Fusion")
	}

	if len(all) > 0 {
		v.Extras = all
	}
	return nil
}

// MarshalJSON merges the typed fields over Extras.
func (v Vulnerability) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(v.Extras)+7)
	for k, val := range v.Extras {
		m[k] = val
	}

	m["VulnerabilityID"] = v.VulnerabilityID
	m["PkgName"] = v.PkgName
	m["InstalledVersion"] = v.InstalledVersion
	m["Severity"] = v.Severity
	if v.FixedVersion != "" {
		m["FixedVersion"] = v.FixedVersion
	}
	if v.CVSS != nil {
		m["CVSS"] = v.CVSS
	}
	if v.Fusion != nil {
		m["Fusion"] = v.Fusion
	}

	return json.Marshal(m)
}

// ExtraString decodes a string-valued passthrough field, returning "" when
// it is missing or not a string.
func (v *Vulnerability) ExtraString(key string) string {
	raw, ok := v.Extras[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
