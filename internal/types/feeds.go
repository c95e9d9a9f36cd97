// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

// Fusion is attached to every vulnerability of an enriched Trivy report.
type Fusion struct {
	Inputs    FrameworkScoreSet    `json:"inputs"`
	Result    UniversalScoreResult `json:"result"`
	Rationale string               `json:"ssvcRationale,omitempty"`
	EPSS      *EPSSData            `json:"epss,omitempty"`
	KEV       *KEVData             `json:"kev,omitempty"`
}

// EPSSData is the EPSS feed metadata for a CVE. Score and Percentile stay nil
// when the CVE is missing from the feed.
type EPSSData struct {
	Score        *float64 `json:"score"`
	Percentile   *float64 `json:"percentile"`
	ModelVersion string   `json:"modelVersion,omitempty"`
	ScoreDate    string   `json:"scoreDate,omitempty"`
}

// KEVData is the CISA KEV catalog metadata for a CVE.
type KEVData struct {
	Listed                     bool   `json:"listed"`
	DateAdded                  string `json:"dateAdded,omitempty"`
	DueDate                    string `json:"dueDate,omitempty"`
	RequiredAction             string `json:"requiredAction,omitempty"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse,omitempty"`
	VendorProject              string `json:"vendorProject,omitempty"`
	Product                    string `json:"product,omitempty"`
}

// EPSSEntry is one row of the EPSS CSV feed.
type EPSSEntry struct {
	CVE        string
	Score      float64
	Percentile float64
}

// KEVEntry is one entry of the CISA KEV catalog JSON.
type KEVEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	DateAdded                  string `json:"dateAdded"`
	DueDate                    string `json:"dueDate"`
	RequiredAction             string `json:"requiredAction"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// KEVCatalog is the top-level CISA KEV catalog document.
type KEVCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []KEVEntry `json:"vulnerabilities"`
}
