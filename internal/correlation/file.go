// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

const proofConfirmed = "confirmed"

// evidenceFile is the on-disk layout of an evidence export. JSON is accepted
// as well since it parses as YAML.
type evidenceFile struct {
	SIEMEvents    []types.SIEMEvent          `yaml:"siem_events"`
	Components    []types.InstalledComponent `yaml:"components"`
	ExploitProofs []proofRecord              `yaml:"exploit_proofs"`
}

type proofRecord struct {
	ID                 string         `yaml:"id"`
	CVEID              string         `yaml:"cve_id"`
	Maturity           types.Maturity `yaml:"maturity_level"`
	ValidationStatus   string         `yaml:"validation_status"`
	ValidationEvidence any            `yaml:"validation_evidence"`
}

// FileSource serves SIEM events, inventory and exploit proofs from a static
// export. It implements both EvidenceSource and ProofStore.
type FileSource struct {
	events     []types.SIEMEvent
	components []types.InstalledComponent
	proofs     []types.ExploitProof
}

// LoadFile reads an evidence export from path.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading evidence file: %w", err)
	}
	return ParseEvidence(data)
}

// ParseEvidence decodes a YAML or JSON evidence export.
func ParseEvidence(data []byte) (*FileSource, error) {
	var f evidenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing evidence: %w", err)
	}

	src := &FileSource{events: f.SIEMEvents, components: f.Components}
	for _, p := range f.ExploitProofs {
		proof := types.ExploitProof{
			ID:               p.ID,
			CVEID:            p.CVEID,
			Maturity:         types.Maturity(strings.ToLower(string(p.Maturity))),
			ValidationStatus: p.ValidationStatus,
		}
		if p.ValidationEvidence != nil {
			raw, err := json.Marshal(p.ValidationEvidence)
			if err != nil {
				return nil, fmt.Errorf("encoding validation evidence of proof %q: %w", p.ID, err)
			}
			proof.ValidationEvidence = raw
		}
		src.proofs = append(src.proofs, proof)
	}
	return src, nil
}

// QueryActivity returns events whose process name starts with product,
// ignoring case.
func (s *FileSource) QueryActivity(ctx context.Context, product string) ([]types.SIEMEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.ToLower(product)
	var out []types.SIEMEvent
	for _, ev := range s.events {
		if strings.HasPrefix(strings.ToLower(ev.Process), prefix) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListInstalledComponents returns the full inventory; the correlator filters
// it by product.
func (s *FileSource) ListInstalledComponents(ctx context.Context, _ string) ([]types.InstalledComponent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.InstalledComponent(nil), s.components...), nil
}

// ConfirmedProof returns the first confirmed proof recorded for cveID.
func (s *FileSource) ConfirmedProof(ctx context.Context, cveID string) (*types.ExploitProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range s.proofs {
		p := s.proofs[i]
		if strings.EqualFold(p.CVEID, cveID) && strings.EqualFold(p.ValidationStatus, proofConfirmed) {
			return &p, nil
		}
	}
	return nil, nil
}
