// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package correlation

import (
	"context"
	"errors"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// EvidenceSource is a SIEM and/or RMM adapter. Sources that only support one
// side return an empty slice for the other.
type EvidenceSource interface {
	// QueryActivity returns log hits for processes belonging to product.
	QueryActivity(ctx context.Context, product string) ([]types.SIEMEvent, error)
	// ListInstalledComponents returns the software inventory. Callers filter
	// by product name; sources may pre-filter.
	ListInstalledComponents(ctx context.Context, product string) ([]types.InstalledComponent, error)
}

// ProofStore looks up validated exploit proofs.
type ProofStore interface {
	// ConfirmedProof returns the first confirmed proof for cveID, or nil.
	ConfirmedProof(ctx context.Context, cveID string) (*types.ExploitProof, error)
}

// ProofStores queries several proof stores in order and returns the first
// confirmed proof found.
type ProofStores []ProofStore

// ConfirmedProof implements ProofStore.
func (ps ProofStores) ConfirmedProof(ctx context.Context, cveID string) (*types.ExploitProof, error) {
	var errs []error
	for _, s := range ps {
		proof, err := s.ConfirmedProof(ctx, cveID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if proof != nil {
			return proof, nil
		}
	}
	return nil, errors.Join(errs...)
}
