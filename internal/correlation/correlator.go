// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package correlation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// ErrEmptyProduct is returned for a finding without a product name, which
// would otherwise match every process and component.
var ErrEmptyProduct = errors.New("product name is empty")

// Finding is a statically scored vulnerability to correlate.
type Finding struct {
	CVEID       string
	Product     string
	StaticScore float64
}

// Correlator gathers runtime evidence for findings and evaluates it.
type Correlator struct {
	Sources []EvidenceSource
	Proofs  ProofStore
	Logger  *slog.Logger
}

// Correlate queries every source and the proof store concurrently, then
// evaluates the collected evidence. Failing sources are logged and treated
// as having returned nothing; only context cancellation aborts.
func (c *Correlator) Correlate(ctx context.Context, f Finding) (types.CorrelationReport, error) {
	if strings.TrimSpace(f.Product) == "" {
		return types.CorrelationReport{}, ErrEmptyProduct
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("cve", f.CVEID, "product", f.Product)

	// Each goroutine owns one slot, so results keep source order.
	activity := make([][]types.SIEMEvent, len(c.Sources))
	inventory := make([][]types.InstalledComponent, len(c.Sources))
	var proof *types.ExploitProof

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.Sources {
		g.Go(func() error {
			got, err := src.QueryActivity(gctx, f.Product)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("SIEM query failed, continuing without it", "source", i, "error", err)
				return nil
			}
			activity[i] = got
			return nil
		})
		g.Go(func() error {
			got, err := src.ListInstalledComponents(gctx, f.Product)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("RMM query failed, continuing without it", "source", i, "error", err)
				return nil
			}
			inventory[i] = matchingComponents(got, f.Product)
			return nil
		})
	}
	if c.Proofs != nil {
		g.Go(func() error {
			got, err := c.Proofs.ConfirmedProof(gctx, f.CVEID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("exploit proof lookup failed, continuing without it", "error", err)
				return nil
			}
			proof = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.CorrelationReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.CorrelationReport{}, err
	}

	events := []types.SIEMEvent{}
	for _, got := range activity {
		events = append(events, got...)
	}
	comps := []types.InstalledComponent{}
	for _, got := range inventory {
		comps = append(comps, got...)
	}

	runtime := Evaluate(f.StaticScore, events, comps, proof)
	logger.Debug("runtime risk evaluated",
		"active", runtime.IsActive,
		"multiplier", runtime.Multiplier,
		"priority", runtime.ContainmentPriority)

	return types.CorrelationReport{
		ID:              uuid.New().String(),
		CVEID:           f.CVEID,
		Product:         f.Product,
		StaticRiskScore: f.StaticScore,
		Runtime:         runtime,
		SIEMEvents:      events,
		Components:      comps,
	}, nil
}

// matchingComponents keeps inventory entries whose name contains product,
// ignoring case.
func matchingComponents(in []types.InstalledComponent, product string) []types.InstalledComponent {
	needle := strings.ToLower(product)
	out := make([]types.InstalledComponent, 0, len(in))
	for _, c := range in {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}
