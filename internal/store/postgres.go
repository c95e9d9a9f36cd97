// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlUpsertScore = `
		INSERT INTO scores (cve_id, organization_id, weights_hash, universal_risk_score, scoring_confidence, input, result, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cve_id, organization_id) DO UPDATE SET
			weights_hash = EXCLUDED.weights_hash,
			universal_risk_score = EXCLUDED.universal_risk_score,
			scoring_confidence = EXCLUDED.scoring_confidence,
			input = EXCLUDED.input,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at`

	sqlGetScore = `
		SELECT weights_hash, input, result, updated_at
		FROM scores
		WHERE cve_id = $1 AND organization_id = $2`

	sqlUpsertRuntime = `
		INSERT INTO runtime_assessments (id, cve_id, organization_id, product, static_risk_score, true_risk_score,
			multiplier, containment_priority, is_active, report, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cve_id, organization_id, product) DO UPDATE SET
			id = EXCLUDED.id,
			static_risk_score = EXCLUDED.static_risk_score,
			true_risk_score = EXCLUDED.true_risk_score,
			multiplier = EXCLUDED.multiplier,
			containment_priority = EXCLUDED.containment_priority,
			is_active = EXCLUDED.is_active,
			report = EXCLUDED.report,
			evaluated_at = EXCLUDED.evaluated_at`
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool DBPool
	now  func() time.Time
}

// NewPostgres connects a pgx pool to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	s, err := NewPostgresWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool and verifies the connection.
func NewPostgresWithPool(ctx context.Context, pool DBPool) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies every embedded migration. Postgres migrations are written
// to be idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	all, err := migrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range all {
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		slog.Debug("applied migration", "file", m.name)
	}
	return nil
}

// UpsertScore stores the latest fused score for a CVE and organization.
func (s *Postgres) UpsertScore(ctx context.Context, organizationID, weightsHash string, score types.ScoredCVE) error {
	input, result, err := encodeScore(score)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlUpsertScore,
		score.Input.CVEID, organizationID, weightsHash,
		score.Result.UniversalRiskScore, score.Result.ScoringConfidence,
		input, result, s.now().UTC())
	if err != nil {
		return fmt.Errorf("upserting score %s: %w", score.Input.CVEID, err)
	}
	return nil
}

// GetScore returns the stored score, or ErrNotFound.
func (s *Postgres) GetScore(ctx context.Context, organizationID, cveID string) (*ScoreRecord, error) {
	rec := &ScoreRecord{CVEID: cveID, OrganizationID: organizationID}
	var input, result []byte
	err := s.pool.QueryRow(ctx, sqlGetScore, cveID, organizationID).
		Scan(&rec.WeightsHash, &input, &result, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("score %s for organization %q: %w", cveID, organizationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading score %s: %w", cveID, err)
	}
	if err := decodeScore(rec, input, result); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertRuntime stores the latest runtime assessment for a CVE, product and
// organization.
func (s *Postgres) UpsertRuntime(ctx context.Context, organizationID string, report types.CorrelationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding runtime report: %w", err)
	}
	rt := report.Runtime
	_, err = s.pool.Exec(ctx, sqlUpsertRuntime,
		report.ID, report.CVEID, organizationID, report.Product, report.StaticRiskScore, rt.TrueRiskScore,
		rt.Multiplier, string(rt.ContainmentPriority), rt.IsActive, data, s.now().UTC())
	if err != nil {
		return fmt.Errorf("upserting runtime assessment %s: %w", report.CVEID, err)
	}
	return nil
}
