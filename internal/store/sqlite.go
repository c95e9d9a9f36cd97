// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// SQLite implements Store on a local SQLite file via mattn/go-sqlite3.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded migrations not yet recorded in
// schema_migrations.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT NOT NULL PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	all, err := migrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range all {
		var count int
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`, m.name)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", m.name, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`,
			m.name, s.now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
		slog.Debug("applied migration", "file", m.name)
	}
	return nil
}

// UpsertScore stores the latest fused score for a CVE and organization.
func (s *SQLite) UpsertScore(ctx context.Context, organizationID, weightsHash string, score types.ScoredCVE) error {
	input, result, err := encodeScore(score)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scores (cve_id, organization_id, weights_hash, universal_risk_score, scoring_confidence, input, result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cve_id, organization_id) DO UPDATE SET
			weights_hash = excluded.weights_hash,
			universal_risk_score = excluded.universal_risk_score,
			scoring_confidence = excluded.scoring_confidence,
			input = excluded.input,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		score.Input.CVEID, organizationID, weightsHash,
		score.Result.UniversalRiskScore, score.Result.ScoringConfidence,
		string(input), string(result), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting score %s: %w", score.Input.CVEID, err)
	}
	return nil
}

// GetScore returns the stored score, or ErrNotFound.
func (s *SQLite) GetScore(ctx context.Context, organizationID, cveID string) (*ScoreRecord, error) {
	rec := &ScoreRecord{CVEID: cveID, OrganizationID: organizationID}
	var input, result, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT weights_hash, input, result, updated_at
		FROM scores
		WHERE cve_id = ? AND organization_id = ?`,
		cveID, organizationID).Scan(&rec.WeightsHash, &input, &result, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("score %s for organization %q: %w", cveID, organizationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading score %s: %w", cveID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parsing score timestamp: %w", err)
	}
	if err := decodeScore(rec, []byte(input), []byte(result)); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertRuntime stores the latest runtime assessment for a CVE, product and
// organization.
func (s *SQLite) UpsertRuntime(ctx context.Context, organizationID string, report types.CorrelationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding runtime report: %w", err)
	}
	rt := report.Runtime
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runtime_assessments (id, cve_id, organization_id, product, static_risk_score, true_risk_score,
			multiplier, containment_priority, is_active, report, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cve_id, organization_id, product) DO UPDATE SET
			id = excluded.id,
			static_risk_score = excluded.static_risk_score,
			true_risk_score = excluded.true_risk_score,
			multiplier = excluded.multiplier,
			containment_priority = excluded.containment_priority,
			is_active = excluded.is_active,
			report = excluded.report,
			evaluated_at = excluded.evaluated_at`,
		report.ID, report.CVEID, organizationID, report.Product, report.StaticRiskScore, rt.TrueRiskScore,
		rt.Multiplier, string(rt.ContainmentPriority), rt.IsActive, string(data),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting runtime assessment %s: %w", report.CVEID, err)
	}
	return nil
}
