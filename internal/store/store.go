// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package store persists fused scores and runtime assessments. Score rows are
// keyed by (cve_id, organization_id); runtime rows additionally by product.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("not found")

// Store is the persistence capability used by the CLI.
type Store interface {
	Migrate(ctx context.Context) error
	UpsertScore(ctx context.Context, organizationID, weightsHash string, score types.ScoredCVE) error
	GetScore(ctx context.Context, organizationID, cveID string) (*ScoreRecord, error)
	UpsertRuntime(ctx context.Context, organizationID string, report types.CorrelationReport) error
	Close() error
}

// ScoreRecord is a persisted fused score.
type ScoreRecord struct {
	CVEID          string
	OrganizationID string
	WeightsHash    string
	Input          types.FrameworkScoreSet
	Result         types.UniversalScoreResult
	UpdatedAt      time.Time
}

// Config selects and locates the database.
type Config struct {
	Driver string // sqlite (default) or postgres
	Path   string // SQLite file
	DSN    string // Postgres connection string
}

// Open connects to the configured database. Callers run Migrate before use.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite, "sqlite3":
		return NewSQLite(ctx, cfg.Path)
	case DriverPostgres, "postgresql", "pgx":
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

type migration struct {
	name string
	sql  string
}

// migrations returns the embedded migrations of a dialect in file order.
func migrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		out = append(out, migration{name: name, sql: string(data)})
	}
	return out, nil
}

func encodeScore(score types.ScoredCVE) (input, result []byte, err error) {
	if input, err = json.Marshal(score.Input); err != nil {
		return nil, nil, fmt.Errorf("encoding score input: %w", err)
	}
	if result, err = json.Marshal(score.Result); err != nil {
		return nil, nil, fmt.Errorf("encoding score result: %w", err)
	}
	return input, result, nil
}

func decodeScore(rec *ScoreRecord, input, result []byte) error {
	if err := json.Unmarshal(input, &rec.Input); err != nil {
		return fmt.Errorf("decoding score input: %w", err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return fmt.Errorf("decoding score result: %w", err)
	}
	return nil
}
