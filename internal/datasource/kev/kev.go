// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package kev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/bonial-oss/vuln-fusion/internal/cache"
	"github.com/bonial-oss/vuln-fusion/internal/types"
)

const (
	cacheFilename      = "known_exploited_vulnerabilities.json"
	DefaultPrimaryURL  = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	DefaultFallbackURL = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"
	maxResponseSize    = 50 * 1024 * 1024 // 50 MB
)

// Source provides access to CISA KEV data with caching support.
type Source struct {
	cache          *cache.Cache
	primaryURL     string
	fallbackURL    string
	client         *http.Client
	logger         *slog.Logger
	catalogVersion string
	entries        map[string]types.KEVEntry
}

// Option customizes a Source.
type Option func(*Source)

// WithURLs replaces the primary and fallback catalog locations.
func WithURLs(primary, fallback string) Option {
	return func(s *Source) {
		s.primaryURL = primary
		s.fallbackURL = fallback
	}
}

// WithHTTPClient replaces the default client (60s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithLogger sets the logger used for stale-cache warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithTTL sets how long a download stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(s *Source) { s.cache = cache.New(s.cache.Dir(), ttl) }
}

// NewSource creates a new KEV data source with cache stored under cacheDir/kev/.
func NewSource(cacheDir string, opts ...Option) *Source {
	s := &Source{
		cache:       cache.New(filepath.Join(cacheDir, "kev"), cache.DefaultTTL),
		primaryURL:  DefaultPrimaryURL,
		fallbackURL: DefaultFallbackURL,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      slog.Default(),
		entries:     make(map[string]types.KEVEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches KEV data, using cache when appropriate.
//
// Logic:
//  1. If skipUpdate and cache exists -> load from cache, parse, return.
//  2. If cache is fresh -> load from cache, parse, return; a corrupt cache
//     file is downloaded again.
//  3. Download fresh data.
//  4. If download succeeds -> store in cache, parse, return.
//  5. If download fails and cache exists -> warn, load stale cache, parse, return.
//  6. If download fails and no cache -> return error.
func (s *Source) Load(ctx context.Context, skipUpdate bool) error {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		err := s.loadFromCache()
		if !errors.Is(err, cache.ErrCorrupt) {
			return err
		}
		s.logger.Warn("cached KEV data is corrupt, downloading again", "error", err)
	}

	data, source, err := s.download(ctx)
	if err == nil {
		if storeErr := s.cache.Store(cacheFilename, source, data); storeErr != nil {
			return fmt.Errorf("storing KEV data in cache: %w", storeErr)
		}
		return s.parseJSON(data)
	}

	if s.cache.Exists(cacheFilename) {
		age, _ := s.cache.Age()
		s.logger.Warn("failed to download KEV data, using stale cache", "error", err, "age", age.Round(time.Minute))
		return s.loadFromCache()
	}

	return fmt.Errorf("downloading KEV data: %w", err)
}

// Len returns the number of catalog entries.
func (s *Source) Len() int {
	return len(s.entries)
}

// CatalogVersion returns the version of the loaded catalog.
func (s *Source) CatalogVersion() string {
	return s.catalogVersion
}

// Lookup returns the KEV entry for the given CVE ID, or nil if not found.
func (s *Source) Lookup(cveID string) *types.KEVEntry {
	entry, ok := s.entries[cveID]
	if !ok {
		return nil
	}
	return &entry
}

// loadFromCache loads and parses the cached JSON file.
func (s *Source) loadFromCache() error {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return fmt.Errorf("loading KEV data from cache: %w", err)
	}
	return s.parseJSON(data)
}

// download fetches the KEV catalog JSON from the primary URL.
// If the primary URL fails, it falls back to the GitHub mirror.
// If both fail, it returns an error.
// The URL that served the catalog is returned with it.
func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	data, err := s.downloadFrom(ctx, s.primaryURL)
	if err == nil {
		return data, s.primaryURL, nil
	}
	if ctx.Err() != nil {
		return nil, "", fmt.Errorf("primary (%s): %w", s.primaryURL, err)
	}

	data, err2 := s.downloadFrom(ctx, s.fallbackURL)
	if err2 == nil {
		return data, s.fallbackURL, nil
	}

	return nil, "", fmt.Errorf("primary (%s): %w; fallback (%s): %v", s.primaryURL, err, s.fallbackURL, err2)
}

// downloadFrom downloads the KEV JSON from the given URL.
func (s *Source) downloadFrom(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return data, nil
}

// parseJSON unmarshals the KEV catalog JSON and populates the entries map.
func (s *Source) parseJSON(data []byte) error {
	s.entries = make(map[string]types.KEVEntry)

	var catalog types.KEVCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}

	s.catalogVersion = catalog.CatalogVersion
	for _, vuln := range catalog.Vulnerabilities {
		s.entries[vuln.CVEID] = vuln
	}

	return nil
}
