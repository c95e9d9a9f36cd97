// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package cache holds the on-disk feed cache and the in-process result
// cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is how long a downloaded feed is considered fresh.
const DefaultTTL = 24 * time.Hour

const manifestFile = "manifest.json"

// ErrCorrupt is returned by Load when a cached file no longer matches the
// checksum recorded at download time.
var ErrCorrupt = errors.New("cached feed does not match its recorded checksum")

// Manifest describes the feed snapshot held by a Cache.
type Manifest struct {
	File         string    `json:"file"`
	Source       string    `json:"source,omitempty"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Cache is a directory holding one downloaded feed snapshot. Writes are
// atomic, so a crashed download never leaves a half-written feed behind.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New returns a cache rooted at dir. A non-positive ttl means DefaultTTL.
func New(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Age returns how long ago the snapshot was downloaded. ok is false when
// nothing has been stored yet.
func (c *Cache) Age() (age time.Duration, ok bool) {
	m, err := c.manifest()
	if err != nil {
		return 0, false
	}
	return c.now().Sub(m.DownloadedAt), true
}

// IsFresh reports whether the snapshot is younger than the TTL.
func (c *Cache) IsFresh() bool {
	age, ok := c.Age()
	return ok && age >= 0 && age < c.ttl
}

// Store replaces the snapshot with data fetched from source and records its
// checksum.
func (c *Cache) Store(filename, source string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(c.dir, filename), data); err != nil {
		return fmt.Errorf("writing cache data: %w", err)
	}

	sum := sha256.Sum256(data)
	m := Manifest{
		File:         filename,
		Source:       source,
		SHA256:       hex.EncodeToString(sum[:]),
		Size:         int64(len(data)),
		DownloadedAt: c.now().UTC().Truncate(time.Second),
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := writeAtomic(filepath.Join(c.dir, manifestFile), raw); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Load reads a cached file and verifies it against the manifest. Files
// without a manifest entry are returned unverified.
func (c *Cache) Load(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, filename))
	if err != nil {
		return nil, err
	}
	m, err := c.manifest()
	if err != nil || m.File != filename {
		return data, nil
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != m.SHA256 {
		return nil, fmt.Errorf("%s: %w", filename, ErrCorrupt)
	}
	return data, nil
}

// Exists reports whether filename has been cached.
func (c *Cache) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(c.dir, filename))
	return err == nil
}

// Manifest returns the recorded snapshot metadata.
func (c *Cache) Manifest() (*Manifest, error) {
	return c.manifest()
}

func (c *Cache) manifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
