// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// Default result cache sizing.
const (
	DefaultResultsSize = 4096
	DefaultResultsTTL  = time.Hour
)

// Results memoizes universal scores per fingerprint. It is safe for
// concurrent use.
type Results struct {
	lru *expirable.LRU[string, types.UniversalScoreResult]
}

// NewResults returns a result cache holding up to size entries for ttl.
// Non-positive arguments fall back to the defaults.
func NewResults(size int, ttl time.Duration) *Results {
	if size <= 0 {
		size = DefaultResultsSize
	}
	if ttl <= 0 {
		ttl = DefaultResultsTTL
	}
	return &Results{lru: expirable.NewLRU[string, types.UniversalScoreResult](size, nil, ttl)}
}

// Fingerprint identifies a scoring request: the CVE, the organization, the
// weight configuration hash and a digest of the raw framework inputs, so a
// refreshed feed never serves an old result.
func Fingerprint(set types.FrameworkScoreSet, organizationID, weightsHash string) string {
	h := sha256.New()
	inputs, _ := json.Marshal(set)
	h.Write([]byte(set.CVEID))
	h.Write([]byte{0})
	h.Write([]byte(organizationID))
	h.Write([]byte{0})
	h.Write([]byte(weightsHash))
	h.Write([]byte{0})
	h.Write(inputs)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key. A nil cache always misses.
func (r *Results) Get(key string) (types.UniversalScoreResult, bool) {
	if r == nil {
		return types.UniversalScoreResult{}, false
	}
	res, ok := r.lru.Get(key)
	if !ok {
		return types.UniversalScoreResult{}, false
	}
	return cloneResult(res), true
}

// Add stores res under key. A nil cache ignores the call.
func (r *Results) Add(key string, res types.UniversalScoreResult) {
	if r == nil {
		return
	}
	r.lru.Add(key, cloneResult(res))
}

// Len reports the number of live entries.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return r.lru.Len()
}

// cloneResult copies the conflict slice so callers cannot mutate cached
// entries.
func cloneResult(res types.UniversalScoreResult) types.UniversalScoreResult {
	res.ConflictFlags = append([]string{}, res.ConflictFlags...)
	return res
}
