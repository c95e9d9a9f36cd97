// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package weights holds the per-organization framework weight configuration
// used by the universal score composer.
package weights

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bonial-oss/vuln-fusion/internal/types"
)

// The weight total must fall strictly inside (minTotal, maxTotal).
const (
	minTotal = 0.99
	maxTotal = 1.01
)

// ErrInvalidWeights is the sentinel wrapped by every validation failure.
var ErrInvalidWeights = errors.New("invalid weight configuration")

// InvalidError describes why a configuration cannot be persisted.
type InvalidError struct {
	Sum       float64
	Framework string // set when a single weight is out of [0,1]
	Value     float64
}

func (e *InvalidError) Error() string {
	if e.Framework != "" {
		return fmt.Sprintf("weight for %s must be between 0 and 1 (got %.2f)", e.Framework, e.Value)
	}
	return fmt.Sprintf("weights must sum to 1.0 (current sum: %.2f)", e.Sum)
}

func (e *InvalidError) Unwrap() error { return ErrInvalidWeights }

// Configuration maps a framework name to its weight. KEV's weight is kept
// for display only; KEV contributes a flat bonus to the score.
type Configuration map[string]float64

// Default returns the recommended weights.
func Default() Configuration {
	return Configuration{
		types.FrameworkCVSS: 0.4,
		types.FrameworkEPSS: 0.3,
		types.FrameworkKEV:  0.2,
		types.FrameworkSSVC: 0.1,
		types.FrameworkLEV:  0.0,
	}
}

// Get returns the weight for framework, or 0 when it is not configured.
func (c Configuration) Get(framework string) float64 {
	return c[framework]
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Adjust returns a copy with framework set to value. The receiver is left
// untouched so a scoring batch can keep using its snapshot.
func (c Configuration) Adjust(framework string, value float64) Configuration {
	out := c.Clone()
	out[strings.ToLower(framework)] = value
	return out
}

// Total is the sum of all weights rounded to two decimals.
func (c Configuration) Total() float64 {
	return math.Round(c.sum()*100) / 100
}

func (c Configuration) sum() float64 {
	var total float64
	for _, name := range c.names() {
		total += c[name]
	}
	return total
}

// Validate checks that every weight lies in [0,1] and that the total is
// within 0.01 of 1.0.
func (c Configuration) Validate() error {
	for _, name := range c.names() {
		if v := c[name]; v < 0 || v > 1 || math.IsNaN(v) {
			return &InvalidError{Sum: c.sum(), Framework: name, Value: v}
		}
	}
	total := c.sum()
	if total <= minTotal || total >= maxTotal {
		return &InvalidError{Sum: total}
	}
	return nil
}

// Hash is a stable fingerprint of the configuration, suitable as a cache key
// component.
func (c Configuration) Hash() string {
	h := sha256.New()
	for _, name := range c.names() {
		fmt.Fprintf(h, "%s=%s;", name, strconv.FormatFloat(c[name], 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c Configuration) names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseAssignments applies "framework=value" pairs on top of base.
func ParseAssignments(base Configuration, assignments []string) (Configuration, error) {
	out := base.Clone()
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid weight assignment %q: want framework=value", a)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %w", name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid weight for %s: %q is not a finite number", name, raw)
		}
		out[name] = v
	}
	return out, nil
}
