// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "encoding/json"

// SARIFReport is the subset of a SARIF 2.1.0 log that scoring reads. Every
// field the scorer does not model is carried through unchanged in Extras.
type SARIFReport struct {
	Schema  string                     `json:"$schema"`
	Version string                     `json:"version"`
	Runs    []SARIFRun                 `json:"runs"`
	Extras  map[string]json.RawMessage `json:"-"`
}

// SARIFRun is one tool invocation. The tool object is kept raw; its rules
// are decoded on demand by Rules.
type SARIFRun struct {
	Tool    json.RawMessage            `json:"tool"`
	Results []SARIFResult              `json:"results"`
	Extras  map[string]json.RawMessage `json:"-"`
}

// SARIFResult is a single reported finding.
type SARIFResult struct {
	RuleID     string                     `json:"ruleId"`
	Level      string                     `json:"level"`
	Message    json.RawMessage            `json:"message"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Extras     map[string]json.RawMessage `json:"-"`
}

// SARIFRule is a reporting descriptor from tool.driver.rules.
type SARIFRule struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// Rules decodes the driver rules of the run. A run without a tool or
// without rules yields nil.
func (r SARIFRun) Rules() ([]SARIFRule, error) {
	if len(r.Tool) == 0 {
		return nil, nil
	}
	var tool struct {
		Driver struct {
			Rules []SARIFRule `json:"rules"`
		} `json:"driver"`
	}
	if err := json.Unmarshal(r.Tool, &tool); err != nil {
		return nil, err
	}
	return tool.Driver.Rules, nil
}

func (r *SARIFReport) UnmarshalJSON(data []byte) error {
	fields, extras, err := splitFields(data, "$schema", "version", "runs")
	if err != nil {
		return err
	}
	if err := decodeField(fields, "$schema", &r.Schema); err != nil {
		return err
	}
	if err := decodeField(fields, "version", &r.Version); err != nil {
		return err
	}
	if err := decodeField(fields, "runs", &r.Runs); err != nil {
		return err
	}
	r.Extras = extras
	return nil
}

func (r SARIFReport) MarshalJSON() ([]byte, error) {
	runs := r.Runs
	if runs == nil {
		runs = []SARIFRun{}
	}
	return joinFields(r.Extras, map[string]any{
		"$schema": r.Schema,
		"version": r.Version,
		"runs":    runs,
	})
}

func (r *SARIFRun) UnmarshalJSON(data []byte) error {
	fields, extras, err := splitFields(data, "tool", "results")
	if err != nil {
		return err
	}
	r.Tool = fields["tool"]
	if err := decodeField(fields, "results", &r.Results); err != nil {
		return err
	}
	r.Extras = extras
	return nil
}

// MarshalJSON always emits tool and results since SARIF requires both.
func (r SARIFRun) MarshalJSON() ([]byte, error) {
	tool := r.Tool
	if tool == nil {
		tool = json.RawMessage(`{}`)
	}
	results := r.Results
	if results == nil {
		results = []SARIFResult{}
	}
	return joinFields(r.Extras, map[string]any{"tool": tool, "results": results})
}

func (r *SARIFResult) UnmarshalJSON(data []byte) error {
	fields, extras, err := splitFields(data, "ruleId", "level", "message", "properties")
	if err != nil {
		return err
	}
	if err := decodeField(fields, "ruleId", &r.RuleID); err != nil {
		return err
	}
	if err := decodeField(fields, "level", &r.Level); err != nil {
		return err
	}
	r.Message = fields["message"]
	if _, ok := fields["properties"]; ok {
		r.Properties = map[string]json.RawMessage{}
		if err := decodeField(fields, "properties", &r.Properties); err != nil {
			return err
		}
	}
	r.Extras = extras
	return nil
}

func (r SARIFResult) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if r.RuleID != "" {
		known["ruleId"] = r.RuleID
	}
	if r.Level != "" {
		known["level"] = r.Level
	}
	if r.Message != nil {
		known["message"] = r.Message
	}
	if len(r.Properties) > 0 {
		known["properties"] = r.Properties
	}
	return joinFields(r.Extras, known)
}

// splitFields separates the named keys of a JSON object from the rest.
// extras is nil when every key is known.
func splitFields(data []byte, known ...string) (fields, extras map[string]json.RawMessage, err error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil, err
	}
	fields = make(map[string]json.RawMessage, len(known))
	for _, k := range known {
		if raw, ok := all[k]; ok {
			fields[k] = raw
			delete(all, k)
		}
	}
	if len(all) > 0 {
		extras = all
	}
	return fields, extras, nil
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// joinFields merges typed fields over the passthrough extras.
func joinFields(extras map[string]json.RawMessage, known map[string]any) ([]byte, error) {
	m := make(map[string]any, len(extras)+len(known))
	for k, v := range extras {
		m[k] = v
	}
	for k, v := range known {
		m[k] = v
	}
	return json.Marshal(m)
}
