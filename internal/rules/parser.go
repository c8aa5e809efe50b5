package rules

import (
	"encoding/json"
	"fmt"
)

// ParseRules unmarshals the §6 rule-set wire schema. This is the one
// place the core is allowed to fail loudly: malformed JSON at the
// boundary is an input-shape error, not a semantic degradation.
func ParseRules(data []byte) ([]*Rule, error) {
	var parsed []*Rule
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("ctxrules: failed to unmarshal rule set: %w", err)
	}
	for _, r := range parsed {
		r.WithDefaults()
	}
	return parsed, nil
}

// ExportRulesJSON re-serializes a rule set to the §6 wire schema.
func ExportRulesJSON(rs []*Rule) ([]byte, error) {
	if rs == nil {
		rs = []*Rule{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("ctxrules: failed to marshal rule set: %w", err)
	}
	return data, nil
}

// MarshalResults renders MatchResults per the §6 evaluation-result schema.
func MarshalResults(results []MatchResult) ([]byte, error) {
	if results == nil {
		results = []MatchResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("ctxrules: failed to marshal results: %w", err)
	}
	return data, nil
}
