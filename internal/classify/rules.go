package classify

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// LoadTable reads a keyword table from a YAML file. Sections omitted from
// the file keep their DefaultTable values.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML keyword table on top of DefaultTable.
func ParseTable(data []byte) (Table, error) {
	var raw Table
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Table{}, fmt.Errorf("parse rules: %w", err)
	}

	t := DefaultTable()
	if raw.Complexity != nil {
		t.Complexity = raw.Complexity
	}
	if raw.Splits != nil {
		t.Splits = raw.Splits
	}
	if raw.SplitFallback != nil {
		t.SplitFallback = raw.SplitFallback
	}
	if raw.Results != nil {
		t.Results = raw.Results
	}
	if raw.ResultFallback != "" {
		t.ResultFallback = raw.ResultFallback
	}

	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("invalid rules: %w", err)
	}
	return t, nil
}

// MarshalTable encodes t as YAML, for writing a starter rules file.
func MarshalTable(t Table) ([]byte, error) {
	return yaml.Marshal(t)
}

// NewFromRules builds a KeywordClassifier from an optional rules file.
// An empty rulesFile uses DefaultTable.
func NewFromRules(rulesFile string, latency Latency) (*KeywordClassifier, error) {
	opts := []Option{WithLatency(latency)}
	if rulesFile != "" {
		table, err := LoadTable(rulesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTable(table))
	}
	return NewKeywordClassifier(opts...), nil
}
