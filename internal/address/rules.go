package address

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Rule kinds.
const (
	KindLabeled = "labeled"
	KindPattern = "pattern"
)

const (
	// BarePattern matches "number street, city, ST ZIP". Street and city
	// accept letters and digits of any script.
	BarePattern = `\d{1,5}[\p{L}\p{N}_\s]+?,\s*[\p{L}\p{N}_\s]+?,\s*[A-Z]{2}\s*\d{5}`

	DefaultStartLabel = "Address"
	DefaultEndLabel   = "Coordinates"
)

// Rule describes one matcher in a rules file.
type Rule struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// labeled
	StartLabel string `yaml:"start_label,omitempty"`
	EndLabel   string `yaml:"end_label,omitempty"`
	MinLength  int    `yaml:"min_length,omitempty"`

	// pattern
	Pattern string `yaml:"pattern,omitempty"`
	Group   int    `yaml:"group,omitempty"`
}

// RuleSet is an ordered list of rules, highest priority first.
//
//	rules:
//	  - name: labeled
//	    kind: labeled
//	    start_label: Address
//	    end_label: Coordinates
//	  - name: bare
//	    kind: pattern
//	    pattern: '\d{1,5}[\p{L}\p{N}_\s]+?,\s*[\p{L}\p{N}_\s]+?,\s*[A-Z]{2}\s*\d{5}'
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the labeled rule followed by the bare rule.
func DefaultRules() RuleSet {
	return RuleSet{Rules: []Rule{
		{Name: "labeled", Kind: KindLabeled, StartLabel: DefaultStartLabel, EndLabel: DefaultEndLabel},
		{Name: "bare", Kind: KindPattern, Pattern: BarePattern},
	}}
}

// ParseRules decodes a YAML rule set.
func ParseRules(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("address: parse rules: %w", err)
	}
	if len(rs.Rules) == 0 {
		return RuleSet{}, fmt.Errorf("address: rules file defines no rules")
	}
	return rs, nil
}

// LoadRules reads a YAML rule set from path.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("address: read rules: %w", err)
	}
	return ParseRules(data)
}

// Build compiles the rule set into an Extractor.
func (rs RuleSet) Build() (*Extractor, error) {
	seen := make(map[string]bool, len(rs.Rules))
	matchers := make([]Matcher, 0, len(rs.Rules))
	for i, r := range rs.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("address: duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true

		var (
			m   Matcher
			err error
		)
		switch r.Kind {
		case KindLabeled:
			m, err = NewLabeledMatcher(r.Name, r.StartLabel, r.EndLabel, r.MinLength)
		case KindPattern:
			m, err = NewPatternMatcher(r.Name, r.Pattern, r.Group)
		default:
			err = fmt.Errorf("address: rule %q: unknown kind %q", r.Name, r.Kind)
		}
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return NewExtractor(matchers...)
}
