package address

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher recognises one address layout.
type Matcher interface {
	// Name identifies the matcher in logs and rule files.
	Name() string

	// Match returns the trimmed address and true if the layout is present.
	Match(text string) (string, bool)
}

// LabeledMatcher finds the text between a start and an end label, e.g.
// "Address 1 Infinite Loop, Cupertino, CA 95014 Coordinates 37.33,-122.03".
// The interior is captured non-greedily, so the first start label pairs with
// the nearest following end label.
type LabeledMatcher struct {
	name      string
	re        *regexp.Regexp
	minLength int
}

// NewLabeledMatcher builds a matcher for the given labels. Labels are matched
// literally and must be separated from the address by whitespace.
// Captures shorter than minLength runes are rejected; 0 accepts anything,
// including an empty capture.
func NewLabeledMatcher(name, startLabel, endLabel string, minLength int) (*LabeledMatcher, error) {
	if startLabel == "" || endLabel == "" {
		return nil, fmt.Errorf("labeled matcher %q: start and end labels are required", name)
	}
	if minLength < 0 {
		return nil, fmt.Errorf("labeled matcher %q: min_length must not be negative", name)
	}
	pattern := regexp.QuoteMeta(startLabel) + `\s+(.*?)\s+` + regexp.QuoteMeta(endLabel)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("labeled matcher %q: %w", name, err)
	}
	return &LabeledMatcher{name: name, re: re, minLength: minLength}, nil
}

// Name implements Matcher.
func (m *LabeledMatcher) Name() string { return m.name }

// Match implements Matcher.
func (m *LabeledMatcher) Match(text string) (string, bool) {
	sub := m.re.FindStringSubmatch(text)
	if sub == nil {
		return "", false
	}
	captured := strings.TrimSpace(sub[1])
	if len([]rune(captured)) < m.minLength {
		return "", false
	}
	return captured, true
}

// PatternMatcher returns the leftmost match of a regular expression.
type PatternMatcher struct {
	name  string
	re    *regexp.Regexp
	group int
}

// NewPatternMatcher compiles pattern. group selects the capture group to
// return; 0 returns the whole match.
func NewPatternMatcher(name, pattern string, group int) (*PatternMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern matcher %q: %w", name, err)
	}
	if group < 0 || group > re.NumSubexp() {
		return nil, fmt.Errorf("pattern matcher %q: group %d out of range (pattern has %d)", name, group, re.NumSubexp())
	}
	return &PatternMatcher{name: name, re: re, group: group}, nil
}

// Name implements Matcher.
func (m *PatternMatcher) Name() string { return m.name }

// Match implements Matcher.
func (m *PatternMatcher) Match(text string) (string, bool) {
	sub := m.re.FindStringSubmatch(text)
	if sub == nil {
		return "", false
	}
	return strings.TrimSpace(sub[m.group]), true
}
