package address

import "errors"

// Extractor tries its matchers in order and returns the first hit.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	matchers []Matcher
}

// NewExtractor returns an Extractor over matchers, highest priority first.
func NewExtractor(matchers ...Matcher) (*Extractor, error) {
	if len(matchers) == 0 {
		return nil, errors.New("address: at least one matcher is required")
	}
	return &Extractor{matchers: matchers}, nil
}

// Default returns an Extractor with the built-in labeled and bare rules.
func Default() *Extractor {
	e, err := DefaultRules().Build()
	if err != nil {
		// The built-in rules are constants; a failure here is a programming error.
		panic(err)
	}
	return e
}

// Extract returns the address located in text, or None.
func (e *Extractor) Extract(text string) Address {
	addr, _ := e.ExtractWithRule(text)
	return addr
}

// ExtractWithRule is Extract that also reports the name of the matcher that
// produced the address. The name is empty for None.
func (e *Extractor) ExtractWithRule(text string) (Address, string) {
	for _, m := range e.matchers {
		if v, ok := m.Match(text); ok {
			return Found(v), m.Name()
		}
	}
	return None, ""
}

// Matchers returns the names of the configured matchers in priority order.
func (e *Extractor) Matchers() []string {
	names := make([]string, len(e.matchers))
	for i, m := range e.matchers {
		names[i] = m.Name()
	}
	return names
}
