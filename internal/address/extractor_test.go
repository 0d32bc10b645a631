package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	ext := Default()

	tests := []struct {
		name      string
		text      string
		want      string
		wantFound bool
		wantRule  string
	}{
		{
			name:      "labeled layout",
			text:      "Apple Park Address 123 Main St, Springfield, IL 62704 Coordinates 39.80,-89.64 Share",
			want:      "123 Main St, Springfield, IL 62704",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "bare layout",
			text:      "Visit us at 456 Oak Ave, Metropolis, NY 10001 for details",
			want:      "456 Oak Ave, Metropolis, NY 10001",
			wantFound: true,
			wantRule:  "bare",
		},
		{
			name: "no address",
			text: "Thank you for your purchase",
		},
		{
			name: "empty text",
			text: "",
		},
		{
			name: "sentinel text is ordinary input",
			text: Sentinel,
		},
		{
			name:      "labeled wins over earlier bare match",
			text:      "Footer 789 Elm St, Gotham, NJ 07001 Address 1 Infinite Loop, Cupertino, CA 95014 Coordinates 37.33,-122.03",
			want:      "1 Infinite Loop, Cupertino, CA 95014",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "first address label pairs with nearest coordinates",
			text:      "Address 1 First St Coordinates 1,1 Address 2 Second St Coordinates 2,2",
			want:      "1 First St",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "labeled interior is not validated",
			text:      "Address Saved Places Coordinates 0,0",
			want:      "Saved Places",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "empty labeled capture is found and empty",
			text:      "Address  Coordinates 10 Downing St, London, UK 12345",
			want:      "",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "labels without surrounding whitespace fall back to bare",
			text:      "Address Coordinates 10 Downing St, London, UK 12345",
			want:      "10 Downing St, London, UK 12345",
			wantFound: true,
			wantRule:  "bare",
		},
		{
			name:      "leftmost bare match wins",
			text:      "1 A St, Xville, NY 10001 and 2 B St, Yville, CA 90210",
			want:      "1 A St, Xville, NY 10001",
			wantFound: true,
			wantRule:  "bare",
		},
		{
			name:      "labeled capture is trimmed",
			text:      "Address \t 12 Main St, Xville, NY 10001 \t Coordinates",
			want:      "12 Main St, Xville, NY 10001",
			wantFound: true,
			wantRule:  "labeled",
		},
		{
			name:      "accented city",
			text:      "Visit 200 Santa Teresa Dr, San José, CA 95119 today",
			want:      "200 Santa Teresa Dr, San José, CA 95119",
			wantFound: true,
			wantRule:  "bare",
		},
		{
			name:      "accented street and city",
			text:      "Visit 12 Rue Café, Montréal, QC 12345 today",
			want:      "12 Rue Café, Montréal, QC 12345",
			wantFound: true,
			wantRule:  "bare",
		},
		{
			name: "lowercase state is not an address",
			text: "456 Oak Ave, Metropolis, ny 10001",
		},
		{
			name: "four digit zip is not an address",
			text: "456 Oak Ave, Metropolis, NY 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := ext.ExtractWithRule(tt.text)
			value, found := got.Value()
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, value)
			assert.Equal(t, tt.wantRule, rule)
			assert.Equal(t, got, ext.Extract(tt.text), "extraction must be idempotent")
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, Sentinel, None.String())
	assert.Equal(t, "", Found("").String())
	assert.Equal(t, "null", Found("null").String())
	assert.True(t, Found("null").IsFound())
	assert.False(t, None.IsFound())

	assert.Equal(t,
		[]string{"1 A St, X, NY 10001", Sentinel, ""},
		Strings([]Address{Found("1 A St, X, NY 10001"), None, Found("")}),
	)
}

func TestMinLengthFallsThrough(t *testing.T) {
	rs := DefaultRules()
	rs.Rules[0].MinLength = 5
	ext, err := rs.Build()
	require.NoError(t, err)

	got, rule := ext.ExtractWithRule("Address  Coordinates 10 Downing St, London, UK 12345")
	assert.Equal(t, Found("10 Downing St, London, UK 12345"), got)
	assert.Equal(t, "bare", rule)

	got, rule = ext.ExtractWithRule("Address 1 Loop Coordinates")
	assert.Equal(t, Found("1 Loop"), got)
	assert.Equal(t, "labeled", rule)
}

func TestParseRules(t *testing.T) {
	data := []byte(`
rules:
  - name: maps-card
    kind: labeled
    start_label: Location
    end_label: Lat
  - name: ship-to
    kind: pattern
    pattern: 'Ship to: (.+?) END'
    group: 1
  - name: bare
    kind: pattern
    pattern: '\d{1,5}[\p{L}\p{N}_\s]+?,\s*[\p{L}\p{N}_\s]+?,\s*[A-Z]{2}\s*\d{5}'
`)
	rs, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)

	ext, err := rs.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"maps-card", "ship-to", "bare"}, ext.Matchers())

	got, rule := ext.ExtractWithRule("Location 5 Pier Rd, Bay, CA 94000 Lat 37")
	assert.Equal(t, Found("5 Pier Rd, Bay, CA 94000"), got)
	assert.Equal(t, "maps-card", rule)

	got, rule = ext.ExtractWithRule("Ship to:  Dock 4  END")
	assert.Equal(t, Found("Dock 4"), got)
	assert.Equal(t, "ship-to", rule)

	// The default "Address" label is not part of this rule set.
	got, rule = ext.ExtractWithRule("Address x Coordinates 9 Rue St, Paris, FR 75001")
	assert.Equal(t, Found("9 Rue St, Paris, FR 75001"), got)
	assert.Equal(t, "bare", rule)
}

func TestRuleErrors(t *testing.T) {
	tests := []struct {
		name        string
		rules       RuleSet
		errContains string
	}{
		{
			name:        "unknown kind",
			rules:       RuleSet{Rules: []Rule{{Name: "x", Kind: "fuzzy"}}},
			errContains: "unknown kind",
		},
		{
			name: "duplicate names",
			rules: RuleSet{Rules: []Rule{
				{Name: "x", Kind: KindPattern, Pattern: `\d+`},
				{Name: "x", Kind: KindPattern, Pattern: `\w+`},
			}},
			errContains: "duplicate rule name",
		},
		{
			name:        "invalid regex",
			rules:       RuleSet{Rules: []Rule{{Name: "x", Kind: KindPattern, Pattern: `(`}}},
			errContains: "pattern matcher",
		},
		{
			name:        "group out of range",
			rules:       RuleSet{Rules: []Rule{{Name: "x", Kind: KindPattern, Pattern: `\d+`, Group: 1}}},
			errContains: "out of range",
		},
		{
			name:        "missing label",
			rules:       RuleSet{Rules: []Rule{{Name: "x", Kind: KindLabeled, StartLabel: "Address"}}},
			errContains: "labels are required",
		},
		{
			name:        "empty rule set",
			rules:       RuleSet{},
			errContains: "at least one matcher",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rules.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestParseRulesRejectsEmptyFile(t *testing.T) {
	_, err := ParseRules([]byte("rules: []\n"))
	assert.Error(t, err)
}

func TestLabelsAreLiteral(t *testing.T) {
	m, err := NewLabeledMatcher("dotted", "Addr.", "Coords.", 0)
	require.NoError(t, err)

	_, ok := m.Match("AddrX 1 Main St CoordsY")
	assert.False(t, ok)

	v, ok := m.Match("Addr. 1 Main St Coords.")
	assert.True(t, ok)
	assert.Equal(t, "1 Main St", v)
}
