package automap

// Rule is an operator-defined mapping: topics matching Pattern map to the
// namespace path produced by Template, where {0}..{n-1} substitute the
// pattern's capture groups. Inactive rules are kept but never matched, so
// operators can park a rule without deleting it.
type Rule struct {
	Name        string  `json:"name" yaml:"name"`
	Pattern     string  `json:"pattern" yaml:"pattern"`
	Template    string  `json:"template" yaml:"template"`
	Confidence  float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Active      bool    `json:"active" yaml:"active"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Config tunes the auto-mapper.
type Config struct {
	Enabled            bool     `json:"enabled" yaml:"enabled"`
	MinimumConfidence  float64  `json:"minimumConfidence" yaml:"minimumConfidence"`
	MaxSearchDepth     int      `json:"maxSearchDepth" yaml:"maxSearchDepth"`
	StripPrefixes      []string `json:"stripPrefixes,omitempty" yaml:"stripPrefixes,omitempty"`
	CreateMissingNodes bool     `json:"createMissingNodes" yaml:"createMissingNodes"`
	CaseSensitive      bool     `json:"caseSensitive" yaml:"caseSensitive"`
	Rules              []Rule   `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// DefaultConfig returns the mapper defaults: enabled, 70% confidence floor,
// five levels of tree search, node creation on.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MinimumConfidence:  0.7,
		MaxSearchDepth:     5,
		CreateMissingNodes: true,
	}
}
