package match

// LabelMode selects label-compatibility strictness between a pattern node
// and a target node.
type LabelMode string

const (
	// LabelsSubset requires every pattern label to be present on the
	// target node (default).
	LabelsSubset LabelMode = "subset"

	// LabelsIntersect requires a non-empty intersection when the pattern
	// carries any labels at all.
	LabelsIntersect LabelMode = "intersect"
)

// Config bounds and tunes a matcher session.
type Config struct {
	// MaxMatches truncates the search after this many matches.
	// Zero means unbounded.
	MaxMatches int

	// TimeoutMs bounds wall time for the search. Zero means unbounded.
	// On expiry with matches in hand, the partial result is returned with
	// Result.TimedOut set; with zero matches, the search fails with a
	// TIMEOUT error.
	TimeoutMs int64

	// Parallel requests fan-out of candidate branches. The kernel itself
	// stays single-threaded per graph; this flag is a hint callers may
	// honor when fanning independent pattern searches across graphs.
	Parallel bool

	// Labels selects label-compatibility strictness.
	Labels LabelMode
}

// DefaultConfig returns the default matcher configuration:
// bounded at 1000 matches, 5 second budget, subset label matching.
func DefaultConfig() Config {
	return Config{
		MaxMatches: 1000,
		TimeoutMs:  5000,
		Parallel:   false,
		Labels:     LabelsSubset,
	}
}

// Option configures a Matcher.
type Option func(*Config)

// WithConfig replaces the whole configuration. Useful for deriving a
// matcher from another matcher's Config with one field changed.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// WithMaxMatches bounds the number of matches returned.
func WithMaxMatches(n int) Option {
	return func(c *Config) { c.MaxMatches = n }
}

// WithTimeout bounds search wall time in milliseconds.
func WithTimeout(ms int64) Option {
	return func(c *Config) { c.TimeoutMs = ms }
}

// WithLabelMode selects label-compatibility strictness.
func WithLabelMode(m LabelMode) Option {
	return func(c *Config) { c.Labels = m }
}
