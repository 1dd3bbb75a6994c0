package model

// Scoring policy constants. These are applied locally and never reported as
// errors, so every caller sees the same numbers.
const (
	// Dissimilarity assumed for an instance pair with no DMS entry.
	FallbackDissim = 0.9

	// Fixed coefficients of the sequence-based distance.
	SeqDistJaccardWeight = 0.36
	SeqDistDDSWeight     = 0.64
)

// Defaults for the domain-content distance and the overlap filter.
const (
	DefaultOverlapCutoff = 0.1
	DefaultJaccardWeight = 0.4
	DefaultDDSWeight     = 0.2
	DefaultGKWeight      = 0.4
	DefaultNbhood        = 4
)
