package model

import "errors"

var (
	// ErrMalformedSource marks a source whose counters or identity are unusable.
	// Such sources are still passed through with zero derived scores.
	ErrMalformedSource = errors.New("malformed source")

	// ErrCacheUnavailable marks persistent-tier I/O failure; callers degrade to memory-only.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrComputationTimeout marks enrichment that exceeded the per-source budget.
	ErrComputationTimeout = errors.New("computation timeout")

	// ErrEmptyInput rejects an empty source list at the API boundary.
	ErrEmptyInput = errors.New("empty source list")

	ErrInvalidPredicate = errors.New("invalid predicate")
	ErrUnknownPreset    = errors.New("unknown preset")
)
