package scholar

import "errors"

// Common errors returned by the orchestrator.
var (
	// ErrNotCached indicates an operation that only works on cached
	// papers was called for a paper with no stored record.
	ErrNotCached = errors.New("paper not in cache")

	// ErrNotInCorpus indicates the local citation corpus has no
	// adjacency row for a paper's corpus id.
	ErrNotInCorpus = errors.New("corpus id not in local citation corpus")

	// ErrNoCorpus indicates a citation build past the enumeration
	// ceiling was requested without a local citation corpus configured.
	ErrNoCorpus = errors.New("no local citation corpus configured")
)
