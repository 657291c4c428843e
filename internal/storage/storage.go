// Package storage persists paper records, the metadata file, and the
// duplicates table in one of two interchangeable backends: per-paper
// JSON files with a JSONL metadata sidecar, or a single SQLite
// database.
package storage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/matsen/s2cache/internal/meta"
	"github.com/matsen/s2cache/internal/model"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store is the persistence interface shared by both backends.
//
// Get treats a corrupt stored record as a cache miss: it logs and
// returns (nil, nil) so the caller refetches rather than fails.
type Store interface {
	// Get loads one paper record by its canonical id.
	Get(id string) (*model.PaperData, error)

	// Put writes one paper record, replacing any existing one.
	Put(id string, data *model.PaperData) error

	// Delete removes a paper record and its metadata row.
	Delete(id string) error

	// Keys lists the ids of all stored paper records.
	Keys() ([]string, error)

	// LoadMetadata reads the full metadata table.
	LoadMetadata() (map[string]meta.ExtIDs, error)

	// AppendMetadata adds or updates one metadata entry.
	AppendMetadata(id string, ext meta.ExtIDs) error

	// RebuildMetadata regenerates the metadata table from the stored
	// paper records and returns the number of entries written.
	RebuildMetadata() (int, error)

	// LoadDuplicates reads the duplicate-id table.
	LoadDuplicates() (map[string]string, error)

	// AppendDuplicate records one duplicate-to-canonical link.
	AppendDuplicate(id, canonical string) error

	Close() error
}

// Open creates a Store of the named backend rooted at dir.
func Open(backend, dir string, log zerolog.Logger) (Store, error) {
	switch backend {
	case "jsonl":
		return OpenJSONL(dir, log)
	case "sqlite":
		return OpenSQLite(dir, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// repairCounts bumps a record's citationCount up to the number of
// citation edges actually held, so a count that lagged behind fetched
// pages never under-reports on the next read.
func repairCounts(data *model.PaperData) {
	if n := len(data.Citations.Data); n > data.Details.CitationCount {
		data.Details.CitationCount = n
	}
}
