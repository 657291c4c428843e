// Package meta maintains the in-process metadata index: which external
// identifiers are known for each canonical paper key, the reverse
// lookup from external id to canonical key, and the duplicate tables
// that let lookups converge on one canonical record.
package meta

import (
	"strconv"

	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/model"
)

// ExtIDs maps identifier kinds to values for one paper.
type ExtIDs map[ident.Kind]string

// DuplicateEdge is a newly recorded known-duplicate link that the
// caller should persist.
type DuplicateEdge struct {
	ID        string
	Canonical string
}

// Index is the metadata index. It is owned by a single orchestrator
// instance and is not safe for concurrent use.
type Index struct {
	entries  map[string]ExtIDs
	extids   map[ident.Kind]map[string]string
	known    map[string]string
	inferred map[int64][]string
}

// NewIndex builds an index from persisted entries and known-duplicate
// links. Reverse maps are derived; inferred duplicate groups are
// discovered lazily by Record.
func NewIndex(entries map[string]ExtIDs, known map[string]string) *Index {
	idx := &Index{
		entries:  make(map[string]ExtIDs, len(entries)),
		extids:   make(map[ident.Kind]map[string]string),
		known:    make(map[string]string, len(known)),
		inferred: make(map[int64][]string),
	}
	for _, k := range ident.Kinds {
		if k == ident.SS {
			continue
		}
		idx.extids[k] = make(map[string]string)
	}
	for key, ext := range entries {
		idx.setEntry(key, ext)
	}
	for id, canonical := range known {
		idx.known[id] = canonical
	}
	return idx
}

func (x *Index) setEntry(key string, ext ExtIDs) {
	if ext == nil {
		ext = ExtIDs{}
	}
	x.entries[key] = ext
	for kind, value := range ext {
		if value == "" || kind == ident.SS {
			continue
		}
		if rev, ok := x.extids[kind]; ok {
			rev[value] = key
		}
	}
}

// Len returns the number of canonical entries.
func (x *Index) Len() int { return len(x.entries) }

// Keys returns all canonical keys present in the index.
func (x *Index) Keys() []string {
	keys := make([]string, 0, len(x.entries))
	for k := range x.entries {
		keys = append(keys, k)
	}
	return keys
}

// Entry returns the external ids known for a canonical key.
func (x *Index) Entry(key string) (ExtIDs, bool) {
	e, ok := x.entries[key]
	return e, ok
}

// CorpusIDOf returns the numeric corpus id recorded for a key.
func (x *Index) CorpusIDOf(key string) (int64, bool) {
	e, ok := x.entries[key]
	if !ok {
		return 0, false
	}
	v, ok := e[ident.CorpusID]
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Canonical follows at most one duplicate hop for an id: the known
// duplicate link if present, otherwise the promoted member of the id's
// inferred group. The second return is the requested id when a
// redirect happened, "" otherwise.
func (x *Index) Canonical(id string) (string, string) {
	if canonical, ok := x.known[id]; ok {
		return canonical, id
	}
	if cid, ok := x.CorpusIDOf(id); ok {
		if group := x.inferred[cid]; len(group) > 0 && group[0] != id {
			return group[0], id
		}
	}
	return id, ""
}

// Resolve maps an external identifier to its canonical key. For the
// native kind it checks direct presence; for other kinds it consults
// the reverse index. The resolved key is canonicalized through one
// duplicate hop. haveMetadata reports whether any mapping was found.
func (x *Index) Resolve(kind ident.Kind, value string) (key string, haveMetadata bool) {
	if kind == ident.SS {
		if _, ok := x.entries[value]; ok {
			key, _ = x.Canonical(value)
			return key, true
		}
		if _, ok := x.known[value]; ok {
			key, _ = x.Canonical(value)
			return key, true
		}
		return "", false
	}
	rev, ok := x.extids[kind]
	if !ok {
		return "", false
	}
	found, ok := rev[value]
	if !ok || found == "" {
		return "", false
	}
	key, _ = x.Canonical(found)
	return key, true
}

// Record inserts or overwrites the entry for details' canonical key
// from its external-id map. When the entry's numeric corpus id already
// maps to a different canonical key, both are placed in an inferred
// group; on first detection the existing member is promoted and the
// newcomer's duplicate edge points at it. When requestedKey differs
// from the record's terminal key a known-duplicate edge is registered.
// Collision handling runs first so the requested-key edge always
// targets the terminal key, never a record that was itself demoted.
// Returned edges must be persisted by the caller.
func (x *Index) Record(details *model.PaperDetails, requestedKey string) []DuplicateEdge {
	canonicalKey := details.PaperID
	var edges []DuplicateEdge

	ext := ExtIDs(ident.NormalizeKeys(details.ExternalIDs))
	if cid, ok := details.NumericCorpusID(); ok {
		ext[ident.CorpusID] = strconv.FormatInt(cid, 10)
		if edge, rewritten := x.recordCorpusCollision(canonicalKey, cid); rewritten {
			edges = append(edges, edge)
		}
	}

	target := canonicalKey
	if promoted, ok := x.known[canonicalKey]; ok {
		target = promoted
	}
	if requestedKey != "" && requestedKey != target {
		if x.known[requestedKey] != target {
			x.known[requestedKey] = target
			edges = append(edges, DuplicateEdge{ID: requestedKey, Canonical: target})
		}
	}
	x.setEntry(canonicalKey, ext)
	return edges
}

// recordCorpusCollision handles two canonical keys sharing one numeric
// corpus id. The first member encountered stays promoted; later
// members point at it directly, never chaining.
func (x *Index) recordCorpusCollision(key string, cid int64) (DuplicateEdge, bool) {
	prior, ok := x.extids[ident.CorpusID][strconv.FormatInt(cid, 10)]
	if !ok || prior == key {
		return DuplicateEdge{}, false
	}
	group := x.inferred[cid]
	if len(group) == 0 {
		group = []string{prior}
	}
	for _, member := range group {
		if member == key {
			x.inferred[cid] = group
			return DuplicateEdge{}, false
		}
	}
	group = append(group, key)
	x.inferred[cid] = group
	promoted := group[0]
	if x.known[key] == promoted {
		return DuplicateEdge{}, false
	}
	x.known[key] = promoted
	return DuplicateEdge{ID: key, Canonical: promoted}, true
}

// Remove drops a canonical key and its reverse mappings. Used by the
// administrative delete path.
func (x *Index) Remove(key string) {
	ext, ok := x.entries[key]
	if ok {
		for kind, value := range ext {
			if rev, ok := x.extids[kind]; ok && rev[value] == key {
				delete(rev, value)
			}
		}
	}
	delete(x.entries, key)
}

// Duplicates returns a copy of the known-duplicate table.
func (x *Index) Duplicates() map[string]string {
	out := make(map[string]string, len(x.known))
	for k, v := range x.known {
		out[k] = v
	}
	return out
}
