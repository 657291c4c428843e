// Package merge implements the pagination and merge engine: combining
// an existing (possibly partial) edge-list with a freshly fetched page
// without losing previously fetched data, and computing the
// offset/limit windows for batched edge fetches.
package merge

import "github.com/matsen/s2cache/internal/model"

// EnumerationCeiling is the remote service's hard pagination limit:
// offset+limit in a citations or references request may not exceed it.
const EnumerationCeiling = 10000

// Merge combines an existing edge-list with a newly fetched one. The
// incoming page is authoritative for head ordering; existing entries
// whose counterpart key is not present in incoming are appended as a
// tail. Entries whose counterpart payload is an error sentinel are
// dropped before set construction.
//
// When incoming carries a continuation cursor, the cursor is
// incremented once per appended legacy entry. This compensating
// adjustment is preserved verbatim from earlier versions for
// compatibility; the cursor nominally reflects a position in the remote
// service's own ordering, so splicing local tail entries drifts it.
//
// Merge(x, x) and Merge(x, empty) leave element order unchanged and
// never duplicate an entry.
func Merge(existing, incoming model.EdgeList) model.EdgeList {
	if len(existing.Data) == 0 && len(incoming.Data) == 0 {
		return incoming
	}
	existing.Data = dropInvalid(existing.Data)
	incoming.Data = dropInvalid(incoming.Data)

	seen := incoming.CounterpartIDs()
	for _, e := range existing.Data {
		if _, ok := seen[e.Counterpart().PaperID]; ok {
			continue
		}
		incoming.Data = append(incoming.Data, e)
		seen[e.Counterpart().PaperID] = struct{}{}
		if incoming.Next != nil {
			n := *incoming.Next + 1
			incoming.Next = &n
		}
	}
	return incoming
}

// dropInvalid removes error-sentinel entries, preserving order. The
// slice is returned unchanged when nothing needs dropping.
func dropInvalid(edges []model.Edge) []model.Edge {
	clean := true
	for _, e := range edges {
		if !e.Valid() {
			clean = false
			break
		}
	}
	if clean {
		return edges
	}
	out := make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Valid() {
			out = append(out, e)
		}
	}
	return out
}

// Window is one (offset, limit) request window.
type Window struct {
	Offset int
	Limit  int
}

// BatchWindows computes consecutive request windows of width batchSize
// covering [0, need). With ceiling == 0 windows are uncapped. With a
// positive ceiling (the service's maximum enumerable depth), a window
// ending exactly at the ceiling is kept whole; one that would cross it
// is truncated to end at ceiling-1, and enumeration stops there.
func BatchWindows(need, batchSize, ceiling int) []Window {
	if need <= 0 || batchSize <= 0 {
		return nil
	}
	var windows []Window
	for offset := 0; offset < need; offset += batchSize {
		limit := batchSize
		if ceiling > 0 && offset+batchSize > ceiling {
			limit = ceiling - 1 - offset
			if limit <= 0 {
				break
			}
			windows = append(windows, Window{Offset: offset, Limit: limit})
			break
		}
		windows = append(windows, Window{Offset: offset, Limit: limit})
	}
	return windows
}
