package scholar

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/matsen/s2cache/internal/filters"
	"github.com/matsen/s2cache/internal/merge"
	"github.com/matsen/s2cache/internal/model"
	"github.com/matsen/s2cache/internal/transport"
)

// corpusFetchRetries bounds the retry loop when a whole batch of
// corpus-driven detail fetches comes back empty.
const corpusFetchRetries = 3

// Citations returns the citing papers in [offset, offset+limit),
// fetching more pages when the cached list does not reach that far.
// The window is clamped to the paper's total citation count.
func (s *Scholar) Citations(ctx context.Context, id string, offset, limit int) ([]*model.PaperDetails, error) {
	data, err := s.fetchFromCacheOrAPI(ctx, true, id, false)
	if err != nil {
		return nil, err
	}
	if offset+limit > data.Details.CitationCount {
		limit = data.Details.CitationCount - offset
	}
	if limit <= 0 {
		return nil, nil
	}
	if offset+limit > len(data.Citations.Data) {
		if _, err := s.NextCitations(ctx, id, offset+limit-len(data.Citations.Data)); err != nil {
			return nil, err
		}
		data = s.checkCache(id)
		if data == nil {
			return nil, fmt.Errorf("record for %s vanished after fetch", id)
		}
	}
	edges := data.Citations.Data
	if offset >= len(edges) {
		return nil, nil
	}
	end := offset + limit
	if end > len(edges) {
		end = len(edges)
	}
	out := make([]*model.PaperDetails, 0, end-offset)
	for _, e := range edges[offset:end] {
		out = append(out, e.Counterpart())
	}
	return out, nil
}

// NextCitations fetches up to limit more citations for a cached paper
// and merges them into the stored record. Past the service's
// enumeration ceiling the page is built from the local citation corpus
// instead.
func (s *Scholar) NextCitations(ctx context.Context, id string, limit int) (*model.EdgeList, error) {
	data := s.checkCache(id)
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	offset := data.Citations.Offset
	if n := len(data.Citations.Data); n > 0 {
		offset = n
	}

	var incoming model.EdgeList
	if offset+limit > merge.EnumerationCeiling && s.corpus != nil {
		cid, ok := data.Details.NumericCorpusID()
		if !ok {
			return nil, fmt.Errorf("no corpus id for %s", id)
		}
		built, err := s.buildCitationsFromCorpus(ctx, cid, data.Citations, data.Details.CitationCount, offset, limit)
		if err != nil {
			return nil, err
		}
		incoming = built
	} else {
		body, err := s.client.Get(ctx, s.client.CitationsURL(data.Details.PaperID, limit, offset))
		if err != nil {
			return nil, fmt.Errorf("fetching citations for %s: %w", id, err)
		}
		incoming, err = model.ParseEdgeList(body)
		if err != nil {
			return nil, fmt.Errorf("parsing citations for %s: %w", id, err)
		}
	}

	data.Citations = merge.Merge(data.Citations, incoming)
	if err := s.store.Put(data.Details.PaperID, data); err != nil {
		return nil, err
	}
	return &data.Citations, nil
}

// ensureAllCitations fetches every enumerable citation page for a
// cached paper concurrently and returns the combined list. Pages past
// the enumeration ceiling are left to the corpus path.
func (s *Scholar) ensureAllCitations(ctx context.Context, id string) (model.EdgeList, error) {
	data := s.checkCache(id)
	if data == nil {
		return model.EdgeList{}, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	need := data.Details.CitationCount - len(data.Citations.Data)
	if data.Details.CitationCount > merge.EnumerationCeiling {
		s.log.Warn().Str("paperId", id).
			Msg("citation count exceeds the enumeration ceiling, fetching only the enumerable range")
	}
	windows := merge.BatchWindows(need, s.batchSize, merge.EnumerationCeiling)
	if len(windows) == 0 {
		return data.Citations, nil
	}
	urls := make([]string, len(windows))
	for i, w := range windows {
		urls[i] = s.client.CitationsURL(data.Details.PaperID, w.Limit, w.Offset)
	}
	results := s.client.FetchMany(ctx, urls)

	combined := model.EdgeList{}
	errors := 0
	for _, r := range results {
		if r.Err != nil {
			errors++
			continue
		}
		page, err := model.ParseEdgeList(r.Body)
		if err != nil {
			errors++
			continue
		}
		combined.Data = append(combined.Data, page.Data...)
	}
	if errors > 0 {
		s.log.Debug().Str("paperId", id).Int("errors", errors).
			Msg("some citation pages failed while fetching all citations")
	}
	return combined, nil
}

// buildCitationsFromCorpus reconstructs a citations page from the
// local adjacency index: it looks up the citing corpus ids, drops the
// ones already cached, and fetches details for the requested window.
// Edges built this way carry empty contexts and intents; the service
// does not serve those fields on keyed detail lookups.
func (s *Scholar) buildCitationsFromCorpus(ctx context.Context, corpusID int64, existing model.EdgeList, citeCount, offset, limit int) (model.EdgeList, error) {
	if s.corpus == nil {
		return model.EdgeList{}, ErrNoCorpus
	}
	citing, ok := s.corpus.Citations(corpusID)
	if !ok {
		return model.EdgeList{}, fmt.Errorf("%w: %d", ErrNotInCorpus, corpusID)
	}
	have := make(map[int64]struct{})
	for _, cid := range existing.CorpusIDs() {
		have[cid] = struct{}{}
	}
	fetchable := make([]int64, 0, len(citing))
	for _, cid := range citing {
		if _, ok := have[cid]; !ok {
			fetchable = append(fetchable, cid)
		}
	}
	if limit == 0 {
		limit = len(fetchable)
	}
	if gap := citeCount - len(fetchable) - len(have); gap != 0 {
		s.log.Warn().Int64("corpusId", corpusID).Int("gap", gap).
			Msg("citations cannot be fetched, local corpus data is stale")
	}
	if offset > len(fetchable) {
		offset = len(fetchable)
	}
	end := offset + limit
	if end > len(fetchable) {
		end = len(fetchable)
	}
	fetchable = fetchable[offset:end]

	urls := make([]string, len(fetchable))
	for i, cid := range fetchable {
		urls[i] = s.client.CorpusDetailsURL(cid)
	}
	results := s.fetchURLsInBatches(ctx, urls)

	built := model.EdgeList{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		details, err := model.ParseDetails(r.Body)
		if err != nil {
			continue
		}
		built.Data = append(built.Data, model.Edge{
			CitingPaper: details,
			Contexts:    []string{},
			Intents:     []string{},
		})
	}
	return built, nil
}

// fetchURLsInBatches fetches urls batchSize at a time to avoid
// overloading the service. A batch where every request failed is
// retried after a randomized 1-5 second pause, a bounded number of
// times.
func (s *Scholar) fetchURLsInBatches(ctx context.Context, urls []string) []transport.Result {
	var results []transport.Result
	for start := 0; start < len(urls); start += s.batchSize {
		end := start + s.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := s.client.FetchMany(ctx, urls[start:end])
		for retry := 0; allFailed(batch) && retry < corpusFetchRetries; retry++ {
			wait := time.Duration(1+rand.Intn(5)) * time.Second
			s.log.Debug().Dur("wait", wait).Msg("got empty results, waiting before retry")
			select {
			case <-ctx.Done():
				return append(results, batch...)
			case <-time.After(wait):
			}
			batch = s.client.FetchMany(ctx, urls[start:end])
		}
		results = append(results, batch...)
	}
	return results
}

func allFailed(results []transport.Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Err == nil {
			return false
		}
	}
	return true
}

// maybeBuildCitationsOverCeiling extends a record whose citation count
// exceeds the enumeration ceiling using the local corpus. Each corpus
// id is attempted once per process.
func (s *Scholar) maybeBuildCitationsOverCeiling(ctx context.Context, data *model.PaperData) bool {
	if s.corpus == nil {
		return false
	}
	cid, ok := data.Details.NumericCorpusID()
	if !ok {
		return false
	}
	s.mu.Lock()
	_, done := s.dontBuild[cid]
	s.dontBuild[cid] = struct{}{}
	s.mu.Unlock()
	if done {
		return false
	}

	more, err := s.buildCitationsFromCorpus(ctx, cid, data.Citations, len(data.Citations.Data), 0, 0)
	if err != nil {
		s.log.Warn().Int64("corpusId", cid).Err(err).Msg("corpus citation build failed")
		return false
	}
	existingIDs := data.Citations.CounterpartIDs()
	somethingNew := false
	for id := range more.CounterpartIDs() {
		if _, ok := existingIDs[id]; !ok {
			somethingNew = true
			break
		}
	}
	if !somethingNew {
		return false
	}
	// The cached head stays authoritative; corpus-built entries are
	// appended as the tail.
	data.Citations = merge.Merge(more, data.Citations)
	return true
}

// FilterCitations returns the cached citing papers that pass every
// filter, truncated to num when num > 0. When the cached list has
// drifted from the paper's citation count by more than the tolerance,
// all enumerable citations are refetched first, and counts past the
// enumeration ceiling are topped up from the local corpus.
func (s *Scholar) FilterCitations(ctx context.Context, id string, fs []filters.Filter, num int) ([]*model.PaperDetails, error) {
	data := s.checkCache(id)
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	citeCount := data.Details.CitationCount
	existing := len(data.Citations.Data)
	if abs(citeCount-existing) > s.tolerance {
		update := false
		all, err := s.ensureAllCitations(ctx, id)
		if err != nil {
			return nil, err
		}
		data.Citations = merge.Merge(all, data.Citations)
		if len(data.Citations.Data) > existing {
			s.log.Debug().Str("paperId", id).
				Int("new", len(data.Citations.Data)-existing).Msg("fetched new citations")
			update = true
		}
		if citeCount > merge.EnumerationCeiling {
			update = s.maybeBuildCitationsOverCeiling(ctx, data) || update
		}
		if update {
			if err := s.store.Put(data.Details.PaperID, data); err != nil {
				return nil, err
			}
		}
	}
	return applyEdgeFilters(data.Citations.Data, fs, num), nil
}

// FilterReferences is FilterCitations for the reference list,
// refetching the full list when the cached one has drifted from the
// paper's reference count by more than the tolerance.
func (s *Scholar) FilterReferences(ctx context.Context, id string, fs []filters.Filter, num int) ([]*model.PaperDetails, error) {
	data := s.checkCache(id)
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	if abs(data.Details.ReferenceCount-len(data.References.Data)) > s.tolerance {
		all, err := s.fetchAllReferences(ctx, data)
		if err != nil {
			return nil, err
		}
		before := len(data.References.Data)
		data.References = merge.Merge(all, data.References)
		if len(data.References.Data) > before {
			if err := s.store.Put(data.Details.PaperID, data); err != nil {
				return nil, err
			}
		}
	}
	return applyEdgeFilters(data.References.Data, fs, num), nil
}

// fetchAllReferences fetches every reference page concurrently.
func (s *Scholar) fetchAllReferences(ctx context.Context, data *model.PaperData) (model.EdgeList, error) {
	windows := merge.BatchWindows(data.Details.ReferenceCount, s.batchSize, merge.EnumerationCeiling)
	urls := make([]string, len(windows))
	for i, w := range windows {
		urls[i] = s.client.ReferencesURL(data.Details.PaperID, w.Limit, w.Offset)
	}
	combined := model.EdgeList{}
	for _, r := range s.client.FetchMany(ctx, urls) {
		if r.Err != nil {
			continue
		}
		page, err := model.ParseEdgeList(r.Body)
		if err != nil {
			continue
		}
		combined.Data = append(combined.Data, page.Data...)
	}
	return combined, nil
}

func applyEdgeFilters(edges []model.Edge, fs []filters.Filter, num int) []*model.PaperDetails {
	papers := make([]*model.PaperDetails, 0, len(edges))
	for _, e := range edges {
		if e.Valid() {
			papers = append(papers, e.Counterpart())
		}
	}
	return filters.Apply(papers, fs, num)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
