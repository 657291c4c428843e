// Package scholar is the resolution orchestrator: it ties the
// identifier registry, metadata index, record store, transport client,
// and optional local citation corpus into the cache-first lookup API.
package scholar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matsen/s2cache/internal/config"
	"github.com/matsen/s2cache/internal/corpus"
	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/merge"
	"github.com/matsen/s2cache/internal/meta"
	"github.com/matsen/s2cache/internal/model"
	"github.com/matsen/s2cache/internal/storage"
	"github.com/matsen/s2cache/internal/transport"
)

// defaultTolerance is the allowed drift between a paper's reported
// citationCount and the number of citation edges actually cached
// before a filter operation triggers a full refetch.
const defaultTolerance = 10

// Scholar is the caching client. A single instance owns its store,
// metadata index, and record cache. Methods hand out pointers into the
// record cache and mutate them on later calls, so callers serialize
// access; the internal mutex only guards index bookkeeping.
type Scholar struct {
	cfg    *config.Config
	store  storage.Store
	client *transport.Client
	corpus *corpus.Cache // nil when no local corpus is configured
	log    zerolog.Logger

	mu        sync.Mutex
	meta      *meta.Index
	memory    map[string]*model.PaperData
	dontBuild map[int64]struct{}

	tolerance int
	batchSize int
}

// Option configures a Scholar.
type Option func(*Scholar)

// WithClient sets the transport client.
func WithClient(c *transport.Client) Option {
	return func(s *Scholar) { s.client = c }
}

// WithStore sets the record store. When unset, New opens one per the
// configuration.
func WithStore(st storage.Store) Option {
	return func(s *Scholar) { s.store = st }
}

// WithCorpus sets the local citation corpus.
func WithCorpus(c *corpus.Cache) Option {
	return func(s *Scholar) { s.corpus = c }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scholar) { s.log = log }
}

// New builds a Scholar from configuration, opening the store and the
// corpus cache as configured and loading the metadata and duplicate
// tables.
func New(cfg *config.Config, opts ...Option) (*Scholar, error) {
	s := &Scholar{
		cfg:       cfg,
		log:       zerolog.Nop(),
		memory:    make(map[string]*model.PaperData),
		dontBuild: make(map[int64]struct{}),
		tolerance: defaultTolerance,
		batchSize: cfg.BatchSize,
	}
	if s.batchSize <= 0 {
		s.batchSize = 500
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = transport.NewClient(
			transport.WithAPIKey(cfg.APIKey),
			transport.WithTimeout(time.Duration(cfg.ClientTimeout)*time.Second),
			transport.WithLogger(s.log),
		)
	}
	if s.store == nil {
		st, err := storage.Open(cfg.CacheBackend, cfg.CacheDir, s.log)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	if s.corpus == nil && cfg.CitationsCacheDir != "" {
		c, err := corpus.OpenCache(cfg.CitationsCacheDir, s.log)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to open citation corpus, continuing without")
		} else {
			s.corpus = c
		}
	}

	entries, err := s.store.LoadMetadata()
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	known, err := s.store.LoadDuplicates()
	if err != nil {
		return nil, fmt.Errorf("loading duplicates: %w", err)
	}
	s.meta = meta.NewIndex(entries, known)
	s.log.Debug().Int("entries", s.meta.Len()).Msg("loaded metadata index")
	return s, nil
}

// Close releases the store.
func (s *Scholar) Close() error {
	return s.store.Close()
}

// DetailsForID resolves an identifier of the given kind and returns
// the paper's details with citation and reference lists folded in and
// truncated to the configured limits. force bypasses the cache.
func (s *Scholar) DetailsForID(ctx context.Context, kind ident.Kind, id string, force bool) (*model.PaperDetails, error) {
	data, err := s.DataForID(ctx, kind, id, force)
	if err != nil {
		return nil, err
	}
	return s.ApplyLimits(data.ToDetails()), nil
}

// DataForID is DetailsForID without the fold: it returns the stored
// record with its pagination state intact.
func (s *Scholar) DataForID(ctx context.Context, kind ident.Kind, id string, force bool) (*model.PaperData, error) {
	key, haveMetadata := s.resolve(kind, id)
	if !haveMetadata {
		// DBLP ids have no keyed endpoint: without a cached mapping
		// there is nothing to fetch.
		if !ident.Fetchable(kind) {
			return nil, fmt.Errorf("%w: %s", ident.ErrUnsupportedDirectFetch, kind)
		}
		key = ident.LookupID(kind, id)
	}
	return s.fetchFromCacheOrAPI(ctx, haveMetadata, key, force)
}

// PaperData returns the stored record for a native paper id.
func (s *Scholar) PaperData(ctx context.Context, id string, force bool) (*model.PaperData, error) {
	return s.DataForID(ctx, ident.SS, id, force)
}

// PaperDetails returns folded, limit-truncated details for a native
// paper id.
func (s *Scholar) PaperDetails(ctx context.Context, id string, force bool) (*model.PaperDetails, error) {
	return s.DetailsForID(ctx, ident.SS, id, force)
}

// IDToCorpusID maps an identifier to its numeric corpus id, fetching
// the paper when the mapping is not yet cached.
func (s *Scholar) IDToCorpusID(ctx context.Context, kind ident.Kind, id string) (int64, error) {
	key, haveMetadata := s.resolve(kind, id)
	if haveMetadata {
		s.mu.Lock()
		cid, ok := s.meta.CorpusIDOf(key)
		s.mu.Unlock()
		if ok {
			return cid, nil
		}
	}
	details, err := s.DetailsForID(ctx, kind, id, false)
	if err != nil {
		return 0, err
	}
	cid, ok := details.NumericCorpusID()
	if !ok {
		return 0, fmt.Errorf("no corpus id for %s:%s", kind, id)
	}
	return cid, nil
}

// ApplyLimits truncates the folded citation and reference lists to the
// configured page sizes.
func (s *Scholar) ApplyLimits(details *model.PaperDetails) *model.PaperDetails {
	if n := s.cfg.Data.Citations.Limit; n > 0 && len(details.Citations) > n {
		details.Citations = details.Citations[:n]
	}
	if n := s.cfg.Data.References.Limit; n > 0 && len(details.References) > n {
		details.References = details.References[:n]
	}
	return details
}

// AllPapers streams every stored record through fn, stopping on the
// first error.
func (s *Scholar) AllPapers(fn func(id string, data *model.PaperData) error) error {
	keys, err := s.store.Keys()
	if err != nil {
		return err
	}
	for _, id := range keys {
		data, err := s.store.Get(id)
		if err != nil {
			return err
		}
		if data == nil || !data.Valid() {
			continue
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return nil
}

// RebuildMetadata regenerates the persisted metadata table from the
// stored records and reloads the in-memory index.
func (s *Scholar) RebuildMetadata() (int, error) {
	n, err := s.store.RebuildMetadata()
	if err != nil {
		return 0, err
	}
	entries, err := s.store.LoadMetadata()
	if err != nil {
		return 0, err
	}
	known, err := s.store.LoadDuplicates()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.meta = meta.NewIndex(entries, known)
	s.mu.Unlock()
	return n, nil
}

// Remove deletes a paper from the store, the metadata index, and the
// in-memory cache.
func (s *Scholar) Remove(id string) error {
	s.mu.Lock()
	canonical, _ := s.meta.Canonical(id)
	s.meta.Remove(canonical)
	delete(s.memory, canonical)
	s.mu.Unlock()
	return s.store.Delete(canonical)
}

// resolve maps an external identifier to its canonical key when known.
func (s *Scholar) resolve(kind ident.Kind, id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Resolve(kind, id)
}

// fetchFromCacheOrAPI returns a cached record when possible and
// otherwise fetches, merges, and stores one.
func (s *Scholar) fetchFromCacheOrAPI(ctx context.Context, haveMetadata bool, key string, force bool) (*model.PaperData, error) {
	if haveMetadata && !force {
		if data := s.checkCache(key); data != nil {
			return data, nil
		}
		s.log.Debug().Str("paperId", key).Msg("record stale or missing on backend, fetching")
	}
	return s.storeDetailsAndGet(ctx, key, force)
}

// checkCache looks a paper up in memory and then on the backend,
// following at most one duplicate hop. The returned record's
// DuplicateID carries the originally requested id when a redirect
// happened.
func (s *Scholar) checkCache(id string) *model.PaperData {
	s.mu.Lock()
	canonical, duplicate := s.meta.Canonical(id)
	if data, ok := s.memory[canonical]; ok {
		data.Details.DuplicateID = duplicate
		s.mu.Unlock()
		return data
	}
	s.mu.Unlock()

	data, err := s.store.Get(canonical)
	if err != nil {
		s.log.Warn().Str("paperId", canonical).Err(err).Msg("backend read failed")
		return nil
	}
	if data == nil || !data.Valid() {
		return nil
	}
	data.Details.DuplicateID = duplicate

	s.mu.Lock()
	s.memory[canonical] = data
	s.mu.Unlock()
	return data
}

// storeDetailsAndGet fetches a paper's details, references, and
// citations concurrently, merges them over any existing record unless
// force is set, persists the result, and records its identifiers.
func (s *Scholar) storeDetailsAndGet(ctx context.Context, requestedKey string, force bool) (*model.PaperData, error) {
	urls := []string{
		s.client.DetailsURL(requestedKey),
		s.client.ReferencesURL(requestedKey, s.cfg.Data.References.Limit, 0),
		s.client.CitationsURL(requestedKey, s.cfg.Data.Citations.Limit, 0),
	}
	results := s.client.FetchMany(ctx, urls)
	if results[0].Err != nil {
		return nil, fmt.Errorf("fetching details for %s: %w", requestedKey, results[0].Err)
	}
	details, err := model.ParseDetails(results[0].Body)
	if err != nil {
		return nil, fmt.Errorf("parsing details for %s: %w", requestedKey, err)
	}
	data := &model.PaperData{Details: *details}

	if results[1].Err == nil {
		refs, err := model.ParseEdgeList(results[1].Body)
		if err == nil {
			data.References = refs
		} else {
			s.log.Warn().Str("paperId", requestedKey).Err(err).Msg("dropping unparseable references page")
		}
	}
	if results[2].Err == nil {
		cites, err := model.ParseEdgeList(results[2].Body)
		if err == nil {
			data.Citations = cites
		} else {
			s.log.Warn().Str("paperId", requestedKey).Err(err).Msg("dropping unparseable citations page")
		}
	}

	return s.commit(data, requestedKey, force)
}

// commit merges a fetched record over the existing one, persists it,
// updates the metadata index, and returns the record annotated with
// its duplicate id.
func (s *Scholar) commit(data *model.PaperData, requestedKey string, force bool) (*model.PaperData, error) {
	paperID := data.Details.PaperID
	// A prefixed lookup string ("ARXIV:...", "DOI:...") is not a paper
	// id: the metadata reverse index covers that mapping, so it gets no
	// duplicate edge and no DuplicateID annotation. Native paper hashes
	// never contain a colon.
	if strings.Contains(requestedKey, ":") {
		requestedKey = ""
	}
	if !force {
		if existing := s.checkCache(paperID); existing != nil {
			data.Citations = merge.Merge(existing.Citations, data.Citations)
			data.References = merge.Merge(existing.References, data.References)
		}
	}
	if err := s.store.Put(paperID, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	edges := s.meta.Record(&data.Details, requestedKey)
	ext, _ := s.meta.Entry(paperID)
	s.memory[paperID] = data
	_, duplicate := s.meta.Canonical(requestedKey)
	s.mu.Unlock()

	if err := s.store.AppendMetadata(paperID, ext); err != nil {
		return nil, err
	}
	for _, e := range edges {
		if err := s.store.AppendDuplicate(e.ID, e.Canonical); err != nil {
			return nil, err
		}
	}
	data.Details.DuplicateID = duplicate
	return data, nil
}
