package scholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matsen/s2cache/internal/config"
	"github.com/matsen/s2cache/internal/corpus"
	"github.com/matsen/s2cache/internal/filters"
	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/model"
	"github.com/matsen/s2cache/internal/storage"
	"github.com/matsen/s2cache/internal/transport"
)

// fakeAPI is an in-memory Semantic Scholar graph API for tests.
type fakeAPI struct {
	mu       sync.Mutex
	papers   map[string]*model.PaperDetails // keyed by every id form that resolves to them
	citations map[string][]string           // paperId -> citing paper ids
	calls    map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		papers:    make(map[string]*model.PaperDetails),
		citations: make(map[string][]string),
		calls:     make(map[string]int),
	}
}

func (f *fakeAPI) addPaper(p *model.PaperDetails, aliases ...string) {
	f.papers[p.PaperID] = p
	for _, a := range aliases {
		f.papers[a] = p
	}
	if cid, ok := p.NumericCorpusID(); ok {
		f.papers[fmt.Sprintf("CorpusID:%d", cid)] = p
	}
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/paper/")
	switch {
	case r.Method == http.MethodPost && path == "batch":
		f.serveBatch(w, r)
	case strings.HasPrefix(path, "search"):
		f.serveSearch(w, r)
	case strings.HasSuffix(path, "/citations"):
		f.serveEdges(w, r, strings.TrimSuffix(path, "/citations"), false)
	case strings.HasSuffix(path, "/references"):
		f.serveEdges(w, r, strings.TrimSuffix(path, "/references"), true)
	default:
		f.serveDetails(w, path)
	}
}

func (f *fakeAPI) serveDetails(w http.ResponseWriter, key string) {
	p, ok := f.papers[key]
	if !ok {
		http.Error(w, `{"error": "Paper not found"}`, 404)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (f *fakeAPI) serveEdges(w http.ResponseWriter, r *http.Request, key string, references bool) {
	p, ok := f.papers[key]
	if !ok {
		http.Error(w, `{"error": "Paper not found"}`, 404)
		return
	}
	if references {
		json.NewEncoder(w).Encode(map[string]any{"offset": 0, "data": []any{}})
		return
	}
	ids := f.citations[p.PaperID]
	offset, limit := 0, 100
	fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	var page []any
	if offset < len(ids) {
		for _, id := range ids[offset:end] {
			page = append(page, map[string]any{
				"citingPaper": f.papers[id],
				"contexts":    []string{},
				"intents":     []string{},
			})
		}
	}
	resp := map[string]any{"offset": offset, "data": page}
	if end < len(ids) {
		resp["next"] = end
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeAPI) serveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	out := make([]any, len(req.IDs))
	for i, id := range req.IDs {
		if p, ok := f.papers[id]; ok {
			out[i] = p
		}
	}
	json.NewEncoder(w).Encode(out)
}

func (f *fakeAPI) serveSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	var hits []any
	for id, p := range f.papers {
		if id == p.PaperID && strings.Contains(strings.ToLower(p.Title), strings.ToLower(strings.ReplaceAll(query, "+", " "))) {
			hits = append(hits, p)
		}
	}
	json.NewEncoder(w).Encode(map[string]any{"total": len(hits), "data": hits})
}

func paperWithCorpusID(id string, corpusID int64, citationCount int) *model.PaperDetails {
	return &model.PaperDetails{
		PaperID:       id,
		CorpusID:      corpusID,
		Title:         "Paper " + id,
		ExternalIDs:   model.ExternalIDs{"CorpusId": fmt.Sprint(corpusID)},
		CitationCount: citationCount,
	}
}

type testEnv struct {
	api *fakeAPI
	s   *Scholar
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.CacheBackend = "jsonl"
	cfg.BatchSize = 100

	client := transport.NewClient(
		transport.WithBaseURL(srv.URL),
		transport.WithRateLimit(10000),
	)
	store, err := storage.Open("jsonl", cfg.CacheDir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(cfg, append([]Option{WithClient(client), WithStore(store)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return &testEnv{api: api, s: s}
}

func TestFetchThenCache(t *testing.T) {
	env := newTestEnv(t)
	env.api.addPaper(paperWithCorpusID("abc", 11, 0))
	ctx := context.Background()

	d, err := env.s.PaperDetails(ctx, "abc", false)
	if err != nil {
		t.Fatalf("PaperDetails: %v", err)
	}
	if d.PaperID != "abc" || d.Title != "Paper abc" {
		t.Errorf("details = %+v", d)
	}
	if n := env.api.count("/paper/abc"); n != 1 {
		t.Errorf("details endpoint hit %d times", n)
	}

	// second lookup is served from cache
	if _, err := env.s.PaperDetails(ctx, "abc", false); err != nil {
		t.Fatalf("cached PaperDetails: %v", err)
	}
	if n := env.api.count("/paper/abc"); n != 1 {
		t.Errorf("cached lookup hit the network: %d calls", n)
	}
}

func TestDetailsForExternalID(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 11, 0)
	p.ExternalIDs["ArXiv"] = "2010.06775"
	env.api.addPaper(p, "ARXIV:2010.06775")
	ctx := context.Background()

	d, err := env.s.DetailsForID(ctx, ident.ArXiv, "2010.06775", false)
	if err != nil {
		t.Fatalf("DetailsForID: %v", err)
	}
	if d.PaperID != "abc" {
		t.Errorf("paperId = %q", d.PaperID)
	}
	// a fresh lookup by external id is not a duplicate of anything
	if d.DuplicateID != "" {
		t.Errorf("duplicateId = %q, want empty", d.DuplicateID)
	}
	// the reverse mapping now resolves without the network
	if _, err := env.s.DetailsForID(ctx, ident.ArXiv, "2010.06775", false); err != nil {
		t.Fatalf("second DetailsForID: %v", err)
	}
	if n := env.api.count("/paper/ARXIV:2010.06775"); n != 1 {
		t.Errorf("prefixed endpoint hit %d times", n)
	}
	// the prefixed lookup string never lands in the duplicates table,
	// where its colon would corrupt the id:canonical lines
	dups, err := env.s.store.LoadDuplicates()
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 0 {
		t.Errorf("duplicates = %v, want none", dups)
	}
}

func TestDBLPCannotBeFetchedDirectly(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.s.DetailsForID(context.Background(), ident.DBLP, "conf/x/y", false)
	if !errors.Is(err, ident.ErrUnsupportedDirectFetch) {
		t.Errorf("want ErrUnsupportedDirectFetch, got %v", err)
	}
}

func TestDuplicateIDAnnotation(t *testing.T) {
	env := newTestEnv(t)
	// the service redirects the requested id to a different canonical record
	canonical := paperWithCorpusID("canonical", 11, 0)
	env.api.addPaper(canonical, "requested")
	ctx := context.Background()

	d, err := env.s.PaperDetails(ctx, "requested", false)
	if err != nil {
		t.Fatalf("PaperDetails: %v", err)
	}
	if d.PaperID != "canonical" || d.DuplicateID != "requested" {
		t.Errorf("paperId = %q, duplicateId = %q", d.PaperID, d.DuplicateID)
	}

	// the duplicate link is persisted
	dups, err := env.s.store.LoadDuplicates()
	if err != nil {
		t.Fatal(err)
	}
	if dups["requested"] != "canonical" {
		t.Errorf("duplicates = %v", dups)
	}

	// and later lookups by the duplicate id resolve in one hop from cache
	d, err = env.s.PaperDetails(ctx, "requested", false)
	if err != nil {
		t.Fatalf("second PaperDetails: %v", err)
	}
	if d.PaperID != "canonical" {
		t.Errorf("paperId = %q", d.PaperID)
	}
	if n := env.api.count("/paper/requested"); n != 1 {
		t.Errorf("duplicate lookup hit the network: %d calls", n)
	}
}

func TestRefetchMergesOverExistingCitations(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 11, 3)
	env.api.addPaper(p, "MAG:999") // the MAG id is not in externalIds
	for i, c := range []string{"c1", "c2", "c3"} {
		env.api.addPaper(paperWithCorpusID(c, int64(100+i), 0))
	}
	env.api.citations["abc"] = []string{"c1", "c2"}
	ctx := context.Background()

	if _, err := env.s.PaperData(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	// the remote list changes: c3 appears, c1 drops off the first page
	env.api.mu.Lock()
	env.api.citations["abc"] = []string{"c3", "c2"}
	env.api.mu.Unlock()

	// a lookup by an unmapped id refetches and merges over the cached
	// record instead of clobbering it
	data, err := env.s.DataForID(ctx, ident.MAG, "999", false)
	if err != nil {
		t.Fatal(err)
	}
	ids := data.Citations.CounterpartIDs()
	for _, want := range []string{"c1", "c2", "c3"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("merged citations missing %s: %v", want, ids)
		}
	}
	// the fresh page leads, previously cached entries trail
	if got := data.Citations.Data[0].Counterpart().PaperID; got != "c3" {
		t.Errorf("head of merged list = %s, want c3", got)
	}

	// force replaces the record wholesale
	data, err = env.s.PaperData(ctx, "abc", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := data.Citations.CounterpartIDs()["c1"]; ok {
		t.Error("force refetch should not keep stale entries")
	}
}

func TestCitationsClampsToTotalCount(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 11, 2)
	env.api.addPaper(p)
	env.api.addPaper(paperWithCorpusID("c1", 101, 0))
	env.api.addPaper(paperWithCorpusID("c2", 102, 0))
	env.api.citations["abc"] = []string{"c1", "c2"}
	ctx := context.Background()

	got, err := env.s.Citations(ctx, "abc", 0, 50)
	if err != nil {
		t.Fatalf("Citations: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d citations, want 2 (clamped)", len(got))
	}
	// a window entirely past the count is empty
	got, err = env.s.Citations(ctx, "abc", 5, 50)
	if err != nil || len(got) != 0 {
		t.Errorf("past-the-end window = %v, %v", got, err)
	}
}

func TestNextCitationsRequiresCache(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.s.NextCitations(context.Background(), "ghost", 10)
	if !errors.Is(err, ErrNotCached) {
		t.Errorf("want ErrNotCached, got %v", err)
	}
}

func TestNextCitationsFetchesAndMerges(t *testing.T) {
	env := newTestEnv(t)
	cfgLimit := env.s.cfg.Data.Citations.Limit
	total := cfgLimit + 5
	p := paperWithCorpusID("abc", 11, total)
	env.api.addPaper(p)
	var ids []string
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("c%03d", i)
		env.api.addPaper(paperWithCorpusID(id, int64(1000+i), 0))
		ids = append(ids, id)
	}
	env.api.citations["abc"] = ids
	ctx := context.Background()

	if _, err := env.s.PaperData(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	data := env.s.checkCache("abc")
	if len(data.Citations.Data) != cfgLimit {
		t.Fatalf("initial page = %d edges", len(data.Citations.Data))
	}
	if _, err := env.s.NextCitations(ctx, "abc", 5); err != nil {
		t.Fatalf("NextCitations: %v", err)
	}
	data = env.s.checkCache("abc")
	if len(data.Citations.Data) != total {
		t.Errorf("after NextCitations: %d edges, want %d", len(data.Citations.Data), total)
	}
}

func TestCitationsOverCeilingBuiltFromCorpus(t *testing.T) {
	corpusDir := t.TempDir()
	// adjacency row: corpus id 11 is cited by 1001 and 1002
	line := `{"corpusId": 11, "citing": [1001, 1002]}`
	if err := writeShard(t, corpusDir, line); err != nil {
		t.Fatal(err)
	}
	cc, err := corpus.OpenCache(corpusDir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, WithCorpus(cc))

	p := paperWithCorpusID("abc", 11, 10002)
	env.api.addPaper(p)
	env.api.addPaper(paperWithCorpusID("x1", 1001, 0))
	env.api.addPaper(paperWithCorpusID("x2", 1002, 0))
	ctx := context.Background()

	if _, err := env.s.PaperData(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	// a window past the enumeration ceiling goes through the corpus
	if _, err := env.s.NextCitations(ctx, "abc", 10001); err != nil {
		t.Fatalf("NextCitations over ceiling: %v", err)
	}
	data := env.s.checkCache("abc")
	ids := data.Citations.CounterpartIDs()
	for _, want := range []string{"x1", "x2"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("corpus-built citations missing %s", want)
		}
	}
	// corpus-built edges carry empty contexts and intents
	for _, e := range data.Citations.Data {
		if e.Counterpart().PaperID == "x1" && e.Contexts == nil {
			t.Error("corpus-built edge should have empty, not nil, contexts")
		}
	}
	if n := env.api.count("/paper/CorpusID:1001"); n != 1 {
		t.Errorf("corpus detail endpoint hit %d times", n)
	}
}

func writeShard(t *testing.T, dir, line string) error {
	t.Helper()
	return os.WriteFile(filepath.Join(dir, "shard_0001000000.jsonl"), []byte(line+"\n"), 0o644)
}

func TestFilterCitationsRefetchesOnDrift(t *testing.T) {
	env := newTestEnv(t)
	total := 30
	p := paperWithCorpusID("abc", 11, total)
	env.api.addPaper(p)
	var ids []string
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("c%03d", i)
		cp := paperWithCorpusID(id, int64(1000+i), 0)
		cp.Year = 2000 + i
		env.api.addPaper(cp)
		ids = append(ids, id)
	}
	env.api.citations["abc"] = ids
	ctx := context.Background()

	// seed the cache with only the first page by shrinking the limit
	env.s.cfg.Data.Citations.Limit = 10
	if _, err := env.s.PaperData(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	if n := len(env.s.checkCache("abc").Citations.Data); n != 10 {
		t.Fatalf("seeded %d edges", n)
	}

	// drift of 20 > tolerance of 10 triggers a full refetch
	got, err := env.s.FilterCitations(ctx, "abc", []filters.Filter{filters.Year(2020, 0)}, 0)
	if err != nil {
		t.Fatalf("FilterCitations: %v", err)
	}
	// years 2020..2029 pass
	if len(got) != 10 {
		t.Errorf("filtered = %d papers, want 10", len(got))
	}
	if n := len(env.s.checkCache("abc").Citations.Data); n != total {
		t.Errorf("after refetch: %d edges, want %d", n, total)
	}
}

func TestFilterReferencesWithoutDrift(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 11, 0)
	env.api.addPaper(p)
	ctx := context.Background()
	if _, err := env.s.PaperData(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	got, err := env.s.FilterReferences(ctx, "abc", nil, 0)
	if err != nil {
		t.Fatalf("FilterReferences: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("references = %v", got)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.api.addPaper(paperWithCorpusID("abc", 11, 0)) // title "Paper abc"
	got, err := env.s.Search(context.Background(), "paper abc")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].PaperID != "abc" {
		t.Errorf("search results = %+v", got)
	}
}

func TestBatchPaperDetails(t *testing.T) {
	env := newTestEnv(t)
	cached := paperWithCorpusID("cached", 11, 0)
	fresh := paperWithCorpusID("fresh", 12, 0)
	fresh.ExternalIDs["DOI"] = "10.1/fresh"
	env.api.addPaper(cached)
	env.api.addPaper(fresh, "DOI:10.1/fresh")
	ctx := context.Background()

	// prime the cache with one of the two
	if _, err := env.s.PaperDetails(ctx, "cached", false); err != nil {
		t.Fatal(err)
	}

	got, err := env.s.BatchPaperDetails(ctx, []IDPair{
		{Kind: ident.SS, ID: "cached"},
		{Kind: ident.DOI, ID: "10.1/fresh"},
	}, false)
	if err != nil {
		t.Fatalf("BatchPaperDetails: %v", err)
	}
	if got["cached"] == nil || got["cached"].PaperID != "cached" {
		t.Errorf("cached entry = %+v", got["cached"])
	}
	if got["10.1/fresh"] == nil || got["10.1/fresh"].PaperID != "fresh" {
		t.Errorf("fresh entry = %+v", got["10.1/fresh"])
	}
	if n := env.api.count("/paper/batch"); n != 1 {
		t.Errorf("batch endpoint hit %d times", n)
	}
	// batch-fetched papers land in the cache
	if env.s.checkCache("fresh") == nil {
		t.Error("batch result not cached")
	}
}

func TestIDToCorpusID(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 215416146, 0)
	p.ExternalIDs["DOI"] = "10.1/x"
	env.api.addPaper(p, "DOI:10.1/x")
	ctx := context.Background()

	cid, err := env.s.IDToCorpusID(ctx, ident.DOI, "10.1/x")
	if err != nil {
		t.Fatalf("IDToCorpusID: %v", err)
	}
	if cid != 215416146 {
		t.Errorf("corpus id = %d", cid)
	}
	// second lookup comes from the metadata index
	if _, err := env.s.IDToCorpusID(ctx, ident.DOI, "10.1/x"); err != nil {
		t.Fatal(err)
	}
	if n := env.api.count("/paper/DOI:10.1/x"); n != 1 {
		t.Errorf("endpoint hit %d times", n)
	}
}

func TestApplyLimits(t *testing.T) {
	env := newTestEnv(t)
	env.s.cfg.Data.Citations.Limit = 2
	details := &model.PaperDetails{
		PaperID: "abc",
		Citations: []*model.PaperDetails{
			{PaperID: "a"}, {PaperID: "b"}, {PaperID: "c"},
		},
	}
	got := env.s.ApplyLimits(details)
	if len(got.Citations) != 2 {
		t.Errorf("citations = %d, want 2", len(got.Citations))
	}
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	env.api.addPaper(paperWithCorpusID("abc", 11, 0))
	ctx := context.Background()
	if _, err := env.s.PaperDetails(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	if err := env.s.Remove("abc"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if env.s.checkCache("abc") == nil {
		// removed record misses in cache; a fresh lookup refetches
		if _, err := env.s.PaperDetails(ctx, "abc", false); err != nil {
			t.Fatalf("refetch after remove: %v", err)
		}
		if n := env.api.count("/paper/abc"); n != 2 {
			t.Errorf("details endpoint hit %d times", n)
		}
	} else {
		t.Error("record still cached after Remove")
	}
}

func TestAllPapers(t *testing.T) {
	env := newTestEnv(t)
	env.api.addPaper(paperWithCorpusID("abc", 11, 0))
	env.api.addPaper(paperWithCorpusID("def", 12, 0))
	ctx := context.Background()
	env.s.PaperDetails(ctx, "abc", false)
	env.s.PaperDetails(ctx, "def", false)

	seen := map[string]bool{}
	err := env.s.AllPapers(func(id string, data *model.PaperData) error {
		seen[id] = true
		return nil
	})
	if err != nil {
		t.Fatalf("AllPapers: %v", err)
	}
	if !seen["abc"] || !seen["def"] {
		t.Errorf("seen = %v", seen)
	}
}

func TestRebuildMetadataReloadsIndex(t *testing.T) {
	env := newTestEnv(t)
	p := paperWithCorpusID("abc", 11, 0)
	p.ExternalIDs["DOI"] = "10.1/x"
	env.api.addPaper(p)
	ctx := context.Background()
	if _, err := env.s.PaperDetails(ctx, "abc", false); err != nil {
		t.Fatal(err)
	}
	n, err := env.s.RebuildMetadata()
	if err != nil {
		t.Fatalf("RebuildMetadata: %v", err)
	}
	if n < 1 {
		t.Errorf("rebuilt %d entries", n)
	}
	key, have := env.s.resolve(ident.DOI, "10.1/x")
	if !have || key != "abc" {
		t.Errorf("resolve after rebuild = %q, %v", key, have)
	}
}
