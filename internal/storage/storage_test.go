package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/meta"
	"github.com/matsen/s2cache/internal/model"
)

var backends = []string{"jsonl", "sqlite"}

func openStore(t *testing.T, backend string) Store {
	t.Helper()
	s, err := Open(backend, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", backend, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) *model.PaperData {
	return &model.PaperData{
		Details: model.PaperDetails{
			PaperID:       id,
			CorpusID:      7,
			Title:         "Stored Paper",
			ExternalIDs:   model.ExternalIDs{"DOI": "10.1/" + id, "CorpusId": "7"},
			CitationCount: 2,
		},
		Citations: model.EdgeList{Data: []model.Edge{
			{CitingPaper: &model.PaperDetails{PaperID: "c1", Title: "Citer One"}, Contexts: []string{"ctx"}},
			{CitingPaper: &model.PaperDetails{PaperID: "c2", Title: "Citer Two"}},
		}},
		References: model.EdgeList{Data: []model.Edge{
			{CitedPaper: &model.PaperDetails{PaperID: "r1", Title: "Ref One"}},
		}},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			want := sampleRecord("abc")
			if err := s.Put("abc", want); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := s.Get("abc")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil || got.Details.Title != "Stored Paper" {
				t.Fatalf("got %+v", got)
			}
			if len(got.Citations.Data) != 2 || len(got.References.Data) != 1 {
				t.Errorf("edges = %d citations, %d references",
					len(got.Citations.Data), len(got.References.Data))
			}
			ids := map[string]bool{}
			for _, e := range got.Citations.Data {
				ids[e.Counterpart().PaperID] = true
			}
			if !ids["c1"] || !ids["c2"] {
				t.Errorf("citation counterparts = %v", ids)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			got, err := s.Get("nope")
			if err != nil || got != nil {
				t.Errorf("miss should be (nil, nil), got %v, %v", got, err)
			}
		})
	}
}

func TestCitationCountRepairedOnWrite(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			rec := sampleRecord("abc")
			rec.Details.CitationCount = 1 // lags the two stored edges
			if err := s.Put("abc", rec); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := s.Get("abc")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Details.CitationCount < 2 {
				t.Errorf("citationCount = %d, want >= 2", got.Details.CitationCount)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			if err := s.Put("abc", sampleRecord("abc")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Delete("abc"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, err := s.Get("abc")
			if err != nil || got != nil {
				t.Errorf("deleted record should miss, got %v, %v", got, err)
			}
			// deleting again is fine
			if err := s.Delete("abc"); err != nil {
				t.Errorf("re-delete: %v", err)
			}
		})
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			ext := meta.ExtIDs{ident.DOI: "10.1/x", ident.ArXiv: "2010.06775"}
			if err := s.AppendMetadata("abc", ext); err != nil {
				t.Fatalf("AppendMetadata: %v", err)
			}
			// later append for the same id wins
			if err := s.AppendMetadata("abc", meta.ExtIDs{ident.DOI: "10.1/y"}); err != nil {
				t.Fatalf("AppendMetadata: %v", err)
			}
			got, err := s.LoadMetadata()
			if err != nil {
				t.Fatalf("LoadMetadata: %v", err)
			}
			if got["abc"][ident.DOI] != "10.1/y" {
				t.Errorf("metadata = %v", got["abc"])
			}
		})
	}
}

func TestMetadataDuplicateLinesDedupOnLoad(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			const n = 31
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("paper-%02d", i)
				ext := meta.ExtIDs{ident.DOI: "10.1/" + id}
				if err := s.AppendMetadata(id, ext); err != nil {
					t.Fatalf("AppendMetadata: %v", err)
				}
			}
			// Re-append a handful of already-present ids.
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("paper-%02d", i)
				ext := meta.ExtIDs{ident.DOI: "10.1/" + id, ident.MAG: strconv.Itoa(i)}
				if err := s.AppendMetadata(id, ext); err != nil {
					t.Fatalf("AppendMetadata: %v", err)
				}
			}
			got, err := s.LoadMetadata()
			if err != nil {
				t.Fatalf("LoadMetadata: %v", err)
			}
			if len(got) != n {
				t.Errorf("loaded %d entries, want %d", len(got), n)
			}
			if got["paper-03"][ident.MAG] != "3" {
				t.Errorf("later line did not win: %v", got["paper-03"])
			}
		})
	}
}

func TestRebuildMetadata(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			if err := s.Put("abc", sampleRecord("abc")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			n, err := s.RebuildMetadata()
			if err != nil {
				t.Fatalf("RebuildMetadata: %v", err)
			}
			if n < 1 {
				t.Fatalf("rebuilt %d entries", n)
			}
			got, err := s.LoadMetadata()
			if err != nil {
				t.Fatalf("LoadMetadata: %v", err)
			}
			if got["abc"][ident.DOI] != "10.1/abc" {
				t.Errorf("rebuilt metadata = %v", got["abc"])
			}
		})
	}
}

func TestDuplicatesRoundTrip(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			if err := s.AppendDuplicate("dup", "canonical"); err != nil {
				t.Fatalf("AppendDuplicate: %v", err)
			}
			got, err := s.LoadDuplicates()
			if err != nil {
				t.Fatalf("LoadDuplicates: %v", err)
			}
			if got["dup"] != "canonical" {
				t.Errorf("duplicates = %v", got)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend)
			s.Put("aaa", sampleRecord("aaa"))
			s.AppendMetadata("aaa", meta.ExtIDs{})
			s.AppendDuplicate("x", "aaa")
			keys, err := s.Keys()
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			found := false
			for _, k := range keys {
				if k == "aaa" {
					found = true
				}
				if k == "metadata.jsonl" || k == "duplicates.csv" || k == "s2cache.db" {
					t.Errorf("sidecar %q listed as paper key", k)
				}
			}
			// sqlite also stores edge counterparts as papers; aaa must be among them
			if !found {
				t.Errorf("keys = %v", keys)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("bolt", t.TempDir(), zerolog.Nop()); err == nil {
		t.Error("unknown backend should error")
	}
}

func TestJSONLCorruptRecordIsMiss(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenJSONL(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "abc"), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("abc")
	if err != nil || got != nil {
		t.Errorf("corrupt record should be a silent miss, got %v, %v", got, err)
	}
}

func TestJSONLMalformedMetadataLineRepaired(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenJSONL(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	lines := `{"good": {"DOI": "10.1/x"}}
{"truncated": {"DOI": "10.
not json at all
`
	if err := os.WriteFile(filepath.Join(dir, metadataFile), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if got["good"][ident.DOI] != "10.1/x" {
		t.Errorf("good line = %v", got["good"])
	}
	ext, ok := got["truncated"]
	if !ok || len(ext) != 0 {
		t.Errorf("truncated line should repair to an empty entry, got %v, %v", ext, ok)
	}
	if _, ok := got["not json at all"]; ok {
		t.Error("unrecoverable line should be skipped")
	}
}
