package corpus

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeTestShard(t *testing.T, dir string, upper int64, entries map[int64][]int64) {
	t.Helper()
	var buf bytes.Buffer
	for id, citing := range entries {
		fmt.Fprintf(&buf, `{"corpusId": %d, "citing": [`, id)
		for i, c := range citing {
			if i > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(&buf, "%d", c)
		}
		buf.WriteString("]}\n")
	}
	if err := os.WriteFile(filepath.Join(dir, shardName(upper)), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCitationsLookup(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, 1_000_000, map[int64][]int64{
		42:     {100, 200, 300},
		999999: {7},
	})
	writeTestShard(t, dir, 2_000_000, map[int64][]int64{
		1_500_000: {42},
	})

	c, err := OpenCache(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}

	citing, ok := c.Citations(42)
	if !ok || len(citing) != 3 || citing[0] != 100 {
		t.Errorf("Citations(42) = %v, %v", citing, ok)
	}
	if citing, ok := c.Citations(1_500_000); !ok || len(citing) != 1 {
		t.Errorf("Citations(1500000) = %v, %v", citing, ok)
	}
	// id within shard range but with no row
	if _, ok := c.Citations(43); ok {
		t.Error("43 has no adjacency row")
	}
	// id beyond every shard
	if _, ok := c.Citations(5_000_000); ok {
		t.Error("id past the last shard should miss")
	}
}

func TestOpenCacheEmptyDir(t *testing.T) {
	c, err := OpenCache(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, ok := c.Citations(1); ok {
		t.Error("empty cache should miss")
	}
}

func TestIngest(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	lines := []string{
		`{"citingcorpusid": 100, "citedcorpusid": 42}`,
		`{"citingcorpusid": 200, "citedcorpusid": 42}`,
		`{"citingcorpusid": 100, "citedcorpusid": 42}`, // duplicate edge
		`{"citingcorpusid": 7, "citedcorpusid": 1500000}`,
		`{"citingcorpusid": null, "citedcorpusid": 9}`, // withdrawn
		`{"citingcorpusid": 9, "citedcorpusid": null}`,
	}
	for _, l := range lines {
		gz.Write([]byte(l + "\n"))
	}
	gz.Close()
	if err := os.WriteFile(filepath.Join(src, "part-000.gz"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := Ingest(src, out, DefaultShardSpan, zerolog.Nop())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 3 {
		t.Errorf("kept %d edges, want 3", n)
	}

	c, err := OpenCache(out, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	citing, ok := c.Citations(42)
	if !ok || len(citing) != 2 {
		t.Errorf("Citations(42) = %v, %v", citing, ok)
	}
	if citing, ok := c.Citations(1_500_000); !ok || len(citing) != 1 || citing[0] != 7 {
		t.Errorf("Citations(1500000) = %v, %v", citing, ok)
	}
}

func TestIngestNoFiles(t *testing.T) {
	if _, err := Ingest(t.TempDir(), t.TempDir(), 0, zerolog.Nop()); err == nil {
		t.Error("empty source dir should error")
	}
}
