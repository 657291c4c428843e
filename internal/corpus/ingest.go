package corpus

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// releaseLine is one record of the citation dataset dump: an edge from
// a citing paper to a cited paper, both by corpus id. Either side may
// be null for withdrawn papers.
type releaseLine struct {
	CitingCorpusID *int64 `json:"citingcorpusid"`
	CitedCorpusID  *int64 `json:"citedcorpusid"`
}

// Ingest parses the gzipped citation dataset files under srcDir into
// sorted shard files under outDir and returns the number of edges
// kept. The whole adjacency map is consolidated in memory before
// sharding, which needs RAM in proportion to the dataset.
func Ingest(srcDir, outDir string, shardSpan int64, log zerolog.Logger) (int, error) {
	if shardSpan <= 0 {
		shardSpan = DefaultShardSpan
	}
	files, err := filepath.Glob(filepath.Join(srcDir, "*.gz"))
	if err != nil {
		return 0, fmt.Errorf("listing dataset files: %w", err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no .gz dataset files under %s", srcDir)
	}
	sort.Strings(files)

	adjacency := make(map[int64]map[int64]struct{})
	edges := 0
	for _, path := range files {
		n, err := ingestFile(path, adjacency)
		if err != nil {
			return 0, err
		}
		edges += n
		log.Info().Str("file", filepath.Base(path)).Int("edges", n).Msg("ingested dataset file")
	}

	if err := writeShards(outDir, adjacency, shardSpan); err != nil {
		return 0, err
	}
	return edges, nil
}

func ingestFile(path string, adjacency map[int64]map[int64]struct{}) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer gz.Close()

	edges := 0
	scanner := bufio.NewScanner(gz)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineCapacity)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec releaseLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return 0, fmt.Errorf("parsing %s: %w", path, err)
		}
		if rec.CitedCorpusID == nil || rec.CitingCorpusID == nil {
			continue
		}
		cited, citing := *rec.CitedCorpusID, *rec.CitingCorpusID
		set := adjacency[cited]
		if set == nil {
			set = make(map[int64]struct{})
			adjacency[cited] = set
		}
		if _, ok := set[citing]; !ok {
			set[citing] = struct{}{}
			edges++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return edges, nil
}

// writeShards bins the adjacency map by corpus id and writes one
// sorted shard file per occupied bin.
func writeShards(outDir string, adjacency map[int64]map[int64]struct{}, shardSpan int64) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating shard dir: %w", err)
	}
	bins := make(map[int64][]int64) // shard upper bound -> corpus ids
	for id := range adjacency {
		upper := (id/shardSpan + 1) * shardSpan
		bins[upper] = append(bins[upper], id)
	}
	for upper, ids := range bins {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := writeShard(filepath.Join(outDir, shardName(upper)), ids, adjacency); err != nil {
			return err
		}
	}
	return nil
}

func writeShard(path string, ids []int64, adjacency map[int64]map[int64]struct{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating shard: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, id := range ids {
		citing := make([]int64, 0, len(adjacency[id]))
		for c := range adjacency[id] {
			citing = append(citing, c)
		}
		sort.Slice(citing, func(i, j int) bool { return citing[i] < citing[j] })
		line, err := json.Marshal(shardEntry{CorpusID: id, Citing: citing})
		if err != nil {
			return fmt.Errorf("encoding shard entry: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("writing shard: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing shard: %w", err)
		}
	}
	return w.Flush()
}
