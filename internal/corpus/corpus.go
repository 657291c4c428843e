// Package corpus is a local adjacency index of the full citation
// graph, keyed by numeric corpus id. It answers "which corpus ids cite
// this one" without touching the network, from shard files produced by
// Ingest. The remote service stops enumerating citations at a fixed
// depth; this index is how citation lists beyond that depth get built.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultShardSpan is the width of the corpus-id range each shard file
// covers.
const DefaultShardSpan = 1_000_000

// maxLineCapacity bounds shard line length; heavily cited papers carry
// very long adjacency rows.
const maxLineCapacity = 64 * 1024 * 1024

// shardCacheSize is how many loaded shards are kept in memory.
const shardCacheSize = 4

// shardEntry is one line of a shard file.
type shardEntry struct {
	CorpusID int64   `json:"corpusId"`
	Citing   []int64 `json:"citing"`
}

// Cache reads citation adjacency data from sorted shard files named
// shard_<upper>.jsonl, where every corpus id in the file is smaller
// than <upper> and at least as large as the previous shard's bound.
type Cache struct {
	dir    string
	uppers []int64 // sorted shard upper bounds
	shards *lru.Cache[int64, map[int64][]int64]
	log    zerolog.Logger
}

// OpenCache scans dir for shard files. An empty directory yields a
// cache that misses on every lookup.
func OpenCache(dir string, log zerolog.Logger) (*Cache, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus dir: %w", err)
	}
	var uppers []int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "shard_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "shard_"), ".jsonl"), 10, 64)
		if err != nil {
			log.Warn().Str("file", name).Msg("unparseable shard name, skipping")
			continue
		}
		uppers = append(uppers, n)
	}
	sort.Slice(uppers, func(i, j int) bool { return uppers[i] < uppers[j] })

	shards, err := lru.New[int64, map[int64][]int64](shardCacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, uppers: uppers, shards: shards, log: log}, nil
}

// Len returns the number of shard files found.
func (c *Cache) Len() int { return len(c.uppers) }

// Citations returns the corpus ids of all papers citing id, or
// (nil, false) when the id falls outside every shard or has no row.
func (c *Cache) Citations(id int64) ([]int64, bool) {
	upper, ok := c.shardFor(id)
	if !ok {
		return nil, false
	}
	shard, err := c.loadShard(upper)
	if err != nil {
		c.log.Warn().Int64("shard", upper).Err(err).Msg("failed to load shard")
		return nil, false
	}
	citing, ok := shard[id]
	return citing, ok
}

// shardFor finds the first shard whose upper bound exceeds id.
func (c *Cache) shardFor(id int64) (int64, bool) {
	i := sort.Search(len(c.uppers), func(i int) bool { return c.uppers[i] > id })
	if i == len(c.uppers) {
		return 0, false
	}
	return c.uppers[i], true
}

func (c *Cache) loadShard(upper int64) (map[int64][]int64, error) {
	if shard, ok := c.shards.Get(upper); ok {
		return shard, nil
	}
	path := filepath.Join(c.dir, shardName(upper))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard: %w", err)
	}
	defer f.Close()

	shard := make(map[int64][]int64)
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, maxLineCapacity)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry shardEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parsing shard line: %w", err)
		}
		shard[entry.CorpusID] = entry.Citing
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading shard: %w", err)
	}
	c.log.Debug().Int64("shard", upper).Int("entries", len(shard)).Msg("loaded corpus shard")
	c.shards.Add(upper, shard)
	return shard, nil
}

func shardName(upper int64) string {
	return fmt.Sprintf("shard_%010d.jsonl", upper)
}
