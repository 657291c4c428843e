package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/meta"
	"github.com/matsen/s2cache/internal/model"
)

const (
	metadataFile   = "metadata.jsonl"
	duplicatesFile = "duplicates.csv"
)

// JSONL stores each paper record as a bare file named by its paper id,
// with metadata.jsonl and duplicates.csv sidecars in the same
// directory.
type JSONL struct {
	dir string
	log zerolog.Logger
}

// OpenJSONL opens a JSONL store rooted at dir, creating the directory
// if needed.
func OpenJSONL(dir string, log zerolog.Logger) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &JSONL{dir: dir, log: log}, nil
}

func (s *JSONL) paperPath(id string) string {
	return filepath.Join(s.dir, id)
}

// Get loads one paper record. A missing file is a plain miss; a file
// that fails to parse is treated the same after a log line, so the
// caller refetches over a corrupt entry.
func (s *JSONL) Get(id string) (*model.PaperData, error) {
	raw, err := os.ReadFile(s.paperPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading paper %s: %w", id, err)
	}
	data, err := model.ParsePaperData(raw)
	if err != nil {
		s.log.Warn().Str("paperId", id).Err(err).Msg("corrupt cache file, treating as miss")
		return nil, nil
	}
	return data, nil
}

// Put writes one paper record, replacing any existing file.
func (s *JSONL) Put(id string, data *model.PaperData) error {
	repairCounts(data)
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding paper %s: %w", id, err)
	}
	if err := os.WriteFile(s.paperPath(id), raw, 0644); err != nil {
		return fmt.Errorf("writing paper %s: %w", id, err)
	}
	return nil
}

// Delete removes a paper record file. Its metadata line is left in
// place and dropped on the next rebuild.
func (s *JSONL) Delete(id string) error {
	if err := os.Remove(s.paperPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting paper %s: %w", id, err)
	}
	return nil
}

// Keys lists the stored paper ids: every bare-named file in the cache
// directory that is not a sidecar, backup, or dotted file.
func (s *JSONL) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, "~") || strings.Contains(name, ".") ||
			strings.Contains(name, "metadata") || strings.Contains(name, "duplicates") ||
			name == "cache" {
			continue
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// LoadMetadata reads metadata.jsonl, one {"<paperId>": {...}} object
// per line. A malformed line is repaired to an empty entry when its
// paper id can be recovered, and skipped otherwise.
func (s *JSONL) LoadMetadata() (map[string]meta.ExtIDs, error) {
	out := make(map[string]meta.ExtIDs)
	f, err := os.Open(filepath.Join(s.dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn().Msg("metadata file not found, initializing empty metadata")
			return out, nil
		}
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry map[string]map[string]string
		if err := json.Unmarshal(line, &entry); err != nil {
			if id := recoverLineKey(string(line)); id != "" {
				s.log.Warn().Int("line", lineNum).Str("paperId", id).
					Msg("malformed metadata line, repairing with empty entry")
				out[id] = meta.ExtIDs{}
			} else {
				s.log.Warn().Int("line", lineNum).Msg("malformed metadata line, skipping")
			}
			continue
		}
		for id, ext := range entry {
			out[id] = toExtIDs(ext)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}
	return out, nil
}

// AppendMetadata adds one metadata line. Later lines for the same id
// win on load, so updates are appends.
func (s *JSONL) AppendMetadata(id string, ext meta.ExtIDs) error {
	f, err := os.OpenFile(filepath.Join(s.dir, metadataFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening metadata file for append: %w", err)
	}
	defer f.Close()
	return writeMetadataLine(f, id, ext)
}

// RebuildMetadata regenerates metadata.jsonl from the stored paper
// records, writing to a temp file and renaming over the original.
func (s *JSONL) RebuildMetadata() (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(s.dir, ".metadata-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	count := 0
	for _, id := range keys {
		data, err := s.Get(id)
		if err != nil {
			tmp.Close()
			return 0, err
		}
		if data == nil {
			continue
		}
		ext := meta.ExtIDs(ident.NormalizeKeys(data.Details.ExternalIDs))
		if err := writeMetadataLine(tmp, id, ext); err != nil {
			tmp.Close()
			return 0, err
		}
		count++
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp metadata file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, metadataFile)); err != nil {
		return 0, fmt.Errorf("replacing metadata file: %w", err)
	}
	return count, nil
}

// LoadDuplicates reads duplicates.csv, one "id:canonical" per line.
func (s *JSONL) LoadDuplicates() (map[string]string, error) {
	out := make(map[string]string)
	raw, err := os.ReadFile(filepath.Join(s.dir, duplicatesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("opening duplicates file: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		id, canonical, ok := strings.Cut(line, ":")
		if !ok {
			s.log.Warn().Str("line", line).Msg("malformed duplicates line, skipping")
			continue
		}
		out[id] = canonical
	}
	return out, nil
}

// AppendDuplicate records one duplicate link.
func (s *JSONL) AppendDuplicate(id, canonical string) error {
	f, err := os.OpenFile(filepath.Join(s.dir, duplicatesFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening duplicates file for append: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s:%s\n", id, canonical); err != nil {
		return fmt.Errorf("writing duplicate: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *JSONL) Close() error { return nil }

func writeMetadataLine(f *os.File, id string, ext meta.ExtIDs) error {
	line, err := json.Marshal(map[string]meta.ExtIDs{id: ext})
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", id, err)
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}
	return nil
}

// recoverLineKey extracts the object key from the front of a broken
// {"<id>": ... line, so a truncated entry still keeps its paper id.
func recoverLineKey(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, `{"`) {
		return ""
	}
	rest := line[2:]
	end := strings.IndexByte(rest, '"')
	if end <= 0 {
		return ""
	}
	return rest[:end]
}

func toExtIDs(raw map[string]string) meta.ExtIDs {
	ext := make(meta.ExtIDs, len(raw))
	for k, v := range raw {
		kind, err := ident.Classify(k)
		if err != nil {
			continue
		}
		ext[kind] = v
	}
	return ext
}
