package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/meta"
	"github.com/matsen/s2cache/internal/model"
)

// databaseFile is the single database holding all tables.
const databaseFile = "s2cache.db"

// SQLite stores paper details, citation edges, metadata, and
// duplicates in one database. Citation and reference lists are
// reconstructed from the edges table on read, so a record loaded from
// this backend starts at offset 0 with no continuation cursor.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens or creates the database under dir.
func OpenSQLite(dir string, log zerolog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, databaseFile))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			paper_id TEXT PRIMARY KEY,
			details TEXT NOT NULL
		);

		-- One row per citation edge; contexts and intents as JSON arrays.
		CREATE TABLE IF NOT EXISTS citations (
			citing_paper TEXT NOT NULL,
			cited_paper TEXT NOT NULL,
			contexts TEXT,
			intents TEXT,
			PRIMARY KEY (citing_paper, cited_paper)
		);
		CREATE INDEX IF NOT EXISTS idx_citations_cited ON citations(cited_paper);
		CREATE INDEX IF NOT EXISTS idx_citations_citing ON citations(citing_paper);

		CREATE TABLE IF NOT EXISTS metadata (
			paper_id TEXT PRIMARY KEY,
			extids TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS duplicates (
			paper_id TEXT PRIMARY KEY,
			duplicate TEXT NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get reconstructs one paper record from the papers and citations
// tables. A row whose details fail to parse is logged and treated as a
// miss.
func (s *SQLite) Get(id string) (*model.PaperData, error) {
	var raw string
	err := s.db.QueryRow(`SELECT details FROM papers WHERE paper_id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading paper %s: %w", id, err)
	}
	var details model.PaperDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		s.log.Warn().Str("paperId", id).Err(err).Msg("corrupt details row, treating as miss")
		return nil, nil
	}
	data := &model.PaperData{Details: details}

	citations, err := s.loadEdges(id, false)
	if err != nil {
		return nil, err
	}
	references, err := s.loadEdges(id, true)
	if err != nil {
		return nil, err
	}
	data.Citations = model.EdgeList{Data: citations}
	data.References = model.EdgeList{Data: references}
	repairCounts(data)
	return data, nil
}

// loadEdges loads citation edges touching a paper: its citations
// (edges where it is cited) or its references (edges where it cites).
func (s *SQLite) loadEdges(id string, references bool) ([]model.Edge, error) {
	query := `SELECT citing_paper, cited_paper, contexts, intents, p.details
		FROM citations c JOIN papers p ON p.paper_id = c.citing_paper
		WHERE c.cited_paper = ?`
	if references {
		query = `SELECT citing_paper, cited_paper, contexts, intents, p.details
			FROM citations c JOIN papers p ON p.paper_id = c.cited_paper
			WHERE c.citing_paper = ?`
	}
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("loading edges for %s: %w", id, err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var citing, cited, rawDetails string
		var contexts, intents sql.NullString
		if err := rows.Scan(&citing, &cited, &contexts, &intents, &rawDetails); err != nil {
			return nil, err
		}
		var counterpart model.PaperDetails
		if err := json.Unmarshal([]byte(rawDetails), &counterpart); err != nil {
			s.log.Warn().Str("paperId", id).Err(err).Msg("corrupt edge counterpart, skipping")
			continue
		}
		edge := model.Edge{
			Contexts: decodeStrings(contexts),
			Intents:  decodeStrings(intents),
		}
		if references {
			edge.CitedPaper = &counterpart
		} else {
			edge.CitingPaper = &counterpart
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// Put writes the record's details, its edges, and the counterpart
// details carried on each edge. Existing edges are replaced, never
// removed, matching the merge semantics of the read path.
func (s *SQLite) Put(id string, data *model.PaperData) error {
	repairCounts(data)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertDetails(tx, id, &data.Details); err != nil {
		return err
	}
	for _, e := range data.Citations.Data {
		if !e.Valid() {
			continue
		}
		if err := upsertEdge(tx, e.Counterpart().PaperID, id, e); err != nil {
			return err
		}
	}
	for _, e := range data.References.Data {
		if !e.Valid() {
			continue
		}
		if err := upsertEdge(tx, id, e.Counterpart().PaperID, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertDetails(tx *sql.Tx, id string, details *model.PaperDetails) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encoding details for %s: %w", id, err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO papers (paper_id, details) VALUES (?, ?)`, id, string(raw))
	if err != nil {
		return fmt.Errorf("inserting paper %s: %w", id, err)
	}
	return nil
}

func upsertEdge(tx *sql.Tx, citingID, citedID string, e model.Edge) error {
	counterpart := e.Counterpart()

	// The counterpart's details ride along on the edge; keep them so
	// reads can rebuild full edge entries.
	var existing string
	err := tx.QueryRow(`SELECT paper_id FROM papers WHERE paper_id = ?`, counterpart.PaperID).Scan(&existing)
	if err == sql.ErrNoRows {
		if err := upsertDetails(tx, counterpart.PaperID, counterpart); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("checking counterpart %s: %w", counterpart.PaperID, err)
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO citations (citing_paper, cited_paper, contexts, intents)
		VALUES (?, ?, ?, ?)`,
		citingID, citedID, encodeStrings(e.Contexts), encodeStrings(e.Intents))
	if err != nil {
		return fmt.Errorf("inserting edge %s -> %s: %w", citingID, citedID, err)
	}
	return nil
}

// Delete removes a paper, the edges touching it, and its metadata row.
func (s *SQLite) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM papers WHERE paper_id = ?`, id); err != nil {
		return fmt.Errorf("deleting paper %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM citations WHERE citing_paper = ? OR cited_paper = ?`, id, id); err != nil {
		return fmt.Errorf("deleting edges for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM metadata WHERE paper_id = ?`, id); err != nil {
		return fmt.Errorf("deleting metadata for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM duplicates WHERE paper_id = ?`, id); err != nil {
		return fmt.Errorf("deleting duplicate link for %s: %w", id, err)
	}
	return tx.Commit()
}

// Keys lists all stored paper ids.
func (s *SQLite) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT paper_id FROM papers ORDER BY paper_id`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	return keys, rows.Err()
}

// LoadMetadata reads the full metadata table.
func (s *SQLite) LoadMetadata() (map[string]meta.ExtIDs, error) {
	rows, err := s.db.Query(`SELECT paper_id, extids FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]meta.ExtIDs)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var ext map[string]string
		if err := json.Unmarshal([]byte(raw), &ext); err != nil {
			s.log.Warn().Str("paperId", id).Msg("malformed metadata row, repairing with empty entry")
			out[id] = meta.ExtIDs{}
			continue
		}
		out[id] = toExtIDs(ext)
	}
	return out, rows.Err()
}

// AppendMetadata inserts or replaces one metadata row.
func (s *SQLite) AppendMetadata(id string, ext meta.ExtIDs) error {
	raw, err := json.Marshal(ext)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", id, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO metadata (paper_id, extids) VALUES (?, ?)`, id, string(raw))
	if err != nil {
		return fmt.Errorf("inserting metadata for %s: %w", id, err)
	}
	return nil
}

// RebuildMetadata regenerates the metadata table from the papers table.
func (s *SQLite) RebuildMetadata() (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM metadata`); err != nil {
		return 0, fmt.Errorf("clearing metadata: %w", err)
	}
	count := 0
	for _, id := range keys {
		var raw string
		if err := tx.QueryRow(`SELECT details FROM papers WHERE paper_id = ?`, id).Scan(&raw); err != nil {
			return 0, fmt.Errorf("loading details for %s: %w", id, err)
		}
		var details model.PaperDetails
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			continue
		}
		ext := meta.ExtIDs(ident.NormalizeKeys(details.ExternalIDs))
		encoded, err := json.Marshal(ext)
		if err != nil {
			return 0, fmt.Errorf("encoding metadata for %s: %w", id, err)
		}
		if _, err := tx.Exec(`INSERT INTO metadata (paper_id, extids) VALUES (?, ?)`, id, string(encoded)); err != nil {
			return 0, fmt.Errorf("inserting metadata for %s: %w", id, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// LoadDuplicates reads the duplicate-id table.
func (s *SQLite) LoadDuplicates() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT paper_id, duplicate FROM duplicates`)
	if err != nil {
		return nil, fmt.Errorf("loading duplicates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, canonical string
		if err := rows.Scan(&id, &canonical); err != nil {
			return nil, err
		}
		out[id] = canonical
	}
	return out, rows.Err()
}

// AppendDuplicate records one duplicate link.
func (s *SQLite) AppendDuplicate(id, canonical string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO duplicates (paper_id, duplicate) VALUES (?, ?)`, id, canonical)
	if err != nil {
		return fmt.Errorf("inserting duplicate %s: %w", id, err)
	}
	return nil
}

func encodeStrings(xs []string) sql.NullString {
	if len(xs) == 0 {
		return sql.NullString{}
	}
	raw, err := json.Marshal(xs)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func decodeStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var xs []string
	if err := json.Unmarshal([]byte(ns.String), &xs); err != nil {
		return nil
	}
	return xs
}
