// Package model defines the typed record schema for cached Semantic
// Scholar data: paper details, citation/reference edge-lists and the
// full per-paper record stored by the backends.
package model

import (
	"encoding/json"
	"strconv"
)

// Author is one entry of a paper's ordered author list.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name,omitempty"`
}

// OpenAccessPdf carries the open-access link when the API reports one.
type OpenAccessPdf struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// ExternalIDs maps identifier kind names (as spelled by the API:
// "DOI", "ArXiv", "CorpusId", ...) to their values. The API mixes
// string and numeric values, so decoding stringifies numbers.
type ExternalIDs map[string]string

// UnmarshalJSON accepts both string and numeric identifier values.
func (e *ExternalIDs) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ExternalIDs, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatInt(int64(val), 10)
		case nil:
			// skip
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*e = out
	return nil
}

// PaperDetails is one logical paper as reported by the graph API.
//
// DuplicateID is set only on returned views when the lookup resolved
// through a duplicate link; it records the ID that was requested and is
// never persisted as part of canonical data.
type PaperDetails struct {
	PaperID                  string          `json:"paperId"`
	CorpusID                 int64           `json:"corpusId,omitempty"`
	ExternalIDs              ExternalIDs     `json:"externalIds,omitempty"`
	URL                      string          `json:"url,omitempty"`
	Title                    string          `json:"title,omitempty"`
	Abstract                 string          `json:"abstract,omitempty"`
	Venue                    string          `json:"venue,omitempty"`
	PublicationVenue         json.RawMessage `json:"publicationVenue,omitempty"`
	Year                     int             `json:"year,omitempty"`
	Authors                  []Author        `json:"authors,omitempty"`
	CitationCount            int             `json:"citationCount,omitempty"`
	ReferenceCount           int             `json:"referenceCount,omitempty"`
	InfluentialCitationCount int             `json:"influentialCitationCount,omitempty"`
	FieldsOfStudy            []string        `json:"fieldsOfStudy,omitempty"`
	PublicationTypes         []string        `json:"publicationTypes,omitempty"`
	PublicationDate          string          `json:"publicationDate,omitempty"`
	IsOpenAccess             bool            `json:"isOpenAccess,omitempty"`
	OpenAccessPdf            *OpenAccessPdf  `json:"openAccessPdf,omitempty"`

	// Populated on detail views only; the backends store edge-lists
	// separately.
	Citations  []*PaperDetails `json:"citations,omitempty"`
	References []*PaperDetails `json:"references,omitempty"`

	DuplicateID string `json:"duplicateId,omitempty"`
}

// NumericCorpusID returns the paper's corpus id, falling back to the
// external-id map when the top-level field was not requested.
func (d *PaperDetails) NumericCorpusID() (int64, bool) {
	if d == nil {
		return 0, false
	}
	if d.CorpusID != 0 {
		return d.CorpusID, true
	}
	if v, ok := d.ExternalIDs["CorpusId"]; ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Edge is one citation or reference entry: exactly one of CitingPaper
// or CitedPaper is set depending on which edge-list it belongs to.
type Edge struct {
	CitingPaper *PaperDetails `json:"citingPaper,omitempty"`
	CitedPaper  *PaperDetails `json:"citedPaper,omitempty"`
	Contexts    []string      `json:"contexts,omitempty"`
	Intents     []string      `json:"intents,omitempty"`
}

// Counterpart returns the paper on the far end of the edge.
func (e Edge) Counterpart() *PaperDetails {
	if e.CitingPaper != nil {
		return e.CitingPaper
	}
	return e.CitedPaper
}

// Valid reports whether the edge carries a usable counterpart. The API
// sometimes returns error sentinels in edge data; those have no paper
// id and are dropped on merge.
func (e Edge) Valid() bool {
	p := e.Counterpart()
	return p != nil && p.PaperID != ""
}

// EdgeList is one page (or an accumulated list) of citation or
// reference edges. Next is the remote continuation cursor; nil means no
// more pages.
type EdgeList struct {
	Offset int    `json:"offset"`
	Next   *int   `json:"next,omitempty"`
	Data   []Edge `json:"data"`
}

// NextPtr is a convenience for building cursors in literals and tests.
func NextPtr(n int) *int { return &n }

// CounterpartIDs returns the set of canonical keys present in the list.
func (l EdgeList) CounterpartIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Data))
	for _, e := range l.Data {
		if e.Valid() {
			ids[e.Counterpart().PaperID] = struct{}{}
		}
	}
	return ids
}

// CorpusIDs returns the numeric corpus ids of counterpart papers,
// skipping entries that carry none.
func (l EdgeList) CorpusIDs() []int64 {
	out := make([]int64, 0, len(l.Data))
	for _, e := range l.Data {
		if id, ok := e.Counterpart().NumericCorpusID(); ok {
			out = append(out, id)
		}
	}
	return out
}

// PaperData is the full record unit stored and retrieved as one item.
type PaperData struct {
	Details    PaperDetails `json:"details"`
	Citations  EdgeList     `json:"citations"`
	References EdgeList     `json:"references"`
}

// Valid reports structural validity of a stored record: the expected
// top-level fields must be present. Invalid records are treated as
// cache misses, never as fatal errors.
func (p *PaperData) Valid() bool {
	return p != nil && p.Details.PaperID != ""
}

// ToDetails folds the citation and reference edge-lists into the
// details view, hiding offsets and cursors from the caller.
func (p *PaperData) ToDetails() *PaperDetails {
	d := p.Details
	d.Citations = make([]*PaperDetails, 0, len(p.Citations.Data))
	for _, e := range p.Citations.Data {
		if e.CitingPaper != nil {
			d.Citations = append(d.Citations, e.CitingPaper)
		}
	}
	d.References = make([]*PaperDetails, 0, len(p.References.Data))
	for _, e := range p.References.Data {
		if e.CitedPaper != nil {
			d.References = append(d.References, e.CitedPaper)
		}
	}
	return &d
}

// AuthorDetails is an author record from the author endpoint.
type AuthorDetails struct {
	AuthorID      string   `json:"authorId"`
	ExternalIDs   ExternalIDs `json:"externalIds,omitempty"`
	URL           string   `json:"url,omitempty"`
	Name          string   `json:"name,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	Affiliations  []string `json:"affiliations,omitempty"`
	Homepage      string   `json:"homepage,omitempty"`
	PaperCount    int      `json:"paperCount,omitempty"`
	CitationCount int      `json:"citationCount,omitempty"`
	HIndex        int      `json:"hIndex,omitempty"`
}

// AuthorPapers is the combined author + papers view.
type AuthorPapers struct {
	Author AuthorDetails   `json:"author"`
	Papers []*PaperDetails `json:"papers"`
}
