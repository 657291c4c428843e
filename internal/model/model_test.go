package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExternalIDsUnmarshal(t *testing.T) {
	var ids ExternalIDs
	data := `{"DOI":"10.1000/xyz","CorpusId":215416146,"ArXiv":"2010.06775","MAG":null}`
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ids["CorpusId"] != "215416146" {
		t.Errorf("numeric id should be stringified, got %q", ids["CorpusId"])
	}
	if ids["DOI"] != "10.1000/xyz" {
		t.Errorf("DOI = %q", ids["DOI"])
	}
	if _, ok := ids["MAG"]; ok {
		t.Error("null values should be dropped")
	}
}

func TestNumericCorpusID(t *testing.T) {
	d := &PaperDetails{CorpusID: 42}
	if id, ok := d.NumericCorpusID(); !ok || id != 42 {
		t.Errorf("NumericCorpusID = %d, %v", id, ok)
	}

	d = &PaperDetails{ExternalIDs: ExternalIDs{"CorpusId": "99"}}
	if id, ok := d.NumericCorpusID(); !ok || id != 99 {
		t.Errorf("fallback NumericCorpusID = %d, %v", id, ok)
	}

	d = &PaperDetails{}
	if _, ok := d.NumericCorpusID(); ok {
		t.Error("empty details should have no corpus id")
	}
	var nilD *PaperDetails
	if _, ok := nilD.NumericCorpusID(); ok {
		t.Error("nil details should have no corpus id")
	}
}

func TestEdgeCounterpartAndValid(t *testing.T) {
	citing := Edge{CitingPaper: &PaperDetails{PaperID: "a"}}
	if citing.Counterpart().PaperID != "a" || !citing.Valid() {
		t.Error("citing edge counterpart")
	}
	cited := Edge{CitedPaper: &PaperDetails{PaperID: "b"}}
	if cited.Counterpart().PaperID != "b" || !cited.Valid() {
		t.Error("cited edge counterpart")
	}
	if (Edge{}).Valid() {
		t.Error("empty edge must be invalid")
	}
	if (Edge{CitingPaper: &PaperDetails{}}).Valid() {
		t.Error("edge with empty paperId must be invalid")
	}
}

func TestToDetails(t *testing.T) {
	p := &PaperData{
		Details: PaperDetails{PaperID: "x", Title: "T"},
		Citations: EdgeList{Data: []Edge{
			{CitingPaper: &PaperDetails{PaperID: "c1"}},
			{CitingPaper: &PaperDetails{PaperID: "c2"}},
		}},
		References: EdgeList{Data: []Edge{
			{CitedPaper: &PaperDetails{PaperID: "r1"}},
		}},
	}
	d := p.ToDetails()
	if len(d.Citations) != 2 || d.Citations[0].PaperID != "c1" {
		t.Errorf("citations folded wrong: %+v", d.Citations)
	}
	if len(d.References) != 1 || d.References[0].PaperID != "r1" {
		t.Errorf("references folded wrong: %+v", d.References)
	}
	// source record untouched
	if len(p.Details.Citations) != 0 {
		t.Error("ToDetails must not mutate the stored record")
	}
}

func TestParseDetails(t *testing.T) {
	d, err := ParseDetails([]byte(`{"paperId":"abc","title":"T","citationCount":5}`))
	if err != nil {
		t.Fatalf("ParseDetails: %v", err)
	}
	if d.PaperID != "abc" || d.CitationCount != 5 {
		t.Errorf("parsed %+v", d)
	}
}

func TestParseDetailsLegacyRemap(t *testing.T) {
	raw := `{"paperId":"abc","numCitedBy":7,"numCiting":3,"arxivId":"2010.06775"}`
	d, err := ParseDetails([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDetails legacy: %v", err)
	}
	if d.CitationCount != 7 {
		t.Errorf("numCitedBy remap: citationCount = %d", d.CitationCount)
	}
	if d.ReferenceCount != 3 {
		t.Errorf("numCiting remap: referenceCount = %d", d.ReferenceCount)
	}
	if d.ExternalIDs["ArXiv"] != "2010.06775" {
		t.Errorf("arxivId remap: externalIds = %v", d.ExternalIDs)
	}

	// a current-shape field is never overwritten by its legacy twin
	d, err = ParseDetails([]byte(`{"paperId":"abc","citationCount":9,"numCitedBy":7}`))
	if err != nil {
		t.Fatalf("ParseDetails mixed: %v", err)
	}
	if d.CitationCount != 9 {
		t.Errorf("mixed-schema citationCount = %d, want 9", d.CitationCount)
	}
}

func TestParseDetailsRemoteError(t *testing.T) {
	_, err := ParseDetails([]byte(`{"error":"Paper not found"}`))
	if !errors.Is(err, ErrRemoteError) {
		t.Errorf("want ErrRemoteError, got %v", err)
	}
	_, err = ParseDetails([]byte(`{"title":"no id"}`))
	if !errors.Is(err, ErrRemoteError) {
		t.Errorf("missing paperId: want ErrRemoteError, got %v", err)
	}
}

func TestParseEdgeList(t *testing.T) {
	data := `{"offset":0,"next":100,"data":[{"citingPaper":{"paperId":"p1"},"contexts":["ctx"],"intents":["background"]}]}`
	l, err := ParseEdgeList([]byte(data))
	if err != nil {
		t.Fatalf("ParseEdgeList: %v", err)
	}
	if l.Next == nil || *l.Next != 100 {
		t.Errorf("next = %v", l.Next)
	}
	if len(l.Data) != 1 || l.Data[0].CitingPaper.PaperID != "p1" {
		t.Errorf("data = %+v", l.Data)
	}

	if _, err := ParseEdgeList([]byte(`{"error":"bad id"}`)); !errors.Is(err, ErrRemoteError) {
		t.Errorf("want ErrRemoteError, got %v", err)
	}

	// absent next means no more pages
	l, err = ParseEdgeList([]byte(`{"offset":0,"data":[]}`))
	if err != nil {
		t.Fatalf("ParseEdgeList: %v", err)
	}
	if l.Next != nil {
		t.Errorf("next should be nil, got %v", *l.Next)
	}
}

func TestPaperDataRoundTrip(t *testing.T) {
	p := &PaperData{
		Details: PaperDetails{
			PaperID:       "abc",
			CorpusID:      7,
			Title:         "A Paper",
			Authors:       []Author{{AuthorID: "1", Name: "A. Author"}},
			ExternalIDs:   ExternalIDs{"DOI": "10.1/x", "CorpusId": "7"},
			CitationCount: 2,
		},
		Citations: EdgeList{
			Offset: 0,
			Next:   NextPtr(2),
			Data: []Edge{
				{CitingPaper: &PaperDetails{PaperID: "c1"}, Contexts: []string{"quote"}},
				{CitingPaper: &PaperDetails{PaperID: "c2"}},
			},
		},
		References: EdgeList{Data: []Edge{{CitedPaper: &PaperDetails{PaperID: "r1"}}}},
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParsePaperData(b)
	if err != nil {
		t.Fatalf("ParsePaperData: %v", err)
	}
	if !got.Valid() {
		t.Fatal("round-tripped record should be valid")
	}
	if got.Details.Title != "A Paper" || got.Details.CorpusID != 7 {
		t.Errorf("details = %+v", got.Details)
	}
	if *got.Citations.Next != 2 || len(got.Citations.Data) != 2 {
		t.Errorf("citations = %+v", got.Citations)
	}
	if got.Citations.Data[0].Contexts[0] != "quote" {
		t.Errorf("contexts lost: %+v", got.Citations.Data[0])
	}
}

func TestValid(t *testing.T) {
	var p *PaperData
	if p.Valid() {
		t.Error("nil record valid")
	}
	if (&PaperData{}).Valid() {
		t.Error("empty record valid")
	}
	if !(&PaperData{Details: PaperDetails{PaperID: "x"}}).Valid() {
		t.Error("record with paperId should be valid")
	}
}
