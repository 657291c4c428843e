package transport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field lists requested from the graph API. The citations list is the
// details list plus the edge attributes, minus fields the citations
// endpoint does not serve.
const (
	DetailsFields = "paperId,corpusId,externalIds,url,title,abstract,venue," +
		"publicationVenue,year,authors,citationCount,referenceCount," +
		"influentialCitationCount,fieldsOfStudy,publicationTypes," +
		"publicationDate,isOpenAccess,openAccessPdf"

	CitationsFields = "paperId,corpusId,externalIds,url,title,abstract,venue," +
		"year,authors,citationCount,referenceCount,influentialCitationCount," +
		"contexts,intents"

	AuthorFields = "authorId,url,name,affiliations,homepage,paperCount," +
		"citationCount,hIndex"
)

// DetailsURL returns the URL for one paper's details. key must already
// carry its identifier prefix (e.g. "DOI:10.1/x" or a bare paper id).
func (c *Client) DetailsURL(key string) string {
	return fmt.Sprintf("%s/paper/%s?fields=%s", c.graphURL, key, DetailsFields)
}

// CorpusDetailsURL returns a details URL addressed by numeric corpus
// id, requesting the citation field set without edge attributes. Used
// when reconstructing citation edges from a local adjacency index.
func (c *Client) CorpusDetailsURL(corpusID int64) string {
	fields := strings.ReplaceAll(CitationsFields, ",contexts", "")
	fields = strings.ReplaceAll(fields, ",intents", "")
	return fmt.Sprintf("%s/paper/CorpusID:%d?fields=%s", c.graphURL, corpusID, fields)
}

// CitationsURL returns the URL for one page of a paper's citations.
func (c *Client) CitationsURL(key string, limit, offset int) string {
	u := fmt.Sprintf("%s/paper/%s/citations?fields=%s&limit=%d", c.graphURL, key, CitationsFields, limit)
	if offset > 0 {
		u += "&offset=" + strconv.Itoa(offset)
	}
	return u
}

// ReferencesURL returns the URL for one page of a paper's references.
func (c *Client) ReferencesURL(key string, limit, offset int) string {
	u := fmt.Sprintf("%s/paper/%s/references?fields=%s&limit=%d", c.graphURL, key, CitationsFields, limit)
	if offset > 0 {
		u += "&offset=" + strconv.Itoa(offset)
	}
	return u
}

// BatchURL returns the URL for the multi-paper details endpoint. The
// request body carries the ids; fields travel as a query parameter.
func (c *Client) BatchURL(fields string) string {
	if fields == "" {
		fields = DetailsFields
	}
	return fmt.Sprintf("%s/paper/batch?fields=%s", c.graphURL, fields)
}

// searchTerm strips everything the search endpoint cannot digest.
var searchTerm = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SearchURL returns the URL for a full-text paper search. The query is
// reduced to alphanumeric terms joined with "+".
func (c *Client) SearchURL(query string, limit int) string {
	terms := strings.Join(strings.Fields(searchTerm.ReplaceAllString(query, " ")), "+")
	return fmt.Sprintf("%s/paper/search?query=%s&fields=%s&limit=%d", c.graphURL, terms, DetailsFields, limit)
}

// AuthorURL returns the URL for an author's details.
func (c *Client) AuthorURL(authorID string, limit int) string {
	return fmt.Sprintf("%s/author/%s?fields=%s&limit=%d", c.graphURL, authorID, AuthorFields, limit)
}

// AuthorPapersURL returns the URL for one page of an author's papers.
func (c *Client) AuthorPapersURL(authorID string, limit, offset int) string {
	u := fmt.Sprintf("%s/author/%s/papers?fields=%s&limit=%d", c.graphURL, authorID, DetailsFields, limit)
	if offset > 0 {
		u += "&offset=" + strconv.Itoa(offset)
	}
	return u
}

// RecommendationsForPaperURL returns the single-seed recommendations
// URL. Multi-seed recommendations go through RecommendationsURL with a
// POST body instead.
func (c *Client) RecommendationsForPaperURL(key string, limit int) string {
	return fmt.Sprintf("%s/forpaper/%s?fields=%s&limit=%d", c.recURL, key, DetailsFields, limit)
}

// RecommendationsURL returns the multi-seed recommendations URL.
func (c *Client) RecommendationsURL(limit int) string {
	return fmt.Sprintf("%s?fields=%s&limit=%d", c.recURL, DetailsFields, limit)
}
