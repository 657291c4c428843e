package scholar

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/model"
)

// Search runs a full-text paper search. Results are returned as-is and
// not cached: a search hit carries no pagination state worth keeping.
func (s *Scholar) Search(ctx context.Context, query string) ([]*model.PaperDetails, error) {
	body, err := s.client.Get(ctx, s.client.SearchURL(query, s.cfg.Data.Search.Limit))
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	var page struct {
		Total int               `json:"total"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}
	out := make([]*model.PaperDetails, 0, len(page.Data))
	for _, raw := range page.Data {
		details, err := model.ParseDetails(raw)
		if err != nil {
			continue
		}
		out = append(out, details)
	}
	return out, nil
}

// AuthorResult pairs an author with their papers.
type AuthorResult struct {
	Author model.AuthorDetails   `json:"author"`
	Papers []*model.PaperDetails `json:"papers"`
}

// AuthorDetails fetches an author and their papers concurrently.
func (s *Scholar) AuthorDetails(ctx context.Context, authorID string) (*AuthorResult, error) {
	urls := []string{
		s.client.AuthorURL(authorID, s.cfg.Data.Author.Limit),
		s.client.AuthorPapersURL(authorID, s.cfg.Data.AuthorPapers.Limit, 0),
	}
	results := s.client.FetchMany(ctx, urls)
	if results[0].Err != nil {
		return nil, fmt.Errorf("fetching author %s: %w", authorID, results[0].Err)
	}
	var author model.AuthorDetails
	if err := json.Unmarshal(results[0].Body, &author); err != nil {
		return nil, fmt.Errorf("parsing author %s: %w", authorID, err)
	}
	out := &AuthorResult{Author: author}
	if results[1].Err == nil {
		out.Papers = parsePaperPage(results[1].Body)
	}
	return out, nil
}

// AuthorPapers fetches one page of an author's papers.
func (s *Scholar) AuthorPapers(ctx context.Context, authorID string, offset int) ([]*model.PaperDetails, error) {
	body, err := s.client.Get(ctx, s.client.AuthorPapersURL(authorID, s.cfg.Data.AuthorPapers.Limit, offset))
	if err != nil {
		return nil, fmt.Errorf("fetching papers for author %s: %w", authorID, err)
	}
	return parsePaperPage(body), nil
}

// Recommendations fetches recommended papers for a set of seed ids. A
// single positive seed with no negatives uses the keyed endpoint; any
// negatives force the POST form. count > 0 truncates the results.
func (s *Scholar) Recommendations(ctx context.Context, posIDs, negIDs []string, count int) ([]*model.PaperDetails, error) {
	if len(posIDs) == 0 {
		return nil, fmt.Errorf("recommendations need at least one positive paper id")
	}
	limit := s.cfg.Data.Details.Limit
	var body []byte
	var err error
	if len(negIDs) > 0 {
		body, err = s.client.Post(ctx, s.client.RecommendationsURL(limit), map[string][]string{
			"positivePaperIds": posIDs,
			"negativePaperIds": negIDs,
		})
	} else {
		body, err = s.client.Get(ctx, s.client.RecommendationsForPaperURL(posIDs[0], limit))
	}
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}
	var page struct {
		RecommendedPapers []json.RawMessage `json:"recommendedPapers"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parsing recommendations: %w", err)
	}
	raws := page.RecommendedPapers
	if count > 0 && len(raws) > count {
		raws = raws[:count]
	}
	out := make([]*model.PaperDetails, 0, len(raws))
	for _, raw := range raws {
		details, err := model.ParseDetails(raw)
		if err != nil {
			continue
		}
		out = append(out, details)
	}
	return out, nil
}

// IDPair is one identifier in a batch lookup.
type IDPair struct {
	Kind ident.Kind
	ID   string
}

// BatchPaperDetails resolves many identifiers at once: cached papers
// come from the store, the rest from one multi-paper details request.
// Results are keyed by the requested id; papers the service cannot
// resolve are absent.
func (s *Scholar) BatchPaperDetails(ctx context.Context, pairs []IDPair, force bool) (map[string]*model.PaperDetails, error) {
	out := make(map[string]*model.PaperDetails, len(pairs))
	missing := make(map[string]string, len(pairs)) // lookup key -> requested id

	for _, p := range pairs {
		key, haveMetadata := s.resolve(p.Kind, p.ID)
		if haveMetadata && !force {
			if data := s.checkCache(key); data != nil {
				out[p.ID] = s.ApplyLimits(data.ToDetails())
				continue
			}
		}
		if !ident.Fetchable(p.Kind) {
			return nil, fmt.Errorf("%w: %s", ident.ErrUnsupportedDirectFetch, p.Kind)
		}
		if key == "" {
			key = ident.LookupID(p.Kind, p.ID)
		}
		missing[key] = p.ID
	}
	if len(missing) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	body, err := s.client.Post(ctx, s.client.BatchURL(""), map[string][]string{"ids": keys})
	if err != nil {
		return nil, fmt.Errorf("batch fetch: %w", err)
	}
	var papers []json.RawMessage
	if err := json.Unmarshal(body, &papers); err != nil {
		return nil, fmt.Errorf("parsing batch results: %w", err)
	}
	// The response carries one entry per requested id, in order, with
	// null for unresolvable ids.
	for i, raw := range papers {
		if i >= len(keys) || string(raw) == "null" {
			continue
		}
		details, err := model.ParseDetails(raw)
		if err != nil {
			continue
		}
		data, err := s.commit(&model.PaperData{Details: *details}, keys[i], force)
		if err != nil {
			return nil, err
		}
		out[missing[keys[i]]] = s.ApplyLimits(data.ToDetails())
	}
	return out, nil
}

func parsePaperPage(body []byte) []*model.PaperDetails {
	var page struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil
	}
	out := make([]*model.PaperDetails, 0, len(page.Data))
	for _, raw := range page.Data {
		details, err := model.ParseDetails(raw)
		if err != nil {
			continue
		}
		out = append(out, details)
	}
	return out
}
