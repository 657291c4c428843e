// Package filters provides paper predicates used to narrow stored
// citation and reference lists. Filters compose by conjunction: a
// paper survives only when every filter accepts it.
package filters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/s2cache/internal/model"
)

// Filter reports whether a paper should be kept.
type Filter func(*model.PaperDetails) bool

// Apply returns the papers accepted by every filter, in input order,
// truncated to num when num > 0.
func Apply(papers []*model.PaperDetails, fs []Filter, num int) []*model.PaperDetails {
	var out []*model.PaperDetails
	for _, p := range papers {
		if p == nil {
			continue
		}
		keep := true
		for _, f := range fs {
			if !f(p) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, p)
			if num > 0 && len(out) >= num {
				break
			}
		}
	}
	return out
}

// Year keeps papers published between min and max inclusive. A zero
// bound means unbounded on that side.
func Year(min, max int) Filter {
	if min == 0 {
		min = -1
	}
	if max == 0 {
		max = 10000
	}
	return func(p *model.PaperDetails) bool {
		return p.Year >= min && p.Year <= max
	}
}

// Author keeps papers with at least one matching author. Ids take
// priority over names; with exact unset, name matching is a
// case-insensitive membership test against the space-split tokens of
// each author name.
func Author(names, ids []string, exact bool) Filter {
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}
	return func(p *model.PaperDetails) bool {
		switch {
		case len(ids) > 0:
			for _, want := range ids {
				for _, a := range p.Authors {
					if a.AuthorID == want {
						return true
					}
				}
			}
		case len(names) > 0 && exact:
			for _, want := range names {
				for _, a := range p.Authors {
					if a.Name == want {
						return true
					}
				}
			}
		case len(names) > 0:
			var tokens []string
			for _, a := range p.Authors {
				for _, tok := range strings.Fields(a.Name) {
					tokens = append(tokens, strings.ToLower(tok))
				}
			}
			for _, want := range lowered {
				for _, tok := range tokens {
					if tok == want {
						return true
					}
				}
			}
		}
		return false
	}
}

// CitationCount keeps papers with citationCount >= min, and < max when
// max > 0.
func CitationCount(min, max int) Filter {
	return func(p *model.PaperDetails) bool {
		if max > 0 {
			return p.CitationCount >= min && p.CitationCount < max
		}
		return p.CitationCount >= min
	}
}

// InfluentialCount keeps papers with influentialCitationCount >= min,
// and < max when max > 0.
func InfluentialCount(min, max int) Filter {
	return func(p *model.PaperDetails) bool {
		if max > 0 {
			return p.InfluentialCitationCount >= min && p.InfluentialCitationCount < max
		}
		return p.InfluentialCitationCount >= min
	}
}

// Venue keeps papers whose venue matches any of the given regular
// expressions. Matching is case-insensitive and anchored at the start
// of the venue string.
func Venue(patterns []string) (Filter, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile("(?i)^(?:" + pat + ")")
		if err != nil {
			return nil, fmt.Errorf("venue pattern %q: %w", pat, err)
		}
		res = append(res, re)
	}
	return func(p *model.PaperDetails) bool {
		for _, re := range res {
			if re.MatchString(p.Venue) {
				return true
			}
		}
		return false
	}, nil
}

// Title keeps papers whose title matches the regular expression, or
// fails to match when invert is set. Case-insensitive, anchored at the
// start of the title.
func Title(pattern string, invert bool) (Filter, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("title pattern %q: %w", pattern, err)
	}
	return func(p *model.PaperDetails) bool {
		match := re.MatchString(p.Title)
		if invert {
			return !match
		}
		return match
	}, nil
}

// Build constructs a filter by name from loosely typed arguments, as
// received from CLI flags or a config file. Recognized names:
// year, author, citationcount (alias num_citing), influentialcount
// (alias influential_count), venue, title.
func Build(name string, args map[string]any) (Filter, error) {
	switch strings.ToLower(name) {
	case "year":
		return Year(intArg(args, "min"), intArg(args, "max")), nil
	case "author":
		return Author(stringsArg(args, "names"), stringsArg(args, "ids"), boolArg(args, "exact")), nil
	case "citationcount", "num_citing":
		return CitationCount(intArg(args, "min"), intArg(args, "max")), nil
	case "influentialcount", "influential_count", "influentialcitationcount":
		return InfluentialCount(intArg(args, "min"), intArg(args, "max")), nil
	case "venue":
		return Venue(stringsArg(args, "venues"))
	case "title":
		title, _ := args["title_re"].(string)
		if title == "" {
			title, _ = args["pattern"].(string)
		}
		return Title(title, boolArg(args, "invert"))
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if v == "" || v == "any" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false
		}
		return b
	default:
		return false
	}
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}
