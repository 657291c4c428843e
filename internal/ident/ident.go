// Package ident is the registry of external paper identifier kinds
// understood by the cache: classification of user-supplied kind strings,
// canonical API prefixes, and fetchability rules.
package ident

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a canonical identifier kind.
type Kind string

// Supported identifier kinds.
const (
	SS            Kind = "SS" // native Semantic Scholar paper hash
	DOI           Kind = "DOI"
	MAG           Kind = "MAG"
	ArXiv         Kind = "ARXIV"
	ACL           Kind = "ACL"
	PubMed        Kind = "PUBMED"
	PubMedCentral Kind = "PUBMEDCENTRAL"
	URL           Kind = "URL"
	DBLP          Kind = "DBLP"
	CorpusID      Kind = "CORPUSID"
)

// ErrInvalidKind is returned when a kind string cannot be classified.
var ErrInvalidKind = errors.New("invalid identifier kind")

// ErrUnsupportedDirectFetch is returned for kinds the remote API cannot
// look up directly (DBLP has no keyed endpoint).
var ErrUnsupportedDirectFetch = errors.New("identifier kind cannot be fetched directly")

// Kinds lists every supported kind, native first.
var Kinds = []Kind{SS, DOI, MAG, ArXiv, ACL, PubMed, PubMedCentral, URL, DBLP, CorpusID}

// aliases maps lowercased kind spellings to their canonical Kind.
// The set is alias-tolerant because callers (and old index files) spell
// kinds inconsistently.
var aliases = map[string]Kind{
	"ss":            SS,
	"s2":            SS,
	"paperid":       SS,
	"doi":           DOI,
	"mag":           MAG,
	"arxiv":         ArXiv,
	"arxivid":       ArXiv,
	"acl":           ACL,
	"aclid":         ACL,
	"pubmed":        PubMed,
	"pubmedid":      PubMed,
	"pmid":          PubMed,
	"pubmedcentral": PubMedCentral,
	"pmcid":         PubMedCentral,
	"url":           URL,
	"dblp":          DBLP,
	"corpus":        CorpusID,
	"corpusid":      CorpusID,
}

// prefixes maps kinds to the prefix the Semantic Scholar API expects in
// paper lookup paths, e.g. "ARXIV:2010.06775". The native kind has no
// prefix: a raw paper hash is passed through unchanged.
var prefixes = map[Kind]string{
	SS:            "",
	DOI:           "DOI",
	MAG:           "MAG",
	ArXiv:         "ARXIV",
	ACL:           "ACL",
	PubMed:        "PMID",
	PubMedCentral: "PMCID",
	URL:           "URL",
	DBLP:          "DBLP",
	CorpusID:      "CorpusId",
}

// Classify resolves a kind string to its canonical Kind. Matching is
// case-insensitive and alias-tolerant ("arxivid" and "arxiv" both map
// to ArXiv).
func Classify(kind string) (Kind, error) {
	k, ok := aliases[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return k, nil
}

// Prefix returns the API lookup prefix for a kind.
func Prefix(k Kind) string {
	return prefixes[k]
}

// Fetchable reports whether the remote API can look up a paper by this
// kind alone. DBLP is the one supported kind with no keyed endpoint.
func Fetchable(k Kind) bool {
	return k != DBLP
}

// LookupID formats an ID of the given kind for the paper lookup path.
func LookupID(k Kind, id string) string {
	p := Prefix(k)
	if p == "" {
		return id
	}
	return p + ":" + id
}

// NormalizeKeys converts an external-id map as returned by the API
// (keys like "ArXiv", "CorpusId") into canonical kinds. Unknown kinds
// and empty values are dropped.
func NormalizeKeys(ext map[string]string) map[Kind]string {
	out := make(map[Kind]string, len(ext))
	for k, v := range ext {
		kind, err := Classify(k)
		if err != nil || v == "" {
			continue
		}
		out[kind] = v
	}
	return out
}
