package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/s2cache/internal/model"
	"github.com/matsen/s2cache/internal/transport"
)

// Title truncation length for list output.
const listTitleMaxLen = 70

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHumanLine writes a human-readable line to stdout.
func outputHumanLine(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitOnError maps an operation error to the right exit code and exits.
// A nil error is a no-op.
func exitOnError(err error, context string) {
	if err == nil {
		return
	}
	switch {
	case transport.IsNotFound(err):
		exitWithError(ExitNotFound, "%s: not found", context)
	case errors.Is(err, transport.ErrAuth):
		exitWithError(ExitAuthError, "%s: %v", context, err)
	case transport.IsRateLimited(err), errors.Is(err, transport.ErrNetwork):
		exitWithError(ExitAPIError, "%s: %v", context, err)
	default:
		exitWithError(ExitError, "%s: %v", context, err)
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatAuthorsShort formats authors with "et al." past maxCount.
func formatAuthorsShort(authors []model.Author, maxCount int) string {
	if len(authors) == 0 {
		return ""
	}
	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// printPaperHuman prints one paper's details in human-readable format.
func printPaperHuman(p *model.PaperDetails) {
	fmt.Printf("%s\n", p.Title)
	if len(p.Authors) > 0 {
		fmt.Printf("  %s\n", formatAuthorsShort(p.Authors, 5))
	}
	if p.Year != 0 {
		fmt.Printf("  Year: %d\n", p.Year)
	}
	if p.Venue != "" {
		fmt.Printf("  Venue: %s\n", p.Venue)
	}
	fmt.Printf("  Citations: %d  References: %d\n", p.CitationCount, p.ReferenceCount)
	fmt.Printf("  PaperId: %s\n", p.PaperID)
	if p.DuplicateID != "" {
		fmt.Printf("  Requested as: %s\n", p.DuplicateID)
	}
	for kind, value := range p.ExternalIDs {
		fmt.Printf("  %s: %s\n", kind, value)
	}
	if len(p.Citations) > 0 {
		fmt.Printf("  Cached citations: %d\n", len(p.Citations))
	}
	if len(p.References) > 0 {
		fmt.Printf("  Cached references: %d\n", len(p.References))
	}
}

// printPaperListHuman prints a numbered paper list in human-readable format.
func printPaperListHuman(papers []*model.PaperDetails) {
	for i, p := range papers {
		fmt.Printf("%d. %s\n", i+1, truncateString(p.Title, listTitleMaxLen))
		fmt.Printf("   %s (%d)\n", formatAuthorsShort(p.Authors, 3), p.Year)
		fmt.Printf("   %s\n\n", p.PaperID)
	}
	fmt.Printf("Total: %d papers\n", len(papers))
}

// edgePapers extracts the counterpart papers from an edge list.
func edgePapers(edges []model.Edge) []*model.PaperDetails {
	papers := make([]*model.PaperDetails, 0, len(edges))
	for _, e := range edges {
		if e.Valid() {
			papers = append(papers, e.Counterpart())
		}
	}
	return papers
}

// outputPapers writes a paper list in the selected format.
func outputPapers(papers []*model.PaperDetails) {
	if humanOutput {
		printPaperListHuman(papers)
		return
	}
	outputJSON(papers)
}
