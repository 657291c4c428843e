package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/s2cache/internal/filters"
)

var (
	filterSpecs []string
	filterNum   int
)

const filterLongTail = `
Each --filter flag is name=key:value[,key:value...]. Recognized names
and keys:
  year             min, max (inclusive; 0 or "any" means unbounded)
  author           names, ids, exact
  citationcount    min, max
  influentialcount min, max
  venue            venues (regular expressions, anchored, case-insensitive)
  title            pattern, invert

Filters compose by conjunction: a paper survives only when every filter
accepts it.

Examples:
  s2cache filter-citations <id> --filter year=min:2020
  s2cache filter-citations <id> --filter venue=venues:Systematic Biology --num 20
  s2cache filter-references <id> --filter citationcount=min:100 --filter year=min:2015,max:2024`

var filterCitationsCmd = &cobra.Command{
	Use:   "filter-citations <paper-id>",
	Short: "Filter the cached citations of a paper",
	Long: `Return the cached citing papers that pass every filter.

When the cached citation list has drifted from the paper's citation
count, all enumerable citations are refetched first, and counts past
the enumeration ceiling are topped up from the local corpus.` + filterLongTail,
	Args: cobra.ExactArgs(1),
	Run:  runFilterCitations,
}

var filterReferencesCmd = &cobra.Command{
	Use:   "filter-references <paper-id>",
	Short: "Filter the cached references of a paper",
	Long: `Return the cached referenced papers that pass every filter, refetching
the full reference list when the cached one has drifted from the
paper's reference count.` + filterLongTail,
	Args: cobra.ExactArgs(1),
	Run:  runFilterReferences,
}

func init() {
	for _, cmd := range []*cobra.Command{filterCitationsCmd, filterReferencesCmd} {
		cmd.Flags().StringArrayVar(&filterSpecs, "filter", nil, "Filter spec, name=key:value[,key:value...] (repeatable)")
		cmd.Flags().IntVarP(&filterNum, "num", "n", 0, "Maximum results (0 = all)")
		rootCmd.AddCommand(cmd)
	}
}

func runFilterCitations(cmd *cobra.Command, args []string) {
	fs := mustParseFilters()
	s := mustOpenScholar()
	defer s.Close()

	papers, err := s.FilterCitations(context.Background(), args[0], fs, filterNum)
	exitOnError(err, "filtering citations for "+args[0])
	outputPapers(papers)
}

func runFilterReferences(cmd *cobra.Command, args []string) {
	fs := mustParseFilters()
	s := mustOpenScholar()
	defer s.Close()

	papers, err := s.FilterReferences(context.Background(), args[0], fs, filterNum)
	exitOnError(err, "filtering references for "+args[0])
	outputPapers(papers)
}

// mustParseFilters builds filters from the --filter flags, exiting on a
// malformed spec.
func mustParseFilters() []filters.Filter {
	fs := make([]filters.Filter, 0, len(filterSpecs))
	for _, spec := range filterSpecs {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok {
			exitWithError(ExitError, "malformed filter %q: want name=key:value", spec)
		}
		args := make(map[string]any)
		for _, pair := range strings.Split(rest, ",") {
			key, value, ok := strings.Cut(pair, ":")
			if !ok {
				exitWithError(ExitError, "malformed filter argument %q in %q", pair, spec)
			}
			// Repeated keys accumulate, so list-valued arguments like
			// venue patterns can carry commas of their own via
			// venues:a,venues:b.
			if prev, exists := args[key]; exists {
				switch v := prev.(type) {
				case []string:
					args[key] = append(v, value)
				case string:
					args[key] = []string{v, value}
				}
			} else {
				args[key] = value
			}
		}
		f, err := filters.Build(name, args)
		if err != nil {
			exitWithError(ExitError, "building filter %q: %v", name, err)
		}
		fs = append(fs, f)
	}
	return fs
}
