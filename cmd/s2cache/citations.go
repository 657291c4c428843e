package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matsen/s2cache/internal/ident"
)

var (
	citationsOffset int
	citationsLimit  int
)

var citationsCmd = &cobra.Command{
	Use:   "citations <paper-id>",
	Short: "Get a window of papers citing a given paper",
	Long: `Get the citing papers in [offset, offset+limit).

The window is served from the cached citation list, fetching more pages
when the list does not reach that far. The window is clamped to the
paper's total citation count.

Examples:
  s2cache citations DOI:10.1093/sysbio/syy032
  s2cache citations 649def34f8be52c8b66281af98ae884c09aef38b --offset 100 --limit 50`,
	Args: cobra.ExactArgs(1),
	Run:  runCitations,
}

func init() {
	citationsCmd.Flags().IntVar(&citationsOffset, "offset", 0, "Window start")
	citationsCmd.Flags().IntVarP(&citationsLimit, "limit", "n", 100, "Window size")
	rootCmd.AddCommand(citationsCmd)
}

func runCitations(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()
	ctx := context.Background()

	kind, id := parsePaperArg(args[0])
	// Citation windows are keyed by the canonical paper hash; resolve
	// prefixed ids through the details lookup first.
	key := id
	if kind != ident.SS {
		details, err := s.DetailsForID(ctx, kind, id, false)
		exitOnError(err, "resolving "+args[0])
		key = details.PaperID
	}

	papers, err := s.Citations(ctx, key, citationsOffset, citationsLimit)
	exitOnError(err, "fetching citations for "+args[0])
	outputPapers(papers)
}
