package main

import (
	"context"

	"github.com/spf13/cobra"
)

var referencesForce bool

var referencesCmd = &cobra.Command{
	Use:   "references <paper-id>",
	Short: "Get the cached references of a paper",
	Long: `Get the papers a given paper references, fetching and caching the
record first when needed.

Examples:
  s2cache references DOI:10.1093/sysbio/syy032
  s2cache references 649def34f8be52c8b66281af98ae884c09aef38b --human`,
	Args: cobra.ExactArgs(1),
	Run:  runReferences,
}

func init() {
	referencesCmd.Flags().BoolVar(&referencesForce, "force", false, "Bypass the cache and refetch")
	rootCmd.AddCommand(referencesCmd)
}

func runReferences(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	kind, id := parsePaperArg(args[0])
	data, err := s.DataForID(context.Background(), kind, id, referencesForce)
	exitOnError(err, "fetching references for "+args[0])
	outputPapers(edgePapers(data.References.Data))
}
