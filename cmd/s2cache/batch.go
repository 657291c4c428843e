package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matsen/s2cache/internal/scholar"
)

var batchForce bool

var batchCmd = &cobra.Command{
	Use:   "batch <paper-id>...",
	Short: "Get details for many papers at once",
	Long: `Resolve many identifiers in one pass: cached papers come from the
store, the rest from a single multi-paper request. Output is keyed by
the requested id; papers the service cannot resolve are absent.

Examples:
  s2cache batch DOI:10.1093/sysbio/syy032 ARXIV:2106.15928
  s2cache batch 649def34f8be52c8b66281af98ae884c09aef38b CorpusId:215416146 --force`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Bypass the cache and refetch")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	pairs := make([]scholar.IDPair, 0, len(args))
	for _, arg := range args {
		kind, id := parsePaperArg(arg)
		pairs = append(pairs, scholar.IDPair{Kind: kind, ID: id})
	}

	result, err := s.BatchPaperDetails(context.Background(), pairs, batchForce)
	exitOnError(err, "batch fetch")

	if humanOutput {
		for _, arg := range args {
			_, id := parsePaperArg(arg)
			if p, ok := result[id]; ok {
				printPaperHuman(p)
			}
		}
		return
	}
	outputJSON(result)
}
