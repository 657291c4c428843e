package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	recommendNegative []string
	recommendCount    int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <paper-id>...",
	Short: "Get paper recommendations from seed papers",
	Long: `Get recommended papers for one or more positive seed papers. Papers
given with --negative steer recommendations away from their topics.

Examples:
  s2cache recommend 649def34f8be52c8b66281af98ae884c09aef38b
  s2cache recommend <id1> <id2> --negative <id3> --count 20`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRecommend,
}

func init() {
	recommendCmd.Flags().StringArrayVar(&recommendNegative, "negative", nil, "Negative seed paper id (repeatable)")
	recommendCmd.Flags().IntVar(&recommendCount, "count", 0, "Maximum results (0 = service default)")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	papers, err := s.Recommendations(context.Background(), args, recommendNegative, recommendCount)
	exitOnError(err, "fetching recommendations")
	outputPapers(papers)
}
