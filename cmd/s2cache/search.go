package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Full-text paper search",
	Long: `Search papers by title and abstract text. Results come straight from
the service and are not cached.

Examples:
  s2cache search phylogenetic likelihood
  s2cache search "variational inference" --human`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	papers, err := s.Search(context.Background(), strings.Join(args, " "))
	exitOnError(err, "searching")
	outputPapers(papers)
}
