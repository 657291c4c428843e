package main

import (
	"context"

	"github.com/spf13/cobra"
)

var citationsNextLimit int

var citationsNextCmd = &cobra.Command{
	Use:   "next-citations <paper-id>",
	Short: "Fetch the next page of citations for a cached paper",
	Long: `Fetch up to limit more citations for an already cached paper and merge
them into the stored record. Past the service's enumeration ceiling the
page is built from the local citation corpus, when one is configured.

Examples:
  s2cache next-citations 649def34f8be52c8b66281af98ae884c09aef38b
  s2cache next-citations 649def34f8be52c8b66281af98ae884c09aef38b --limit 500`,
	Args: cobra.ExactArgs(1),
	Run:  runCitationsNext,
}

func init() {
	citationsNextCmd.Flags().IntVarP(&citationsNextLimit, "limit", "n", 100, "Maximum new citations to fetch")
	rootCmd.AddCommand(citationsNextCmd)
}

func runCitationsNext(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	list, err := s.NextCitations(context.Background(), args[0], citationsNextLimit)
	exitOnError(err, "fetching next citations for "+args[0])

	outputPapers(edgePapers(list.Data))
}
