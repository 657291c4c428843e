package main

import (
	"context"

	"github.com/spf13/cobra"
)

var paperForce bool

var paperCmd = &cobra.Command{
	Use:   "paper <paper-id>",
	Short: "Get paper details by id",
	Long: `Get a paper's details, serving from the local cache when possible.

Supported ID formats:
  DOI:10.1093/sysbio/syy032
  ARXIV:2106.15928
  PMID:19872477
  PMCID:2323736
  CorpusId:215416146
  <S2 paper ID>

Examples:
  s2cache paper DOI:10.1093/sysbio/syy032
  s2cache paper ARXIV:2106.15928 --human
  s2cache paper 649def34f8be52c8b66281af98ae884c09aef38b --force`,
	Args: cobra.ExactArgs(1),
	Run:  runPaper,
}

func init() {
	paperCmd.Flags().BoolVar(&paperForce, "force", false, "Bypass the cache and refetch")
	rootCmd.AddCommand(paperCmd)
}

func runPaper(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	kind, id := parsePaperArg(args[0])
	details, err := s.DetailsForID(context.Background(), kind, id, paperForce)
	exitOnError(err, "fetching paper "+args[0])

	if humanOutput {
		printPaperHuman(details)
		return
	}
	outputJSON(details)
}
