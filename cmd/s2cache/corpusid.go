package main

import (
	"context"

	"github.com/spf13/cobra"
)

var corpusIDCmd = &cobra.Command{
	Use:   "corpus-id <paper-id>",
	Short: "Map an identifier to its numeric corpus id",
	Long: `Map any supported identifier to the paper's numeric corpus id,
fetching the paper when the mapping is not yet cached.

Examples:
  s2cache corpus-id DOI:10.1093/sysbio/syy032
  s2cache corpus-id ARXIV:2106.15928`,
	Args: cobra.ExactArgs(1),
	Run:  runCorpusID,
}

func init() {
	rootCmd.AddCommand(corpusIDCmd)
}

// CorpusIDResponse is the JSON output of the corpus-id command.
type CorpusIDResponse struct {
	ID       string `json:"id"`
	CorpusID int64  `json:"corpus_id"`
}

func runCorpusID(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	kind, id := parsePaperArg(args[0])
	cid, err := s.IDToCorpusID(context.Background(), kind, id)
	exitOnError(err, "resolving corpus id for "+args[0])

	if humanOutput {
		outputHumanLine("%d", cid)
		return
	}
	outputJSON(CorpusIDResponse{ID: args[0], CorpusID: cid})
}
