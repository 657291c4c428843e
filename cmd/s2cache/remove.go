package main

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <paper-id>",
	Short: "Remove a paper from the cache",
	Long: `Remove a paper's stored record and its metadata index entries. The id
is resolved through the duplicate table first, so removing by any known
alias removes the canonical record.

Examples:
  s2cache remove 649def34f8be52c8b66281af98ae884c09aef38b`,
	Args: cobra.ExactArgs(1),
	Run:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

// RemoveResponse is the JSON output of the remove command.
type RemoveResponse struct {
	Status  string `json:"status"`
	PaperID string `json:"paper_id"`
}

func runRemove(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	err := s.Remove(args[0])
	exitOnError(err, "removing "+args[0])

	if humanOutput {
		outputHumanLine("removed %s", args[0])
		return
	}
	outputJSON(RemoveResponse{Status: "removed", PaperID: args[0]})
}
