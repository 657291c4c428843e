package main

import (
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the metadata index from stored records",
	Long: `Regenerate the persisted metadata table by scanning every stored paper
record. Use after the metadata file has been corrupted or deleted.

Examples:
  s2cache rebuild`,
	Args: cobra.NoArgs,
	Run:  runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

// RebuildResponse is the JSON output of the rebuild command.
type RebuildResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
}

func runRebuild(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	n, err := s.RebuildMetadata()
	exitOnError(err, "rebuilding metadata")

	if humanOutput {
		outputHumanLine("rebuilt metadata for %d papers", n)
		return
	}
	outputJSON(RebuildResponse{Status: "rebuilt", Entries: n})
}
