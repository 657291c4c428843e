package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/s2cache/internal/corpus"
)

var corpusIngestSpan int64

var corpusIngestCmd = &cobra.Command{
	Use:   "corpus-ingest <release-dir> <output-dir>",
	Short: "Build the local citation corpus from a citations release",
	Long: `Convert a Semantic Scholar citations dataset release (gzipped JSONL
files of citing/cited corpus id pairs) into the sharded adjacency index
used to build citation lists past the enumeration ceiling.

Point citations_cache_dir in the config file at the output directory to
enable corpus-backed citation builds.

Examples:
  s2cache corpus-ingest ~/downloads/citations-release ~/.config/s2cache/corpus`,
	Args: cobra.ExactArgs(2),
	Run:  runCorpusIngest,
}

func init() {
	corpusIngestCmd.Flags().Int64Var(&corpusIngestSpan, "span", corpus.DefaultShardSpan, "Corpus-id range covered by each shard file")
	rootCmd.AddCommand(corpusIngestCmd)
}

// CorpusIngestResponse is the JSON output of the corpus-ingest command.
type CorpusIngestResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
	Dir     string `json:"dir"`
}

func runCorpusIngest(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	log := newLogger(cfg)

	n, err := corpus.Ingest(args[0], args[1], corpusIngestSpan, log)
	exitOnError(err, "ingesting citation corpus")

	if humanOutput {
		outputHumanLine("ingested %d adjacency rows into %s", n, args[1])
		return
	}
	outputJSON(CorpusIngestResponse{Status: "ingested", Entries: n, Dir: args[1]})
}
