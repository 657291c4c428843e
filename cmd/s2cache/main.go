// Package main provides the s2cache CLI entry point.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matsen/s2cache/internal/config"
	"github.com/matsen/s2cache/internal/ident"
	"github.com/matsen/s2cache/internal/scholar"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	cacheDir    string
	logLevel    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "s2cache",
	Short: "Local caching client for the Semantic Scholar academic graph",
	Long: `s2cache is a local caching client for the Semantic Scholar graph API.

Paper lookups hit the local cache first and fall back to the API,
storing everything they fetch. Duplicate identifiers converge on one
canonical record, citation lists grow incrementally across calls, and
counts past the service's enumeration ceiling can be completed from a
local citation corpus.

All commands output JSON by default for agent consumption.
Use --human for human-readable output.

Environment Variables:
  S2_API_KEY  Your Semantic Scholar API key (optional, raises rate limits)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env file if present (for S2_API_KEY)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Override the configured cache directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

// mustOpenScholar opens the caching client, exits on error.
// The caller is responsible for calling Close().
func mustOpenScholar() *scholar.Scholar {
	cfg := mustLoadConfig()
	s, err := scholar.New(cfg, scholar.WithLogger(newLogger(cfg)))
	if err != nil {
		exitWithError(ExitConfigError, "opening cache: %v", err)
	}
	return s
}

// parsePaperArg splits a prefixed identifier ("DOI:10.1093/...",
// "ARXIV:2106.15928", "CorpusId:215416146") into its kind and value.
// An unprefixed argument is a native Semantic Scholar paper hash.
func parsePaperArg(arg string) (ident.Kind, string) {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) == 2 {
		if kind, err := ident.Classify(parts[0]); err == nil {
			return kind, parts[1]
		}
	}
	return ident.SS, arg
}
