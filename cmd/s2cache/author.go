package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var authorPapersOffset int

var authorCmd = &cobra.Command{
	Use:   "author <author-id>",
	Short: "Get author details with their papers",
	Long: `Get an author's profile and the first page of their papers.

Examples:
  s2cache author 1780531
  s2cache author 1780531 --human`,
	Args: cobra.ExactArgs(1),
	Run:  runAuthor,
}

var authorPapersCmd = &cobra.Command{
	Use:   "author-papers <author-id>",
	Short: "Get one page of an author's papers",
	Long: `Get one page of an author's papers, starting at --offset.

Examples:
  s2cache author-papers 1780531
  s2cache author-papers 1780531 --offset 100`,
	Args: cobra.ExactArgs(1),
	Run:  runAuthorPapers,
}

func init() {
	authorPapersCmd.Flags().IntVar(&authorPapersOffset, "offset", 0, "Page start")
	rootCmd.AddCommand(authorCmd)
	rootCmd.AddCommand(authorPapersCmd)
}

func runAuthor(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	result, err := s.AuthorDetails(context.Background(), args[0])
	exitOnError(err, "fetching author "+args[0])

	if humanOutput {
		fmt.Printf("%s (%s)\n", result.Author.Name, result.Author.AuthorID)
		if len(result.Author.Affiliations) > 0 {
			fmt.Printf("  %s\n", result.Author.Affiliations[0])
		}
		fmt.Printf("  Papers: %d  Citations: %d  h-index: %d\n\n",
			result.Author.PaperCount, result.Author.CitationCount, result.Author.HIndex)
		printPaperListHuman(result.Papers)
		return
	}
	outputJSON(result)
}

func runAuthorPapers(cmd *cobra.Command, args []string) {
	s := mustOpenScholar()
	defer s.Close()

	papers, err := s.AuthorPapers(context.Background(), args[0], authorPapersOffset)
	exitOnError(err, "fetching papers for author "+args[0])
	outputPapers(papers)
}
