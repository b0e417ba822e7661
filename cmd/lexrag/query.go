package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/lexrag/internal/logging"
)

var (
	querySources      []string
	queryTopK         int
	queryMinRelevance float64
	queryExplain      bool
)

// queryCmd runs a semantic query against a case namespace
var queryCmd = &cobra.Command{
	Use:   "query CASE_ID QUERY",
	Short: "Query a case's documents semantically",
	Long: `Query a case's ingested documents. Results are ranked by vector
similarity, legal concept overlap, category preference for the detected
query type, and contextual priority.

Examples:
  # Query everything ingested for a case
  lexrag query 0001234-55-2024 "horas extras habituais"

  # Restrict to specific sources and show the score breakdown
  lexrag query 0001234-55-2024 "adicional de insalubridade" \
    --sources sentenca,laudo --explain`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&querySources, "sources", nil, "source labels to search (default: all)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinRelevance, "min-relevance", 0, "minimum relevance score (default from config)")
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "print the score breakdown per result")
}

func runQuery(cmd *cobra.Command, args []string) error {
	caseID, query := args[0], args[1]

	eng, logger, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	defer logging.Sync(logger)

	result, err := eng.Query(cmd.Context(), caseID, query, querySources, queryTopK)
	if err != nil {
		return err
	}

	for source, reason := range result.SourceFailures {
		fmt.Printf("warning: source %s unavailable: %s\n", source, reason)
	}

	if queryExplain {
		fmt.Print(result.Explain())
		return nil
	}

	if len(result.Results) == 0 {
		fmt.Printf("no results above relevance threshold (%d chunks considered)\n", result.Candidates)
		return nil
	}

	fmt.Printf("query type: %s\n", result.QueryType)
	for _, res := range result.Results {
		chunk := res.Candidate.Chunk
		fmt.Printf("\n#%d [%s] score=%.3f\n", res.Rank, chunk.Category, res.Score)
		if chunk.Title != "" {
			fmt.Printf("  %s\n", chunk.Title)
		}
		fmt.Printf("  %s\n", excerpt(chunk.Content, 200))
	}
	return nil
}

// excerpt returns the first max bytes of content on a single line,
// never cutting inside a UTF-8 sequence.
func excerpt(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= max {
		return content
	}
	cut := max
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut] + "..."
}
