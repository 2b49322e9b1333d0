package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

var (
	queryMaxResults int
	querySource     string
	queryType       string
	queryNoCache    bool
	queryExplain    bool
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from memory",
	Long: `Answers a question from stored documents and remembered facts.

The question is rewritten into search variants, matching chunks are
retrieved and screened for injected instructions, and an answer is
synthesised with citations and a confidence score between 0 and 1.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryMaxResults, "max-results", "n", 0, "maximum chunks to retrieve (0 uses the configured default)")
	queryCmd.Flags().StringVar(&querySource, "source", "", "only use chunks from this source")
	queryCmd.Flags().StringVar(&queryType, "type", "", "only use chunks of this type (document or conversational)")
	queryCmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "bypass the result cache")
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "show how the question was rewritten")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}

	sourceType := domain.SourceType(queryType)
	if sourceType != "" && !sourceType.IsValid() {
		return fmt.Errorf("invalid --type %q: use document or conversational", queryType)
	}

	result, err := memory.Query(cmd.Context(), driving.QueryRequest{
		Query:      strings.Join(args, " "),
		MaxResults: queryMaxResults,
		Filter:     domain.ChunkFilter{Source: querySource, SourceType: sourceType},
		NoCache:    queryNoCache,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, result)
	}
	outputQueryResult(cmd, result)
	return nil
}

func outputQueryResult(cmd *cobra.Command, result *domain.SynthesisResult) {
	cmd.Println(result.Answer)
	cmd.Println()
	cmd.Printf("Confidence: %.2f (%s, %d chunks)\n", result.Confidence, result.Completeness, result.ChunkCount)

	if len(result.Citations) > 0 {
		cmd.Println("Sources:")
		for i, c := range result.Citations {
			cmd.Printf("  [%d] %s\n", i+1, c.Source)
			if c.Snippet != "" {
				cmd.Printf("      %s\n", truncate(c.Snippet, 100))
			}
		}
	}

	for _, w := range result.Warnings {
		cmd.Printf("Warning: %s\n", w)
	}

	if queryExplain && result.Optimization != nil {
		opt := result.Optimization
		cmd.Println()
		cmd.Printf("Optimized query: %s\n", opt.OptimizedQuery)
		cmd.Printf("Intent: %s, strategy: %s\n", opt.Intent, opt.Strategy)
		for _, v := range opt.Variants {
			cmd.Printf("  variant: %s\n", v)
		}
	}
}
