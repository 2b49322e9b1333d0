package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

var (
	ingestText     string
	ingestSource   string
	ingestReplace  bool
	ingestMetadata map[string]string
	ingestJSON     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Add a document to memory",
	Long: `Chunks a file or inline text and stores it as document knowledge.
Files are copied into the documents corpus so backups include them.

Supported formats: plain text, Markdown, HTML and Word (.docx).`,
	Example: `  recall ingest ~/manuals/router.md
  recall ingest --text "The office closes at 6pm on Fridays" --source office-hours
  recall ingest notes.md --replace --meta team=ops`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "ingest inline text instead of a file")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source label (defaults to the file name, or inline)")
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "replace chunks previously ingested from the same source")
	ingestCmd.Flags().StringToStringVar(&ingestMetadata, "meta", nil, "metadata attached to every chunk (key=value)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}

	req := driving.IngestRequest{
		Text:     ingestText,
		Source:   ingestSource,
		Metadata: ingestMetadata,
		Replace:  ingestReplace,
	}
	if len(args) > 0 {
		req.Path = args[0]
	}

	result, err := memory.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		return printJSON(cmd, result)
	}

	cmd.Printf("Ingested %s: %d chunks", result.Source, result.Chunks)
	if result.Replaced > 0 {
		cmd.Printf(" (replaced %d)", result.Replaced)
	}
	cmd.Println()
	if result.StoredPath != "" {
		cmd.Printf("Stored at %s\n", result.StoredPath)
	}
	return nil
}
