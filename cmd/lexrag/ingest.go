package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/lexrag/internal/logging"
)

// ingestCmd indexes one document into a case namespace
var ingestCmd = &cobra.Command{
	Use:   "ingest CASE_ID SOURCE [file]",
	Short: "Ingest a document into a case namespace",
	Long: `Ingest a document into the given case's namespace under a source
label (e.g. sentenca, peticao_inicial, depoimentos). Re-ingesting the
same case and source replaces the previous contents.

Examples:
  # Ingest a decision from a file
  lexrag ingest 0001234-55-2024 sentenca sentenca.txt

  # Ingest from stdin
  cat depoimentos.txt | lexrag ingest 0001234-55-2024 depoimentos -`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	caseID, source := args[0], args[1]

	var content []byte
	var err error
	if len(args) < 3 || args[2] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[2], err)
		}
	}

	eng, logger, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	defer logging.Sync(logger)

	report, err := eng.Ingest(cmd.Context(), caseID, source, string(content))
	if err != nil {
		return err
	}

	fmt.Printf("ingested %s/%s: %d chunks, %d stored\n",
		report.CaseID, report.Source, report.Chunks, report.Stored)
	for _, failure := range report.Failed {
		fmt.Printf("  chunk %d failed: %s\n", failure.Index, failure.Reason)
	}
	return nil
}
