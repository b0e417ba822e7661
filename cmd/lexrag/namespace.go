package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/lexrag/internal/logging"
)

var reclaimForce bool

// namespaceCmd groups case namespace lifecycle operations
var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage case namespaces",
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active case namespaces",
	Args:  cobra.NoArgs,
	RunE:  runNamespaceList,
}

var namespaceValidateCmd = &cobra.Command{
	Use:   "validate CASE_ID",
	Short: "Check a case namespace's structure and isolation",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceValidate,
}

var namespaceReclaimCmd = &cobra.Command{
	Use:   "reclaim CASE_ID",
	Short: "Move a case namespace to the backup area",
	Long: `Move a case namespace out of active storage into the backup area.
Namespaces still inside the retention window are refused unless --force
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runNamespaceReclaim,
}

func init() {
	namespaceReclaimCmd.Flags().BoolVar(&reclaimForce, "force", false, "reclaim even inside the retention window")
	namespaceCmd.AddCommand(namespaceListCmd)
	namespaceCmd.AddCommand(namespaceValidateCmd)
	namespaceCmd.AddCommand(namespaceReclaimCmd)
}

func runNamespaceList(cmd *cobra.Command, args []string) error {
	eng, logger, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	defer logging.Sync(logger)

	cases, err := eng.ListNamespaces()
	if err != nil {
		return err
	}

	if len(cases) == 0 {
		fmt.Println("no active cases")
		return nil
	}
	for _, meta := range cases {
		fmt.Printf("%s\tcreated %s\n", meta.CaseID, meta.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runNamespaceValidate(cmd *cobra.Command, args []string) error {
	eng, logger, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	defer logging.Sync(logger)

	report, err := eng.ValidateNamespace(args[0])
	if err != nil {
		return err
	}

	if report.Healthy() {
		fmt.Printf("namespace %s is healthy\n", args[0])
		return nil
	}

	fmt.Printf("namespace %s has problems:\n", args[0])
	if !report.Exists {
		fmt.Println("  namespace does not exist")
	}
	if len(report.MissingDirs) > 0 {
		fmt.Printf("  missing directories: %s\n", strings.Join(report.MissingDirs, ", "))
	}
	if !report.TemplateCopied {
		fmt.Println("  template files not copied")
	}
	if !report.IndexPresent {
		fmt.Println("  vector index missing")
	}
	if !report.MetadataMatches {
		fmt.Println("  metadata does not match the namespace")
	}
	return fmt.Errorf("namespace %s failed validation", args[0])
}

func runNamespaceReclaim(cmd *cobra.Command, args []string) error {
	eng, logger, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	defer logging.Sync(logger)

	target, err := eng.ReclaimNamespace(args[0], reclaimForce)
	if err != nil {
		return err
	}

	fmt.Printf("namespace %s moved to %s\n", args[0], target)
	return nil
}
