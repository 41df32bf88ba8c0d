// InvoiceFlow - Invoice intake, pairing, and monthly reporting
// Extracts structured fields from invoice workbooks and appends them to a
// styled monthly report.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/invoiceflow/invoiceflow/internal/model"
	"github.com/invoiceflow/invoiceflow/pkg/config"
	"github.com/invoiceflow/invoiceflow/pkg/extract"
	"github.com/invoiceflow/invoiceflow/pkg/report"
	"github.com/invoiceflow/invoiceflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputFile    string
	importDir    string
	placeFlag    string
	customerFlag string
	resetFlag    bool
	verbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "invoiceflow",
	Short: "InvoiceFlow - Invoice intake and monthly reporting",
	Long: `InvoiceFlow turns invoice workbooks and customer names into rows of a
styled monthly report. Files and names arrive in any order; bursts settle
after a quiet period and pair up first-in-first-out.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract fields from one invoice workbook",
	Long: `Read one invoice workbook and print the extracted fields without
writing anything.

Examples:
  invoiceflow extract -i invoice.xlsx`,
	RunE: runExtract,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a directory of invoice workbooks into the report",
	Long: `Extract every .xlsx file in a directory and append each to the
current month's report. The customer defaults to the file name.

Examples:
  invoiceflow import -d ./invoices --place SIRDARYO
  invoiceflow import -d ./invoices --place SIRDARYO --customer Aziz`,
	RunE: runImport,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show or reset the current month's report",
	RunE:  runReport,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Extract command flags
	extractCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Invoice workbook path (required)")
	extractCmd.MarkFlagRequired("input")

	// Import command flags
	importCmd.Flags().StringVarP(&importDir, "dir", "d", "", "Directory of invoice workbooks (required)")
	importCmd.Flags().StringVar(&placeFlag, "place", "", "Unloading place for every entry (required)")
	importCmd.Flags().StringVar(&customerFlag, "customer", "", "Customer for every entry (defaults to file name)")
	importCmd.MarkFlagRequired("dir")
	importCmd.MarkFlagRequired("place")

	// Report command flags
	reportCmd.Flags().BoolVar(&resetFlag, "reset", false, "Delete the current month's report")

	// Add commands
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reportCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	extractor := extract.NewXLSXExtractor()
	inv, err := extractor.Extract(context.Background(), model.ArtifactRef{
		ID:          inputFile,
		DisplayName: filepath.Base(inputFile),
		Path:        inputFile,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	tui.PrintInvoice(filepath.Base(inputFile), inv)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	entries, err := os.ReadDir(importDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".xlsx") {
			files = append(files, filepath.Join(importDir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no .xlsx files in %s", importDir)
	}

	sink, err := report.NewXLSXReport(cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	extractor := extract.NewXLSXExtractor()
	ctx := context.Background()

	bar := tui.ShowProgress(int64(len(files)), "importing")
	start := time.Now()
	result := &tui.ImportReport{Files: len(files)}

	for _, path := range files {
		name := filepath.Base(path)
		inv, err := extractor.Extract(ctx, model.ArtifactRef{
			ID:          name,
			DisplayName: name,
			Path:        path,
		})
		if err != nil {
			result.Failed++
			if verbose {
				tui.PrintError(fmt.Sprintf("%s: %v", name, err))
			}
			bar.Add(1)
			continue
		}

		customer := customerFlag
		if customer == "" {
			customer = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if _, err := sink.Append(ctx, inv, placeFlag, customer); err != nil {
			result.Failed++
			if verbose {
				tui.PrintError(fmt.Sprintf("%s: %v", name, err))
			}
			bar.Add(1)
			continue
		}
		result.Written++
		bar.Add(1)
	}

	result.Duration = time.Since(start)
	tui.PrintImportReport(result)
	tui.PrintPath("Report:", sink.CurrentPath())
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	sink, err := report.NewXLSXReport(cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}

	if resetFlag {
		if err := sink.Reset(); err != nil {
			return err
		}
		tui.PrintSuccess("Report reset")
		return nil
	}

	path := sink.CurrentPath()
	if _, err := os.Stat(path); err != nil {
		fmt.Println("No report for the current month yet.")
		return nil
	}
	tui.PrintPath("Report:", path)
	return nil
}
