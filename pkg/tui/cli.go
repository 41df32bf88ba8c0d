// Package tui provides CLI output helpers.
// Simple, streaming, no complex TUI - just clean prompts and output.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/invoiceflow/invoiceflow/internal/model"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// PrintHeader prints the program banner.
func PrintHeader() {
	fmt.Println()
	fmt.Println(titleStyle.Render("  INVOICEFLOW") + mutedStyle.Render(" v0.1.0"))
	fmt.Println(mutedStyle.Render("  Invoice intake, pairing, and monthly reporting"))
	fmt.Println()
}

// PrintInvoice prints the extracted fields of one invoice.
func PrintInvoice(name string, inv *model.Invoice) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ " + name))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	printField("Number:", inv.Number)
	printField("Date:", inv.Date)
	printField("Vehicle:", inv.VehicleNumber)
	printField("Firm:", inv.FirmName)
	printField("Consignee:", inv.Consignee)
	printField("Products:", inv.Products)
	if inv.Total != nil {
		printField("Total:", fmt.Sprintf("%.2f", *inv.Total))
	} else {
		printField("Total:", mutedStyle.Render("not found"))
	}
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
}

func printField(label, value string) {
	if value == "" {
		value = mutedStyle.Render("-")
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render(label), titleStyle.Render(value))
}

// PrintSuccess prints a success line.
func PrintSuccess(message string) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ " + message))
	fmt.Println()
}

// PrintError prints an error line.
func PrintError(message string) {
	fmt.Println(accentStyle.Render("  ✗ " + message))
}

// PrintPath prints a file path in code style.
func PrintPath(label, path string) {
	fmt.Printf("  %s %s\n", mutedStyle.Render(label), codeStyle.Render(path))
}

// ImportReport summarizes a bulk import run.
type ImportReport struct {
	Files    int
	Written  int
	Failed   int
	Duration time.Duration
}

// PrintImportReport prints results after a bulk import.
func PrintImportReport(report *ImportReport) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ IMPORT COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Files:"), titleStyle.Render(fmt.Sprintf("%d", report.Files)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Written:"), titleStyle.Render(fmt.Sprintf("%d", report.Written)))
	if report.Failed > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Failed:"), accentStyle.Render(fmt.Sprintf("%d", report.Failed)))
	}
	if report.Duration > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(report.Duration)))
	}
	fmt.Println()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// ShowProgress creates a progress bar for processing.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
