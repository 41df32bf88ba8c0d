// Package extract pulls structured fields out of invoice workbooks.
//
// The invoices are semi-structured: a handful of fields live at fixed
// cells, the rest (firm, consignee, totals) have to be found by scanning
// for Russian header keywords. Extraction is all-or-nothing per invoice:
// a field that cannot be found is left empty, and only a workbook that
// cannot be opened at all is an error.
package extract

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoiceflow/invoiceflow/internal/model"
	flowerr "github.com/invoiceflow/invoiceflow/pkg/errors"
)

// Extractor turns an artifact reference into a structured invoice.
type Extractor interface {
	Extract(ctx context.Context, ref model.ArtifactRef) (*model.Invoice, error)
}

// preferredSheet is the sheet name used by the standard invoice template.
const preferredSheet = "Инвойс"

// totalKeywords mark the grand-total row, scanned bottom-up.
var totalKeywords = []string{"итого", "итог", "всего", "total"}

// headerKeywords identify the line-item table header row.
var headerKeywords = []string{"наименование", "стоимость", "цена за", "ед. изм"}

// XLSXExtractor reads invoice workbooks with excelize.
type XLSXExtractor struct{}

// NewXLSXExtractor creates a new extractor.
func NewXLSXExtractor() *XLSXExtractor {
	return &XLSXExtractor{}
}

// Extract opens the workbook at ref.Path and pulls out the invoice fields.
func (x *XLSXExtractor) Extract(ctx context.Context, ref model.ArtifactRef) (*model.Invoice, error) {
	select {
	case <-ctx.Done():
		return nil, flowerr.Wrap(ctx.Err(), flowerr.CodeContextCanceled, "extraction canceled")
	default:
	}

	f, err := excelize.OpenFile(ref.Path)
	if err != nil {
		return nil, flowerr.ExtractionError(ref.DisplayName, err)
	}
	defer f.Close()

	sheet := pickSheet(f)
	if sheet == "" {
		return nil, flowerr.New(flowerr.CodeSheetMissing, "no sheets in workbook").
			WithContext("file", ref.DisplayName)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, flowerr.ExtractionError(ref.DisplayName, err)
	}

	inv := &model.Invoice{
		Number:        cleanInvoiceNumber(cellAt(rows, 0, 2)),
		Date:          coerceDate(cellAt(rows, 0, 5)),
		VehicleNumber: cellAt(rows, 25, 4),
		FirmName:      findFirmName(rows),
		Consignee:     findConsignee(rows),
		Products:      joinProducts(scanAfter(rows, 29, 1, 2)),
		Total:         findInvoiceTotal(rows),
	}
	return inv, nil
}

// pickSheet prefers the standard invoice sheet, falling back to the first.
func pickSheet(f *excelize.File) string {
	for _, name := range f.GetSheetList() {
		if name == preferredSheet {
			return name
		}
	}
	return f.GetSheetName(0)
}

// cellAt returns the trimmed value at (row, col), both zero-based, or ""
// when out of range.
func cellAt(rows [][]string, r, c int) string {
	if r < 0 || r >= len(rows) {
		return ""
	}
	row := rows[r]
	if c < 0 || c >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}

// cleanInvoiceNumber strips the template boilerplate around the number.
func cleanInvoiceNumber(raw string) string {
	s := raw
	for _, junk := range []string{"ИНВОЙС №", "ИНОЙС №", "INVOICE №", "INVOICE", "от", ":"} {
		s = strings.ReplaceAll(s, junk, "")
	}
	return strings.TrimSpace(s)
}

// dateFormats are tried in order; the invoices are day-first.
var dateFormats = []string{
	"02.01.2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02.01.06",
	"01-02-06",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// coerceDate normalizes a date cell to YYYY-MM-DD. Excel serial dates are
// handled; an unparseable value passes through unchanged so the report
// still carries whatever the invoice said.
func coerceDate(s string) string {
	if s == "" {
		return ""
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 {
		// Days since 1899-12-30, adjusted for Excel's 1900 leap-year bug.
		days := serial
		if serial >= 60 {
			days--
		}
		t := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).Add(time.Duration(days*24) * time.Hour)
		return t.Format("2006-01-02")
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// findFirmName reads the fixed firm cell (A5) and falls back to a keyword
// search over the top-left corner of the sheet.
func findFirmName(rows [][]string) string {
	if firm := cellAt(rows, 4, 0); firm != "" {
		return firm
	}

	maxR := len(rows)
	if maxR > 20 {
		maxR = 20
	}
	for r := 0; r < maxR; r++ {
		for c := 0; c < 5; c++ {
			txt := cellAt(rows, r, c)
			if txt == "" {
				continue
			}
			if strings.Contains(txt, "Фирма") || strings.Contains(txt, "Поставщик") || strings.Contains(txt, "Компания") {
				if cand := cellAt(rows, r+1, c); cand != "" {
					return cand
				}
				if cand := cellAt(rows, r, c+1); cand != "" {
					return cand
				}
			}
		}
	}
	return ""
}

// findConsignee scans for the consignee label; the value sits below or to
// the right of it.
func findConsignee(rows [][]string) string {
	for r := range rows {
		for c := range rows[r] {
			cell := cellAt(rows, r, c)
			if strings.HasPrefix(cell, "Грузополучатель") || strings.HasPrefix(cell, "ГРУЗОПОЛУЧАТЕЛЬ") {
				if cand := cellAt(rows, r+1, c); cand != "" {
					return cand
				}
				return cellAt(rows, r, c+1)
			}
		}
	}
	return ""
}

// scanAfter collects non-empty values down a column starting at startRow,
// stopping after maxGap consecutive blanks.
func scanAfter(rows [][]string, startRow, col, maxGap int) []string {
	var out []string
	gap := 0
	for r := startRow; r < len(rows); r++ {
		val := cellAt(rows, r, col)
		if val != "" {
			out = append(out, val)
			gap = 0
			continue
		}
		gap++
		if gap >= maxGap {
			break
		}
	}
	return out
}

func joinProducts(products []string) string {
	return strings.Join(products, ", ")
}

// parseNumber parses a localized numeric cell ("1 234,56", "1,234.56").
// When both separators appear, the later one is the decimal point.
func parseNumber(val string) *float64 {
	s := strings.TrimSpace(val)
	if s == "" {
		return nil
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return nil
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// findHeaderAndCostCols locates the line-item header row and the cost
// columns. The VAT-inclusive column is tracked separately because it takes
// precedence over the plain cost column.
func findHeaderAndCostCols(rows [][]string) (headerRow, costCol, vatCol int) {
	headerRow, costCol, vatCol = -1, -1, -1

	maxR := len(rows)
	if maxR > 120 {
		maxR = 120
	}
	for r := 0; r < maxR; r++ {
		joined := strings.ToLower(strings.Join(rows[r], " "))
		match := false
		for _, k := range headerKeywords {
			if strings.Contains(joined, k) {
				match = true
				break
			}
		}
		if !match {
			continue
		}

		headerRow = r
		for c := range rows[r] {
			v := strings.ToLower(rows[r][c])
			switch {
			case (strings.Contains(v, "стоимость") && strings.Contains(v, "ндс")) || strings.Contains(v, "с учетом ндс"):
				vatCol = c
			case strings.Contains(v, "стоимость") && costCol == -1:
				costCol = c
			}
		}
		return headerRow, costCol, vatCol
	}
	return headerRow, costCol, vatCol
}

// findTotalRow scans bottom-up for the grand-total row.
func findTotalRow(rows [][]string) int {
	for r := len(rows) - 1; r >= 0; r-- {
		for c := range rows[r] {
			v := strings.ToLower(strings.TrimSpace(rows[r][c]))
			if v == "" {
				continue
			}
			for _, k := range totalKeywords {
				if strings.Contains(v, k) {
					return r
				}
			}
		}
	}
	return -1
}

// findInvoiceTotal finds the invoice grand total: the ИТОГО row first
// (VAT column, then cost column, then the rightmost numeric cell), then a
// summation of the cost column as a fallback. nil means no total found,
// which is a valid extraction result.
func findInvoiceTotal(rows [][]string) *float64 {
	headerRow, costCol, vatCol := findHeaderAndCostCols(rows)
	totalRow := findTotalRow(rows)

	if totalRow >= 0 {
		if v := pickFromRow(rows, totalRow, costCol, vatCol); v != nil {
			return v
		}
	}

	if headerRow >= 0 && (vatCol >= 0 || costCol >= 0) {
		col := vatCol
		if col < 0 {
			col = costCol
		}
		var total float64
		has := false
		gap := 0
		for r := headerRow + 1; r < len(rows); r++ {
			v := parseNumber(cellAt(rows, r, col))
			if v == nil {
				gap++
				if gap >= 2 {
					break
				}
				continue
			}
			total += *v
			has = true
			gap = 0
		}
		if has {
			return &total
		}
	}

	return nil
}

// pickFromRow reads the total from a specific row with VAT-column
// precedence and a rightmost-numeric fallback.
func pickFromRow(rows [][]string, row, costCol, vatCol int) *float64 {
	if vatCol >= 0 {
		if v := parseNumber(cellAt(rows, row, vatCol)); v != nil {
			return v
		}
	}
	if costCol >= 0 {
		if v := parseNumber(cellAt(rows, row, costCol)); v != nil {
			return v
		}
	}
	for c := len(rows[row]) - 1; c >= 0; c-- {
		if v := parseNumber(cellAt(rows, row, c)); v != nil {
			return v
		}
	}
	return nil
}

// Verify interface compliance.
var _ Extractor = (*XLSXExtractor)(nil)
