// Package report appends finalized invoice pairs to a styled monthly
// workbook.
//
// One workbook per calendar month, one row per (invoice, customer) pair.
// Appends are idempotent in the sense required of the sink: every call
// adds exactly one row and restyles the sheet, so repeated calls are safe.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoiceflow/invoiceflow/internal/model"
	flowerr "github.com/invoiceflow/invoiceflow/pkg/errors"
)

// Sink receives finalized pairs.
type Sink interface {
	// Append writes one pair and returns the location it was persisted to.
	Append(ctx context.Context, inv *model.Invoice, place, customer string) (string, error)
}

// columns is the report header, in column order.
var columns = []string{
	"Sana",
	"Invoice raqami",
	"Transport raqami",
	"Firma nomi",
	"Qabul qiluvchi",
	"Yuk tushirish joyi",
	"Mijoz",
	"Tovar nomi",
	"Invoice summa",
}

// column widths, matching the header order.
var widths = []float64{15, 20, 20, 25, 25, 25, 20, 40, 18}

const (
	sheetName    = "Sheet1"
	headerFill   = "0E3242"
	sumColumn    = "I"
	numberFormat = "#,##0.00"
)

// XLSXReport writes monthly report workbooks under a directory.
type XLSXReport struct {
	dir string

	// mu serializes appends: excelize rewrites the whole file on save.
	mu sync.Mutex

	now func() time.Time
}

// Option configures an XLSXReport.
type Option func(*XLSXReport)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *XLSXReport) {
		r.now = now
	}
}

// NewXLSXReport creates a report sink writing under dir.
func NewXLSXReport(dir string, opts ...Option) (*XLSXReport, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir: %w", err)
	}
	r := &XLSXReport{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CurrentPath returns the path of the current month's workbook.
func (r *XLSXReport) CurrentPath() string {
	return filepath.Join(r.dir, fmt.Sprintf("otschot_%s.xlsx", r.now().Format("2006_01")))
}

// Append writes one finalized pair as a new row.
func (r *XLSXReport) Append(_ context.Context, inv *model.Invoice, place, customer string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.CurrentPath()
	f, nextRow, err := r.open(path)
	if err != nil {
		return "", flowerr.WriteError(path, err)
	}
	defer f.Close()

	var total interface{}
	if inv.Total != nil {
		total = *inv.Total
	} else {
		total = ""
	}
	values := []interface{}{
		inv.Date,
		inv.Number,
		inv.VehicleNumber,
		inv.FirmName,
		inv.Consignee,
		place,
		customer,
		inv.Products,
		total,
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, nextRow)
		if err != nil {
			return "", flowerr.WriteError(path, err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return "", flowerr.WriteError(path, err)
		}
	}

	if err := r.style(f, nextRow); err != nil {
		return "", flowerr.WriteError(path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return "", flowerr.WriteError(path, err)
	}
	return path, nil
}

// open loads the current workbook or creates a fresh one with headers,
// returning the 1-based row index the next entry goes to.
func (r *XLSXReport) open(path string) (*excelize.File, int, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, 0, err
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, len(rows) + 1, nil
	}

	f := excelize.NewFile()
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			f.Close()
			return nil, 0, err
		}
	}
	return f, 2, nil
}

// style applies the report look: dark header, fixed widths, number format
// on the sum column, frozen header row.
func (r *XLSXReport) style(f *excelize.File, lastRow int) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", sumColumn+"1", headerStyle); err != nil {
		return err
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return err
		}
	}

	numFmt := numberFormat
	sumStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return err
	}
	if lastRow >= 2 {
		if err := f.SetCellStyle(sheetName, sumColumn+"2", fmt.Sprintf("%s%d", sumColumn, lastRow), sumStyle); err != nil {
			return err
		}
	}

	return f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Reset removes the current month's workbook.
func (r *XLSXReport) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.CurrentPath()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return flowerr.FileNotFound(path)
		}
		return flowerr.WriteError(path, err)
	}
	return nil
}

// Verify interface compliance.
var _ Sink = (*XLSXReport)(nil)
