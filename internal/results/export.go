package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/pavelanni/examgrader/internal/model"
)

const xlsxSheet = "Results"

// ToExportRows projects records into export rows, one per record, in order.
func ToExportRows(records []model.StudentRecord) []model.ExportRow {
	rows := make([]model.ExportRow, 0, len(records))
	for _, r := range records {
		note := model.NoteOK
		if r.HasAnomaly() {
			note = model.NoteNeedsReview
		}
		rows = append(rows, model.ExportRow{
			ID:    r.StudentID,
			Name:  r.StudentName,
			Score: r.Score,
			Total: r.TotalQuestions,
			Note:  note,
		})
	}
	return rows
}

// WriteCSV writes rows as comma-separated text prefixed with a UTF-8 byte-order
// mark so spreadsheet programs detect the encoding of Thai names.
func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)

	if err := cw.Write(model.ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.ID, r.Name, strconv.Itoa(r.Score), strconv.Itoa(r.Total), r.Note}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return tw.Close()
}

// WriteXLSX writes rows as a single-sheet workbook with the same columns as WriteCSV.
func WriteXLSX(w io.Writer, rows []model.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(model.ExportHeader))
	for i, h := range model.ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.ID, r.Name, r.Score, r.Total, r.Note}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("write xlsx row %s: %w", r.ID, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
