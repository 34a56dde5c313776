package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// Sheet names of the XLSX workbook.
const (
	SheetVerdicts = "Verdicts"
	SheetSources  = "Sources"
	SheetErrors   = "Errors"
)

var _ ports.Presenter = (*XLSXPresenter)(nil)

// XLSXPresenter writes a workbook with a verdict sheet in input order, a
// per-source availability sheet and, when present, an error sheet.
type XLSXPresenter struct{}

// NewXLSXPresenter creates an XLSX presenter.
func NewXLSXPresenter() *XLSXPresenter { return &XLSXPresenter{} }

// Present implements ports.Presenter.
func (p *XLSXPresenter) Present(w io.Writer, result domain.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetVerdicts); err != nil {
		return fmt.Errorf("failed to name verdict sheet: %w", err)
	}

	columns := sourceColumns(result)
	header := append(append([]string(nil), domain.ExportHeader...), "band", "valid_sources", "total_sources")
	header = append(header, columns...)

	rows := make([][]any, 0, len(result.Verdicts))
	for _, v := range result.Verdicts {
		row := []any{v.File, probabilityValue(v), v.IsAI, string(v.Band()), v.ValidAPICount, v.TotalAPICount}
		for _, name := range columns {
			row = append(row, v.Scores[name])
		}
		rows = append(rows, row)
	}
	if err := writeSheet(f, SheetVerdicts, header, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetSources); err != nil {
		return fmt.Errorf("failed to create source sheet: %w", err)
	}
	sourceRows := make([][]any, 0, len(result.Stats.Sources))
	for _, name := range result.Stats.SourceNames() {
		tally := result.Stats.Sources[name]
		sourceRows = append(sourceRows, []any{name, tally.OK, tally.Failed, round2(tally.Availability())})
	}
	if err := writeSheet(f, SheetSources, []string{"source", "ok", "failed", "availability"}, sourceRows); err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		if _, err := f.NewSheet(SheetErrors); err != nil {
			return fmt.Errorf("failed to create error sheet: %w", err)
		}
		errorRows := make([][]any, 0, len(result.Errors))
		for _, e := range result.Errors {
			errorRows = append(errorRows, []any{e.File, e.Reason})
		}
		if err := writeSheet(f, SheetErrors, []string{"image", "reason"}, errorRows); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeSheet fills sheet with a header row followed by rows.
func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", sheet, r+2, err)
			}
		}
	}
	return nil
}

// probabilityValue is the numeric composite, or the "no data" marker.
func probabilityValue(v domain.Verdict) any {
	if v.NoData {
		return domain.NoDataProbability
	}
	return round2(v.Composite)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
