package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

var _ ports.Presenter = (*CSVPresenter)(nil)

// CSVPresenter writes one export record per verdict in input order under
// the image,ai_probability,is_ai header.
type CSVPresenter struct{}

// NewCSVPresenter creates a CSV presenter.
func NewCSVPresenter() *CSVPresenter { return &CSVPresenter{} }

// Present implements ports.Presenter.
func (p *CSVPresenter) Present(w io.Writer, result domain.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.ExportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, v := range result.Verdicts {
		if err := cw.Write(v.ExportRecord().Fields()); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", v.File, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
