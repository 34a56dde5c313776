package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

var _ ports.Presenter = (*JSONPresenter)(nil)

// JSONPresenter writes the whole run as one indented JSON document.
type JSONPresenter struct {
	indent string
}

// NewJSONPresenter creates a JSON presenter.
func NewJSONPresenter() *JSONPresenter { return &JSONPresenter{indent: "  "} }

// jsonDocument is the serialized form of a run.
type jsonDocument struct {
	RunID      string              `json:"runId"`
	StartedAt  time.Time           `json:"startedAt"`
	DurationMs int64               `json:"durationMs"`
	Verdicts   []domain.Verdict    `json:"verdicts"`
	Stats      domain.BatchStats   `json:"stats"`
	Outages    []string            `json:"outages,omitempty"`
	Summary    Summary             `json:"summary"`
	Errors     []domain.ImageError `json:"errors,omitempty"`
	Duplicates [][]string          `json:"duplicates,omitempty"`
}

// Present implements ports.Presenter.
func (p *JSONPresenter) Present(w io.Writer, result domain.BatchResult) error {
	summary, err := Summarize(result)
	if err != nil {
		return fmt.Errorf("failed to summarize results: %w", err)
	}

	verdicts := result.Verdicts
	if verdicts == nil {
		verdicts = []domain.Verdict{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", p.indent)
	if err := enc.Encode(jsonDocument{
		RunID:      result.RunID,
		StartedAt:  result.StartedAt,
		DurationMs: result.Duration.Milliseconds(),
		Verdicts:   verdicts,
		Stats:      result.Stats,
		Outages:    result.Stats.Outages(),
		Summary:    summary,
		Errors:     result.Errors,
		Duplicates: result.Duplicates,
	}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
