// Package report renders batch results for people and spreadsheets.
// Presenters only read a BatchResult; they never change verdicts or
// statistics.
package report

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// Format names an output format.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatXLSX  Format = "xlsx"
)

// Formats lists every supported format in help-text order.
var Formats = []Format{FormatTable, FormatCSV, FormatJSON, FormatXLSX}

// NewPresenter returns the presenter for format.
func NewPresenter(format Format) (ports.Presenter, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatTable, "":
		return NewTablePresenter(), nil
	case FormatCSV:
		return NewCSVPresenter(), nil
	case FormatJSON:
		return NewJSONPresenter(), nil
	case FormatXLSX:
		return NewXLSXPresenter(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (supported: %s)", format, formatList())
	}
}

// IsBinary reports whether a format must not be written to a terminal.
func (f Format) IsBinary() bool { return f == FormatXLSX }

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// byProbability returns a copy of verdicts ordered by descending composite
// probability with "no data" verdicts last. Ties keep input order.
func byProbability(verdicts []domain.Verdict) []domain.Verdict {
	sorted := slices.Clone(verdicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.NoData != b.NoData {
			return !a.NoData
		}
		return a.Composite > b.Composite
	})
	return sorted
}

// sourceColumns returns every source name appearing in any verdict, in
// lexical order, so all rows share one column layout.
func sourceColumns(result domain.BatchResult) []string {
	seen := make(map[string]struct{})
	for name := range result.Stats.Sources {
		seen[name] = struct{}{}
	}
	for _, v := range result.Verdicts {
		for name := range v.APIStatus {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
