package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

var _ ports.Presenter = (*TablePresenter)(nil)

// TablePresenter renders an aligned text table for terminals: verdicts by
// descending probability with "no data" last, followed by per-source
// availability, the distribution summary and any image errors.
type TablePresenter struct{}

// NewTablePresenter creates a table presenter.
func NewTablePresenter() *TablePresenter { return &TablePresenter{} }

// Present implements ports.Presenter.
func (p *TablePresenter) Present(w io.Writer, result domain.BatchResult) error {
	summary, err := Summarize(result)
	if err != nil {
		return fmt.Errorf("failed to summarize results: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	columns := sourceColumns(result)

	header := append([]string{"IMAGE", "AI PROBABILITY", "AI", "BAND", "SOURCES"}, upper(columns)...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, v := range byProbability(result.Verdicts) {
		row := []string{
			v.File,
			probabilityCell(v),
			aiCell(v),
			string(v.Band()),
			fmt.Sprintf("%d/%d", v.ValidAPICount, v.TotalAPICount),
		}
		for _, name := range columns {
			row = append(row, scoreCell(v, name))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Verdicts) == 0 {
		fmt.Fprintln(w, "(no images scored)")
	}

	if len(result.Stats.Sources) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tOK\tFAILED\tAVAILABILITY\t")
		for _, name := range result.Stats.SourceNames() {
			tally := result.Stats.Sources[name]
			flag := ""
			if tally.OK == 0 && tally.Failed > 0 {
				flag = "OUTAGE"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\t%s\n", name, tally.OK, tally.Failed, tally.Availability()*100, flag)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Images: %d scored, %d no data, %d rejected; %d likely AI\n",
		summary.Scored, summary.NoData, len(result.Errors), summary.AI)
	if summary.Scored > 0 {
		fmt.Fprintf(w, "Composite: mean %.2f%%, median %.2f%%, stddev %.2f, range %.2f%%-%.2f%%\n",
			summary.Mean, summary.Median, summary.StdDev, summary.Min, summary.Max)
	}
	if outages := result.Stats.Outages(); len(outages) > 0 {
		fmt.Fprintf(w, "Warning: no answer from %s for any image\n", strings.Join(outages, ", "))
	}

	for _, group := range result.Duplicates {
		fmt.Fprintf(w, "Duplicates: %s\n", strings.Join(group, ", "))
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.File, e.Reason)
		}
	}

	_, err = fmt.Fprintf(w, "\nRun %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	return err
}

func probabilityCell(v domain.Verdict) string {
	if v.NoData {
		return v.Probability
	}
	return v.Probability + "%"
}

func aiCell(v domain.Verdict) string {
	switch {
	case v.NoData:
		return "-"
	case v.IsAI:
		return "yes"
	default:
		return "no"
	}
}

func scoreCell(v domain.Verdict, source string) string {
	status, ok := v.APIStatus[source]
	switch {
	case !ok:
		return ""
	case status != domain.StatusOK:
		return "n/a"
	default:
		return v.Scores[source] + "%"
	}
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}
