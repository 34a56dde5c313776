package report

import (
	"github.com/montanaflynn/stats"

	"github.com/ahrav/imgverdict/internal/domain"
)

// Summary describes the distribution of composite probabilities over the
// verdicts of a run that have one.
type Summary struct {
	Scored int     `json:"scored"`
	NoData int     `json:"noData"`
	AI     int     `json:"ai"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes the distribution summary of result. Distribution
// fields stay zero when no verdict has a composite.
func Summarize(result domain.BatchResult) (Summary, error) {
	data := stats.Float64Data(result.Composites())
	s := Summary{
		Scored: len(data),
		NoData: len(result.Verdicts) - len(data),
		AI:     result.AICount(),
	}
	if len(data) == 0 {
		return s, nil
	}

	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return s, err
	}
	if s.Median, err = data.Median(); err != nil {
		return s, err
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return s, err
	}
	if s.Min, err = data.Min(); err != nil {
		return s, err
	}
	if s.Max, err = data.Max(); err != nil {
		return s, err
	}
	return s, nil
}
