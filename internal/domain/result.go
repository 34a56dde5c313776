package domain

import "time"

// BatchResult is everything a presenter needs to render one run.
type BatchResult struct {
	// RunID uniquely identifies the run in logs and exports.
	RunID string `json:"runId"`

	// StartedAt is when the batch began processing.
	StartedAt time.Time `json:"startedAt"`

	// Duration is the wall-clock time the batch took.
	Duration time.Duration `json:"durationNs"`

	// Verdicts holds one verdict per valid image in input order.
	Verdicts []Verdict `json:"verdicts"`

	// Stats tallies source availability over the images in Verdicts.
	Stats BatchStats `json:"stats"`

	// Errors lists the images that were rejected or failed, in input order.
	Errors []ImageError `json:"errors,omitempty"`

	// Duplicates groups names of perceptually identical images.
	Duplicates [][]string `json:"duplicates,omitempty"`
}

// Composites returns the composite percentages of every verdict that has
// one, skipping "no data" verdicts.
func (r BatchResult) Composites() []float64 {
	out := make([]float64, 0, len(r.Verdicts))
	for _, v := range r.Verdicts {
		if !v.NoData {
			out = append(out, v.Composite)
		}
	}
	return out
}

// AICount returns how many verdicts classify their image as AI-generated.
func (r BatchResult) AICount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.IsAI {
			n++
		}
	}
	return n
}
