package domain

// Presentation markers shared by verdicts and exports.
const (
	// NoDataProbability is the probability rendered when no source
	// contributed a valid score. It is never rendered as a number.
	NoDataProbability = "no data"

	// UnavailableDisplay is the per-source display value for a source that
	// failed, timed out or reported the uninformative default.
	UnavailableDisplay = "source unavailable"
)

// SourceStatus is the externally visible state of one source for one image.
type SourceStatus string

// Source statuses. A failed call and a filtered default are deliberately
// indistinguishable.
const (
	StatusOK          SourceStatus = "OK"
	StatusUnavailable SourceStatus = "unavailable"
)

// RawScores maps a source name to the score it reported for one image.
// A nil entry means the source failed.
type RawScores map[string]*float64

// Weights maps a source name to its relative weight in [0, 1]. Weights are
// renormalized over the contributing sources at aggregation time.
type Weights map[string]float64

// Score returns a pointer to v for building RawScores literals.
func Score(v float64) *float64 { return &v }

// Verdict is the per-image result record consumed by presenters and
// exports. Verdicts are immutable once returned by an Aggregator.
type Verdict struct {
	// File names the image this verdict belongs to.
	File string `json:"file"`

	// Probability is the composite rendered as a percentage with two
	// decimals, or NoDataProbability.
	Probability string `json:"probability"`

	// Composite is the full-precision percentage used for comparisons.
	// It is zero and meaningless when NoData is set.
	Composite float64 `json:"-"`

	// NoData is set when no source contributed to the composite.
	NoData bool `json:"noData,omitempty"`

	// IsAI is true iff Composite > 50. Always false when NoData is set.
	IsAI bool `json:"isAI"`

	// ValidAPICount counts the sources that returned a usable score.
	ValidAPICount int `json:"validApiCount"`

	// TotalAPICount counts every source that was asked.
	TotalAPICount int `json:"totalApiCount"`

	// Scores holds each source's display value: a percentage with two
	// decimals or UnavailableDisplay.
	Scores map[string]string `json:"scores"`

	// APIStatus holds each source's status.
	APIStatus map[string]SourceStatus `json:"apiStatus"`
}

// ExportRecord is the flattened tabular form of a Verdict. Field order is
// fixed: file, probability, isAI.
type ExportRecord struct {
	File        string `json:"file"`
	Probability string `json:"probability"`
	IsAI        bool   `json:"isAI"`
}

// ExportHeader is the column header matching ExportRecord.Fields.
var ExportHeader = []string{"image", "ai_probability", "is_ai"}

// ExportRecord flattens the verdict for tabular output.
func (v Verdict) ExportRecord() ExportRecord {
	return ExportRecord{
		File:        v.File,
		Probability: v.Probability,
		IsAI:        v.IsAI,
	}
}

// Fields returns the record values in ExportHeader order.
func (r ExportRecord) Fields() []string {
	isAI := "false"
	if r.IsAI {
		isAI = "true"
	}
	return []string{r.File, r.Probability, isAI}
}

// Band is a coarse probability class for display.
type Band string

// Probability bands. A composite above 70 is high and above 40 is medium.
const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
	BandNoData Band = NoDataProbability
)

// Band classifies the composite.
func (v Verdict) Band() Band {
	switch {
	case v.NoData:
		return BandNoData
	case v.Composite > 70:
		return BandHigh
	case v.Composite > 40:
		return BandMedium
	default:
		return BandLow
	}
}
