package domain

import (
	"math"
	"sort"
	"strconv"
)

// Aggregator combines the raw scores reported for one image into a Verdict.
// Implementations must be pure: no I/O, no shared mutable state, so they can
// be called concurrently for different images and tested without network
// mocks.
//
// The File field of the returned Verdict is left empty; the caller owns
// image identity.
//
// Example:
//
//	scores := domain.RawScores{"google": domain.Score(0.8), "deepai": nil}
//	weights := domain.Weights{"google": 0.6, "deepai": 0.2}
//	v := aggregator.Aggregate(scores, weights)
type Aggregator interface {
	Aggregate(scores RawScores, weights Weights) Verdict
}

var _ Aggregator = WeightedAggregator{}

// WeightedAggregator computes a weighted mean over the sources that passed
// the ValidityFilter, renormalizing weights dynamically so that unavailable
// sources neither bias the result toward 50% nor shrink it.
//
// Algorithm:
//  1. Every source in scores ∪ weights is evaluated independently. Missing,
//     default-valued or out-of-range scores mark the source unavailable.
//  2. No valid source → "no data" verdict.
//  3. composite = Σ(wᵢ·sᵢ) / Σwᵢ over valid sources, as a percentage.
//  4. isAI = composite > 50; a tie is classified as real.
//
// A valid source with weight 0 is reported OK and counted, but adds nothing
// to numerator or denominator. When every valid source has weight 0 the
// composite is undefined and the verdict is "no data".
type WeightedAggregator struct {
	Filter ValidityFilter
}

// NewWeightedAggregator creates a WeightedAggregator using filter to reject
// default values.
func NewWeightedAggregator(filter ValidityFilter) WeightedAggregator {
	return WeightedAggregator{Filter: filter}
}

// Aggregate implements Aggregator.
func (a WeightedAggregator) Aggregate(scores RawScores, weights Weights) Verdict {
	names := sourceNames(scores, weights)

	verdict := Verdict{
		TotalAPICount: len(names),
		Scores:        make(map[string]string, len(names)),
		APIStatus:     make(map[string]SourceStatus, len(names)),
	}

	var weightedSum, totalWeight float64
	for _, name := range names {
		score, ok := a.validScore(scores[name])
		if !ok {
			verdict.Scores[name] = UnavailableDisplay
			verdict.APIStatus[name] = StatusUnavailable
			continue
		}

		verdict.ValidAPICount++
		verdict.Scores[name] = formatPercent(score * 100)
		verdict.APIStatus[name] = StatusOK

		w := sanitizeWeight(weights[name])
		weightedSum += w * score
		totalWeight += w
	}

	if verdict.ValidAPICount == 0 || totalWeight == 0 {
		verdict.Probability = NoDataProbability
		verdict.NoData = true
		return verdict
	}

	verdict.Composite = weightedSum / totalWeight * 100
	verdict.Probability = formatPercent(verdict.Composite)
	verdict.IsAI = verdict.Composite > 50
	return verdict
}

// validScore unwraps a raw score that is present, not a default, and
// inside [0, 1].
func (a WeightedAggregator) validScore(raw *float64) (float64, bool) {
	if raw == nil || a.Filter.IsDefault(*raw) {
		return 0, false
	}
	v := *raw
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// sanitizeWeight treats negative or non-finite weights as disabled.
func sanitizeWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

// sourceNames returns the union of the map keys in lexical order so that
// floating-point summation is deterministic.
func sourceNames(scores RawScores, weights Weights) []string {
	seen := make(map[string]struct{}, len(scores)+len(weights))
	for name := range scores {
		seen[name] = struct{}{}
	}
	for name := range weights {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
