package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStats(t *testing.T) {
	verdicts := []Verdict{
		{APIStatus: map[string]SourceStatus{"google": StatusOK, "deepai": StatusUnavailable, "aiornot": StatusUnavailable}},
		{APIStatus: map[string]SourceStatus{"google": StatusOK, "deepai": StatusOK, "aiornot": StatusUnavailable}},
	}

	stats := NewBatchStats(verdicts)

	assert.Equal(t, 2, stats.Images)
	assert.Equal(t, SourceTally{OK: 2}, stats.Sources["google"])
	assert.Equal(t, SourceTally{OK: 1, Failed: 1}, stats.Sources["deepai"])
	assert.Equal(t, SourceTally{Failed: 2}, stats.Sources["aiornot"])
	assert.Equal(t, []string{"aiornot", "deepai", "google"}, stats.SourceNames())
	assert.Equal(t, []string{"aiornot"}, stats.Outages())
	assert.InDelta(t, 0.5, stats.Sources["deepai"].Availability(), 1e-12)
}

func TestBatchStats_Empty(t *testing.T) {
	stats := NewBatchStats(nil)

	assert.Zero(t, stats.Images)
	assert.Empty(t, stats.SourceNames())
	assert.Empty(t, stats.Outages())
	assert.Zero(t, SourceTally{}.Availability())
}

func TestBatchStats_AddOnZeroValue(t *testing.T) {
	var stats BatchStats
	stats.Add(Verdict{APIStatus: map[string]SourceStatus{"google": StatusOK}})

	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, 1, stats.Sources["google"].Total())
}

func TestBatchResult_Summaries(t *testing.T) {
	r := BatchResult{Verdicts: []Verdict{
		{Probability: "67.50", Composite: 67.5, IsAI: true},
		{Probability: NoDataProbability, NoData: true},
		{Probability: "20.00", Composite: 20},
	}}

	assert.Equal(t, []float64{67.5, 20}, r.Composites())
	assert.Equal(t, 1, r.AICount())
}
