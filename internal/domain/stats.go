package domain

import "sort"

// SourceTally counts the outcomes of one source over a batch.
type SourceTally struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// Total returns the number of invocations tallied.
func (t SourceTally) Total() int { return t.OK + t.Failed }

// Availability returns the fraction of OK invocations, or 0 when nothing
// was tallied.
func (t SourceTally) Availability() float64 {
	if t.Total() == 0 {
		return 0
	}
	return float64(t.OK) / float64(t.Total())
}

// BatchStats aggregates per-source availability across the images of one
// run. Only images that reached the sources are counted.
type BatchStats struct {
	// Images is the number of verdicts tallied.
	Images int `json:"images"`

	// Sources maps a source name to its tally.
	Sources map[string]SourceTally `json:"sources"`
}

// NewBatchStats tallies the given verdicts.
func NewBatchStats(verdicts []Verdict) BatchStats {
	stats := BatchStats{Sources: make(map[string]SourceTally)}
	for _, v := range verdicts {
		stats.Add(v)
	}
	return stats
}

// Add tallies one verdict. It is not safe for concurrent use; the batch
// processor calls it only after every image has been joined.
func (s *BatchStats) Add(v Verdict) {
	if s.Sources == nil {
		s.Sources = make(map[string]SourceTally)
	}
	s.Images++
	for name, status := range v.APIStatus {
		t := s.Sources[name]
		if status == StatusOK {
			t.OK++
		} else {
			t.Failed++
		}
		s.Sources[name] = t
	}
}

// SourceNames returns the tallied source names in lexical order.
func (s BatchStats) SourceNames() []string {
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outages returns the sources that failed on every tallied image, which
// points at a systemic problem (bad key, vendor down) rather than an
// occasional miss.
func (s BatchStats) Outages() []string {
	var out []string
	for _, name := range s.SourceNames() {
		t := s.Sources[name]
		if t.Failed > 0 && t.OK == 0 {
			out = append(out, name)
		}
	}
	return out
}
