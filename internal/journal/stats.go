package journal

import (
	"math"
	"sort"
	"time"

	"enoctl/internal/model"
)

// Summary is a statistics snapshot over journal rows.
type Summary struct {
	Count          int
	Matched        int
	From           time.Time
	To             time.Time
	MatchRate      float64
	AvgElapsedMs   float64
	P95ElapsedMs   float64
	MaxElapsedMs   float64
	AvgPolls       float64
	TotalFetchErrs int
}

// Filter narrows the rows passed to Summarize. Empty fields match everything.
type Filter struct {
	Since time.Time
	Node  string
	Kind  string
}

func (f Filter) keep(o model.WaitOutcome) bool {
	if o.Timestamp.Before(f.Since) {
		return false
	}
	if f.Node != "" && o.Node != f.Node {
		return false
	}
	return f.Kind == "" || o.Kind == f.Kind
}

// Summarize computes summary statistics for the rows selected by f.
func Summarize(items []model.WaitOutcome, f Filter) Summary {
	filtered := make([]model.WaitOutcome, 0, len(items))
	for _, o := range items {
		if f.keep(o) {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return Summary{}
	}

	values := make([]float64, 0, len(filtered))
	var s Summary
	var sumElapsed, sumPolls float64
	s.From = filtered[0].Timestamp
	s.To = filtered[0].Timestamp

	for _, o := range filtered {
		values = append(values, o.ElapsedMs)
		sumElapsed += o.ElapsedMs
		sumPolls += float64(o.Polls)
		s.TotalFetchErrs += o.FetchErrors
		if o.Matched {
			s.Matched++
		}
		if o.ElapsedMs > s.MaxElapsedMs {
			s.MaxElapsedMs = o.ElapsedMs
		}
		if o.Timestamp.Before(s.From) {
			s.From = o.Timestamp
		}
		if o.Timestamp.After(s.To) {
			s.To = o.Timestamp
		}
	}

	sort.Float64s(values)
	count := float64(len(filtered))
	s.Count = len(filtered)
	s.MatchRate = float64(s.Matched) / count
	s.AvgElapsedMs = sumElapsed / count
	s.AvgPolls = sumPolls / count
	s.P95ElapsedMs = percentile(values, 0.95)
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
