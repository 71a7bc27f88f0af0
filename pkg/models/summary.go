package models

import (
	"math"
	"sort"
)

// Summary aggregates one identity's records.
type Summary struct {
	Identity string  `json:"identity"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean_seconds"`
	Min      float64 `json:"min_seconds"`
	Max      float64 `json:"max_seconds"`
	// SecondsPerUnit is total duration over total parameter, a rough
	// per-host speed figure that is comparable across parameter sizes.
	SecondsPerUnit float64 `json:"seconds_per_unit"`
}

// Summarize groups records by identity, sorted by identity.
func Summarize(recs []Record) []Summary {
	type acc struct {
		Summary
		total  float64
		params float64
	}
	byID := make(map[string]*acc)
	for _, r := range recs {
		a, ok := byID[r.Identity]
		if !ok {
			a = &acc{Summary: Summary{Identity: r.Identity, Min: math.Inf(1), Max: math.Inf(-1)}}
			byID[r.Identity] = a
		}
		a.Count++
		a.total += r.Duration
		a.params += float64(r.Parameter)
		a.Min = math.Min(a.Min, r.Duration)
		a.Max = math.Max(a.Max, r.Duration)
	}

	out := make([]Summary, 0, len(byID))
	for _, a := range byID {
		a.Mean = a.total / float64(a.Count)
		if a.params > 0 {
			a.SecondsPerUnit = a.total / a.params
		}
		out = append(out, a.Summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
