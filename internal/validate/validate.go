// Package validate decides which tracks look like real organism movement.
package validate

import (
	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/tracker"
	"gonum.org/v1/gonum/spatial/r2"
)

// Metrics are the movement statistics of one track.
type Metrics struct {
	Length        int     `json:"length"`
	Displacement  float64 `json:"displacement"`
	PathLength    float64 `json:"path_length"`
	AvgSpeed      float64 `json:"avg_speed"`
	TotalDuration int     `json:"total_duration"`
	RestPeriods   int     `json:"rest_periods"`
	CouplingRate  float64 `json:"coupling_rate"`
}

// Measure computes the metrics of t without touching it.
func Measure(t *tracker.Track) Metrics {
	m := Metrics{Length: t.Len(), CouplingRate: t.CouplingRate()}
	if m.Length == 0 {
		return m
	}

	m.Displacement = r2.Norm(r2.Sub(t.Centroids[m.Length-1], t.Centroids[0]))
	for i := 1; i < m.Length; i++ {
		m.PathLength += r2.Norm(r2.Sub(t.Centroids[i], t.Centroids[i-1]))
		if t.Frames[i]-t.Frames[i-1] > 1 {
			m.RestPeriods++
		}
	}
	m.AvgSpeed = m.PathLength / float64(max(1, m.Length-1))
	m.TotalDuration = t.Frames[m.Length-1] - t.Frames[0] + 1
	return m
}

// Passes reports whether metrics meet every threshold in p.
func (m Metrics) Passes(p params.Validation) bool {
	return m.Length >= p.MinTrackLength &&
		m.Displacement >= p.MinDisplacement &&
		m.AvgSpeed >= p.MinSpeed &&
		m.AvgSpeed <= p.MaxSpeed
}

// Evaluate reports whether t is currently valid. It does not set t.Valid and
// is used to colour tracks that are still growing.
func Evaluate(t *tracker.Track, p params.Validation) bool {
	return Measure(t).Passes(p)
}

// Apply classifies every finished track, setting Valid, and returns the
// metrics in the same order. Trails are never modified or dropped.
func Apply(tracks []*tracker.Track, p params.Validation) []Metrics {
	out := make([]Metrics, len(tracks))
	for i, t := range tracks {
		out[i] = Measure(t)
		t.Valid = out[i].Passes(p)
	}
	return out
}
