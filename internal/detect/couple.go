package detect

import (
	"cmp"
	"slices"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/types"
	"gonum.org/v1/gonum/spatial/r2"
)

type pair struct {
	dark, bright int
	dist         float64
}

// Couple merges dark (shadow) and bright (reflection) blobs that belong to the
// same organism. Pairs closer than CouplingDistance are taken greedily, closest
// first, ties going to the lower (dark, bright) index pair. A coupled blob sits
// on the dark centroid, covers both boxes and keeps the dark area.
//
// The result lists coupled blobs in match order, then leftover dark blobs, then
// leftover bright blobs. Leftovers are dropped when RequireCoupling is set.
func Couple(dark, bright []types.Blob, p params.Detection) []types.Blob {
	var pairs []pair
	for i, d := range dark {
		for j, b := range bright {
			dist := r2.Norm(r2.Sub(d.Centroid, b.Centroid))
			if dist <= p.CouplingDistance {
				pairs = append(pairs, pair{dark: i, bright: j, dist: dist})
			}
		}
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			cmp.Compare(a.dark, b.dark),
			cmp.Compare(a.bright, b.bright),
		)
	})

	usedDark := make([]bool, len(dark))
	usedBright := make([]bool, len(bright))
	out := make([]types.Blob, 0, len(dark)+len(bright))

	for _, pr := range pairs {
		if usedDark[pr.dark] || usedBright[pr.bright] {
			continue
		}
		usedDark[pr.dark] = true
		usedBright[pr.bright] = true

		d, b := dark[pr.dark], bright[pr.bright]
		out = append(out, types.Blob{
			Centroid:   d.Centroid,
			Box:        d.Box.Union(b.Box),
			Area:       d.Area,
			Polarity:   types.Dark,
			Kind:       types.Coupled,
			Confidence: d.Confidence * p.CouplingBoost,
		})
	}

	if p.RequireCoupling {
		return out
	}
	for i, d := range dark {
		if !usedDark[i] {
			out = append(out, d)
		}
	}
	for j, b := range bright {
		if !usedBright[j] {
			out = append(out, b)
		}
	}
	return out
}
