// Package deconv estimates the mixture proportions of candidate
// isotopic envelopes in an experimental mass spectrum under an
// optimal-transport (Wasserstein) formulation. A dual linear program
// apportions experimental ion current between the candidates and a
// noise pool; large problems are decomposed into independent mass
// chunks before solving.
package deconv

import (
	"sort"

	"masserstein/internal/spectrum"
)

// massAxis returns the sorted union of all distinct peak masses in the
// experimental spectrum and the candidate spectra.
func massAxis(exp *spectrum.Spectrum, theor []*spectrum.Spectrum) []float64 {
	seen := make(map[float64]struct{}, len(exp.Peaks))
	for _, p := range exp.Peaks {
		seen[p.Mz] = struct{}{}
	}
	for _, t := range theor {
		for _, p := range t.Peaks {
			seen[p.Mz] = struct{}{}
		}
	}
	axis := make([]float64, 0, len(seen))
	for m := range seen {
		axis = append(axis, m)
	}
	sort.Float64s(axis)
	return axis
}

// resampleOnto spreads a sparse peak list over a mass axis, producing
// one intensity per axis point: the peak's intensity where the mass
// matches exactly and zero elsewhere. Every peak mass must occur in
// the axis; this holds by construction because the axis is the union
// of the input masses, so comparison is exact, never by tolerance.
func resampleOnto(peaks []spectrum.Peak, axis []float64) []float64 {
	out := make([]float64, len(axis))
	i := 0
	for _, p := range peaks {
		for i < len(axis) && axis[i] < p.Mz {
			i++
		}
		if i == len(axis) {
			break
		}
		if axis[i] == p.Mz {
			out[i] = p.Intens
			i++
		}
	}
	return out
}
