package deconv

import (
	"math"
	"sort"

	"masserstein/internal/spectrum"
)

// envelope is the mass extent of one candidate spectrum, tagged with
// its position in the original query order. A removed candidate keeps
// its slot with lo == hi == -1 so downstream index bookkeeping stays
// aligned with the query.
type envelope struct {
	lo, hi float64
	idx    int
}

func (e envelope) removed() bool { return e.lo == -1 && e.hi == -1 }

// filterCandidates tests every candidate against the two pruning
// heuristics and returns the envelope list sorted by lower bound,
// plus the original indices of the removed candidates.
//
// Matching current: the experimental ion current inside the
// candidate's MTD-expanded envelope must reach mdc (disabled when
// mdc == 0). Matching mode: the nearest experimental peak to the
// candidate's most intense peak must lie within mmd (disabled when
// mmd == -1). Both checks are local approximations; a candidate that
// passes may still receive zero proportion once competition over the
// shared signal is resolved by the transport program.
func filterCandidates(exp *spectrum.Spectrum, query []*spectrum.Spectrum,
	mtd, mdc, mmd float64) (bounds []envelope, removed []int) {

	bounds = make([]envelope, 0, len(query))
	for i, q := range query {
		mode := q.ModalPeak().Mz
		lo, hi := q.MinMz(), q.MaxMz()

		current := mdc == 0
		if !current {
			tic := 0.0
			for _, p := range exp.ExtractRange(lo-mtd, hi+mtd) {
				tic += p.Intens
			}
			current = tic >= mdc
		}
		modeOK := mmd == -1 || math.Abs(exp.Closest(mode).Mz-mode) <= mmd

		if current && modeOK {
			bounds = append(bounds, envelope{lo: lo, hi: hi, idx: i})
		} else {
			bounds = append(bounds, envelope{lo: -1, hi: -1, idx: i})
			removed = append(removed, i)
		}
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].lo < bounds[j].lo })
	return bounds, removed
}
