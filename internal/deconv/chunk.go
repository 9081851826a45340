package deconv

import "masserstein/internal/spectrum"

// massChunk is an independently solvable mass interval, already
// expanded by the maximum transport distance on both sides.
type massChunk struct {
	lo, hi float64
}

// chunkRemoved marks a candidate that was discarded by pre-filtering
// and belongs to no chunk.
const chunkRemoved = -1

// computeChunks groups the surviving candidate envelopes into maximal
// runs whose MTD-expanded intervals touch or overlap: a sweep over the
// envelopes sorted by lower bound merges an envelope into the current
// chunk when the gap to the chunk's running upper bound is at most
// 2*mtd, and closes the chunk otherwise. Removed candidates (sorted to
// the front with lo == -1) get chunk id chunkRemoved.
//
// It returns the chunk id per original candidate index and the chunk
// intervals in ascending, pairwise disjoint order. At least one
// envelope must have survived filtering.
func computeChunks(bounds []envelope, mtd float64) (chunkIDs []int, chunks []massChunk) {
	k := len(bounds)
	chunkIDs = make([]int, k)

	first := 0
	for first < k && bounds[first].removed() {
		chunkIDs[bounds[first].idx] = chunkRemoved
		first++
	}

	cur := 0
	prevLo, prevHi := bounds[first].lo, bounds[first].hi
	for i := first; i < k; i++ {
		b := bounds[i]
		if b.lo-prevHi > 2*mtd {
			chunks = append(chunks, massChunk{lo: prevLo - mtd, hi: prevHi + mtd})
			cur++
			prevLo, prevHi = b.lo, b.hi
		} else if b.hi > prevHi {
			// Envelopes are sorted by lower bound only; a nested
			// envelope must not shrink the chunk.
			prevHi = b.hi
		}
		chunkIDs[b.idx] = cur
	}
	chunks = append(chunks, massChunk{lo: prevLo - mtd, hi: prevHi + mtd})
	return chunkIDs, chunks
}

// assignPeaks walks the experimental peaks (sorted by mass) once,
// assigning every peak index to the chunk whose interval contains it.
// Peaks outside every chunk cannot be explained by any candidate, so
// their full intensity goes straight into the noise vector.
//
// The returned slice has exactly one entry per chunk; chunks beyond
// the last experimental peak are left with empty index lists.
func assignPeaks(exp *spectrum.Spectrum, chunks []massChunk, noise []float64) [][]int {
	peakIDs := make([][]int, len(chunks))
	cur := 0
	for id, p := range exp.Peaks {
		for chunks[cur].hi < p.Mz && cur < len(chunks)-1 {
			cur++
		}
		if chunks[cur].lo <= p.Mz && p.Mz <= chunks[cur].hi {
			peakIDs[cur] = append(peakIDs[cur], id)
		} else {
			noise[id] = p.Intens
		}
	}
	return peakIDs
}
