package deconv

import (
	"errors"
	"fmt"
	"log"

	"gonum.org/v1/gonum/floats/scalar"

	"masserstein/internal/lpmodel"
	"masserstein/internal/spectrum"
)

// NoiseMode selects where unexplainable signal is allowed to go when
// estimating with EstimateProportionsWithNoise.
type NoiseMode int

const (
	// NoiseOnlyExperimental restricts noise to the experimental
	// spectrum.
	NoiseOnlyExperimental NoiseMode = iota
	// NoiseInBoth also allows noise in the theoretical spectra;
	// transporting signal between the two noise pools is forbidden.
	NoiseInBoth
	// NoiseInBothCross allows noise in both spectra and lets the two
	// noise pools exchange mass.
	NoiseInBothCross
)

// Options control the deconvolution pipeline. Use DefaultOptions as a
// starting point; the zero value disables too much.
type Options struct {
	// MTD is the maximum transport distance: ion current may be
	// reassigned over at most this mass distance.
	MTD float64
	// MDC is the minimum detectable current: a candidate whose
	// MTD-expanded envelope covers less experimental current than
	// this is assumed absent. Zero disables the check.
	MDC float64
	// MMD is the maximum mode distance: a candidate whose most
	// intense peak has no experimental peak within this distance is
	// assumed absent. -1 disables the check.
	MMD float64
	// MTDTheory is the transport distance for theoretical-side noise;
	// required by the theory-noise modes.
	MTDTheory float64
	// MaxReruns bounds how often a chunk is re-solved after a
	// non-optimal solver status before the run is aborted.
	MaxReruns int
	// Verbose enables progress logging via the log package.
	Verbose bool
	// Progress, when set, is called as pipeline stages advance.
	Progress func(stage string, done, total int)
	// OnWarning, when set, receives each Warning as it is emitted, in
	// addition to the warnings collected on the result.
	OnWarning func(Warning)
}

// DefaultOptions returns the canonical parameter set: MTD 1.0,
// MDC 1e-8, mode filtering disabled, three reruns.
func DefaultOptions() Options {
	return Options{MTD: 1, MDC: 1e-8, MMD: -1, MaxReruns: 3}
}

// Result is the outcome of a deconvolution run.
type Result struct {
	// Proportions holds, per query spectrum, the share of total ion
	// current attributed to it. Filtered-out candidates get 0.
	Proportions []float64
	// Noise holds, per experimental peak, the intensity that no
	// candidate could explain.
	Noise []float64
	// NoiseInTheoretical is the total theory-side noise share;
	// nonzero only for the theory-noise modes.
	NoiseInTheoretical float64
	// Warnings collects the non-fatal diagnostics of the run.
	Warnings []Warning
}

// ErrChunkFailed marks a chunk whose transport program could not be
// solved to optimality within the rerun budget.
var ErrChunkFailed = errors.New("chunk deconvolution failed")

// Total ion current below this floor makes a chunk's program
// degenerate; such chunks are skipped and pushed to noise whole.
const chunkTICFloor = 1e-16

// EstimateProportions estimates the proportion of each query spectrum
// in the experimental spectrum, with noise allowed only on the
// experimental side. Per-peak noise is recovered from the reduced
// costs of the penalty-bounded transport potentials.
func EstimateProportions(exp *spectrum.Spectrum, query []*spectrum.Spectrum,
	opts Options) (*Result, error) {
	return estimate(exp, query, expNoiseBounds, opts)
}

// EstimateProportionsWithNoise is EstimateProportions with a
// selectable noise model. NoiseOnlyExperimental uses the formulation
// that recovers noise from explicit penalty rows; the two theory-noise
// modes additionally require Options.MTDTheory.
func EstimateProportionsWithNoise(exp *spectrum.Spectrum, query []*spectrum.Spectrum,
	mode NoiseMode, opts Options) (*Result, error) {

	var nm noiseModel
	switch mode {
	case NoiseOnlyExperimental:
		nm = expNoiseRows
	case NoiseInBoth:
		nm = theoryNoise
	case NoiseInBothCross:
		nm = theoryNoiseCross
	default:
		return nil, fmt.Errorf("deconv: unknown noise mode %d", mode)
	}
	if nm.theorySide() && opts.MTDTheory <= 0 {
		return nil, errors.New("deconv: MTDTheory must be positive for theory-noise modes")
	}
	return estimate(exp, query, nm, opts)
}

func estimate(exp *spectrum.Spectrum, query []*spectrum.Spectrum,
	nm noiseModel, opts Options) (*Result, error) {

	if err := validateInputs(exp, query); err != nil {
		return nil, err
	}

	k := len(query)
	res := &Result{
		Proportions: make([]float64, k),
		Noise:       make([]float64, len(exp.Peaks)),
	}
	warn := func(w Warning) {
		res.Warnings = append(res.Warnings, w)
		if opts.OnWarning != nil {
			opts.OnWarning(w)
		}
	}
	progress := func(stage string, done, total int) {
		if opts.Progress != nil {
			opts.Progress(stage, done, total)
		}
	}

	bounds, removed := filterCandidates(exp, query, opts.MTD, opts.MDC, opts.MMD)
	progress("filtering candidates", k, k)
	if opts.Verbose {
		log.Printf("deconv: %d of %d candidates removed by pre-filtering: %v",
			len(removed), k, removed)
	}
	if len(removed) == k {
		// Nothing left to match: the whole spectrum is noise.
		for i, p := range exp.Peaks {
			res.Noise[i] = p.Intens
		}
		checkEstimate(res, warn)
		return res, nil
	}

	chunkIDs, chunks := computeChunks(bounds, opts.MTD)
	peakIDs := assignPeaks(exp, chunks, res.Noise)
	progress("computing chunks", len(chunks), len(chunks))
	if opts.Verbose {
		log.Printf("deconv: %d chunks: %v", len(chunks), chunks)
	}

	for c, ids := range peakIDs {
		progress("deconvolving chunks", c, len(chunks))
		tic := 0.0
		for _, id := range ids {
			tic += exp.Peaks[id].Intens
		}
		if tic < chunkTICFloor {
			// Nothing to deconvolve; remaining signal is noise.
			for _, id := range ids {
				res.Noise[id] = exp.Peaks[id].Intens
			}
			continue
		}
		if err := deconvolveChunk(exp, query, nm, opts, c, chunks[c], ids, tic,
			chunkIDs, res, warn); err != nil {
			return nil, err
		}
	}
	progress("deconvolving chunks", len(chunks), len(chunks))

	checkEstimate(res, warn)
	return res, nil
}

// deconvolveChunk solves one chunk's transport program, retrying on
// non-optimal solver status, and scatters the fractional result back
// into the global arrays scaled by the chunk's ion current.
func deconvolveChunk(exp *spectrum.Spectrum, query []*spectrum.Spectrum,
	nm noiseModel, opts Options, c int, ck massChunk, ids []int, tic float64,
	chunkIDs []int, res *Result, warn func(Warning)) error {

	// Peak ids are ascending in mass, so the chunk sub-spectrum is
	// already sorted.
	peaks := make([]spectrum.Peak, len(ids))
	for i, id := range ids {
		peaks[i] = exp.Peaks[id]
	}
	chunkSp := &spectrum.Spectrum{Peaks: peaks}
	chunkSp.Normalize()

	var thrIDs []int
	for i, cid := range chunkIDs {
		if cid == c {
			thrIDs = append(thrIDs, i)
		}
	}
	thrSps := make([]*spectrum.Spectrum, len(thrIDs))
	for i, id := range thrIDs {
		thrSps[i] = query[id]
	}

	var tr *transportResult
	for rerun := 1; ; rerun++ {
		if rerun > opts.MaxReruns {
			return fmt.Errorf(
				"deconv: failed to deconvolve a fragment of the experimental spectrum with mass (%f, %f): %w",
				ck.lo, ck.hi, ErrChunkFailed)
		}
		var err error
		tr, err = solveTransport(chunkSp, thrSps, nm, opts.MTD, opts.MTDTheory)
		if err != nil {
			return err
		}
		if tr.status == lpmodel.StatusOptimal {
			break
		}
		warn(Warning{
			Stage: "solve",
			Chunk: c,
			Message: fmt.Sprintf("rerunning computations for chunk %d due to status %s",
				c, tr.status),
		})
	}
	if opts.Verbose {
		log.Printf("deconv: chunk %d solved in %v, signal %f, noise %f",
			c, tr.elapsed, sum(tr.probs), sum(tr.noise))
	}
	for _, w := range tr.warnings {
		w.Chunk = c
		warn(w)
	}

	for i, p := range tr.probs {
		res.Proportions[thrIDs[i]] = p * tic
	}
	// The transport result reports one noise term per chunk peak with
	// nonzero intensity, in ascending mass order.
	ni := 0
	for i, id := range ids {
		if peaks[i].Intens > 0 && ni < len(tr.noise) {
			res.Noise[id] = tr.noise[ni] * tic
			ni++
		}
	}
	if nm.theorySide() {
		res.NoiseInTheoretical += tr.noiseInTheory * tic
	}
	return nil
}

// checkEstimate performs the global sum-to-one consistency check.
func checkEstimate(res *Result, warn func(Warning)) {
	total := sum(res.Proportions) + sum(res.Noise)
	atol := float64(len(res.Noise)) * sumTolPerTerm
	if !scalar.EqualWithinAbs(total, 1, atol) {
		warn(sumWarning("estimate", -1, total))
	}
}

func validateInputs(exp *spectrum.Spectrum, query []*spectrum.Spectrum) error {
	if len(exp.Peaks) == 0 {
		return fmt.Errorf("experimental spectrum: %w", spectrum.ErrEmpty)
	}
	if err := exp.Validate(); err != nil {
		return fmt.Errorf("experimental spectrum: %w", err)
	}
	if err := exp.CheckNormalized(); err != nil {
		return fmt.Errorf("experimental spectrum: %w", err)
	}
	for i, q := range query {
		if len(q.Peaks) == 0 {
			return fmt.Errorf("theoretical spectrum %d: %w", i, spectrum.ErrEmpty)
		}
		if err := q.Validate(); err != nil {
			return fmt.Errorf("theoretical spectrum %d: %w", i, err)
		}
		if err := q.CheckNormalized(); err != nil {
			return fmt.Errorf("theoretical spectrum %d: %w", i, err)
		}
	}
	return nil
}
