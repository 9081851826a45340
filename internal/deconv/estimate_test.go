package deconv

import (
	"math"
	"testing"

	"masserstein/internal/spectrum"
)

func normalized(t *testing.T, peaks []spectrum.Peak) *spectrum.Spectrum {
	t.Helper()
	s := spectrum.New(peaks)
	s.Normalize()
	if err := s.CheckNormalized(); err != nil {
		t.Fatal(err)
	}
	return s
}

func inDelta(t *testing.T, what string, got, want, delta float64) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("%s = %g, want %g (±%g)", what, got, want, delta)
	}
}

// An exact two-candidate mixture must be recovered exactly: the
// experimental spectrum is 1/3 of the first candidate plus 2/3 of the
// second, with no noise anywhere.
func TestEstimateProportionsExactMixture(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{
		{Mz: 1, Intens: 1. / 6}, {Mz: 2, Intens: 3. / 6}, {Mz: 3, Intens: 2. / 6},
	})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 1, Intens: 0.5}, {Mz: 2, Intens: 0.5}}),
		normalized(t, []spectrum.Peak{{Mz: 2, Intens: 0.5}, {Mz: 3, Intens: 0.5}}),
	}

	opts := DefaultOptions()
	opts.MTD = 0.1
	res, err := EstimateProportions(exp, query, opts)
	if err != nil {
		t.Fatal(err)
	}
	inDelta(t, "proportions[0]", res.Proportions[0], 1./3, 1e-6)
	inDelta(t, "proportions[1]", res.Proportions[1], 2./3, 1e-6)
	for _, v := range res.Noise {
		inDelta(t, "noise", v, 0, 1e-6)
	}
}

// Mode filtering, chunking and out-of-chunk noise working together:
// the candidate at m/z 20 is pre-filtered by the mode check, the peak
// at 2.2 falls between the two chunks and the peak at 60 lies beyond
// every candidate, so both go to noise whole.
func TestEstimateProportionsChunkedWithNoise(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{
		{Mz: 0, Intens: 1. / 4}, {Mz: 1.1, Intens: 1. / 6},
		{Mz: 2.2, Intens: 5. / 24}, {Mz: 3.1, Intens: 1. / 8},
		{Mz: 4, Intens: 1. / 4}, {Mz: 60, Intens: 0.1},
	})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 0.1, Intens: 0.5}, {Mz: 1.0, Intens: 0.5}}),
		normalized(t, []spectrum.Peak{{Mz: 3, Intens: 0.25}, {Mz: 4.2, Intens: 0.75}}),
		normalized(t, []spectrum.Peak{{Mz: 0.5, Intens: 0.25}, {Mz: 1.2, Intens: 0.75}}),
		normalized(t, []spectrum.Peak{{Mz: 20, Intens: 1}}),
	}

	opts := DefaultOptions()
	opts.MTD = 0.2
	opts.MMD = 0.21
	res, err := EstimateProportions(exp, query, opts)
	if err != nil {
		t.Fatal(err)
	}

	if res.Proportions[3] != 0 {
		t.Errorf("filtered candidate got proportion %g, want 0", res.Proportions[3])
	}
	inDelta(t, "noise[2]", res.Noise[2], (5./24)/1.1, 1e-9)
	inDelta(t, "noise[5]", res.Noise[5], 0.1/1.1, 1e-9)
	for i, p := range res.Proportions {
		if p < -1e-9 {
			t.Errorf("proportions[%d] = %g, want >= 0", i, p)
		}
	}
	total := sum(res.Proportions) + sum(res.Noise)
	inDelta(t, "signal+noise", total, 1, float64(len(res.Noise))*sumTolPerTerm)
}

// Nearly coincident masses provoke catastrophic cancellation in the
// interval lengths; the result must still account for all signal.
func TestEstimateProportionsCancellation(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{
		{Mz: 1 + 1e-6, Intens: 0.6}, {Mz: 1.4, Intens: 0.4},
	})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 1.0, Intens: 0.6}, {Mz: 1.5, Intens: 0.4}}),
	}

	opts := DefaultOptions()
	opts.MTD = 0.003
	opts.MDC = 0
	res, err := EstimateProportions(exp, query, opts)
	if err != nil {
		t.Fatal(err)
	}
	total := sum(res.Proportions) + sum(res.Noise)
	inDelta(t, "signal+noise", total, 1, float64(len(res.Noise))*sumTolPerTerm)
}

// The bounded-variable and explicit-row formulations are two readings
// of the same program, so their proportion estimates must agree.
func TestNoiseFormulationsAgree(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{
		{Mz: 1, Intens: 1. / 6}, {Mz: 2, Intens: 3. / 6}, {Mz: 3, Intens: 2. / 6},
	})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 1, Intens: 0.5}, {Mz: 2, Intens: 0.5}}),
		normalized(t, []spectrum.Peak{{Mz: 2, Intens: 0.5}, {Mz: 3, Intens: 0.5}}),
	}

	opts := DefaultOptions()
	opts.MTD = 0.1
	bounded, err := EstimateProportions(exp, query, opts)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := EstimateProportionsWithNoise(exp, query, NoiseOnlyExperimental, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bounded.Proportions {
		inDelta(t, "proportions", rows.Proportions[i], bounded.Proportions[i], 1e-6)
	}
	for i := range bounded.Noise {
		inDelta(t, "noise", rows.Noise[i], bounded.Noise[i], 1e-6)
	}
}

// With theory-side noise enabled, the candidate's unmatched peak at
// m/z 2 has nowhere to go on the experimental side, so a theoretical
// noise share appears.
func TestEstimateProportionsTheoryNoise(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{{Mz: 1, Intens: 0.7}, {Mz: 1.05, Intens: 0.3}})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 1, Intens: 0.7}, {Mz: 2, Intens: 0.3}}),
	}

	opts := DefaultOptions()
	opts.MTD = 0.1
	opts.MDC = 0
	opts.MTDTheory = 0.1
	for _, mode := range []NoiseMode{NoiseInBoth, NoiseInBothCross} {
		res, err := EstimateProportionsWithNoise(exp, query, mode, opts)
		if err != nil {
			t.Fatal(err)
		}
		if res.NoiseInTheoretical <= 0 {
			t.Errorf("mode %d: NoiseInTheoretical = %g, want > 0",
				mode, res.NoiseInTheoretical)
		}
		total := sum(res.Proportions) + sum(res.Noise)
		inDelta(t, "signal+noise", total, 1, float64(len(res.Noise))*sumTolPerTerm)
	}
}

func TestEstimateProportionsAllFiltered(t *testing.T) {
	exp := normalized(t, []spectrum.Peak{{Mz: 1, Intens: 0.5}, {Mz: 2, Intens: 0.5}})
	query := []*spectrum.Spectrum{
		normalized(t, []spectrum.Peak{{Mz: 100, Intens: 1}}),
	}

	res, err := EstimateProportions(exp, query, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if res.Proportions[0] != 0 {
		t.Errorf("proportions[0] = %g, want 0", res.Proportions[0])
	}
	inDelta(t, "noise[0]", res.Noise[0], 0.5, 1e-12)
	inDelta(t, "noise[1]", res.Noise[1], 0.5, 1e-12)
}

func TestEstimateProportionsValidation(t *testing.T) {
	unnormalized := spectrum.New([]spectrum.Peak{{Mz: 1, Intens: 2}})
	ok := normalized(t, []spectrum.Peak{{Mz: 1, Intens: 1}})

	if _, err := EstimateProportions(unnormalized, []*spectrum.Spectrum{ok},
		DefaultOptions()); err == nil {
		t.Error("expected error for unnormalized experimental spectrum")
	}
	if _, err := EstimateProportions(ok, []*spectrum.Spectrum{unnormalized},
		DefaultOptions()); err == nil {
		t.Error("expected error for unnormalized theoretical spectrum")
	}
	if _, err := EstimateProportions(&spectrum.Spectrum{}, []*spectrum.Spectrum{ok},
		DefaultOptions()); err == nil {
		t.Error("expected error for empty experimental spectrum")
	}
	if _, err := EstimateProportionsWithNoise(ok, []*spectrum.Spectrum{ok},
		NoiseInBoth, DefaultOptions()); err == nil {
		t.Error("expected error for missing MTDTheory")
	}
}
