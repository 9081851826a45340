package deconv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"masserstein/internal/lpmodel"
	"masserstein/internal/spectrum"
)

// noiseModel selects one of the four dual-transport formulations.
// All four share the same skeleton (common mass axis, per-candidate
// certification constraints, Lipschitz slope constraints bounding the
// transport cost); they differ in where unexplainable signal may go
// and in which dual quantity recovers the noise allocation.
type noiseModel int

const (
	// expNoiseBounds allows noise only in the experimental spectrum;
	// the denoising penalty is the upper bound of each axis variable
	// and per-peak noise is read from variable reduced costs.
	expNoiseBounds noiseModel = iota
	// expNoiseRows is the same formulation with the penalty stated as
	// explicit per-point rows; noise is read from their shadow prices.
	expNoiseRows
	// theoryNoise adds a noise pool on the theoretical side with no
	// transport between the two auxiliary noise endpoints.
	theoryNoise
	// theoryNoiseCross also adds a theoretical noise pool and allows
	// the two noise pools to exchange mass.
	theoryNoiseCross
)

func (nm noiseModel) String() string {
	switch nm {
	case expNoiseBounds:
		return "exp-noise"
	case expNoiseRows:
		return "exp-noise-rows"
	case theoryNoise:
		return "theory-noise"
	default:
		return "theory-noise-cross"
	}
}

func (nm noiseModel) theorySide() bool {
	return nm == theoryNoise || nm == theoryNoiseCross
}

const (
	// Reported proportions and noise terms are rounded to this many
	// decimal digits to strip solver float noise.
	reportDigits = 12
	// Absolute sum-to-one tolerance per noise term. Summing many
	// small numbers accumulates float error, so the check scales with
	// the number of terms.
	sumTolPerTerm = 1e-3
)

var roundScale = math.Pow(10, reportDigits)

func roundReported(x float64) float64 {
	return math.Round(x*roundScale) / roundScale
}

// transportResult is the outcome of one dual-transport solve over one
// mass region.
type transportResult struct {
	probs         []float64 // per candidate, in input order
	noise         []float64 // per experimental peak with nonzero intensity
	noiseTheory   []float64 // theory-side noise per axis point (theory-noise models)
	noiseInTheory float64   // total theory-side noise
	objective     float64
	status        lpmodel.Status
	elapsed       time.Duration
	warnings      []Warning
}

// solveTransport builds and solves the dual transport program for one
// experimental spectrum against a group of candidate spectra sharing
// its mass region. penalty is the experimental denoising budget (the
// maximum transport distance); penaltyTheory is its theoretical-side
// counterpart, used only by the theory-noise models.
//
// All inputs must be normalized. When the returned status is not
// optimal, only the status field is meaningful and the caller decides
// whether to retry.
func solveTransport(exp *spectrum.Spectrum, theor []*spectrum.Spectrum,
	nm noiseModel, penalty, penaltyTheory float64) (*transportResult, error) {

	start := time.Now()
	if err := exp.CheckNormalized(); err != nil {
		return nil, fmt.Errorf("experimental spectrum: %w", err)
	}
	for j, t := range theor {
		if err := t.CheckNormalized(); err != nil {
			return nil, fmt.Errorf("theoretical spectrum %d: %w", j, err)
		}
	}

	axis := massAxis(exp, theor)
	n := len(axis)
	gaps := make([]float64, n-1)
	for i := range gaps {
		gaps[i] = axis[i+1] - axis[i]
	}
	expVec := resampleOnto(exp.Peaks, axis)
	thrVecs := make([][]float64, len(theor))
	for j, t := range theor {
		thrVecs[j] = resampleOnto(t.Peaks, axis)
	}

	if nm.theorySide() && n < 2 {
		return nil, errors.New("theory-noise transport needs at least two mass-axis points")
	}

	m := lpmodel.NewMaximize("dual L1 regression sparse")
	var zv []*lpmodel.Var
	if nm.theorySide() {
		buildTheoryNoise(m, nm, expVec, thrVecs, gaps, penalty, penaltyTheory)
	} else {
		zv = buildExpNoise(m, nm, expVec, thrVecs, gaps, penalty)
	}
	sol, err := m.Solve()
	if err != nil {
		return nil, err
	}

	res := &transportResult{
		status:  sol.Status,
		elapsed: time.Since(start),
	}
	if sol.Status != lpmodel.StatusOptimal {
		return res, nil
	}
	res.objective = sol.Objective
	if nm.theorySide() {
		extractTheoryNoise(res, sol, nm, expVec, len(thrVecs))
	} else {
		extractExpNoise(res, sol, nm, zv, expVec, len(thrVecs))
	}

	total := sum(res.probs) + sum(res.noise)
	if !scalar.EqualWithinAbs(total, 1, float64(len(res.noise))*sumTolPerTerm) {
		res.warnings = append(res.warnings, sumWarning(nm.String(), -1, total))
	}
	return res, nil
}

// buildExpNoise assembles the experimental-noise-only formulations.
// Axis variables are the dual transport potentials; the slope rows
// hold consecutive potentials within the local interval length, which
// makes moving mass cost proportional to distance.
func buildExpNoise(m *lpmodel.Model, nm noiseModel,
	expVec []float64, thrVecs [][]float64, gaps []float64, penalty float64) []*lpmodel.Var {

	n := len(expVec)
	zv := make([]*lpmodel.Var, n)
	for i := range zv {
		if nm == expNoiseBounds {
			zv[i] = m.Var(fmt.Sprintf("Z%d", i+1), math.Inf(-1), penalty)
		} else {
			zv[i] = m.FreeVar(fmt.Sprintf("Z%d", i+1))
		}
		m.SetObjectiveCoef(zv[i], expVec[i])
	}
	for j, tv := range thrVecs {
		var terms []lpmodel.Term
		for i, v := range tv {
			if v > 0 {
				terms = append(terms, lpmodel.Term{Var: zv[i], Coef: v})
			}
		}
		m.AddConstr(fmt.Sprintf("P%d", j+1), terms, 0)
	}
	if nm == expNoiseRows {
		for i := range zv {
			m.AddConstr(fmt.Sprintf("g%d", i+1),
				[]lpmodel.Term{{Var: zv[i], Coef: 1}}, penalty)
		}
	}
	for i := 0; i < n-1; i++ {
		m.AddConstr(fmt.Sprintf("EpsPlus_%d", i+1),
			[]lpmodel.Term{{Var: zv[i], Coef: 1}, {Var: zv[i+1], Coef: -1}}, gaps[i])
		m.AddConstr(fmt.Sprintf("EpsMinus_%d", i+1),
			[]lpmodel.Term{{Var: zv[i+1], Coef: 1}, {Var: zv[i], Coef: -1}}, gaps[i])
	}
	return zv
}

// buildTheoryNoise assembles the two formulations with a noise pool
// on the theoretical side. The potential of the last axis point is
// pinned to zero (dual potentials are defined up to a constant), its
// neighbour gets the box bound that stands in for the missing slope
// row, and three auxiliary variables model the two noise-absorption
// endpoints and their coupling.
func buildTheoryNoise(m *lpmodel.Model, nm noiseModel,
	expVec []float64, thrVecs [][]float64, gaps []float64,
	penalty, penaltyTheory float64) {

	n := len(expVec)
	zv := make([]*lpmodel.Var, n-1)
	for i := 0; i < n-1; i++ {
		if i == n-2 {
			zv[i] = m.Var(fmt.Sprintf("Z%d", i+1), 0, gaps[n-2])
		} else {
			zv[i] = m.FreeVar(fmt.Sprintf("Z%d", i+1))
		}
		m.SetObjectiveCoef(zv[i], expVec[i])
	}
	var zAbyss, zAbyssTh, zCross *lpmodel.Var
	if nm == theoryNoise {
		zAbyss = m.Var(fmt.Sprintf("Z%d", n), 0, math.Inf(1))
		zAbyssTh = m.Var(fmt.Sprintf("Z%d", n+1), 0, penaltyTheory)
		zCross = m.Var(fmt.Sprintf("Z%d", n+2), 0, math.Inf(1))
		m.SetObjectiveCoef(zAbyss, 1)
		m.SetObjectiveCoef(zCross, -1)
	} else {
		zAbyss = m.FreeVar(fmt.Sprintf("Z%d", n))
		zAbyssTh = m.FreeVar(fmt.Sprintf("Z%d", n+1))
		zCross = m.Var(fmt.Sprintf("Z%d", n+2), 0, math.Inf(1))
		m.SetObjectiveCoef(zAbyss, -1)
	}

	for j, tv := range thrVecs {
		var terms []lpmodel.Term
		for i := 0; i < n-1; i++ {
			if tv[i] > 0 {
				terms = append(terms, lpmodel.Term{Var: zv[i], Coef: tv[i]})
			}
		}
		if nm == theoryNoise {
			terms = append(terms, lpmodel.Term{Var: zAbyss, Coef: 1})
			m.AddConstr(fmt.Sprintf("P_%d", j+1), terms, 0)
		} else {
			terms = append(terms,
				lpmodel.Term{Var: zAbyss, Coef: -1},
				lpmodel.Term{Var: zCross, Coef: 1})
			m.AddConstr(fmt.Sprintf("P_%d", j+1), terms, -penalty)
		}
	}

	// Balance row linking the experimental signal with the two noise
	// endpoints.
	var balance []lpmodel.Term
	for i := 0; i < n-1; i++ {
		if expVec[i] > 0 {
			balance = append(balance, lpmodel.Term{Var: zv[i], Coef: expVec[i]})
		}
	}
	if nm == theoryNoise {
		balance = append(balance,
			lpmodel.Term{Var: zAbyssTh, Coef: -1},
			lpmodel.Term{Var: zCross, Coef: -1})
		m.AddConstr("p0_prime", balance, 0)
	} else {
		balance = append(balance,
			lpmodel.Term{Var: zAbyssTh, Coef: 1},
			lpmodel.Term{Var: zCross, Coef: -1})
		m.AddConstr("p0_prime", balance, penaltyTheory)
	}

	for i := 0; i < n-1; i++ {
		if nm == theoryNoise {
			m.AddConstr(fmt.Sprintf("g_%d", i+1),
				[]lpmodel.Term{{Var: zv[i], Coef: 1}, {Var: zAbyss, Coef: 1}}, penalty)
			m.AddConstr(fmt.Sprintf("g_prime_%d", i+1),
				[]lpmodel.Term{{Var: zv[i], Coef: -1}, {Var: zAbyssTh, Coef: 1}}, penaltyTheory)
		} else {
			m.AddConstr(fmt.Sprintf("g_%d", i+1),
				[]lpmodel.Term{{Var: zv[i], Coef: 1}, {Var: zAbyss, Coef: -1}}, 0)
			m.AddConstr(fmt.Sprintf("g_prime_%d", i+1),
				[]lpmodel.Term{{Var: zv[i], Coef: -1}, {Var: zAbyssTh, Coef: -1}}, 0)
		}
	}
	// Transport downhill is bounded by the interval length, uphill is
	// forbidden; the symmetric direction is carried by the noise
	// endpoints instead.
	for i := 0; i < n-2; i++ {
		m.AddConstr(fmt.Sprintf("epsilon_plus_%d", i+1),
			[]lpmodel.Term{{Var: zv[i], Coef: 1}, {Var: zv[i+1], Coef: -1}}, gaps[i])
		m.AddConstr(fmt.Sprintf("epsilon_minus_%d", i+1),
			[]lpmodel.Term{{Var: zv[i+1], Coef: 1}, {Var: zv[i], Coef: -1}}, 0)
	}
	if nm == theoryNoiseCross {
		m.AddConstr(fmt.Sprintf("g_%d", n),
			[]lpmodel.Term{{Var: zAbyss, Coef: -1}}, 0)
		m.AddConstr(fmt.Sprintf("g_prime_%d", n),
			[]lpmodel.Term{{Var: zAbyssTh, Coef: -1}}, 0)
	}
}

// extractExpNoise reads proportions from the candidate constraints'
// shadow prices and per-peak noise from either reduced costs or the
// penalty rows' shadow prices, depending on the formulation.
func extractExpNoise(res *transportResult, sol *lpmodel.Solution, nm noiseModel,
	zv []*lpmodel.Var, expVec []float64, k int) {

	res.probs = make([]float64, k)
	for j := range res.probs {
		res.probs[j] = roundReported(sol.Dual(fmt.Sprintf("P%d", j+1)))
	}
	for i, v := range expVec {
		if v <= 0 {
			continue
		}
		if nm == expNoiseBounds {
			res.noise = append(res.noise, roundReported(sol.ReducedCost(zv[i])))
		} else {
			res.noise = append(res.noise, roundReported(sol.Dual(fmt.Sprintf("g%d", i+1))))
		}
	}
}

// extractTheoryNoise reads proportions and both noise pools from the
// dedicated constraint families. The final experimental noise slot is
// the residual 1 - sum(probs) - sum(noise so far), which absorbs the
// rounding left at the pinned axis point.
func extractTheoryNoise(res *transportResult, sol *lpmodel.Solution, nm noiseModel,
	expVec []float64, k int) {

	n := len(expVec)
	res.probs = make([]float64, k)
	for j := range res.probs {
		res.probs[j] = roundReported(sol.Dual(fmt.Sprintf("P_%d", j+1)))
	}
	res.noiseInTheory = roundReported(sol.Dual("p0_prime"))

	var support []int
	for i, v := range expVec {
		if v > 0 {
			support = append(support, i)
		}
	}
	res.noise = make([]float64, len(support))
	known := sum(res.probs)
	for pos, i := range support {
		if pos == len(support)-1 {
			res.noise[pos] = roundReported(1 - known)
			break
		}
		res.noise[pos] = roundReported(sol.Dual(fmt.Sprintf("g_%d", i+1)))
		known += res.noise[pos]
	}

	if nm == theoryNoise {
		res.noiseTheory = make([]float64, n)
		thKnown := 0.0
		for i := 0; i < n-1; i++ {
			res.noiseTheory[i] = roundReported(sol.Dual(fmt.Sprintf("g_prime_%d", i+1)))
			thKnown += res.noiseTheory[i]
		}
		res.noiseTheory[n-1] = roundReported(res.noiseInTheory - thKnown)
	} else {
		res.noiseTheory = make([]float64, n)
		for i := 0; i < n; i++ {
			res.noiseTheory[i] = roundReported(sol.Dual(fmt.Sprintf("g_prime_%d", i+1)))
		}
	}
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
