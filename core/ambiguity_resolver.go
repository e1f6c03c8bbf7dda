package core

import "sort"

// FixResult is one LAMBDA fixing outcome: the best and second-best
// integer double-difference ambiguity candidates and their residual
// sums (for an optional ratio test the caller may apply — this package
// never auto-rejects on ratio, per spec.md §4.5), plus the core
// parameters conditioned on the best candidate.
//
// Per spec.md §9's Open Question 2 decision (grounded on
// original_source's fixAmbiguities, which never overwrites
// gData.body[sv][TypeID::BL1] with an integer), Fixed only reports the
// resolved values — it is never written back into KalmanDriver.Store,
// which keeps carrying the float ambiguity solution across epochs.
type FixResult struct {
	RefSat    SatID
	Fixed     map[ParamID]float64 // SD ambiguity ParamID -> fixed float value (ref + integer DD)
	Core      map[ParamID]float64 // core (non-ambiguity) ParamID -> value conditioned on the fix
	BestSumSq float64
	NextSumSq float64
}

// Ratio is the standard LAMBDA ratio test statistic (second-best over
// best sum-of-squared residuals); larger is a more confident fix. The
// caller decides its own acceptance threshold (DefaultRatioTest gives a
// conventional 3.0 cutoff).
func (f *FixResult) Ratio() float64 {
	if f.BestSumSq <= 0 {
		return 0
	}
	return f.NextSumSq / f.BestSumSq
}

// DefaultRatioTest reports whether f's ratio clears the conventional 3.0
// threshold used throughout the RTK/PPP literature (and the teacher's own
// ResolveAmb_LAMBDA ratio check in rtkpos.go).
func DefaultRatioTest(f *FixResult) bool { return f.Ratio() >= 3.0 }

// AmbiguityResolver is the C5 component: single-difference to
// double-difference ambiguity transform, LD/lambda-reduction/mlambda
// search, and conditional core-parameter adjustment. Grounded on the
// teacher's lamda.go (ldFactorize/lambdaReduce/mlambdaSearch in this
// package, transcribed from LD/Reduction/Search) for the integer search,
// and on original_source/POD/src/GPSProcessing/KalmanSolver.cpp's
// fixAmbiguities for the SD->DD transform and the conditional core update
// x_core_fixed = x_core - Qca*Qaa^-1*(a_dd - nearest_int).
type AmbiguityResolver struct{}

// Resolve fixes the ambiguity subset of params/x/p. epoch supplies
// per-satellite elevation to pick the reference satellite (highest
// elevation, matching fixAmbiguities' reference selection).
func (r *AmbiguityResolver) Resolve(params []ParamID, x []float64, p *Matrix, epoch *EpochRecord) (*FixResult, error) {
	type ambEntry struct {
		idx int
		pid ParamID
		el  float64
	}
	var ambs []ambEntry
	var coreIdx []int
	for i, pid := range params {
		if pid.Kind == ParamAmbiguity {
			el := 0.0
			if obs := epoch.SatByID(pid.SV); obs != nil {
				el = obs.Elevation
			}
			ambs = append(ambs, ambEntry{idx: i, pid: pid, el: el})
		} else {
			coreIdx = append(coreIdx, i)
		}
	}
	if len(ambs) < 2 {
		return nil, newErr(ErrKindInsufficientSatellites, "fewer than 2 ambiguities tracked, cannot form a double difference")
	}
	sort.Slice(ambs, func(i, j int) bool { return ambs[i].el > ambs[j].el })
	ref := ambs[0]
	rest := ambs[1:]

	nDD := len(rest)
	// D maps the SD ambiguity subvector (ref first, then rest, matching
	// the order ambs was built in) to DD ambiguities against ref:
	// dd_k = a_rest[k] - a_ref.
	subIdx := make([]int, 0, nDD+1)
	subIdx = append(subIdx, ref.idx)
	for _, e := range rest {
		subIdx = append(subIdx, e.idx)
	}
	nSub := len(subIdx)
	d := NewMatrix(nDD, nSub)
	for k := 0; k < nDD; k++ {
		d.Set(k, 0, -1.0)  // -a_ref
		d.Set(k, k+1, 1.0) // +a_rest[k]
	}

	qSub := NewMatrix(nSub, nSub)
	for i, gi := range subIdx {
		for j, gj := range subIdx {
			qSub.Set(i, j, p.At(gi, gj))
		}
	}
	aSub := make([]float64, nSub)
	for i, gi := range subIdx {
		aSub[i] = x[gi]
	}

	qaa := MatMul(MatMul(d, qSub), d.Transpose())
	aDD := MatVec(d, aSub)

	candidates, s, err := lambdaEstimate(nDD, 2, aDD, qaa.Data)
	if err != nil {
		return nil, err
	}
	best := candidates[0]

	qaaInv, err := CholeskyInverse(qaa)
	if err != nil {
		return nil, wrapErr(ErrKindSingularMatrix, err, "DD ambiguity covariance not invertible")
	}
	resid := subVec(aDD, best)
	gain := MatVec(qaaInv, resid)

	result := &FixResult{
		RefSat:    ref.pid.SV,
		Fixed:     map[ParamID]float64{},
		Core:      map[ParamID]float64{},
		BestSumSq: s[0],
		NextSumSq: s[1],
	}
	result.Fixed[ref.pid] = x[ref.idx]
	for k, e := range rest {
		result.Fixed[e.pid] = x[ref.idx] + best[k]
	}

	if len(coreIdx) > 0 {
		qCoreAmb := NewMatrix(len(coreIdx), nSub)
		for i, gi := range coreIdx {
			for j, gj := range subIdx {
				qCoreAmb.Set(i, j, p.At(gi, gj))
			}
		}
		qCoreAmbDD := MatMul(qCoreAmb, d.Transpose())
		adjust := MatVec(qCoreAmbDD, gain)
		for i, gi := range coreIdx {
			result.Core[params[gi]] = x[gi] - adjust[i]
		}
	}
	return result, nil
}
