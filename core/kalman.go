package core

import "math"

// KalmanDriver is the C4 component: one information-form extended Kalman
// filter cycle per epoch, driven by a Composer, against a persistent
// sparse parameter store. Grounded on
// original_source/POD/src/GPSProcessing/KalmanSolver.cpp's Process method
// (predict/update in information form via inverseChol) and the teacher's
// classical gain-form Filter (common.go) for the surrounding per-epoch
// bookkeeping shape (predict, build H/z/W, update, store).
//
// One KalmanDriver instance serves exactly one receiver (spec.md §5): all
// of its mutable state (Store, last solution) is instance-local, so
// concurrent estimator instances never share anything beyond the
// package-level read-only weight table and the process-wide Metrics
// registry.
type KalmanDriver struct {
	Composer *Composer
	Config   Config
	Metrics  *Metrics
	Resolver *AmbiguityResolver // optional; nil disables LAMBDA fixing

	Store map[ParamID]*ParamState

	lastParams   []ParamID
	lastState    []float64
	lastCov      *Matrix
	lastPostfit  []float64
	lastWeight   *Matrix
	lastMeasRows []measRow
	lastEpoch    *EpochRecord
	lastFix      *FixResult
	valid        bool
}

type measRow struct {
	Type MeasurementType
	SV   SatID
}

func NewKalmanDriver(composer *Composer, cfg Config, metrics *Metrics) *KalmanDriver {
	return &KalmanDriver{
		Composer: composer,
		Config:   cfg,
		Metrics:  metrics,
		Store:    map[ParamID]*ParamState{},
	}
}

// Process runs one forward epoch cycle: predict, compose, update, reject
// the worst outlier at most once by default, resolve ambiguities, persist.
func (k *KalmanDriver) Process(epoch *EpochRecord) error {
	return k.ProcessCycle(epoch)
}

// ProcessCycle is the body of Process, also called directly by the C6
// smoother's repeated forward/backward re-passes; the per-cycle postfit
// thresholds that gate which satellites even reach this driver live
// entirely in the smoother's own pre-pass filter (checkLimits, grounded on
// KalmanSolverFB::checkLimits) — by the time an epoch reaches ProcessCycle
// its own rejection gate is cycle-independent (spec.md §4.4's fixed
// sigma/sigmaPos > 3 ratio test).
func (k *KalmanDriver) ProcessCycle(epoch *EpochRecord) error {
	k.valid = false
	work := epoch.clone()

	sol, err := k.solveEpoch(work, false)
	if err != nil {
		k.Metrics.EpochsInvalid.Inc()
		return err
	}

	minSat := k.Config.MinSatellites
	if minSat <= 0 {
		minSat = numCoreParams(sol.params)
	}
	if len(work.Satellites) < minSat {
		k.Metrics.EpochsInvalid.Inc()
		return newErr(ErrKindInsufficientSatellites,
			"%d satellites, below required minimum %d", len(work.Satellites), minSat)
	}

	for {
		reject, sigmaVal, sigmaPos := checkRatio(sol)
		if !reject {
			k.accept(work, sol)
			return nil
		}

		offender, found := worstOffender(sol.postfit, sol.rows, k.Composer.MeasOrder)
		if !found {
			k.accept(work, sol)
			return nil
		}
		logEpoch(work).WithFields(map[string]interface{}{
			"sv":       offender.String(),
			"sigma":    sigmaVal,
			"sigmaPos": sigmaPos,
		}).Warn("rejecting satellite: postfit sigma/sigmaPos ratio exceeds 3")
		k.Metrics.SatellitesReject.Inc()

		work = dropSatellite(work, offender)
		if len(work.Satellites) == 0 {
			k.Metrics.EpochsInvalid.Inc()
			return newErr(ErrKindInsufficientSatellites, "no satellites left after rejection")
		}

		// If rejection pushed the satellite count below the minimum,
		// reinitialize the filter state for this epoch rather than carry a
		// now-undersized solve forward (spec.md §4.4/§8).
		fresh := len(work.Satellites) < minSat
		sol, err = k.solveEpoch(work, fresh)
		if err != nil {
			k.Metrics.EpochsInvalid.Inc()
			return err
		}
		if fresh || !k.Config.AllowMultiPassRejection {
			// Single-pass: accept whatever the reduced satellite set yields,
			// matching the unconditional break the original takes after its
			// first reject-and-recheck (SPEC_FULL.md §4.4, Open Question 1).
			k.accept(work, sol)
			return nil
		}
	}
}

// numCoreParams counts the non-ambiguity parameters in params — the
// "#unknowns" spec.md §4.4/§6 means by MinSatellites' zero-value default,
// matching original_source/POD/src/GPSProcessing/KalmanSolver.cpp's
// currentUnknowns() (core state only, excluding the per-satellite
// ambiguity block counted separately as amb_num).
func numCoreParams(params []ParamID) int {
	n := 0
	for _, p := range params {
		if p.Kind != ParamAmbiguity {
			n++
		}
	}
	return n
}

type epochSolution struct {
	params  []ParamID
	state   []float64
	cov     *Matrix
	postfit []float64
	weight  *Matrix
	rows    []measRow
}

// solveEpoch runs one predict+information-form-update pass against work,
// with no outlier handling — grounded on KalmanSolver::Process's inner
// predict/measUpdate sequence. fresh discards the persistent store for
// this solve only, reinitializing every parameter via InitState, matching
// the "reinitialize the filter state for this epoch" fallback spec.md
// §4.4 names for when rejection leaves too few satellites.
func (k *KalmanDriver) solveEpoch(work *EpochRecord, fresh bool) (epochSolution, error) {
	k.Composer.Prepare(work)
	n := k.Composer.NumState()
	if n == 0 {
		return epochSolution{}, newErr(ErrKindInsufficientSatellites, "no parameters to solve")
	}
	params := k.Composer.Params()
	xPrior, pPrior := k.priorState(work, params, n, fresh)

	phi := k.Composer.UpdatePhi(work)
	q := k.Composer.UpdateQ(work)
	xPred := MatVec(phi, xPrior)
	pPred := MatMul(MatMul(phi, pPrior), phi.Transpose())
	pPred.AddInPlace(q)

	pPredInv, err := CholeskyInverse(pPred)
	if err != nil {
		k.Metrics.SingularMatrix.Inc()
		logEpoch(work).WithError(err).Warn("predicted covariance not invertible")
		return epochSolution{}, wrapErr(ErrKindSingularMatrix, err, "predicted covariance not invertible")
	}

	h := k.Composer.UpdateH(work)
	z := k.Composer.UpdateMeasurement(work)
	w, err := k.Composer.UpdateWeight(work)
	if err != nil {
		return epochSolution{}, err
	}

	ht := h.Transpose()
	htw := MatMul(ht, w)
	info := MatMul(htw, h)
	info.AddInPlace(pPredInv)

	p, err := CholeskyInverse(info)
	if err != nil {
		k.Metrics.SingularMatrix.Inc()
		logEpoch(work).WithError(err).Warn("information matrix not invertible")
		return epochSolution{}, wrapErr(ErrKindSingularMatrix, err, "information matrix not invertible")
	}
	rhs := addVec(MatVec(htw, z), MatVec(pPredInv, xPred))
	x := MatVec(p, rhs)
	postfit := subVec(z, MatVec(h, x))

	return epochSolution{
		params:  params,
		state:   x,
		cov:     p,
		postfit: postfit,
		weight:  w,
		rows:    measRowsFor(k.Composer.MeasOrder, work),
	}, nil
}

// accept persists sol as the current epoch's solution and triggers
// ambiguity resolution when enough ambiguities are tracked. When the
// resolver produces a fix, its core-parameter adjustment is folded into
// the state before persistence — grounded on KalmanSolver.cpp's Process,
// which calls fixAmbiguities (mutating solution's core entries in place)
// before storeKfState persists it. The ambiguity slots themselves are left
// untouched (spec.md §9, Open Question 2): only Core, never Fixed, is
// merged back.
func (k *KalmanDriver) accept(work *EpochRecord, sol epochSolution) {
	if ambSet := k.Composer.AmbiguitySet(); k.Resolver != nil && len(ambSet) >= 5 {
		fix, err := k.Resolver.Resolve(sol.params, sol.state, sol.cov, work)
		if err == nil {
			k.lastFix = fix
			k.Metrics.AmbiguitiesFixed.Add(float64(len(fix.Fixed)))
			mergeCoreFix(sol.params, sol.state, fix)
		} else if kind, ok := KindOf(err); ok && kind == ErrKindSingularMatrix {
			k.Metrics.SingularMatrix.Inc()
		}
	}

	k.storeKalman(sol.params, sol.state, sol.cov)
	k.lastParams = sol.params
	k.lastState = sol.state
	k.lastCov = sol.cov
	k.lastPostfit = sol.postfit
	k.lastWeight = sol.weight
	k.lastMeasRows = sol.rows
	k.lastEpoch = work
	k.valid = true
	k.Metrics.EpochsProcessed.Inc()
	k.Metrics.SatellitesUsed.Set(float64(len(work.Satellites)))
	k.Metrics.PostfitSigma.Set(weightedSigma(sol.postfit, sol.weight))
}

// mergeCoreFix writes fix.Core's adjusted values into state at each core
// parameter's column, leaving every other column (including the ambiguity
// columns in fix.Fixed) untouched.
func mergeCoreFix(params []ParamID, state []float64, fix *FixResult) {
	if len(fix.Core) == 0 {
		return
	}
	for i, p := range params {
		if v, ok := fix.Core[p]; ok {
			state[i] = v
		}
	}
}

// priorState builds the prior state vector and covariance for the
// composer's currently prepared parameter set, restoring persisted values
// where present and seeding brand-new parameters via each owning
// contributor's InitState. fresh bypasses the persistent store entirely,
// so every parameter is seeded as though newly tracked.
func (k *KalmanDriver) priorState(epoch *EpochRecord, params []ParamID, n int, fresh bool) ([]float64, *Matrix) {
	x := make([]float64, n)
	cov := NewMatrix(n, n)
	store := k.Store
	if fresh {
		store = map[ParamID]*ParamState{}
	} else {
		idx := make(map[ParamID]int, n)
		for i, p := range params {
			idx[p] = i
		}
		for _, p := range params {
			if st, ok := k.Store[p]; ok {
				i := idx[p]
				x[i] = st.Value
				for q, c := range st.Cov {
					if j, ok := idx[q]; ok {
						cov.Set(i, j, c)
					}
				}
			}
		}
	}
	k.Composer.InitState(epoch, store, x, cov)
	return x, cov
}

// storeKalman writes the accepted solution back into the persistent
// sparse store, one ParamState per parameter with its full covariance row
// — grounded on EquationComposer::storeKfState. Parameters absent from this
// epoch stay in the store with their value and own variance (their
// cross-covariances are dropped), so a parameter that reappears later is
// restored from there.
func (k *KalmanDriver) storeKalman(params []ParamID, x []float64, p *Matrix) {
	live := make(map[ParamID]bool, len(params))
	for i, pid := range params {
		live[pid] = true
		row := make(map[ParamID]float64, len(params))
		for j, qid := range params {
			row[qid] = p.At(i, j)
		}
		k.Store[pid] = &ParamState{Value: x[i], Cov: row}
	}
	for pid, st := range k.Store {
		if !live[pid] {
			st.Cov = map[ParamID]float64{pid: st.Cov[pid]}
		}
	}
}

func measRowsFor(order []MeasurementType, epoch *EpochRecord) []measRow {
	rows := make([]measRow, 0, len(order)*len(epoch.Satellites))
	for _, mt := range order {
		for _, sat := range epoch.Satellites {
			rows = append(rows, measRow{Type: mt, SV: sat.SV})
		}
	}
	return rows
}

// checkRatio computes sigma = sqrt(r'Wr) over the epoch's postfit
// residuals and sigmaPos = sqrt(var(dx)+var(dy)+var(dz)) from the
// accepted covariance, and reports whether their ratio exceeds the fixed
// threshold of 3 — grounded verbatim on
// original_source/POD/src/GPSProcessing/KalmanSolver.cpp's check(): "vpv =
// res'*weigthMatrix*res; sigma = sqrt(vpv); stDev3D =
// sqrt(varX+varY+varZ); reject if sigma/stDev3D > 3". When the position
// parameters aren't tracked (sigmaPos undefined), rejection never fires.
func checkRatio(sol epochSolution) (reject bool, sigma, sigmaPos float64) {
	sigma = weightedSigma(sol.postfit, sol.weight)
	var ok bool
	sigmaPos, ok = positionSigma(sol.params, sol.cov)
	if !ok || sigmaPos <= 0 {
		return false, sigma, sigmaPos
	}
	return sigma/sigmaPos > 3.0, sigma, sigmaPos
}

// positionSigma sums the marginal variances of the three position offset
// parameters tracked in params/cov and returns their combined 3D sigma.
func positionSigma(params []ParamID, cov *Matrix) (float64, bool) {
	want := [3]ParamKind{ParamPosDX, ParamPosDY, ParamPosDZ}
	var sum float64
	found := 0
	for _, kind := range want {
		for i, p := range params {
			if p.Kind == kind {
				sum += cov.At(i, i)
				found++
				break
			}
		}
	}
	if found == 0 {
		return 0, false
	}
	return math.Sqrt(sum), true
}

// worstOffender finds the satellite with the largest-magnitude postfit
// residual among the last measurement type in the composer's row order
// (the phase residual when both code and phase are processed together) —
// grounded on KalmanSolver.cpp's reject(), whose comment explains that
// only the last @typeIds element is consulted for combined code/phase
// processing.
func worstOffender(postfit []float64, rows []measRow, measOrder []MeasurementType) (SatID, bool) {
	if len(measOrder) == 0 {
		return SatID{}, false
	}
	lastType := measOrder[len(measOrder)-1]
	var worst SatID
	var worstAbs float64
	found := false
	for i, r := range rows {
		if r.Type != lastType {
			continue
		}
		v := math.Abs(postfit[i])
		if !found || v > worstAbs {
			worstAbs = v
			worst = r.SV
			found = true
		}
	}
	return worst, found
}

func dropSatellite(epoch *EpochRecord, sv SatID) *EpochRecord {
	out := make([]SatObservation, 0, len(epoch.Satellites))
	for _, s := range epoch.Satellites {
		if s.SV != sv {
			out = append(out, s)
		}
	}
	epoch.Satellites = out
	return epoch
}

// weightedSigma computes sqrt(r'Wr) for a diagonal weight matrix w,
// matching core/metrics.go's PostfitSigma doc comment.
func weightedSigma(r []float64, w *Matrix) float64 {
	if len(r) == 0 || w == nil {
		return 0
	}
	var vpv float64
	for i, ri := range r {
		vpv += ri * ri * w.At(i, i)
	}
	return math.Sqrt(vpv)
}

// Solution returns the estimated value of p from the most recently
// accepted epoch, and whether p was part of that solution.
func (k *KalmanDriver) Solution(p ParamID) (float64, error) {
	for i, q := range k.lastParams {
		if q == p {
			return k.lastState[i], nil
		}
	}
	return 0, newErr(ErrKindUnknownParameter, "parameter %s not in last solution", p)
}

// Variance returns p's marginal variance from the most recently accepted
// epoch's covariance.
func (k *KalmanDriver) Variance(p ParamID) (float64, error) {
	for i, q := range k.lastParams {
		if q == p {
			return k.lastCov.At(i, i), nil
		}
	}
	return 0, newErr(ErrKindUnknownParameter, "parameter %s not in last solution", p)
}

// PostfitResiduals returns the postfit residual vector in the same row
// order as the composer's measurement/satellite stacking.
func (k *KalmanDriver) PostfitResiduals() []float64 { return k.lastPostfit }

// Covariance returns the full covariance matrix of the most recently
// accepted epoch.
func (k *KalmanDriver) Covariance() *Matrix { return k.lastCov }

// Params returns the parameter list (column order matching Covariance)
// of the most recently accepted epoch.
func (k *KalmanDriver) Params() []ParamID { return k.lastParams }

// Sigma returns sqrt(r'Wr) of the most recently accepted epoch's postfit
// residuals (spec.md §8's "postfit sigma" testable property).
func (k *KalmanDriver) Sigma() float64 { return weightedSigma(k.lastPostfit, k.lastWeight) }

// IsValid reports whether the most recent Process/ProcessCycle call
// produced an accepted solution.
func (k *KalmanDriver) IsValid() bool { return k.valid }

// FixedSolution returns the most recent LAMBDA fix result, if any
// ambiguity resolution has run. Per spec.md §9's Open Question 2
// decision, this never overwrites Store's ambiguity ParamStates with
// integers — it is a separate read path alongside the float solution.
func (k *KalmanDriver) FixedSolution() (*FixResult, bool) {
	if k.lastFix == nil {
		return nil, false
	}
	return k.lastFix, true
}
