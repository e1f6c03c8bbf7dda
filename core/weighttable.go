package core

// weightFactors is the immutable, process-wide default weight-factor table:
// code pseudoranges get a factor of 1.0, carrier phases 1e4 (phase is ~100x
// more precise in sigma, since weight scales with 1/sigma^2). Grounded on
// GPSTk's EquationComposer::weigthFactors map and the teacher's PPPVarianceErr
// use of a similar phase/code error-factor split in ppp.go.
//
// Per spec.md §5, this table is read-only after initialization: it is
// populated by the map literal below and optionally widened through
// SetWeightFactor from Config.WeightFactors at NewEstimator time (still
// before any epoch is processed), never mutated during a Process call.
var weightFactors = map[MeasurementType]float64{
	CodeSF:  1.0,
	CodeIF:  1.0,
	CodeL1:  1.0,
	CodeL2:  1.0,
	PhaseSF: 1.0e4,
	PhaseIF: 1.0e4,
	PhaseL1: 1.0e4,
	PhaseL2: 1.0e4,
}

// WeightFactor returns the static default weight factor for a prefit
// measurement type, and whether one is configured. The composer falls back
// to this table only when an epoch doesn't carry a per-satellite weight
// override (SatObservation.Weight).
func WeightFactor(t MeasurementType) (float64, bool) {
	v, ok := weightFactors[t.Prefit()]
	return v, ok
}

// SetWeightFactor overrides (or adds) the default factor for t. Intended to
// be called once at startup from Config, never from within Process — it is
// not goroutine-safe against concurrent Process calls on any estimator
// instance, matching the "immutable once constructed" contract in spec.md §5.
func SetWeightFactor(t MeasurementType, factor float64) {
	weightFactors[t.Prefit()] = factor
}
