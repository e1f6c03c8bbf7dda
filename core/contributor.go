package core

// Contributor is the C2 contract: each contributor owns a subset of state
// parameters and contributes rows/columns to H, Phi, Q, and seeds initial
// state for parameters it introduces. Grounded one-to-one on GPSTk's
// EquationBase-derived classes (PositionEquations, ClockBiasEquations,
// TropoEquations, InterSystemBias, InterFrequencyBiases, AmbiguitiesEquations,
// IonoEquations in original_source) and the teacher's per-concern Update*PPP
// functions in ppp.go.
//
// Per spec.md §9's "mutable accumulator" design note, a Contributor never
// advances a shared column offset itself — UpdateH/UpdatePhi/UpdateQ/InitState
// are all given the offset to write at (the composer passes 0 into a scratch
// block and scatters it to the contributor's sorted columns afterwards).
type Contributor interface {
	// Name identifies the contributor for logging/diagnostics.
	Name() string

	// MeasurementTypes lists the measurement types this contributor expects
	// rows for (most contributors share the composer's epoch-wide list;
	// this exists so a future contributor could restrict itself, e.g. code
	// only). May be empty.
	MeasurementTypes() []MeasurementType

	// Parameters lists the ParamIDs active for epoch, in this contributor's
	// own preferred order (the composer re-sorts the union via ParamID.Less
	// before assigning columns).
	Parameters(epoch *EpochRecord) []ParamID

	// ParameterCount is len(Parameters(epoch)). The composer sizes its
	// blocks from Parameters itself, which it calls once per Update step,
	// so Parameters must return the same list for every call within an
	// epoch.
	ParameterCount(epoch *EpochRecord) int

	// Prepare lets the contributor observe the epoch once before any
	// UpdateX call: update stochastic-model time differences, detect arc
	// changes, and (for the ambiguity contributor) refresh the tracked
	// (sv, arc) set.
	Prepare(epoch *EpochRecord)

	// UpdateH writes this contributor's columns into h, starting at
	// colStart, for every row in the composer's measurement-type/satellite
	// row order (measOrder names the row block order).
	UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int)

	// UpdatePhi/UpdateQ write this contributor's diagonal block into phi/q,
	// starting at offset.
	UpdatePhi(epoch *EpochRecord, phi *Matrix, offset int)
	UpdateQ(epoch *EpochRecord, q *Matrix, offset int)

	// InitState writes the initial value/variance for parameters this
	// contributor introduces that aren't already present in the persistent
	// store, starting at offset.
	InitState(epoch *EpochRecord, state []float64, cov *Matrix, offset int)
}

// AmbiguityDeclaring is satisfied by the single ambiguity contributor,
// which additionally tracks the active (sv, arc) set the composer unions
// across contributors (spec.md §4.3's Prepare step).
type AmbiguityDeclaring interface {
	Contributor
	AmbiguitySet() map[ArcKey]bool
}
