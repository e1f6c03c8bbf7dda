package core

import "sort"

// Composer assembles the stacked design matrix H, measurement vector z,
// weight matrix W, and the Phi/Q process-noise blocks from a fixed list of
// Contributors, against one epoch. Grounded one-to-one on GPSTk's
// EquationComposer (original_source/POD/src/GPSProcessing/EquationComposer.cpp):
// Prepare, updateH, updatePhi, updateQ, updateW, updateMeas there correspond
// directly to the methods below.
//
// Unlike the original's mutable running column accumulator threaded through
// each contributor call, each contributor writes into its own scratch block
// starting at column 0, and Composer scatters that block to the columns of
// the contributor's parameters in the sorted parameter list — contributors
// never see or mutate shared cursor state.
type Composer struct {
	Contributors []Contributor
	MeasOrder    []MeasurementType // the row-block order for this solution's observable set

	params   []ParamID
	offsets  map[ParamID]int
	ownerOf  map[ParamID]Contributor
	nmeasRow int
}

func NewComposer(contributors []Contributor, measOrder []MeasurementType) *Composer {
	return &Composer{Contributors: contributors, MeasOrder: measOrder}
}

// Prepare lets every contributor observe the epoch, then unions and sorts
// the full parameter list and assigns each parameter's column offset.
// Grounded on EquationComposer::Prepare's ambiguity-set union, generalized
// to every contributor's parameter set (not only ambiguities), since this
// package's position/clock/tropo/bias contributors can also vary their
// parameter count across epochs (inter-system bias set, enabled
// constellations).
func (c *Composer) Prepare(epoch *EpochRecord) {
	for _, ctr := range c.Contributors {
		ctr.Prepare(epoch)
	}
	var all []ParamID
	for _, ctr := range c.Contributors {
		all = append(all, ctr.Parameters(epoch)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })
	c.params = all
	c.offsets = make(map[ParamID]int, len(all))
	c.ownerOf = make(map[ParamID]Contributor, len(all))
	for i, p := range all {
		c.offsets[p] = i
	}
	for _, ctr := range c.Contributors {
		for _, p := range ctr.Parameters(epoch) {
			c.ownerOf[p] = ctr
		}
	}
	c.nmeasRow = len(c.MeasOrder) * len(epoch.Satellites)
}

// Params returns the sorted parameter list assigned by the most recent
// Prepare call.
func (c *Composer) Params() []ParamID { return c.params }

// NumState returns the number of state vector columns for the most
// recently prepared epoch.
func (c *Composer) NumState() int { return len(c.params) }

// NumMeasurements returns the number of stacked measurement rows
// (len(MeasOrder) * satellite count) for the most recently prepared epoch.
func (c *Composer) NumMeasurements() int { return c.nmeasRow }

// UpdateH builds the full design matrix: rows stacked one measurement-type
// block at a time (outer loop types, inner loop satellites, matching the
// teacher's PPPResidual row order), columns one contributor at a time at
// its assigned offset. Grounded on EquationComposer::updateH's per-equation
// dispatch loop.
func (c *Composer) UpdateH(epoch *EpochRecord) *Matrix {
	h := NewMatrix(c.nmeasRow, len(c.params))
	// offsets partitions c.params by owning contributor's contiguous block,
	// since Prepare assigns parameters in sorted (not per-contributor) order
	// a contributor's columns may not be contiguous; UpdateH is instead
	// driven per-parameter below rather than per-contributor block.
	for _, ctr := range c.Contributors {
		ctrParams := ctr.Parameters(epoch)
		if len(ctrParams) == 0 {
			continue
		}
		// Build a scratch H for this contributor's own compact column block,
		// then scatter each column into its true sorted offset. This keeps
		// each Contributor's UpdateH free of any knowledge of other
		// contributors' column placement, matching the Contributor
		// interface's contract (UpdateH writes starting at colStart across
		// its own ParameterCount(epoch) contiguous columns).
		scratch := NewMatrix(c.nmeasRow, len(ctrParams))
		ctr.UpdateH(epoch, c.MeasOrder, scratch, 0)
		for j, p := range ctrParams {
			off, ok := c.offsets[p]
			if !ok {
				continue
			}
			for row := 0; row < c.nmeasRow; row++ {
				h.Set(row, off, scratch.At(row, j))
			}
		}
	}
	return h
}

// UpdatePhi builds the block-diagonal state-transition matrix.
func (c *Composer) UpdatePhi(epoch *EpochRecord) *Matrix {
	phi := Eye(len(c.params))
	c.scatterDiagonal(epoch, phi, func(ctr Contributor, m *Matrix, off int) {
		ctr.UpdatePhi(epoch, m, off)
	})
	return phi
}

// UpdateQ builds the block-diagonal process-noise matrix.
func (c *Composer) UpdateQ(epoch *EpochRecord) *Matrix {
	q := NewMatrix(len(c.params), len(c.params))
	c.scatterDiagonal(epoch, q, func(ctr Contributor, m *Matrix, off int) {
		ctr.UpdateQ(epoch, m, off)
	})
	return q
}

// scatterDiagonal runs a per-contributor diagonal-writing callback against
// a contributor-local scratch block, then copies the diagonal entries into
// dst at each parameter's true sorted offset — the same per-parameter
// scatter UpdateH uses, since a contributor's own ParameterCount columns
// may land at non-contiguous offsets in the sorted global layout.
func (c *Composer) scatterDiagonal(epoch *EpochRecord, dst *Matrix, apply func(Contributor, *Matrix, int)) {
	for _, ctr := range c.Contributors {
		ctrParams := ctr.Parameters(epoch)
		n := len(ctrParams)
		if n == 0 {
			continue
		}
		scratch := NewMatrix(n, n)
		apply(ctr, scratch, 0)
		for j, p := range ctrParams {
			off, ok := c.offsets[p]
			if !ok {
				continue
			}
			dst.Set(off, off, scratch.At(j, j))
		}
	}
}

// UpdateMeasurement stacks the prefit residual vector z in the same row
// order UpdateH uses.
func (c *Composer) UpdateMeasurement(epoch *EpochRecord) []float64 {
	z := make([]float64, c.nmeasRow)
	row := 0
	for _, mt := range c.MeasOrder {
		for _, sat := range epoch.Satellites {
			z[row] = sat.Prefit[mt]
			row++
		}
	}
	return z
}

// UpdateWeight builds the diagonal weight matrix, preferring a
// satellite's per-epoch override (SatObservation.Weight) over the static
// factor table, and returning ErrKindUnknownMeasurementType if neither is
// available for some row's type — grounded on
// EquationComposer::updateW's TypeID::weight-then-fallback lookup.
func (c *Composer) UpdateWeight(epoch *EpochRecord) (*Matrix, error) {
	w := NewMatrix(c.nmeasRow, c.nmeasRow)
	row := 0
	for _, mt := range c.MeasOrder {
		for _, sat := range epoch.Satellites {
			var factor float64
			switch {
			case sat.Weight != nil:
				factor = *sat.Weight
			default:
				f, ok := WeightFactor(mt)
				if !ok {
					return nil, newErr(ErrKindUnknownMeasurementType,
						"no weight factor configured for %s (sat %s)", mt, sat.SV)
				}
				factor = f
			}
			w.Set(row, row, factor)
			row++
		}
	}
	return w, nil
}

// InitState seeds state/cov for every prepared parameter not already
// present in store, delegating to each parameter's owning contributor.
// Parameters already in store are left untouched — the caller (Kalman
// driver) is responsible for copying persisted values in before calling
// this, so InitState only needs to fill genuinely new columns.
func (c *Composer) InitState(epoch *EpochRecord, store map[ParamID]*ParamState, state []float64, cov *Matrix) {
	for _, ctr := range c.Contributors {
		ctrParams := ctr.Parameters(epoch)
		n := len(ctrParams)
		if n == 0 {
			continue
		}
		scratchState := make([]float64, n)
		scratchCov := NewMatrix(n, n)
		ctr.InitState(epoch, scratchState, scratchCov, 0)
		for j, p := range ctrParams {
			if _, exists := store[p]; exists {
				continue // persistent store already has this parameter
			}
			off, ok := c.offsets[p]
			if !ok {
				continue
			}
			state[off] = scratchState[j]
			cov.Set(off, off, scratchCov.At(j, j))
		}
	}
}

// AmbiguitySet returns the active (sv, arc) set from the contributor
// implementing AmbiguityDeclaring, or nil if none is configured — the
// Kalman driver uses this to decide whether enough ambiguities are tracked
// to invoke the LAMBDA resolver (spec.md §4.5's >=5 threshold).
func (c *Composer) AmbiguitySet() map[ArcKey]bool {
	for _, ctr := range c.Contributors {
		if ad, ok := ctr.(AmbiguityDeclaring); ok {
			return ad.AmbiguitySet()
		}
	}
	return nil
}
