package core

// Speed of light and GPS L1/L2 carrier frequencies (Hz), matching the
// teacher's CLIGHT/FREQ1/FREQ2 constants (common.go).
const (
	speedOfLight = 299792458.0
	freqL1       = 1575.42e6
	freqL2       = 1227.60e6
)

func wavelength(freq float64) float64 { return speedOfLight / freq }

// AmbiguityContributor owns one carrier-phase ambiguity parameter per
// tracked (satellite, arc) pair (spec.md §3/§4.2: "Ambiguities | N per
// (sv, arc) | lambda in the phase-block row of the matching satellite,
// zero elsewhere"). A cycle slip ends an arc and starts a new one with a
// freshly seeded ambiguity; spec.md §4.1 models an active arc as
// PhaseAmbiguityModel (constant until a slip, then reinitialized).
//
// Grounded on GPSTk's AmbiguitiesEquations (PppFloatSolution.cpp) and the
// teacher's per-satellite AmbC/slip bookkeeping (types.go, ppp.go
// DetectSlp_*).
type AmbiguityContributor struct {
	Wavelength map[MeasurementType]float64 // phase type -> carrier wavelength (m)

	arcs   map[SatID]int // current arc id per satellite
	models map[ArcKey]*PhaseAmbiguityModel
	active map[ArcKey]bool
}

func NewAmbiguityContributor() *AmbiguityContributor {
	return &AmbiguityContributor{
		Wavelength: map[MeasurementType]float64{
			PhaseL1: wavelength(freqL1),
			PhaseL2: wavelength(freqL2),
			PhaseIF: wavelength(freqL1), // ionosphere-free combination reported in L1-equivalent cycles
			PhaseSF: wavelength(freqL1),
		},
		arcs:   map[SatID]int{},
		models: map[ArcKey]*PhaseAmbiguityModel{},
		active: map[ArcKey]bool{},
	}
}

func (c *AmbiguityContributor) Name() string { return "ambiguities" }

func (c *AmbiguityContributor) MeasurementTypes() []MeasurementType { return nil }

// Prepare advances the per-satellite arc id on a detected cycle slip,
// seeding a fresh PhaseAmbiguityModel for the new arc, and rebuilds the
// active set from this epoch's satellites' current arcs — mirroring
// EquationComposer::Prepare's union of the ambiguity set over the epoch's
// satellites.
func (c *AmbiguityContributor) Prepare(epoch *EpochRecord) {
	c.active = map[ArcKey]bool{}
	for i := range epoch.Satellites {
		sat := &epoch.Satellites[i]
		if sat.Slip {
			c.arcs[sat.SV]++
			logEpoch(epoch).WithField("sv", sat.SV.String()).WithField("arc", c.arcs[sat.SV]).
				Info("cycle slip: reinitializing ambiguity arc")
		}
		sat.ArcID = c.arcs[sat.SV]
		key := ArcKey{SV: sat.SV, Arc: sat.ArcID}
		m, ok := c.models[key]
		if !ok {
			m = &PhaseAmbiguityModel{}
			c.models[key] = m
		}
		m.slipped = sat.Slip
		c.active[key] = true
	}
}

func (c *AmbiguityContributor) AmbiguitySet() map[ArcKey]bool { return c.active }

func (c *AmbiguityContributor) Parameters(epoch *EpochRecord) []ParamID {
	out := make([]ParamID, 0, len(epoch.Satellites))
	for _, sat := range epoch.Satellites {
		out = append(out, ParamID{Kind: ParamAmbiguity, SV: sat.SV, Arc: sat.ArcID})
	}
	return out
}

func (c *AmbiguityContributor) ParameterCount(epoch *EpochRecord) int { return len(epoch.Satellites) }

// UpdateH writes the carrier wavelength into the phase-block row of the
// matching satellite's column, zero everywhere else — code rows and other
// satellites' rows never carry an ambiguity term.
func (c *AmbiguityContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	for colIdx := range epoch.Satellites {
		row := 0
		for _, mt := range measOrder {
			base := mt.Prefit()
			for i := range epoch.Satellites {
				if i == colIdx && base.IsPhase() {
					if lam, ok := c.Wavelength[base]; ok {
						h.Set(row, colStart+colIdx, lam)
					}
				}
				row++
			}
		}
	}
}

func (c *AmbiguityContributor) UpdatePhi(epoch *EpochRecord, phi *Matrix, offset int) {
	for i, sat := range epoch.Satellites {
		key := ArcKey{SV: sat.SV, Arc: sat.ArcID}
		phi.Set(offset+i, offset+i, c.models[key].Phi())
	}
}

func (c *AmbiguityContributor) UpdateQ(epoch *EpochRecord, q *Matrix, offset int) {
	for i, sat := range epoch.Satellites {
		key := ArcKey{SV: sat.SV, Arc: sat.ArcID}
		q.Set(offset+i, offset+i, c.models[key].Q())
	}
}

// InitState seeds a brand-new ambiguity from the single-frequency
// pseudorange-minus-phase estimate when available, falling back to zero;
// variance is kept wide, matching the teacher's VAR_BIAS seeding in
// initx for newly tracked ambiguities.
func (c *AmbiguityContributor) InitState(epoch *EpochRecord, state []float64, cov *Matrix, offset int) {
	for i, sat := range epoch.Satellites {
		seed := 0.0
		if code, ok := sat.Prefit[CodeL1]; ok {
			if phase, ok2 := sat.Prefit[PhaseL1]; ok2 {
				lam := c.Wavelength[PhaseL1]
				seed = (code - phase) / lam
			}
		}
		state[offset+i] = seed
		cov.Set(offset+i, offset+i, SQR(60.0))
	}
}
