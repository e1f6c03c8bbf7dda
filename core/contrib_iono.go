package core

// ionoGamma is the squared frequency ratio (f1/f2)^2 relating L1 and L2
// ionospheric group delay, matching the teacher's GAMMA_GPS/GAMMA_GLO
// constants (common.go): L2's delay is gamma times L1's.
const ionoGamma = 1.646944444 // (1575.42/1227.60)^2, GPS L1/L2

// IonoContributor owns one per-satellite slant ionospheric delay
// parameter (spec.md §3/§4.2: "Ionosphere | per-satellite slant delay |
// +1 for L1 phase/code, -gamma for L2, in the matching satellite row
// only"). Only meaningful when the composer is *not* using an
// ionosphere-free combination (CodeIF/PhaseIF); grounded on GPSTk's
// IonoEquations/IonoStochasticModel (PppFloatSolution.cpp) and the
// teacher's UpdateIonoPPP (ppp.go), both of which carry a random-walk
// slant ionospheric delay per satellite when uncombined L1/L2
// observables are used.
type IonoContributor struct {
	SpectralDensity float64

	models map[SatID]*RandomWalkModel
	active map[SatID]bool
}

func NewIonoContributor(spectralDensity float64) *IonoContributor {
	return &IonoContributor{
		SpectralDensity: spectralDensity,
		models:          map[SatID]*RandomWalkModel{},
		active:          map[SatID]bool{},
	}
}

func (c *IonoContributor) Name() string { return "ionosphere" }

func (c *IonoContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *IonoContributor) Parameters(epoch *EpochRecord) []ParamID {
	out := make([]ParamID, 0, len(epoch.Satellites))
	for _, sat := range epoch.Satellites {
		out = append(out, ParamID{Kind: ParamIono, SV: sat.SV})
	}
	return out
}

func (c *IonoContributor) ParameterCount(epoch *EpochRecord) int { return len(epoch.Satellites) }

func (c *IonoContributor) Prepare(epoch *EpochRecord) {
	for _, sat := range epoch.Satellites {
		m, ok := c.models[sat.SV]
		if !ok {
			m = &RandomWalkModel{SpectralDensity: c.SpectralDensity}
			c.models[sat.SV] = m
		}
		m.Prepare(sat.SV, epoch)
		c.active[sat.SV] = true
	}
}

// UpdateH writes +1 in the L1 rows and -ionoGamma in the L2 rows of the
// matching satellite's column, zero in every other row — the teacher's
// PPPResidual fills this identical pattern for IONOOPT_UC1/IONOOPT_UC12.
func (c *IonoContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	for colIdx := range epoch.Satellites {
		row := 0
		for _, mt := range measOrder {
			base := mt.Prefit()
			for i := range epoch.Satellites {
				if i == colIdx {
					switch base {
					case CodeL1, PhaseL1:
						h.Set(row, colStart+colIdx, 1.0)
					case CodeL2, PhaseL2:
						h.Set(row, colStart+colIdx, -ionoGamma)
					}
				}
				row++
			}
		}
	}
}

func (c *IonoContributor) UpdatePhi(epoch *EpochRecord, phi *Matrix, offset int) {
	for i, sat := range epoch.Satellites {
		phi.Set(offset+i, offset+i, c.models[sat.SV].Phi())
	}
}

func (c *IonoContributor) UpdateQ(epoch *EpochRecord, q *Matrix, offset int) {
	for i, sat := range epoch.Satellites {
		q.Set(offset+i, offset+i, c.models[sat.SV].Q())
	}
}

func (c *IonoContributor) InitState(epoch *EpochRecord, state []float64, cov *Matrix, offset int) {
	for i := range epoch.Satellites {
		state[offset+i] = 0.0
		cov.Set(offset+i, offset+i, SQR(0.5))
	}
}
