package core

// PositionContributor owns the three receiver position components (dx, dy,
// dz). Grounded on GPSTk's PositionEquations and the teacher's
// UpdatePosPPP (ppp.go). The parameters are offsets from the epoch's
// nominal position (the point the prefit residuals are linearized about),
// seeded at zero: static mode never reinitializes them once seeded,
// kinematic/random-walk modes reseed or propagate per epoch.
type PositionContributor struct {
	Dynamics Dynamics
	Sigma    float64 // m; white-noise sigma or random-walk spectral-density basis

	params []ParamID
	models [3]StochasticModel
	seeded bool
}

func NewPositionContributor(dyn Dynamics, sigma float64) *PositionContributor {
	c := &PositionContributor{
		Dynamics: dyn,
		Sigma:    sigma,
		params: []ParamID{
			{Kind: ParamPosDX}, {Kind: ParamPosDY}, {Kind: ParamPosDZ},
		},
	}
	for i := range c.models {
		switch dyn {
		case DynamicsStatic:
			c.models[i] = ConstantModel{}
		case DynamicsKinematic:
			c.models[i] = WhiteNoiseModel{Sigma: sigma}
		case DynamicsRandomWalk:
			c.models[i] = &RandomWalkModel{SpectralDensity: SQR(sigma)}
		default:
			c.models[i] = ConstantModel{}
		}
	}
	return c
}

func (c *PositionContributor) Name() string { return "position" }

func (c *PositionContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *PositionContributor) Parameters(*EpochRecord) []ParamID { return c.params }

func (c *PositionContributor) ParameterCount(*EpochRecord) int { return 3 }

func (c *PositionContributor) Prepare(epoch *EpochRecord) {
	for _, m := range c.models {
		m.Prepare(SatID{}, epoch)
	}
}

// UpdateH writes, for every row, the negated line-of-sight unit vector
// component for that row's satellite, replicated across every
// measurement-type block — the teacher's PPPResidual fills exactly this
// pattern ("H[k] = -e[k]" for k<3) once per stacked residual row.
func (c *PositionContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	nsat := len(epoch.Satellites)
	row := 0
	for range measOrder {
		for i := 0; i < nsat; i++ {
			sat := epoch.Satellites[i]
			los := losUnitVector(epoch.NominalPos, sat.Azimuth, sat.Elevation)
			h.Set(row, colStart+0, -los[0])
			h.Set(row, colStart+1, -los[1])
			h.Set(row, colStart+2, -los[2])
			row++
		}
	}
}

func (c *PositionContributor) UpdatePhi(_ *EpochRecord, phi *Matrix, offset int) {
	for i, m := range c.models {
		phi.Set(offset+i, offset+i, m.Phi())
	}
}

func (c *PositionContributor) UpdateQ(_ *EpochRecord, q *Matrix, offset int) {
	for i, m := range c.models {
		q.Set(offset+i, offset+i, m.Q())
	}
}

func (c *PositionContributor) InitState(epoch *EpochRecord, state []float64, cov *Matrix, offset int) {
	for i := 0; i < 3; i++ {
		state[offset+i] = 0.0
		cov.Set(offset+i, offset+i, SQR(60.0))
	}
	c.seeded = true
}
