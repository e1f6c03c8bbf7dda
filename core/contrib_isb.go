package core

// InterSystemBiasContributor owns one cdt_sys parameter per non-reference
// constellation enabled by configuration (spec.md §3/§4.2: "receiver clock
// bias per constellation... Inter-system bias"). Grounded on the teacher's
// multi-constellation clock handling in UpdateClkPPP/IC (ppp.go), which
// keeps one clock-bias slot per system (IC(s,opt)); this contributor
// isolates the non-reference slots specifically, since the reference
// system's bias is ClockContributor's.
type InterSystemBiasContributor struct {
	ReferenceSys int
	Systems      []int // non-reference constellations present in this solution
	Sigma        float64

	models map[int]StochasticModel
}

func NewInterSystemBiasContributor(referenceSys int, systems []int, sigma float64) *InterSystemBiasContributor {
	c := &InterSystemBiasContributor{
		ReferenceSys: referenceSys,
		Sigma:        sigma,
		models:       map[int]StochasticModel{},
	}
	for _, sys := range systems {
		if sys == referenceSys {
			continue
		}
		c.Systems = append(c.Systems, sys)
		c.models[sys] = WhiteNoiseModel{Sigma: sigma}
	}
	return c
}

func (c *InterSystemBiasContributor) Name() string { return "inter-system-bias" }

func (c *InterSystemBiasContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *InterSystemBiasContributor) Parameters(*EpochRecord) []ParamID {
	out := make([]ParamID, len(c.Systems))
	for i, sys := range c.Systems {
		out[i] = ParamID{Kind: ParamISB, Sys: sys}
	}
	return out
}

func (c *InterSystemBiasContributor) ParameterCount(*EpochRecord) int { return len(c.Systems) }

func (c *InterSystemBiasContributor) Prepare(epoch *EpochRecord) {
	for _, m := range c.models {
		m.Prepare(SatID{}, epoch)
	}
}

// UpdateH writes 1 in the column for sys only in rows whose satellite
// belongs to that constellation, 0 elsewhere — spec.md §4.2's table entry
// for inter-system bias, precisely.
func (c *InterSystemBiasContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	nsat := len(epoch.Satellites)
	for colIdx, sys := range c.Systems {
		row := 0
		for range measOrder {
			for i := 0; i < nsat; i++ {
				if epoch.Satellites[i].SV.Sys == sys {
					h.Set(row, colStart+colIdx, 1.0)
				}
				row++
			}
		}
	}
}

func (c *InterSystemBiasContributor) UpdatePhi(_ *EpochRecord, phi *Matrix, offset int) {
	for i, sys := range c.Systems {
		phi.Set(offset+i, offset+i, c.models[sys].Phi())
	}
}

func (c *InterSystemBiasContributor) UpdateQ(_ *EpochRecord, q *Matrix, offset int) {
	for i, sys := range c.Systems {
		q.Set(offset+i, offset+i, c.models[sys].Q())
	}
}

func (c *InterSystemBiasContributor) InitState(_ *EpochRecord, state []float64, cov *Matrix, offset int) {
	for i := range c.Systems {
		state[offset+i] = 0.0
		cov.Set(offset+i, offset+i, SQR(30.0))
	}
}
