package core

// ClockContributor owns the reference-constellation receiver clock bias
// (cdt). Grounded on the teacher's UpdateClkPPP (ppp.go): the clock is
// reset to white noise every epoch ("initialize every epoch for clock");
// this package models that as WhiteNoiseModel per spec.md §4.1 rather than
// the teacher's direct initx call, since the composer (not the contributor)
// owns deciding init-vs-propagate per spec.md §4.3.
type ClockContributor struct {
	ReferenceSys int
	Sigma        float64 // m; VAR_CLK-equivalent white-noise sigma

	model StochasticModel
}

func NewClockContributor(referenceSys int, sigma float64) *ClockContributor {
	return &ClockContributor{
		ReferenceSys: referenceSys,
		Sigma:        sigma,
		model:        WhiteNoiseModel{Sigma: sigma},
	}
}

func (c *ClockContributor) Name() string { return "clock" }

func (c *ClockContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *ClockContributor) Parameters(*EpochRecord) []ParamID {
	return []ParamID{{Kind: ParamClock, Sys: c.ReferenceSys}}
}

func (c *ClockContributor) ParameterCount(*EpochRecord) int { return 1 }

func (c *ClockContributor) Prepare(epoch *EpochRecord) { c.model.Prepare(SatID{}, epoch) }

// UpdateH writes 1 for every row — code and phase alike — since the
// reference clock bias enters every pseudorange and carrier-phase equation
// identically (spec.md §4.2's table: "1 for code rows, 1 for phase rows").
func (c *ClockContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	nsat := len(epoch.Satellites)
	row := 0
	for range measOrder {
		for i := 0; i < nsat; i++ {
			h.Set(row, colStart, 1.0)
			row++
		}
	}
}

func (c *ClockContributor) UpdatePhi(_ *EpochRecord, phi *Matrix, offset int) {
	phi.Set(offset, offset, c.model.Phi())
}

func (c *ClockContributor) UpdateQ(_ *EpochRecord, q *Matrix, offset int) {
	q.Set(offset, offset, c.model.Q())
}

func (c *ClockContributor) InitState(_ *EpochRecord, state []float64, cov *Matrix, offset int) {
	state[offset] = 0.0
	cov.Set(offset, offset, SQR(c.Sigma))
}
