package core

// InterFrequencyBiasContributor owns one ifb parameter per GLONASS
// frequency channel present in the solution (spec.md §3/§4.2: "Inter-
// frequency bias | ifb per GLONASS frequency channel | 1 only in rows
// whose satellite uses that channel"). Grounded on the teacher's
// UpdateDcbPPP/frequency-channel handling (ppp.go), which keeps GLONASS
// FDMA code biases separate per channel number rather than lumping them
// into the single CDMA clock/ISB slots.
type InterFrequencyBiasContributor struct {
	Channels []int // GLONASS frequency channel numbers present this session
	Sigma    float64

	models map[int]StochasticModel
}

func NewInterFrequencyBiasContributor(channels []int, sigma float64) *InterFrequencyBiasContributor {
	c := &InterFrequencyBiasContributor{
		Channels: channels,
		Sigma:    sigma,
		models:   map[int]StochasticModel{},
	}
	for _, ch := range channels {
		c.models[ch] = WhiteNoiseModel{Sigma: sigma}
	}
	return c
}

func (c *InterFrequencyBiasContributor) Name() string { return "inter-frequency-bias" }

func (c *InterFrequencyBiasContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *InterFrequencyBiasContributor) Parameters(*EpochRecord) []ParamID {
	out := make([]ParamID, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = ParamID{Kind: ParamIFB, Freq: ch}
	}
	return out
}

func (c *InterFrequencyBiasContributor) ParameterCount(*EpochRecord) int { return len(c.Channels) }

func (c *InterFrequencyBiasContributor) Prepare(epoch *EpochRecord) {
	for _, m := range c.models {
		m.Prepare(SatID{}, epoch)
	}
}

// channelOf reports the GLONASS frequency channel of sat, matching how
// UpdateDcbPPP looks up nav.Glofcn(sat) rather than indexing by PRN.
func (c *InterFrequencyBiasContributor) channelOf(sat SatObservation) (int, bool) {
	if sat.SV.Sys != SysGLO {
		return 0, false
	}
	for _, ch := range c.Channels {
		if sat.FreqChan == ch {
			return ch, true
		}
	}
	return 0, false
}

func (c *InterFrequencyBiasContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	nsat := len(epoch.Satellites)
	for colIdx, ch := range c.Channels {
		row := 0
		for range measOrder {
			for i := 0; i < nsat; i++ {
				if got, ok := c.channelOf(epoch.Satellites[i]); ok && got == ch {
					h.Set(row, colStart+colIdx, 1.0)
				}
				row++
			}
		}
	}
}

func (c *InterFrequencyBiasContributor) UpdatePhi(_ *EpochRecord, phi *Matrix, offset int) {
	for i, ch := range c.Channels {
		phi.Set(offset+i, offset+i, c.models[ch].Phi())
	}
}

func (c *InterFrequencyBiasContributor) UpdateQ(_ *EpochRecord, q *Matrix, offset int) {
	for i, ch := range c.Channels {
		q.Set(offset+i, offset+i, c.models[ch].Q())
	}
}

func (c *InterFrequencyBiasContributor) InitState(_ *EpochRecord, state []float64, cov *Matrix, offset int) {
	for i := range c.Channels {
		state[offset+i] = 0.0
		cov.Set(offset+i, offset+i, SQR(10.0))
	}
}
