package core

import "math"

// MappingFunction returns the elevation-dependent scalar mapping zenith
// tropospheric delay to slant delay. Computing a high-fidelity mapping
// function (Niell, GMF, VMF) is an upstream pre-processor's job per
// spec.md §1's Non-goals; this contributor accepts one as a dependency so a
// caller can inject a precise implementation, defaulting to the simple
// cosecant mapping (1/sin(el)) when none is supplied — adequate above the
// usual 7-10 degree elevation mask and a direct simplification of the
// teacher's TropModelPrec (ppp.go), which differs only in also carrying a
// horizontal-gradient term this contributor's spec scope (ZTD-only,
// TROPOPT_EST not TROPOPT_ESTG) does not need.
type MappingFunction func(elevation float64) float64

func defaultMappingFunction(elevation float64) float64 {
	s := math.Sin(elevation)
	if s < 0.05 {
		s = 0.05 // guard against the near-horizon singularity
	}
	return 1.0 / s
}

// TropoContributor owns the zenith wet tropospheric delay (wetMap),
// modeled as a random walk per spec.md §4.1/§3 ("Tropospheric delay: random
// walk with configured spectral density"). Grounded on the teacher's
// UpdateTropPPP (ppp.go).
type TropoContributor struct {
	SpectralDensity float64
	MappingFunc     MappingFunction

	model *TropoRandomWalkModel
}

func NewTropoContributor(spectralDensity float64) *TropoContributor {
	return &TropoContributor{
		SpectralDensity: spectralDensity,
		MappingFunc:     defaultMappingFunction,
		model:           NewTropoRandomWalkModel(spectralDensity),
	}
}

func (c *TropoContributor) Name() string { return "troposphere" }

func (c *TropoContributor) MeasurementTypes() []MeasurementType { return nil }

func (c *TropoContributor) Parameters(*EpochRecord) []ParamID {
	return []ParamID{{Kind: ParamTropoWet}}
}

func (c *TropoContributor) ParameterCount(*EpochRecord) int { return 1 }

func (c *TropoContributor) Prepare(epoch *EpochRecord) { c.model.Prepare(SatID{}, epoch) }

func (c *TropoContributor) UpdateH(epoch *EpochRecord, measOrder []MeasurementType, h *Matrix, colStart int) {
	nsat := len(epoch.Satellites)
	row := 0
	for range measOrder {
		for i := 0; i < nsat; i++ {
			h.Set(row, colStart, c.MappingFunc(epoch.Satellites[i].Elevation))
			row++
		}
	}
}

func (c *TropoContributor) UpdatePhi(_ *EpochRecord, phi *Matrix, offset int) {
	phi.Set(offset, offset, c.model.Phi())
}

func (c *TropoContributor) UpdateQ(_ *EpochRecord, q *Matrix, offset int) {
	q.Set(offset, offset, c.model.Q())
}

func (c *TropoContributor) InitState(_ *EpochRecord, state []float64, cov *Matrix, offset int) {
	state[offset] = 2.3 // m; a typical zenith wet delay seed
	cov.Set(offset, offset, SQR(0.6))
}
