package core

import "time"

// StochasticModel is the C1 contract: two scalar outputs for the current
// epoch (the Phi-element state-transition coefficient, and the Q-element
// added process variance), plus a Prepare hook updating time differences
// and slip state. Grounded on the teacher's per-parameter temporal-update
// functions (UpdatePosPPP, UpdateClkPPP, UpdateTropPPP, UpdateBiasPPP in
// ppp.go), generalized into a small reusable interface per spec.md §4.1
// instead of one bespoke function per parameter kind.
type StochasticModel interface {
	// Prepare updates internal time-difference bookkeeping for sv ahead of
	// this epoch. sv is the zero SatID for parameters not tied to a
	// satellite (position, clock, troposphere).
	Prepare(sv SatID, epoch *EpochRecord)
	Phi() float64
	Q() float64
}

// ConstantModel: Phi=1, Q=0. Used for static-mode position parameters.
type ConstantModel struct{}

func (ConstantModel) Prepare(SatID, *EpochRecord) {}
func (ConstantModel) Phi() float64                { return 1.0 }
func (ConstantModel) Q() float64                  { return 0.0 }

// WhiteNoiseModel: Phi=0, Q=sigma^2. The parameter is reinitialized with
// high variance every epoch — used for the receiver clock bias, which has
// no useful dynamics to propagate (ppp.go's UpdateClkPPP calls initx every
// epoch unconditionally, which is exactly Phi=0/Q=sigma^2 applied via a
// fresh seed rather than a propagate step).
type WhiteNoiseModel struct {
	Sigma float64
}

func (WhiteNoiseModel) Prepare(SatID, *EpochRecord) {}
func (WhiteNoiseModel) Phi() float64                { return 0.0 }
func (m WhiteNoiseModel) Q() float64                { return SQR(m.Sigma) }

// RandomWalkModel: Phi=1, Q=q'*dt where dt is elapsed seconds since the
// previous epoch the model observed. SpectralDensity has units
// variance/second, matching ppp.go's UpdateTropPPP
// ("P[i] += SQR(Prn[2])*fabs(tt)").
type RandomWalkModel struct {
	SpectralDensity float64

	last time.Time
	dt   float64
}

func (m *RandomWalkModel) Prepare(_ SatID, epoch *EpochRecord) {
	if m.last.IsZero() {
		m.dt = 0
	} else {
		m.dt = epoch.Time.Sub(m.last).Seconds()
		if m.dt < 0 {
			m.dt = 0
		}
	}
	m.last = epoch.Time
}
func (m *RandomWalkModel) Phi() float64 { return 1.0 }
func (m *RandomWalkModel) Q() float64   { return m.SpectralDensity * m.dt }

// PhaseAmbiguityModel: Phi=1, Q=0, unless a cycle slip is flagged on the
// current epoch for the tracked satellite, in which case the parameter is
// treated as reinitialized (Phi=0 effectively, via the contributor's
// InitState path rather than this model's Q, mirroring ppp.go's
// UpdateBiasPPP: on slip it calls initx(...) directly instead of just
// inflating the existing P entry).
type PhaseAmbiguityModel struct {
	slipped bool
}

func (m *PhaseAmbiguityModel) Prepare(sv SatID, epoch *EpochRecord) {
	m.slipped = false
	if obs := epoch.SatByID(sv); obs != nil {
		m.slipped = obs.Slip
	}
}
func (m *PhaseAmbiguityModel) Phi() float64 {
	if m.slipped {
		return 0.0
	}
	return 1.0
}
func (m *PhaseAmbiguityModel) Q() float64 { return 0.0 }

// Slipped reports whether the most recently Prepare()d epoch flagged a
// cycle slip, so contributors can decide to reinitialize rather than
// propagate (spec.md's phase-ambiguity lifecycle: "reappearing (sv, arc)
// restores from persistent state" except across a slip boundary).
func (m *PhaseAmbiguityModel) Slipped() bool { return m.slipped }

// TropoRandomWalkModel is a RandomWalkModel keyed per receiver source
// string, supporting multi-station composition (spec.md §4.1): each
// receiver tag gets its own elapsed-time bookkeeping so one process can in
// principle host more than one station's tropospheric parameter without
// the models cross-contaminating dt.
type TropoRandomWalkModel struct {
	SpectralDensity float64

	last  map[string]time.Time
	dtFor float64
}

func NewTropoRandomWalkModel(spectralDensity float64) *TropoRandomWalkModel {
	return &TropoRandomWalkModel{SpectralDensity: spectralDensity, last: map[string]time.Time{}}
}

func (m *TropoRandomWalkModel) Prepare(_ SatID, epoch *EpochRecord) {
	if m.last == nil {
		m.last = map[string]time.Time{}
	}
	m.dtFor = 0
	if prev, ok := m.last[epoch.ReceiverTag]; ok {
		if d := epoch.Time.Sub(prev).Seconds(); d > 0 {
			m.dtFor = d
		}
	}
	m.last[epoch.ReceiverTag] = epoch.Time
}

func (m *TropoRandomWalkModel) Phi() float64 { return 1.0 }
func (m *TropoRandomWalkModel) Q() float64   { return m.SpectralDensity * m.dtFor }
