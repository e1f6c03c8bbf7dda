// Package core implements the estimation core of a Precise Point Positioning
// engine: the equation composer (C3), the extended Kalman filter driver (C4),
// the LAMBDA ambiguity resolver (C5) and the forward-backward smoother (C6).
//
// The package takes fully pre-processed per-epoch observations (corrected for
// geometric, atmospheric and antenna effects by collaborators outside this
// package) and produces a receiver position, clock biases, zenith wet
// tropospheric delay and carrier-phase ambiguities with their covariance.
package core

import "time"

// MeasurementType is a closed tag set identifying a prefit or postfit
// pseudorange/phase observable. The composer lays out rows of H, z and W
// one block per type in the order of its MeasOrder list, not in this
// declaration order.
type MeasurementType int

const (
	CodeSF MeasurementType = iota // single-frequency code
	CodeIF                       // dual-frequency ionosphere-free code combination
	CodeL1
	CodeL2
	PhaseSF
	PhaseIF
	PhaseL1
	PhaseL2
	PostfitCodeSF
	PostfitCodeIF
	PostfitCodeL1
	PostfitCodeL2
	PostfitPhaseSF
	PostfitPhaseIF
	PostfitPhaseL1
	PostfitPhaseL2
)

// IsPhase reports whether a measurement type carries a carrier-phase
// observable (precise, ~100x code) rather than a code pseudorange.
func (m MeasurementType) IsPhase() bool {
	switch m {
	case PhaseSF, PhaseIF, PhaseL1, PhaseL2, PostfitPhaseSF, PostfitPhaseIF, PostfitPhaseL1, PostfitPhaseL2:
		return true
	default:
		return false
	}
}

// Prefit reports the prefit counterpart of a postfit measurement type (or m
// itself, if it is already a prefit type).
func (m MeasurementType) Prefit() MeasurementType {
	switch m {
	case PostfitCodeSF:
		return CodeSF
	case PostfitCodeIF:
		return CodeIF
	case PostfitCodeL1:
		return CodeL1
	case PostfitCodeL2:
		return CodeL2
	case PostfitPhaseSF:
		return PhaseSF
	case PostfitPhaseIF:
		return PhaseIF
	case PostfitPhaseL1:
		return PhaseL1
	case PostfitPhaseL2:
		return PhaseL2
	default:
		return m
	}
}

// Postfit returns the postfit counterpart of a prefit measurement type.
func (m MeasurementType) Postfit() MeasurementType {
	switch m {
	case CodeSF:
		return PostfitCodeSF
	case CodeIF:
		return PostfitCodeIF
	case CodeL1:
		return PostfitCodeL1
	case CodeL2:
		return PostfitCodeL2
	case PhaseSF:
		return PostfitPhaseSF
	case PhaseIF:
		return PostfitPhaseIF
	case PhaseL1:
		return PostfitPhaseL1
	case PhaseL2:
		return PostfitPhaseL2
	default:
		return m
	}
}

func (m MeasurementType) String() string {
	names := [...]string{
		"CodeSF", "CodeIF", "CodeL1", "CodeL2",
		"PhaseSF", "PhaseIF", "PhaseL1", "PhaseL2",
		"PostfitCodeSF", "PostfitCodeIF", "PostfitCodeL1", "PostfitCodeL2",
		"PostfitPhaseSF", "PostfitPhaseIF", "PostfitPhaseL1", "PostfitPhaseL2",
	}
	if int(m) < 0 || int(m) >= len(names) {
		return "MeasurementType(?)"
	}
	return names[m]
}

// ParamKind is the tag of a ParamID tagged union.
type ParamKind int

const (
	ParamPosDX ParamKind = iota
	ParamPosDY
	ParamPosDZ
	ParamClock     // receiver clock bias, per constellation (Sys selects which)
	ParamClockRate // receiver clock drift
	ParamTropoWet  // zenith wet troposphere delay (wetMap)
	ParamISB       // inter-system bias, per non-reference constellation
	ParamIFB       // inter-frequency bias, per GLONASS frequency channel
	ParamIono      // per-satellite slant ionospheric delay
	ParamAmbiguity // per (satellite, arc) carrier-phase ambiguity
)

func (k ParamKind) String() string {
	switch k {
	case ParamPosDX:
		return "dx"
	case ParamPosDY:
		return "dy"
	case ParamPosDZ:
		return "dz"
	case ParamClock:
		return "cdt"
	case ParamClockRate:
		return "cdt_rate"
	case ParamTropoWet:
		return "wetMap"
	case ParamISB:
		return "cdt_isb"
	case ParamIFB:
		return "ifb"
	case ParamIono:
		return "iono"
	case ParamAmbiguity:
		return "N"
	default:
		return "unknown"
	}
}

// SatID identifies a satellite by constellation and PRN. Constellation codes
// follow the teacher's convention (SYS_GPS=1, SYS_GLO=2, ...); only the
// numeric identity matters to this package.
type SatID struct {
	Sys int
	PRN int
}

func (s SatID) Less(o SatID) bool {
	if s.Sys != o.Sys {
		return s.Sys < o.Sys
	}
	return s.PRN < o.PRN
}

func (s SatID) String() string {
	return sysLetter(s.Sys) + itoa2(s.PRN)
}

func sysLetter(sys int) string {
	switch sys {
	case SysGPS:
		return "G"
	case SysGLO:
		return "R"
	case SysGAL:
		return "E"
	case SysBDS:
		return "C"
	case SysQZS:
		return "J"
	case SysIRN:
		return "I"
	default:
		return "?"
	}
}

func itoa2(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Constellation codes, mirrored from the teacher's SYS_* constants.
const (
	SysGPS = 1 << iota
	SysGLO
	SysGAL
	SysBDS
	SysQZS
	SysIRN
	SysSBS
)

// ParamID is a tagged-union value naming one state vector element. Two
// ParamIDs are equal (and hash-equal, since ParamID is a plain comparable
// struct used directly as a map key) iff every field matches; fields that
// don't apply to a given Kind are left zero.
type ParamID struct {
	Kind ParamKind
	Sys  int   // ParamClock, ParamISB: owning constellation
	Freq int   // ParamIFB: GLONASS frequency channel
	SV   SatID // ParamIono, ParamAmbiguity
	Arc  int   // ParamAmbiguity: arc id distinguishing re-acquisitions of SV
}

// Less imposes the total order spec.md requires so the composer can place
// parameters deterministically in the state vector: position, then clocks,
// then troposphere, then inter-system/inter-frequency bias, then ionosphere,
// then ambiguities (ordered by satellite, then arc).
func (p ParamID) Less(o ParamID) bool {
	if p.Kind != o.Kind {
		return p.Kind < o.Kind
	}
	switch p.Kind {
	case ParamClock, ParamISB:
		return p.Sys < o.Sys
	case ParamIFB:
		return p.Freq < o.Freq
	case ParamIono:
		return p.SV.Less(o.SV)
	case ParamAmbiguity:
		if p.SV != o.SV {
			return p.SV.Less(o.SV)
		}
		return p.Arc < o.Arc
	default:
		return false
	}
}

func (p ParamID) String() string {
	switch p.Kind {
	case ParamClock, ParamISB:
		return p.Kind.String() + "_" + sysLetter(p.Sys)
	case ParamIFB:
		return p.Kind.String() + itoa2(p.Freq)
	case ParamIono:
		return p.Kind.String() + "_" + p.SV.String()
	case ParamAmbiguity:
		return p.Kind.String() + "_" + p.SV.String() + "#" + itoa2(p.Arc)
	default:
		return p.Kind.String()
	}
}

// ArcKey is the composite identity of a tracked carrier-phase arc: one
// continuous tracking interval of one satellite between cycle slips. It is
// the natural key for the ambiguity contributor's active set — never a
// pointer into a SatObservation, which does not outlive one epoch.
type ArcKey struct {
	SV  SatID
	Arc int
}

// SatObservation is one satellite's record within an EpochRecord.
type SatObservation struct {
	SV        SatID
	Elevation float64 // rad
	Azimuth   float64 // rad
	Prefit    map[MeasurementType]float64
	Postfit   map[MeasurementType]float64
	Weight    *float64 // optional elevation-dependent override; nil uses the static factor table
	Slip      bool
	ArcID     int
	FreqChan  int  // GLONASS FDMA frequency channel number; unused for CDMA constellations
	used      bool // internal: set by the smoother's resetForRepass bookkeeping
}

// EpochRecord is one epoch's worth of pre-processed observations.
//
// Satellites is kept as a slice (not a map) so iteration order is stable
// across repeated passes over the same epoch — the row ordering of H, z and
// W depends on a consistent satellite ordering, and Go map iteration order
// is intentionally randomized.
type EpochRecord struct {
	Time        time.Time
	NominalPos  [3]float64 // ECEF (m), linearization point; position parameters are offsets from it
	Satellites  []SatObservation
	ReceiverTag string // distinguishes multi-station tropo stochastic models (C1)
}

// SatByID returns a pointer to the satellite record for sv, or nil.
func (e *EpochRecord) SatByID(sv SatID) *SatObservation {
	for i := range e.Satellites {
		if e.Satellites[i].SV == sv {
			return &e.Satellites[i]
		}
	}
	return nil
}

// resetForRepass restores per-satellite "used" flags and clears arc-change /
// slip flags before a forward or backward re-pass, so every pass over a
// buffered epoch sees the same input the previous pass did except for state
// carried in the persistent filter store. Grounded on KalmanSolverFB's
// usedSvMarker.keepOnlyUsed / CleanSatArcFlags / CleanScFlags sequence.
func (e *EpochRecord) resetForRepass() {
	for i := range e.Satellites {
		e.Satellites[i].used = false
		e.Satellites[i].Slip = false
	}
}

// clone returns a deep copy suitable for buffering by the smoother (C6),
// which must retain a snapshot independent of subsequent mutation of the
// live epoch.
func (e *EpochRecord) clone() *EpochRecord {
	out := &EpochRecord{
		Time:        e.Time,
		NominalPos:  e.NominalPos,
		ReceiverTag: e.ReceiverTag,
		Satellites:  make([]SatObservation, len(e.Satellites)),
	}
	for i, s := range e.Satellites {
		cp := s
		cp.Prefit = cloneMeasMap(s.Prefit)
		cp.Postfit = cloneMeasMap(s.Postfit)
		out.Satellites[i] = cp
	}
	return out
}

func cloneMeasMap(m map[MeasurementType]float64) map[MeasurementType]float64 {
	if m == nil {
		return nil
	}
	out := make(map[MeasurementType]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ParamState is the persistent per-parameter record: value plus a sparse row
// of cross-covariances keyed by the parameters it was last updated
// alongside. This allows the active parameter set to change freely between
// epochs: a parameter that reappears after dropout restores from here; a
// brand-new one is seeded by its owning Contributor instead.
type ParamState struct {
	Value float64
	Cov   map[ParamID]float64
}

// UsageStatus classifies, per satellite per epoch, how an observation was
// treated by the estimator and its upstream collaborators.
type UsageStatus int

const (
	Unknown UsageStatus = iota
	UsedInPVT
	NotUsedInPVT
	RejectedByCsDetector
	RejectedByMWDetector
	RejectedByLIDetector
	NotEnoughData
)

func (u UsageStatus) String() string {
	switch u {
	case UsedInPVT:
		return "UsedInPVT"
	case NotUsedInPVT:
		return "NotUsedInPVT"
	case RejectedByCsDetector:
		return "RejectedByCsDetector"
	case RejectedByMWDetector:
		return "RejectedByMWDetector"
	case RejectedByLIDetector:
		return "RejectedByLIDetector"
	case NotEnoughData:
		return "NotEnoughData"
	default:
		return "Unknown"
	}
}
