package core

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nSatEpoch builds a synthetic epoch with n GPS satellites spread across a
// plausible elevation/azimuth range, each carrying the requested prefit
// residuals. A zero residual means the observation is perfectly consistent
// with the current state, so scenarios that want a noise-free convergence
// check can seed it directly without modeling real geometry.
func nSatEpoch(t time.Time, n int, codeResid, phaseResid []float64) *EpochRecord {
	e := &EpochRecord{Time: t, NominalPos: [3]float64{-2694892.0, -4296066.0, 3854248.0}}
	for i := 0; i < n; i++ {
		el := 0.3 + float64(i)*0.15
		az := float64(i) * 0.9
		e.Satellites = append(e.Satellites, SatObservation{
			SV:        SatID{Sys: SysGPS, PRN: i + 1},
			Elevation: el,
			Azimuth:   az,
			Prefit: map[MeasurementType]float64{
				CodeIF:  codeResid[i],
				PhaseIF: phaseResid[i],
			},
		})
	}
	return e
}

func pppDriver(minSat int, codeLim, phaseLim []float64) *KalmanDriver {
	contributors := []Contributor{
		NewPositionContributor(DynamicsStatic, 60.0),
		NewClockContributor(SysGPS, 60.0),
		NewAmbiguityContributor(),
	}
	composer := NewComposer(contributors, []MeasurementType{CodeIF, PhaseIF})
	cfg := DefaultConfig()
	cfg.MinSatellites = minSat
	if codeLim != nil {
		cfg.CodeLimList = codeLim
	}
	if phaseLim != nil {
		cfg.PhaseLimList = phaseLim
	}
	return NewKalmanDriver(composer, cfg, GetMetrics())
}

// Scenario 1: static receiver, 6 GPS satellites, two epochs, dual-frequency
// IF combination, dynamics=static. Position barely moves between epochs and
// position sigma shrinks monotonically.
func TestScenarioStaticTwoEpochConvergence(t *testing.T) {
	d := pppDriver(0, nil, nil)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	code := []float64{0.01, -0.015, 0.02, -0.01, 0.005, -0.02}
	phase := []float64{0.001, -0.0015, 0.002, -0.001, 0.0005, -0.002}

	require.NoError(t, d.Process(nSatEpoch(t0, 6, code, phase)))
	pos1 := [3]float64{mustSolution(t, d, ParamID{Kind: ParamPosDX}), mustSolution(t, d, ParamID{Kind: ParamPosDY}), mustSolution(t, d, ParamID{Kind: ParamPosDZ})}
	varDX1, err := d.Variance(ParamID{Kind: ParamPosDX})
	require.NoError(t, err)

	require.NoError(t, d.Process(nSatEpoch(t0.Add(30*time.Second), 6, code, phase)))
	pos2 := [3]float64{mustSolution(t, d, ParamID{Kind: ParamPosDX}), mustSolution(t, d, ParamID{Kind: ParamPosDY}), mustSolution(t, d, ParamID{Kind: ParamPosDZ})}
	varDX2, err := d.Variance(ParamID{Kind: ParamPosDX})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.LessOrEqual(t, math.Abs(pos2[i]-pos1[i]), 0.01, "static position should move less than 1cm between epochs")
	}
	assert.Less(t, varDX2, varDX1, "position variance should shrink monotonically under static dynamics")
}

func mustSolution(t *testing.T, d *KalmanDriver, p ParamID) float64 {
	t.Helper()
	v, err := d.Solution(p)
	require.NoError(t, err)
	return v
}

// Scenario 2: kinematic receiver, 8 satellites, one flagged with a cycle
// slip on the second epoch. The slipped satellite's ambiguity prior variance
// must equal the reinitialization variance while the others restore the
// previous epoch's persisted (tighter) covariance.
func TestScenarioCycleSlipReinitializesOnlySlippedAmbiguity(t *testing.T) {
	d := pppDriver(0, nil, nil)
	d.Composer.Contributors[0] = NewPositionContributor(DynamicsKinematic, 60.0)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	code := make([]float64, 8)
	phase := make([]float64, 8)
	for i := range code {
		code[i] = 0.01 * float64(i%3-1)
		phase[i] = 0.001 * float64(i%3-1)
	}
	epoch1 := nSatEpoch(t0, 8, code, phase)
	require.NoError(t, d.Process(epoch1))

	slipped := SatID{Sys: SysGPS, PRN: 3}
	epoch2 := nSatEpoch(t0.Add(30*time.Second), 8, code, phase)
	epoch2.SatByID(slipped).Slip = true

	d.Composer.Prepare(epoch2)
	params := d.Composer.Params()
	n := d.Composer.NumState()
	_, cov := d.priorState(epoch2, params, n, false)

	slippedParam := ParamID{Kind: ParamAmbiguity, SV: slipped, Arc: 1}
	idxSlipped := -1
	for i, p := range params {
		if p == slippedParam {
			idxSlipped = i
		}
	}
	require.GreaterOrEqual(t, idxSlipped, 0, "slipped satellite's new-arc ambiguity should be a prepared parameter")
	assert.Equal(t, SQR(60.0), cov.At(idxSlipped, idxSlipped), "a freshly re-acquired arc gets the reinit variance")

	other := SatID{Sys: SysGPS, PRN: 1}
	otherParam := ParamID{Kind: ParamAmbiguity, SV: other, Arc: 0}
	idxOther := -1
	for i, p := range params {
		if p == otherParam {
			idxOther = i
		}
	}
	require.GreaterOrEqual(t, idxOther, 0)
	stored, ok := d.Store[otherParam]
	require.True(t, ok, "non-slipped ambiguity should still be tracked in the persistent store")
	assert.Equal(t, stored.Cov[otherParam], cov.At(idxOther, idxOther), "non-slipped ambiguity prior should restore the persisted covariance, not reinitialize")
	assert.NotEqual(t, SQR(60.0), cov.At(idxOther, idxOther), "a converged ambiguity should not still carry the reinit variance")
}

// Scenario 3: a gross phase outlier drives sigma/sigmaPos past the fixed
// threshold of 3 (spec.md §4.4); the driver rejects exactly the offending
// satellite (the last residual type in the composer's row order, per
// KalmanSolver.cpp's reject()) and the resulting solution's postfit sigma
// drops well below three times a clean epoch's baseline sigma. This no
// longer depends on Config.CodeLimList/PhaseLimList, which are exclusively
// a C6 smoother concern (core/smoother_test.go).
func TestScenarioOutlierRejectionRecoversCleanSigma(t *testing.T) {
	d := pppDriver(0, nil, nil)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	code := []float64{0.01, -0.01, 0.02, -0.02, 0.015, -0.015}
	phase := []float64{0.001, -0.001, 0.002, -0.002, 0.0015, -0.0015}

	var baseline float64
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Process(nSatEpoch(t0.Add(time.Duration(i)*30*time.Second), 6, code, phase)))
		baseline = d.Sigma()
	}

	before := testutil.ToFloat64(d.Metrics.SatellitesReject)
	outlierPhase := append([]float64(nil), phase...)
	outlierPhase[2] = 0.5 // gross outlier on the third satellite's phase observation
	require.NoError(t, d.Process(nSatEpoch(t0.Add(150*time.Second), 6, code, outlierPhase)))
	after := testutil.ToFloat64(d.Metrics.SatellitesReject)

	assert.True(t, d.IsValid())
	assert.Equal(t, before+1, after, "exactly one satellite should be rejected")
	assert.Less(t, d.Sigma(), 3*math.Max(baseline, 1e-6), "accepted solution's sigma should fall well below 3x the clean baseline")
}

// Scenario 4: forward-backward with n=2 over 10 noise-free epochs. Every
// prefit residual is exactly zero, so the filter's estimate never departs
// from its seeded value regardless of processing direction — the backward
// pass over epoch 1 must land on the same position as the forward pass over
// epoch 10, to within 1e-6.
func TestScenarioForwardBackwardAgreeOnNoiseFreeData(t *testing.T) {
	driver := pppDriver(0, []float64{20, 10}, []float64{0.1, 0.05})
	s := NewSmoother(driver, 2)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	zero := make([]float64, 6)
	var forwardLast *SmoothResult
	for i := 0; i < 10; i++ {
		res, err := s.Process(nSatEpoch(t0.Add(time.Duration(i)*30*time.Second), 6, zero, zero))
		require.NoError(t, err)
		forwardLast = res
	}

	results, err := s.Reprocess()
	require.NoError(t, err)
	require.Len(t, results, 10)

	first := results[0]
	last := forwardLast
	dxIdx := func(r *SmoothResult) int {
		for i, p := range r.Params {
			if p.Kind == ParamPosDX {
				return i
			}
		}
		return -1
	}
	fi, li := dxIdx(first), dxIdx(last)
	require.GreaterOrEqual(t, fi, 0)
	require.GreaterOrEqual(t, li, 0)
	assert.InDelta(t, last.State[li], first.State[fi], 1e-6, "noise-free forward and backward estimates must agree")
}

// Scenario 5: ambiguity fixing against a known integer truth. Float
// ambiguities are injected within 0.3 cycles of the truth; the resolver
// must recover the truth vector and the core position shift must match
// -Q_ca * Q_aa^-1 * (a' - fixed) to high precision.
func TestScenarioAmbiguityFixingMatchesCoreAdjustmentFormula(t *testing.T) {
	ref := SatID{Sys: SysGPS, PRN: 1}
	rest := []SatID{{Sys: SysGPS, PRN: 2}, {Sys: SysGPS, PRN: 3}, {Sys: SysGPS, PRN: 4}, {Sys: SysGPS, PRN: 5}, {Sys: SysGPS, PRN: 6}}
	truth := []float64{3, -2, 5, -4, 1}
	pert := []float64{0.1, -0.2, 0.05, 0.25, -0.15}
	corr := []float64{0.001, -0.002, 0.0015, -0.001, 0.0005}

	dxParam := ParamID{Kind: ParamPosDX}
	refParam := ParamID{Kind: ParamAmbiguity, SV: ref}
	params := []ParamID{dxParam, refParam}
	for _, sv := range rest {
		params = append(params, ParamID{Kind: ParamAmbiguity, SV: sv})
	}

	refVal := 100.123
	x := []float64{0.5, refVal}
	for i := range rest {
		x = append(x, refVal+truth[i]+pert[i])
	}

	p := NewMatrix(7, 7)
	p.Set(0, 0, 1.0)
	p.Set(1, 1, 0.02)
	for i := range rest {
		p.Set(2+i, 2+i, 0.02)
		p.Set(0, 2+i, corr[i])
		p.Set(2+i, 0, corr[i])
	}

	epoch := &EpochRecord{Satellites: []SatObservation{
		{SV: ref, Elevation: 1.4},
		{SV: rest[0], Elevation: 1.2},
		{SV: rest[1], Elevation: 1.0},
		{SV: rest[2], Elevation: 0.8},
		{SV: rest[3], Elevation: 0.6},
		{SV: rest[4], Elevation: 0.4},
	}}

	r := &AmbiguityResolver{}
	fix, err := r.Resolve(params, x, p, epoch)
	require.NoError(t, err)
	assert.Equal(t, ref, fix.RefSat)
	assert.InDelta(t, refVal, fix.Fixed[refParam], 1e-9)
	for i, sv := range rest {
		want := refVal + truth[i]
		got := fix.Fixed[ParamID{Kind: ParamAmbiguity, SV: sv}]
		assert.InDelta(t, want, got, 1e-6, "resolver should recover the true integer DD ambiguity")
	}

	// Independent closed-form cross-check: Qaa = 0.02*(I + J) (5x5), whose
	// inverse is (1/a)I - (b/(a(a+nb)))J via Sherman-Morrison with a=b=0.02,
	// n=5. gain = Qaa^-1 * pert (residual at the true fix), and the core
	// shift is the dot product of the per-ambiguity core covariance with
	// gain.
	const a, b = 0.02, 0.02
	n := float64(len(rest))
	coeff := b / (a * (a + n*b))
	var sum float64
	for _, v := range pert {
		sum += v
	}
	gain := make([]float64, len(pert))
	for i, v := range pert {
		gain[i] = v/a - coeff*sum
	}
	var adjust float64
	for i := range gain {
		adjust += corr[i] * gain[i]
	}
	wantCore := x[0] - adjust
	assert.InDelta(t, wantCore, fix.Core[dxParam], 1e-6)
}

// Scenario 6: removing the phase weight factor and processing a
// phase-bearing epoch must surface UnknownMeasurementType and leave the
// persistent state untouched.
func TestScenarioWeightTableAbsenceLeavesStoreUnchanged(t *testing.T) {
	d := pppDriver(0, nil, nil)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	code := []float64{0.01, -0.01, 0.02, -0.02, 0.015, -0.015}
	phase := []float64{0.001, -0.001, 0.002, -0.002, 0.0015, -0.0015}
	require.NoError(t, d.Process(nSatEpoch(t0, 6, code, phase)))

	before := map[ParamID]float64{}
	for pid, st := range d.Store {
		before[pid] = st.Value
	}

	savedFactor, hadFactor := weightFactors[PhaseIF]
	delete(weightFactors, PhaseIF)
	defer func() {
		if hadFactor {
			weightFactors[PhaseIF] = savedFactor
		}
	}()

	err := d.Process(nSatEpoch(t0.Add(30*time.Second), 6, code, phase))
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnknownMeasurementType, kind)

	require.Len(t, d.Store, len(before))
	for pid, v := range before {
		st, ok := d.Store[pid]
		require.True(t, ok)
		assert.Equal(t, v, st.Value, "persistent state must be unchanged after a failed epoch")
	}
}
