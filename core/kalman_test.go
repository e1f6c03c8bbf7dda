package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticDriver(minSat int) *KalmanDriver {
	contributors := []Contributor{
		NewPositionContributor(DynamicsStatic, 60.0),
		NewClockContributor(SysGPS, 60.0),
	}
	composer := NewComposer(contributors, []MeasurementType{CodeIF})
	cfg := DefaultConfig()
	cfg.MinSatellites = minSat
	return NewKalmanDriver(composer, cfg, GetMetrics())
}

func fourSatEpoch(t time.Time, residuals [4]float64) *EpochRecord {
	els := []float64{1.2, 1.0, 0.8, 0.6}
	azs := []float64{0.1, 1.8, 3.0, 5.0}
	e := &EpochRecord{Time: t, NominalPos: [3]float64{-2694892.0, -4296066.0, 3854248.0}}
	for i := 0; i < 4; i++ {
		e.Satellites = append(e.Satellites, SatObservation{
			SV:        SatID{Sys: SysGPS, PRN: i + 1},
			Elevation: els[i],
			Azimuth:   azs[i],
			Prefit:    map[MeasurementType]float64{CodeIF: residuals[i]},
		})
	}
	return e
}

func TestKalmanDriverProcessProducesValidSolution(t *testing.T) {
	d := staticDriver(0)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch := fourSatEpoch(t0, [4]float64{0.01, -0.02, 0.015, -0.01})
	require.NoError(t, d.Process(epoch))
	assert.True(t, d.IsValid())

	_, err := d.Solution(ParamID{Kind: ParamPosDX})
	require.NoError(t, err)
	_, err = d.Solution(ParamID{Kind: ParamClock, Sys: SysGPS})
	require.NoError(t, err)
}

func TestKalmanDriverUnknownParameterError(t *testing.T) {
	d := staticDriver(0)
	epoch := fourSatEpoch(time.Now(), [4]float64{0, 0, 0, 0})
	require.NoError(t, d.Process(epoch))
	_, err := d.Solution(ParamID{Kind: ParamTropoWet})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnknownParameter, kind)
}

func TestKalmanDriverInsufficientSatellites(t *testing.T) {
	d := staticDriver(5)
	epoch := fourSatEpoch(time.Now(), [4]float64{0, 0, 0, 0})
	err := d.Process(epoch)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindInsufficientSatellites, kind)
}

func TestKalmanDriverPersistsStateAcrossEpochs(t *testing.T) {
	d := staticDriver(0)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.Process(fourSatEpoch(t0, [4]float64{0.01, -0.01, 0.02, -0.02})))
	firstVar, err := d.Variance(ParamID{Kind: ParamPosDX})
	require.NoError(t, err)

	require.NoError(t, d.Process(fourSatEpoch(t0.Add(30*time.Second), [4]float64{0.01, -0.01, 0.02, -0.02})))
	secondVar, err := d.Variance(ParamID{Kind: ParamPosDX})
	require.NoError(t, err)

	assert.Less(t, secondVar, firstVar, "static position variance should shrink as epochs accumulate")
}

func TestKalmanDriverRejectsOutlier(t *testing.T) {
	d := staticDriver(0)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Seed a converged solution first so postfit residuals are small and a
	// subsequent gross outlier drives sigma/sigmaPos well past 3.
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Process(fourSatEpoch(t0.Add(time.Duration(i)*30*time.Second), [4]float64{0.01, -0.01, 0.02, -0.02})))
	}
	epoch := fourSatEpoch(t0.Add(150*time.Second), [4]float64{50.0, -0.01, 0.02, -0.02})
	require.NoError(t, d.Process(epoch))
	assert.True(t, d.IsValid())
	assert.InDelta(t, 0.0, d.Sigma(), 1.0, "accepted solution's postfit sigma should not reflect the 50m outlier")
}
