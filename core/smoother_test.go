package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSmoother(cycles int) (*Smoother, *KalmanDriver) {
	contributors := []Contributor{
		NewPositionContributor(DynamicsStatic, 60.0),
		NewClockContributor(SysGPS, 60.0),
	}
	composer := NewComposer(contributors, []MeasurementType{CodeIF})
	cfg := DefaultConfig()
	cfg.ForwardBackwardCycles = cycles
	cfg.CodeLimList = []float64{20.0, 10.0, 5.0}
	d := NewKalmanDriver(composer, cfg, GetMetrics())
	return NewSmoother(d, cycles), d
}

func TestSmootherBuffersAndDrains(t *testing.T) {
	s, _ := staticSmoother(2)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		epoch := fourSatEpoch(t0.Add(time.Duration(i)*30*time.Second), [4]float64{0.01, -0.01, 0.02, -0.02})
		_, err := s.Process(epoch)
		require.NoError(t, err)
	}
	assert.Len(t, s.buffer, 3)

	_, more := s.LastProcess()
	assert.True(t, more)
	assert.Len(t, s.buffer, 2)
}

func TestSmootherReprocessRunsConfiguredCycles(t *testing.T) {
	s, _ := staticSmoother(2)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		epoch := fourSatEpoch(t0.Add(time.Duration(i)*30*time.Second), [4]float64{0.01, -0.01, 0.02, -0.02})
		_, err := s.Process(epoch)
		require.NoError(t, err)
	}

	results, err := s.Reprocess()
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.NotNil(t, r)
		assert.NotEmpty(t, r.Params)
	}
}

func TestSmootherNoCyclesIsNoop(t *testing.T) {
	s, _ := staticSmoother(0)
	t0 := time.Now()
	_, err := s.Process(fourSatEpoch(t0, [4]float64{0, 0, 0, 0}))
	require.NoError(t, err)
	results, err := s.Reprocess()
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
