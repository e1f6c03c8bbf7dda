package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantModel(t *testing.T) {
	m := ConstantModel{}
	m.Prepare(SatID{}, &EpochRecord{})
	assert.Equal(t, 1.0, m.Phi())
	assert.Equal(t, 0.0, m.Q())
}

func TestWhiteNoiseModel(t *testing.T) {
	m := WhiteNoiseModel{Sigma: 2.0}
	assert.Equal(t, 0.0, m.Phi())
	assert.Equal(t, 4.0, m.Q())
}

func TestRandomWalkModelAccumulatesElapsedTime(t *testing.T) {
	m := &RandomWalkModel{SpectralDensity: 2.0}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Prepare(SatID{}, &EpochRecord{Time: t0})
	assert.Equal(t, 0.0, m.Q(), "first observation has no elapsed time")

	m.Prepare(SatID{}, &EpochRecord{Time: t0.Add(30 * time.Second)})
	assert.InDelta(t, 60.0, m.Q(), 1e-9)
}

func TestRandomWalkModelIgnoresNegativeDt(t *testing.T) {
	m := &RandomWalkModel{SpectralDensity: 1.0}
	t0 := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	m.Prepare(SatID{}, &EpochRecord{Time: t0})
	m.Prepare(SatID{}, &EpochRecord{Time: t0.Add(-5 * time.Second)})
	assert.Equal(t, 0.0, m.Q())
}

func TestPhaseAmbiguityModelSlip(t *testing.T) {
	sv := SatID{Sys: SysGPS, PRN: 5}
	m := &PhaseAmbiguityModel{}
	epoch := &EpochRecord{Satellites: []SatObservation{{SV: sv, Slip: true}}}
	m.Prepare(sv, epoch)
	assert.True(t, m.Slipped())
	assert.Equal(t, 0.0, m.Phi())
	assert.Equal(t, 0.0, m.Q())

	epoch.Satellites[0].Slip = false
	m.Prepare(sv, epoch)
	assert.False(t, m.Slipped())
	assert.Equal(t, 1.0, m.Phi())
}

func TestTropoRandomWalkModelPerReceiver(t *testing.T) {
	m := NewTropoRandomWalkModel(3.0)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Prepare(SatID{}, &EpochRecord{Time: t0, ReceiverTag: "A"})
	m.Prepare(SatID{}, &EpochRecord{Time: t0.Add(10 * time.Second), ReceiverTag: "B"})
	assert.Equal(t, 0.0, m.Q(), "receiver B seen for the first time has no elapsed time")

	m.Prepare(SatID{}, &EpochRecord{Time: t0.Add(20 * time.Second), ReceiverTag: "A"})
	assert.InDelta(t, 60.0, m.Q(), 1e-9)
}
