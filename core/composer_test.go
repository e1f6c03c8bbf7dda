package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSatEpoch() *EpochRecord {
	return &EpochRecord{
		Time:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NominalPos: [3]float64{-2694892.0, -4296066.0, 3854248.0}, // arbitrary ECEF near mid-latitude
		Satellites: []SatObservation{
			{
				SV: SatID{Sys: SysGPS, PRN: 1}, Elevation: 0.9, Azimuth: 0.3,
				Prefit: map[MeasurementType]float64{CodeIF: 10.0, PhaseIF: 10.2},
			},
			{
				SV: SatID{Sys: SysGPS, PRN: 2}, Elevation: 0.6, Azimuth: 2.1,
				Prefit: map[MeasurementType]float64{CodeIF: 20.0, PhaseIF: 20.3},
			},
		},
	}
}

func TestComposerPrepareSizesState(t *testing.T) {
	contributors := []Contributor{
		NewPositionContributor(DynamicsStatic, 60.0),
		NewClockContributor(SysGPS, 60.0),
	}
	c := NewComposer(contributors, []MeasurementType{CodeIF, PhaseIF})
	epoch := twoSatEpoch()
	c.Prepare(epoch)

	assert.Equal(t, 4, c.NumState()) // dx,dy,dz,cdt
	assert.Equal(t, 4, c.NumMeasurements(), "2 types x 2 satellites")
}

func TestComposerUpdateHPositionColumnsNegated(t *testing.T) {
	contributors := []Contributor{NewPositionContributor(DynamicsStatic, 60.0)}
	c := NewComposer(contributors, []MeasurementType{CodeIF})
	epoch := twoSatEpoch()
	c.Prepare(epoch)
	h := c.UpdateH(epoch)

	// row 0 is satellite 1's code row; its dx/dy/dz columns should carry
	// a unit-norm negated line-of-sight vector.
	los := losUnitVector(epoch.NominalPos, epoch.Satellites[0].Azimuth, epoch.Satellites[0].Elevation)
	var normSq float64
	for col := 0; col < 3; col++ {
		assert.InDelta(t, -los[col], h.At(0, col), 1e-12)
		normSq += h.At(0, col) * h.At(0, col)
	}
	assert.InDelta(t, 1.0, normSq, 1e-9)
}

func TestComposerUpdateWeightFallsBackToStaticTable(t *testing.T) {
	contributors := []Contributor{NewClockContributor(SysGPS, 60.0)}
	c := NewComposer(contributors, []MeasurementType{PhaseIF})
	epoch := twoSatEpoch()
	c.Prepare(epoch)
	w, err := c.UpdateWeight(epoch)
	require.NoError(t, err)
	factor, _ := WeightFactor(PhaseIF)
	assert.Equal(t, factor, w.At(0, 0))
}

func TestComposerUpdateWeightUnknownType(t *testing.T) {
	contributors := []Contributor{NewClockContributor(SysGPS, 60.0)}
	c := NewComposer(contributors, []MeasurementType{MeasurementType(999)})
	epoch := twoSatEpoch()
	c.Prepare(epoch)
	_, err := c.UpdateWeight(epoch)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnknownMeasurementType, kind)
}

func TestComposerUpdateMeasurementStacksPrefitInRowOrder(t *testing.T) {
	contributors := []Contributor{NewClockContributor(SysGPS, 60.0)}
	c := NewComposer(contributors, []MeasurementType{CodeIF, PhaseIF})
	epoch := twoSatEpoch()
	c.Prepare(epoch)
	z := c.UpdateMeasurement(epoch)
	require.Len(t, z, 4)
	assert.Equal(t, []float64{10.0, 20.0, 10.2, 20.3}, z)
}

func TestComposerWeightOverridePreferred(t *testing.T) {
	contributors := []Contributor{NewClockContributor(SysGPS, 60.0)}
	c := NewComposer(contributors, []MeasurementType{CodeIF})
	epoch := twoSatEpoch()
	override := 42.0
	epoch.Satellites[0].Weight = &override
	c.Prepare(epoch)
	w, err := c.UpdateWeight(epoch)
	require.NoError(t, err)
	assert.Equal(t, 42.0, w.At(0, 0))
}
