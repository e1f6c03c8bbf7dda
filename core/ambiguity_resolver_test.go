package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmbiguityResolverFixesWellSeparatedDD(t *testing.T) {
	sv1 := SatID{Sys: SysGPS, PRN: 1}
	sv2 := SatID{Sys: SysGPS, PRN: 2}
	sv3 := SatID{Sys: SysGPS, PRN: 3}

	params := []ParamID{
		{Kind: ParamPosDX},
		{Kind: ParamAmbiguity, SV: sv1},
		{Kind: ParamAmbiguity, SV: sv2},
		{Kind: ParamAmbiguity, SV: sv3},
	}
	// sv1 is the highest-elevation reference; sv2, sv3 carry float
	// ambiguities 3.05 and -1.97 cycles away from sv1's value.
	x := []float64{0.0, 10.0, 13.05, 8.03}

	p := Eye(4)
	p.Scale(0.0)
	p.Set(0, 0, 1.0)
	p.Set(1, 1, 0.02)
	p.Set(2, 2, 0.02)
	p.Set(3, 3, 0.02)

	epoch := &EpochRecord{Satellites: []SatObservation{
		{SV: sv1, Elevation: 1.2},
		{SV: sv2, Elevation: 0.9},
		{SV: sv3, Elevation: 0.6},
	}}

	r := &AmbiguityResolver{}
	fix, err := r.Resolve(params, x, p, epoch)
	require.NoError(t, err)
	assert.Equal(t, sv1, fix.RefSat)
	assert.InDelta(t, x[1], fix.Fixed[params[1]], 1e-9)
}

func TestAmbiguityResolverRequiresTwoAmbiguities(t *testing.T) {
	sv1 := SatID{Sys: SysGPS, PRN: 1}
	params := []ParamID{{Kind: ParamAmbiguity, SV: sv1}}
	x := []float64{5.0}
	p := Eye(1)
	epoch := &EpochRecord{Satellites: []SatObservation{{SV: sv1, Elevation: 1.0}}}

	r := &AmbiguityResolver{}
	_, err := r.Resolve(params, x, p, epoch)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindInsufficientSatellites, kind)
}
