package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLdFactorizationReconstructsQ(t *testing.T) {
	q := []float64{4, 1, 1, 3} // column-major 2x2 SPD
	l, d, err := ldFactorize(2, q)
	require.NoError(t, err)

	// Reconstruct Q = L' diag(D) L and compare.
	recon := make([]float64, 4)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			var sum float64
			for k := 0; k < 2; k++ {
				sum += l[k+i*2] * d[k] * l[k+j*2]
			}
			recon[i+j*2] = sum
		}
	}
	for i := range q {
		assert.InDelta(t, q[i], recon[i], 1e-9)
	}
}

func TestLambdaEstimateRecoversNearbyIntegers(t *testing.T) {
	// A well-separated float vector close to (3, -2) with small, nearly
	// diagonal covariance should resolve to that integer vector as the
	// best candidate.
	a := []float64{3.05, -1.97}
	q := []float64{0.01, 0.001, 0.001, 0.01}

	candidates, s, err := lambdaEstimate(2, 2, a, q)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Len(t, s, 2)
	assert.InDelta(t, 3.0, candidates[0][0], 1e-6)
	assert.InDelta(t, -2.0, candidates[0][1], 1e-6)
	assert.LessOrEqual(t, s[0], s[1])
}
