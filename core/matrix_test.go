package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCholeskyInverseIdentity(t *testing.T) {
	m := Eye(3)
	inv, err := CholeskyInverse(m)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, inv.At(i, j), 1e-9)
		}
	}
}

func TestCholeskyInverseRoundTrip(t *testing.T) {
	a := NewMatrix(2, 2)
	a.Set(0, 0, 4.0)
	a.Set(0, 1, 1.0)
	a.Set(1, 0, 1.0)
	a.Set(1, 1, 3.0)

	inv, err := CholeskyInverse(a)
	require.NoError(t, err)

	prod := MatMul(a, inv)
	assert.InDelta(t, 1.0, prod.At(0, 0), 1e-6)
	assert.InDelta(t, 0.0, prod.At(0, 1), 1e-6)
	assert.InDelta(t, 0.0, prod.At(1, 0), 1e-6)
	assert.InDelta(t, 1.0, prod.At(1, 1), 1e-6)
}

func TestCholeskyInverseSingularError(t *testing.T) {
	a := NewMatrix(2, 2)
	a.Set(0, 0, 1.0)
	a.Set(0, 1, 1.0)
	a.Set(1, 0, 1.0)
	a.Set(1, 1, 1.0) // rank-deficient: second pivot is zero after elimination

	_, err := CholeskyInverse(a)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindSingularMatrix, kind)
}

func TestMatMulDimensions(t *testing.T) {
	a := NewMatrix(2, 3)
	b := NewMatrix(3, 2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, float64(i+j))
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			b.Set(i, j, float64(i*j))
		}
	}
	out := MatMul(a, b)
	assert.Equal(t, 2, out.Rows)
	assert.Equal(t, 2, out.Cols)
}

func TestSymmetryResidual(t *testing.T) {
	m := NewMatrix(2, 2)
	m.Set(0, 1, 1.0)
	m.Set(1, 0, 1.0000001)
	r := m.SymmetryResidual()
	assert.True(t, r < 1e-6)

	m.Set(1, 0, 5.0)
	assert.True(t, m.SymmetryResidual() > 1.0)
}

func TestSymmetrize(t *testing.T) {
	m := NewMatrix(2, 2)
	m.Set(0, 1, 1.0)
	m.Set(1, 0, 3.0)
	m.Symmetrize()
	assert.InDelta(t, 2.0, m.At(0, 1), 1e-12)
	assert.InDelta(t, 2.0, m.At(1, 0), 1e-12)
}

func TestMatVec(t *testing.T) {
	a := Eye(3)
	a.Scale(2.0)
	v := []float64{1, 2, 3}
	out := MatVec(a, v)
	assert.Equal(t, []float64{2, 4, 6}, out)
}

func TestSQRSQRT(t *testing.T) {
	assert.Equal(t, 9.0, SQR(3.0))
	assert.True(t, math.Abs(SQRT(9.0)-3.0) < 1e-12)
}
