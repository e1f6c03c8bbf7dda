package core

import "math"

// SQR and SQRT mirror the teacher's common.go one-liners of the same name,
// kept because the stochastic models and contributors below read naturally
// against "variance = SQR(sigma)" the way the teacher's ppp.go does.
func SQR(x float64) float64  { return x * x }
func SQRT(x float64) float64 { return math.Sqrt(x) }

// Matrix is a dense, column-major matrix, matching the storage convention
// the teacher's common.go uses throughout (MatMul, MatInv, Eye, ...) so that
// the composer/Kalman code below reads the same way the teacher's rtkpos.go
// and ppp.go do. Column-major keeps a parameter's whole column contiguous,
// which is the access pattern UpdateH uses (one contributor fills its own
// contiguous column block across all rows).
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// NewMatrix allocates a zeroed r x c matrix.
func NewMatrix(r, c int) *Matrix {
	return &Matrix{Rows: r, Cols: c, Data: make([]float64, r*c)}
}

// Eye returns the n x n identity matrix.
func Eye(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Data[i+i*n] = 1.0
	}
	return m
}

// At returns the (i,j) element.
func (m *Matrix) At(i, j int) float64 { return m.Data[i+j*m.Rows] }

// Set assigns the (i,j) element.
func (m *Matrix) Set(i, j int, v float64) { m.Data[i+j*m.Rows] = v }

// Add accumulates v into the (i,j) element.
func (m *Matrix) Add(i, j int, v float64) { m.Data[i+j*m.Rows] += v }

// Resize reallocates m to r x c, zero-filled, discarding prior content. The
// composer does not use it; it allocates fresh matrices per epoch with
// NewMatrix.
func (m *Matrix) Resize(r, c int) {
	m.Rows, m.Cols = r, c
	m.Data = make([]float64, r*c)
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	out := make([]float64, m.Rows)
	copy(out, m.Data[j*m.Rows:(j+1)*m.Rows])
	return out
}

// Transpose returns a new matrix equal to m's transpose.
func (m *Matrix) Transpose() *Matrix {
	out := NewMatrix(m.Cols, m.Rows)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			out.Set(j, i, m.At(i, j))
		}
	}
	return out
}

// MatMul computes out = a * b (dimensions must be compatible); out is
// allocated fresh, matching the teacher's preference for explicit temporary
// result matrices around predict/update steps (see UpdatePosPPP in ppp.go).
func MatMul(a, b *Matrix) *Matrix {
	if a.Cols != b.Rows {
		panic("core: MatMul dimension mismatch")
	}
	out := NewMatrix(a.Rows, b.Cols)
	for j := 0; j < b.Cols; j++ {
		for k := 0; k < a.Cols; k++ {
			bkj := b.At(k, j)
			if bkj == 0 {
				continue
			}
			for i := 0; i < a.Rows; i++ {
				out.Add(i, j, a.At(i, k)*bkj)
			}
		}
	}
	return out
}

// Scale multiplies every element by s, in place.
func (m *Matrix) Scale(s float64) {
	for i := range m.Data {
		m.Data[i] *= s
	}
}

// AddInPlace adds o into m element-wise; dimensions must match.
func (m *Matrix) AddInPlace(o *Matrix) {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		panic("core: AddInPlace dimension mismatch")
	}
	for i := range m.Data {
		m.Data[i] += o.Data[i]
	}
}

// SymmetryResidual returns max |P_ij - P_ji|, the largest elementwise
// asymmetry (+Inf for a non-square matrix). It is not scaled by the size of
// P's entries.
func (m *Matrix) SymmetryResidual() float64 {
	if m.Rows != m.Cols {
		return math.Inf(1)
	}
	var maxDiff, maxAbs float64
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			v := m.At(i, j)
			d := math.Abs(v - m.At(j, i))
			if d > maxDiff {
				maxDiff = d
			}
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	_ = maxAbs
	return maxDiff
}

// Symmetrize forces m to be exactly symmetric by averaging each off-diagonal
// pair, guarding against the slow symmetry drift that accumulates over many
// epochs of floating-point predict/update cycles.
func (m *Matrix) Symmetrize() {
	n := m.Rows
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (m.At(i, j) + m.At(j, i)) / 2.0
			m.Set(i, j, avg)
			m.Set(j, i, avg)
		}
	}
}

// choleskyLower computes the lower-triangular Cholesky factor L (A = L L')
// of a symmetric positive-definite matrix a. Returns an error wrapping
// ErrKindSingularMatrix if a is not positive-definite to machine precision,
// mirroring the teacher's pattern of returning a status code from LUDcmp
// instead of panicking on numerically degenerate input.
func choleskyLower(a *Matrix) (*Matrix, error) {
	n := a.Rows
	if a.Cols != n {
		return nil, newErr(ErrKindSingularMatrix, "cholesky: matrix not square (%dx%d)", a.Rows, a.Cols)
	}
	l := NewMatrix(n, n)
	for j := 0; j < n; j++ {
		var sum float64
		for k := 0; k < j; k++ {
			sum += l.At(j, k) * l.At(j, k)
		}
		d := a.At(j, j) - sum
		if d <= 0 {
			return nil, newErr(ErrKindSingularMatrix, "cholesky: non-positive pivot at %d (%.6g)", j, d)
		}
		diag := math.Sqrt(d)
		l.Set(j, j, diag)
		for i := j + 1; i < n; i++ {
			sum = 0
			for k := 0; k < j; k++ {
				sum += l.At(i, k) * l.At(j, k)
			}
			l.Set(i, j, (a.At(i, j)-sum)/diag)
		}
	}
	return l, nil
}

// CholeskyInverse inverts a symmetric positive-definite matrix via its
// Cholesky factorization, as spec.md §4.4 requires for the information-form
// predict/update ("Matrix inversions use Cholesky; failure falls back to
// reporting invalid epoch"). The teacher's own MatInv (common.go) uses LU
// decomposition instead; this package uses Cholesky throughout per spec,
// which is also cheaper and numerically preferable for the always-SPD
// covariance and normal-equation matrices this estimator inverts.
func CholeskyInverse(a *Matrix) (*Matrix, error) {
	n := a.Rows
	l, err := choleskyLower(a)
	if err != nil {
		return nil, err
	}
	// Invert L (lower-triangular forward substitution column by column),
	// then form A^-1 = L^-T L^-1.
	linv := NewMatrix(n, n)
	for col := 0; col < n; col++ {
		y := make([]float64, n)
		y[col] = 1.0
		for i := col; i < n; i++ {
			sum := y[i]
			for k := col; k < i; k++ {
				sum -= l.At(i, k) * linv.At(k, col)
			}
			linv.Set(i, col, sum/l.At(i, i))
		}
	}
	out := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += linv.At(k, i) * linv.At(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	out.Symmetrize()
	return out, nil
}

// Vector helpers -------------------------------------------------------

// MatVec computes out = a * v.
func MatVec(a *Matrix, v []float64) []float64 {
	if a.Cols != len(v) {
		panic("core: MatVec dimension mismatch")
	}
	out := make([]float64, a.Rows)
	for j := 0; j < a.Cols; j++ {
		vj := v[j]
		if vj == 0 {
			continue
		}
		for i := 0; i < a.Rows; i++ {
			out[i] += a.At(i, j) * vj
		}
	}
	return out
}

func addVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func subVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func dotVec(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
