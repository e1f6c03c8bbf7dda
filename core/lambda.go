package core

import "math"

// This file implements LD factorization, lambda reduction and the mlambda
// integer search, transcribed directly from the teacher's lamda.go (LD,
// Gauss, Perm, Reduction, Search) into this package's Matrix/flat-slice
// conventions — same algorithm (Teunissen 1995 lambda reduction, Chang/
// Yang/Zhou 2005 mlambda search), same column-major indexing, renamed to
// this package's naming style.

const searchLoopMax = 10000

func sgn(x float64) float64 {
	if x <= 0.0 {
		return -1.0
	}
	return 1.0
}

func roundNearest(x float64) float64 {
	t := math.Trunc(x)
	if math.Abs(x-t) >= 0.5 {
		return t + math.Copysign(1, x)
	}
	return t
}

// ldFactorize computes Q = L' diag(D) L for symmetric positive-definite Q
// (n x n, column-major), matching the teacher's LD.
func ldFactorize(n int, q []float64) (l, d []float64, err error) {
	a := make([]float64, len(q))
	copy(a, q)
	l = make([]float64, n*n)
	d = make([]float64, n)
	at := func(m []float64, i, j int) float64 { return m[i+j*n] }
	set := func(m []float64, i, j int, v float64) { m[i+j*n] = v }

	for i := n - 1; i >= 0; i-- {
		d[i] = at(a, i, i)
		if d[i] <= 0.0 {
			return nil, nil, newErr(ErrKindSingularMatrix, "lambda: LD factorization failed at %d", i)
		}
		ai := math.Sqrt(d[i])
		for j := 0; j <= i; j++ {
			set(l, i, j, at(a, i, j)/ai)
		}
		for j := 0; j <= i-1; j++ {
			for k := 0; k <= j; k++ {
				set(a, j, k, at(a, j, k)-at(l, i, k)*at(l, i, j))
			}
		}
		for j := 0; j <= i; j++ {
			set(l, i, j, at(l, i, j)/at(l, i, i))
		}
	}
	return l, d, nil
}

func gaussTransform(n int, l, z []float64, i, j int) {
	mu := int(roundNearest(l[i+j*n]))
	if mu == 0 {
		return
	}
	for k := i; k < n; k++ {
		l[k+n*j] -= float64(mu) * l[k+i*n]
	}
	for k := 0; k < n; k++ {
		z[k+n*j] -= float64(mu) * z[k+i*n]
	}
}

func permuteCols(n int, l, d []float64, j int, del float64, z []float64) {
	eta := d[j] / del
	lam := d[j+1] * l[j+1+j*n] / del
	d[j] = eta * d[j+1]
	d[j+1] = del
	for k := 0; k <= j-1; k++ {
		a0 := l[j+k*n]
		a1 := l[j+1+k*n]
		l[j+k*n] = -l[j+1+j*n]*a0 + a1
		l[j+1+k*n] = eta*a0 + lam*a1
	}
	l[j+1+j*n] = lam
	for k := j + 2; k < n; k++ {
		l[k+j*n], l[k+(j+1)*n] = l[k+(j+1)*n], l[k+j*n]
	}
	for k := 0; k < n; k++ {
		z[k+j*n], z[k+(j+1)*n] = z[k+(j+1)*n], z[k+j*n]
	}
}

func lambdaReduce(n int, l, d, z []float64) {
	j := n - 2
	k := n - 2
	for j >= 0 {
		if j <= k {
			for i := j + 1; i < n; i++ {
				gaussTransform(n, l, z, i, j)
			}
		}
		del := d[j] + l[j+1+j*n]*l[j+1+j*n]*d[j+1]
		if del+1e-6 < d[j+1] {
			permuteCols(n, l, d, j, del, z)
			k = j
			j = n - 2
		} else {
			j--
		}
	}
}

// mlambdaSearch returns the m best integer candidate vectors for the
// decorrelated float vector zs (n x 1) given the LD factors l, d, sorted
// ascending by sum-of-squared residual s.
func mlambdaSearch(n, m int, l, d, zs []float64) (zn [][]float64, s []float64, err error) {
	dist := make([]float64, n)
	zb := make([]float64, n)
	z := make([]float64, n)
	step := make([]float64, n)
	cand := make([][]float64, m)
	sres := make([]float64, m)

	k := n - 1
	dist[k] = 0.0
	zb[k] = zs[k]
	z[k] = roundNearest(zb[k])
	y := zb[k] - z[k]
	step[k] = sgn(y)

	maxdist := 1e99
	nn := 0
	imax := 0
	c := 0
	for ; c < searchLoopMax; c++ {
		newdist := dist[k] + y*y/d[k]
		if newdist < maxdist {
			if k != 0 {
				k--
				dist[k] = newdist
				sum := 0.0
				for i := k + 1; i < n; i++ {
					sum += (z[i] - zb[i]) * l[i+k*n]
				}
				zb[k] = zs[k] + sum
				z[k] = roundNearest(zb[k])
				y = zb[k] - z[k]
				step[k] = sgn(y)
			} else {
				if nn < m {
					cp := make([]float64, n)
					copy(cp, z)
					cand[nn] = cp
					sres[nn] = newdist
					if nn == 0 || newdist > sres[imax] {
						imax = nn
					}
					nn++
				} else {
					if newdist < sres[imax] {
						cp := make([]float64, n)
						copy(cp, z)
						cand[imax] = cp
						sres[imax] = newdist
						imax = 0
						for i := 1; i < m; i++ {
							if sres[imax] < sres[i] {
								imax = i
							}
						}
					}
					maxdist = sres[imax]
				}
				z[0] += step[0]
				y = zb[0] - z[0]
				step[0] = -step[0] - sgn(step[0])
			}
		} else {
			if k == n-1 {
				break
			}
			k++
			z[k] += step[k]
			y = zb[k] - z[k]
			step[k] = -step[k] - sgn(step[k])
		}
	}
	if c >= searchLoopMax {
		return nil, nil, newErr(ErrKindSingularMatrix, "lambda: search loop count overflow")
	}
	if nn < m {
		return nil, nil, newErr(ErrKindInsufficientSatellites, "lambda: fewer than %d integer candidates found", m)
	}
	// sort ascending by residual
	for i := 0; i < m-1; i++ {
		for j := i + 1; j < m; j++ {
			if sres[i] <= sres[j] {
				continue
			}
			sres[i], sres[j] = sres[j], sres[i]
			cand[i], cand[j] = cand[j], cand[i]
		}
	}
	return cand, sres, nil
}

// lambdaEstimate runs LD factorization, reduction and mlambda search for
// the m best integer solutions of float vector a with covariance q (both n
// long / n x n column-major), matching the teacher's top-level Lambda
// driver.
func lambdaEstimate(n, m int, a, q []float64) (candidates [][]float64, s []float64, err error) {
	l, d, err := ldFactorize(n, q)
	if err != nil {
		return nil, nil, err
	}
	z := make([]float64, n*n)
	for i := 0; i < n; i++ {
		z[i+i*n] = 1.0
	}
	lambdaReduce(n, l, d, z)

	// zs = Z' * a
	zs := make([]float64, n)
	for j := 0; j < n; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += z[i+j*n] * a[i]
		}
		zs[j] = sum
	}

	cand, s, err := mlambdaSearch(n, m, l, d, zs)
	if err != nil {
		return nil, nil, err
	}
	// F = (Z')^-1 * candidate = Z^-T candidate: each candidate is mapped
	// back by numerically solving Z' F = candidate with solveLinear (Z is
	// invertible over the integers, but a numeric solve is enough here).
	zt := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			zt.Set(i, j, z[j+i*n]) // transpose
		}
	}
	out := make([][]float64, len(cand))
	for idx, c := range cand {
		f, serr := solveLinear(zt, c)
		if serr != nil {
			return nil, nil, serr
		}
		out[idx] = f
	}
	return out, s, nil
}

// solveLinear solves a*x = b for square a by Gaussian elimination with
// partial pivoting (the unimodular Z transform is not generally symmetric,
// so Cholesky does not apply).
func solveLinear(a *Matrix, b []float64) ([]float64, error) {
	n := a.Rows
	aug := NewMatrix(n, n+1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, a.At(i, j))
		}
		aug.Set(i, n, b[i])
	}
	for col := 0; col < n; col++ {
		piv := col
		best := math.Abs(aug.At(col, col))
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug.At(r, col)); v > best {
				best, piv = v, r
			}
		}
		if best < 1e-12 {
			return nil, newErr(ErrKindSingularMatrix, "lambda: singular Z transform")
		}
		if piv != col {
			for j := 0; j <= n; j++ {
				tmp := aug.At(col, j)
				aug.Set(col, j, aug.At(piv, j))
				aug.Set(piv, j, tmp)
			}
		}
		pv := aug.At(col, col)
		for r := col + 1; r < n; r++ {
			f := aug.At(r, col) / pv
			if f == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				aug.Add(r, j, -f*aug.At(col, j))
			}
		}
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug.At(i, n)
		for j := i + 1; j < n; j++ {
			sum -= aug.At(i, j) * x[j]
		}
		x[i] = sum / aug.At(i, i)
	}
	return x, nil
}
