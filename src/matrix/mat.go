package matrix

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

/*
Function Structure
- Assertions (dimension violations panic, they are programming errors)
- Calculation
*/

// RowVector copies v into a 1×len(v) matrix so that vectors can take part in
// the same Kronecker chain as square matrices.
func RowVector(v []float64) *mat.Dense {
	if len(v) == 0 {
		panic(fmt.Errorf("row vector must have at least one element"))
	}
	data := make([]float64, len(v))
	copy(data, v)
	return mat.NewDense(1, len(v), data)
}

// KronChain computes ms[0] ⊗ ms[1] ⊗ ... ⊗ ms[n-1], folding from the left.
// The last factor varies fastest in the index of the result.
func KronChain(ms ...mat.Matrix) *mat.Dense {
	if len(ms) == 0 {
		panic(fmt.Errorf("kronecker chain needs at least one factor"))
	}

	acc := mat.DenseCopyOf(ms[0])
	for _, m := range ms[1:] {
		next := &mat.Dense{}
		next.Kronecker(acc, m)
		acc = next
	}
	return acc
}

/* Permute returns B with B[i][j] = A[perm[i]][perm[j]] */
func Permute(a mat.Matrix, perm []int) *mat.Dense {
	r, c := a.Dims()
	if r != c {
		panic(fmt.Errorf("permuted matrix must be square, got %dx%d", r, c))
	}
	if len(perm) != r {
		panic(fmt.Errorf("permutation length %d does not match matrix order %d", len(perm), r))
	}

	out := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			out.Set(i, j, a.At(perm[i], perm[j]))
		}
	}
	return out
}

func RowSums(a mat.Matrix) []float64 {
	r, c := a.Dims()
	sums := make([]float64, r)
	for i := range r {
		for j := range c {
			sums[i] += a.At(i, j)
		}
	}
	return sums
}

// IsRowStochastic reports whether every entry is non-negative and every row
// sums to one within tol.
func IsRowStochastic(a mat.Matrix, tol float64) bool {
	r, c := a.Dims()
	if r == 0 || r != c {
		return false
	}
	for i := range r {
		var sum float64
		for j := range c {
			v := a.At(i, j)
			if v < 0 {
				return false
			}
			sum += v
		}
		if sum < 1-tol || sum > 1+tol {
			return false
		}
	}
	return true
}

// FromRows builds a dense matrix from a rectangular row slice.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("matrix must have at least one row")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, errors.New("matrix must have at least one column")
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

func ToRows(a mat.Matrix) [][]float64 {
	r, c := a.Dims()
	rows := make([][]float64, r)
	for i := range r {
		rows[i] = make([]float64, c)
		for j := range c {
			rows[i][j] = a.At(i, j)
		}
	}
	return rows
}
