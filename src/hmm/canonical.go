package hmm

import (
	"sort"

	"github.com/hadz2damax/NILM/src/matrix"
	"gonum.org/v1/gonum/mat"
)

// Permutation maps a new state index to the original state index it was
// taken from: new state i is old state p[i].
type Permutation []int

// SortingPermutation orders states by ascending mean. Equal means keep their
// original relative order, so the result is deterministic.
func SortingPermutation(means []float64) Permutation {
	perm := make(Permutation, len(means))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return means[perm[a]] < means[perm[b]]
	})
	return perm
}

// ApplyVector returns v reordered so that out[i] = v[p[i]].
func (p Permutation) ApplyVector(v []float64) []float64 {
	if len(v) != len(p) {
		panic("permutation applied to vector of different length")
	}
	out := make([]float64, len(v))
	for i, src := range p {
		out[i] = v[src]
	}
	return out
}

// ApplyMatrix permutes both axes of a: out[i][j] = a[p[i]][p[j]].
func (p Permutation) ApplyMatrix(a mat.Matrix) *mat.Dense {
	return matrix.Permute(a, p)
}

func (p Permutation) IsIdentity() bool {
	for i, src := range p {
		if i != src {
			return false
		}
	}
	return true
}

// Canonicalize reorders the states of p by ascending mean and applies the same
// permutation to the start probabilities, both axes of the transition matrix
// and the covariances. It must run once per process: the permutation is only
// the identity when the means are already sorted.
//
// A process with no states is returned as is; callers leave it out of any
// composition.
func Canonicalize(p Process) Process {
	if p.States() == 0 {
		return p
	}

	perm := SortingPermutation(p.Means)
	return Process{
		StartProb: perm.ApplyVector(p.StartProb),
		TransMat:  perm.ApplyMatrix(p.TransMat),
		Means:     perm.ApplyVector(p.Means),
		Covars:    perm.ApplyVector(p.Covars),
	}
}

// IsCanonical reports whether the means are non-decreasing.
func IsCanonical(p Process) bool {
	return sort.Float64sAreSorted(p.Means)
}
