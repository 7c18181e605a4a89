// Package hmm holds the parameters of a single discrete-state Gaussian
// process (one appliance) and the operations that reorder or sample it.
package hmm

import (
	"errors"
	"fmt"
	"math"

	"github.com/hadz2damax/NILM/src/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance bounds how far a probability vector or transition row may
// drift from summing to one.
const DefaultTolerance = 1e-6

// Process is a hidden Markov process with one-dimensional Gaussian emissions.
// K = len(StartProb) is the number of power states.
type Process struct {
	StartProb []float64
	TransMat  *mat.Dense
	Means     []float64
	Covars    []float64
}

// States returns K. A zero Process has no states.
func (p Process) States() int {
	return len(p.StartProb)
}

// Validate checks the shape of all four arrays and the probability
// constraints on the initial distribution and transition rows.
func (p Process) Validate(tol float64) error {
	k := p.States()
	if k == 0 {
		return errors.New("process has no states")
	}
	if len(p.Means) != k {
		return fmt.Errorf("means has %d entries, expected %d", len(p.Means), k)
	}
	if len(p.Covars) != k {
		return fmt.Errorf("covars has %d entries, expected %d", len(p.Covars), k)
	}
	if p.TransMat == nil {
		return errors.New("transition matrix is missing")
	}
	if r, c := p.TransMat.Dims(); r != k || c != k {
		return fmt.Errorf("transition matrix is %dx%d, expected %dx%d", r, c, k, k)
	}

	for i, v := range p.StartProb {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("start probability %d is %v", i, v)
		}
	}
	if sum := floats.Sum(p.StartProb); math.Abs(sum-1) > tol {
		return fmt.Errorf("start probabilities sum to %v", sum)
	}
	if !matrix.IsRowStochastic(p.TransMat, tol) {
		return errors.New("transition matrix is not row-stochastic")
	}
	for i, v := range p.Means {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mean %d is %v", i, v)
		}
	}
	for i, v := range p.Covars {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("covariance %d is %v, must be positive", i, v)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p Process) Clone() Process {
	out := Process{
		StartProb: append([]float64(nil), p.StartProb...),
		Means:     append([]float64(nil), p.Means...),
		Covars:    append([]float64(nil), p.Covars...),
	}
	if p.TransMat != nil {
		out.TransMat = mat.DenseCopyOf(p.TransMat)
	}
	return out
}

// Constant returns the single-state process that always emits mean.
func Constant(mean, covar float64) Process {
	return Process{
		StartProb: []float64{1},
		TransMat:  mat.NewDense(1, 1, []float64{1}),
		Means:     []float64{mean},
		Covars:    []float64{covar},
	}
}

// Normalize returns a copy of p whose start probabilities and transition
// rows sum to exactly one. Rows that sum to zero are left as they are.
// Small per-process errors grow once processes are multiplied together, so
// parameters read from outside are normalized before composition.
func Normalize(p Process) Process {
	out := p.Clone()
	if s := floats.Sum(out.StartProb); s > 0 {
		floats.Scale(1/s, out.StartProb)
	}
	if out.TransMat == nil {
		return out
	}
	r, c := out.TransMat.Dims()
	row := make([]float64, c)
	for i := range r {
		mat.Row(row, i, out.TransMat)
		if s := floats.Sum(row); s > 0 {
			floats.Scale(1/s, row)
			out.TransMat.SetRow(i, row)
		}
	}
	return out
}
