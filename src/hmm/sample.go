package hmm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hadz2damax/NILM/src/alias"
	"gonum.org/v1/gonum/mat"
)

// Sample draws a state path of length n from p and one Gaussian observation
// per step. The same rng seed reproduces the same trace.
func Sample(p Process, n int, rng *rand.Rand) ([]int, []float64, error) {
	if err := p.Validate(DefaultTolerance); err != nil {
		return nil, nil, fmt.Errorf("sample: %w", err)
	}
	if n <= 0 {
		return []int{}, []float64{}, nil
	}

	start, err := alias.New(p.StartProb)
	if err != nil {
		return nil, nil, fmt.Errorf("sample: start distribution: %w", err)
	}
	k := p.States()
	rows := make([]*alias.Table, k)
	for i := range k {
		rows[i], err = alias.New(mat.Row(nil, i, p.TransMat))
		if err != nil {
			return nil, nil, fmt.Errorf("sample: transition row %d: %w", i, err)
		}
	}

	states := make([]int, n)
	obs := make([]float64, n)
	s := start.Sample(rng)
	for t := range n {
		if t > 0 {
			s = rows[s].Sample(rng)
		}
		states[t] = s
		obs[t] = p.Means[s] + math.Sqrt(p.Covars[s])*rng.NormFloat64()
	}
	return states, obs, nil
}
