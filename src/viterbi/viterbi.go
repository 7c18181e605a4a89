// Package viterbi decodes the most likely hidden state path of a process
// with one-dimensional Gaussian emissions.
package viterbi

import (
	"fmt"
	"math"

	"github.com/hadz2damax/NILM/src/hmm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Decoder runs the log-space Viterbi recursion. With S states and T
// observations it takes O(T·S²) time and O(T·S) memory for back pointers.
// Ties go to the lowest state index.
type Decoder struct{}

func (Decoder) MostLikelyStates(p hmm.Process, obs []float64) ([]int, error) {
	if len(obs) == 0 {
		return []int{}, nil
	}
	if err := p.Validate(hmm.DefaultTolerance); err != nil {
		return nil, fmt.Errorf("viterbi: %w", err)
	}
	for t, x := range obs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("viterbi: observation %d is %v", t, x)
		}
	}

	s := p.States()
	n := len(obs)

	emit := make([]distuv.Normal, s)
	for i := range s {
		emit[i] = distuv.Normal{Mu: p.Means[i], Sigma: math.Sqrt(p.Covars[i])}
	}

	// logA[from*s+to]
	logA := make([]float64, s*s)
	for from := range s {
		for to := range s {
			logA[from*s+to] = math.Log(p.TransMat.At(from, to))
		}
	}

	delta := make([]float64, s)
	next := make([]float64, s)
	back := make([]int, n*s)

	for i := range s {
		delta[i] = math.Log(p.StartProb[i]) + emit[i].LogProb(obs[0])
	}

	for t := 1; t < n; t++ {
		row := back[t*s : (t+1)*s]
		for to := range s {
			best := math.Inf(-1)
			bestFrom := 0
			for from := range s {
				if v := delta[from] + logA[from*s+to]; v > best {
					best = v
					bestFrom = from
				}
			}
			next[to] = best + emit[to].LogProb(obs[t])
			row[to] = bestFrom
		}
		delta, next = next, delta
	}

	path := make([]int, n)
	path[n-1] = floats.MaxIdx(delta)
	for t := n - 1; t > 0; t-- {
		path[t-1] = back[t*s+path[t]]
	}
	return path, nil
}
