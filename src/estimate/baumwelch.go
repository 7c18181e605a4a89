// Package estimate fits a single appliance's Gaussian hidden Markov process
// from its own power trace.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/cluster"
	"github.com/hadz2damax/NILM/src/hmm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrEmptySequence is returned for a sequence with no samples. Callers skip
// the appliance rather than retry.
var ErrEmptySequence = errors.New("estimate: empty sequence")

// BaumWelch fits a process by expectation maximisation with scaled
// forward-backward passes.
type BaumWelch struct {
	// MaxIter caps the number of EM iterations.
	MaxIter int
	// Tol stops iterating once the log-likelihood gain drops below it.
	Tol float64
	// MinCovar is added to every variance to keep emissions proper.
	MinCovar float64
}

func NewBaumWelch() *BaumWelch {
	return &BaumWelch{
		MaxIter:  10,
		Tol:      1e-2,
		MinCovar: 1e-3,
	}
}

// Estimate fits a process with the requested number of states to seq. The
// count is lowered to the number of distinct values in seq when it exceeds
// it. seed drives the k-means initialisation of the means.
func (bw *BaumWelch) Estimate(seq []float64, states int, seed uint64) (hmm.Process, error) {
	if len(seq) == 0 {
		return hmm.Process{}, ErrEmptySequence
	}
	if states < 1 {
		return hmm.Process{}, fmt.Errorf("estimate: invalid state count %d", states)
	}
	for i, v := range seq {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return hmm.Process{}, fmt.Errorf("estimate: sample %d is %v", i, v)
		}
	}

	if d := distinct(seq); states > d {
		log.WithFields(log.Fields{
			"REQUESTED": states,
			"DISTINCT":  d,
		}).Debug("ESTIMATE: LOWERING STATE COUNT")
		states = d
	}

	_, variance := stat.PopMeanVariance(seq, nil)
	covar := variance + bw.MinCovar

	if states == 1 {
		return hmm.Constant(stat.Mean(seq, nil), covar), nil
	}

	init, _ := cluster.KMeans(seq, states, rand.New(rand.NewPCG(seed, 0)))
	p := hmm.Process{
		StartProb: uniform(states),
		TransMat:  mat.NewDense(states, states, nil),
		Means:     init,
		Covars:    make([]float64, states),
	}
	for i := range states {
		p.TransMat.SetRow(i, uniform(states))
		p.Covars[i] = covar
	}

	w := newWorkspace(len(seq), states)
	prev := math.Inf(-1)
	for iter := range bw.MaxIter {
		ll, ok := w.expect(p, seq)
		if !ok {
			log.WithFields(log.Fields{
				"ITERATION": iter,
			}).Warn("ESTIMATE: FORWARD PASS UNDERFLOWED, KEEPING PREVIOUS PARAMETERS")
			break
		}
		w.maximise(&p, seq, bw.MinCovar)

		log.WithFields(log.Fields{
			"ITERATION":   iter,
			"LOGLIKE":     ll,
			"IMPROVEMENT": ll - prev,
		}).Debug("ESTIMATE: EM STEP")
		if ll-prev < bw.Tol {
			break
		}
		prev = ll
	}
	return p, nil
}

type workspace struct {
	n, k  int
	b     []float64 // scaled emission densities, n*k
	alpha []float64
	beta  []float64
	scale []float64
	gamma []float64
	xi    []float64 // summed over time, k*k
}

func newWorkspace(n, k int) *workspace {
	return &workspace{
		n:     n,
		k:     k,
		b:     make([]float64, n*k),
		alpha: make([]float64, n*k),
		beta:  make([]float64, n*k),
		scale: make([]float64, n),
		gamma: make([]float64, n*k),
		xi:    make([]float64, k*k),
	}
}

// expect runs the E step and returns the log-likelihood of seq under p.
func (w *workspace) expect(p hmm.Process, seq []float64) (float64, bool) {
	n, k := w.n, w.k

	dists := make([]distuv.Normal, k)
	for i := range k {
		dists[i] = distuv.Normal{Mu: p.Means[i], Sigma: math.Sqrt(p.Covars[i])}
	}

	// Emissions are shifted by the per-step maximum log density so the largest
	// is exactly 1; the shift is added back into the likelihood.
	var ll float64
	logb := make([]float64, k)
	for t, x := range seq {
		for i := range k {
			logb[i] = dists[i].LogProb(x)
		}
		m := floats.Max(logb)
		for i := range k {
			w.b[t*k+i] = math.Exp(logb[i] - m)
		}
		ll += m
	}

	a := p.TransMat
	for i := range k {
		w.alpha[i] = p.StartProb[i] * w.b[i]
	}
	for t := range n {
		row := w.alpha[t*k : (t+1)*k]
		if t > 0 {
			prev := w.alpha[(t-1)*k : t*k]
			for j := range k {
				var s float64
				for i := range k {
					s += prev[i] * a.At(i, j)
				}
				row[j] = s * w.b[t*k+j]
			}
		}
		c := floats.Sum(row)
		if !(c > 0) {
			return 0, false
		}
		floats.Scale(1/c, row)
		w.scale[t] = c
		ll += math.Log(c)
	}

	last := w.beta[(n-1)*k:]
	for i := range last {
		last[i] = 1
	}
	for t := n - 2; t >= 0; t-- {
		for i := range k {
			var s float64
			for j := range k {
				s += a.At(i, j) * w.b[(t+1)*k+j] * w.beta[(t+1)*k+j]
			}
			w.beta[t*k+i] = s / w.scale[t+1]
		}
	}

	for t := range n {
		g := w.gamma[t*k : (t+1)*k]
		for i := range k {
			g[i] = w.alpha[t*k+i] * w.beta[t*k+i]
		}
		if s := floats.Sum(g); s > 0 {
			floats.Scale(1/s, g)
		}
	}

	clear(w.xi)
	for t := 0; t < n-1; t++ {
		for i := range k {
			ai := w.alpha[t*k+i]
			if ai == 0 {
				continue
			}
			for j := range k {
				w.xi[i*k+j] += ai * a.At(i, j) * w.b[(t+1)*k+j] * w.beta[(t+1)*k+j] / w.scale[t+1]
			}
		}
	}
	return ll, true
}

// maximise replaces p's parameters with their re-estimates. Rows or states
// that received no probability mass keep their previous values.
func (w *workspace) maximise(p *hmm.Process, seq []float64, minCovar float64) {
	k := w.k

	copy(p.StartProb, w.gamma[:k])
	normalise(p.StartProb)

	for i := range k {
		row := w.xi[i*k : (i+1)*k]
		if s := floats.Sum(row); s > 0 {
			next := make([]float64, k)
			floats.ScaleTo(next, 1/s, row)
			p.TransMat.SetRow(i, next)
		}
	}

	for i := range k {
		var wsum, xsum float64
		for t, x := range seq {
			g := w.gamma[t*k+i]
			wsum += g
			xsum += g * x
		}
		if wsum <= 0 {
			continue
		}
		mean := xsum / wsum
		var vsum float64
		for t, x := range seq {
			d := x - mean
			vsum += w.gamma[t*k+i] * d * d
		}
		p.Means[i] = mean
		p.Covars[i] = vsum/wsum + minCovar
	}
}

func uniform(k int) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = 1 / float64(k)
	}
	return out
}

func normalise(v []float64) {
	if s := floats.Sum(v); s > 0 {
		floats.Scale(1/s, v)
	}
}

func distinct(seq []float64) int {
	seen := make(map[float64]struct{})
	for _, v := range seq {
		seen[v] = struct{}{}
	}
	return len(seen)
}
