// Package fhmm composes independent per-appliance processes into one
// factorial process over the product of their state spaces, and maps joint
// state indices back to per-appliance states.
//
// The appliance order fixed at composition time is part of the model: joint
// index j read as a mixed-radix number with digit widths StateCounts (first
// appliance most significant) gives the state of every appliance. Kronecker
// products, the Cartesian enumeration of means and Disassemble all rely on
// that same order.
//
// The joint state space has ∏Kᵢ states and decoding costs O(T·S²) with
// S = ∏Kᵢ, so the size grows multiplicatively with every appliance added.
// Beyond a dozen or so multi-state appliances the transition matrix alone no
// longer fits comfortably in memory; keep Kᵢ at 2–3 in that regime.
package fhmm

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/hmm"
	"github.com/hadz2damax/NILM/src/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// JointVariance is the emission variance given to every joint state. It
	// only makes the joint process complete for the decoder.
	JointVariance = 5.0

	// DefaultMaxStates bounds ∏Kᵢ; an 8192×8192 transition matrix is 512 MiB.
	DefaultMaxStates = 1 << 13
)

// Component is one canonicalized appliance process and its identifier.
type Component struct {
	Name    string
	Process hmm.Process
}

// Joint is the composed process. The embedded Process has ∏Kᵢ states.
type Joint struct {
	hmm.Process

	// Order lists appliance names in composition order.
	Order []string
	// StateCounts[i] is Kᵢ for Order[i].
	StateCounts []int
	// ComponentMeans[i] holds the canonical means of Order[i].
	ComponentMeans [][]float64
}

type composeOptions struct {
	maxStates int
}

// Option configures Compose
type Option func(*composeOptions)

// WithMaxStates bounds the size of the joint state space.
func WithMaxStates(n int) Option {
	return func(o *composeOptions) {
		o.maxStates = n
	}
}

var defaultComposeOptions = composeOptions{
	maxStates: DefaultMaxStates,
}

// Compose builds the joint process of components, in slice order. Components
// with no states are skipped. The processes must already be canonical.
func Compose(components []Component, opts ...Option) (*Joint, error) {
	options := defaultComposeOptions
	for _, opt := range opts {
		opt(&options)
	}

	kept := make([]Component, 0, len(components))
	seen := make(map[string]struct{}, len(components))
	for _, c := range components {
		if c.Process.States() == 0 {
			log.WithFields(log.Fields{
				"APPLIANCE": c.Name,
			}).Warn("FHMM: SKIPPING APPLIANCE WITH NO STATES")
			continue
		}
		if _, dup := seen[c.Name]; dup {
			return nil, configErrorf("appliance %q appears twice", c.Name)
		}
		seen[c.Name] = struct{}{}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, configErrorf("no appliances to compose")
	}

	counts := make([]int, len(kept))
	for i, c := range kept {
		counts[i] = c.Process.States()
	}
	total, ok := StateSpaceSize(counts)
	if !ok || total > options.maxStates {
		return nil, configErrorf("joint state space %v exceeds limit %d", counts, options.maxStates)
	}

	pis := make([]mat.Matrix, len(kept))
	as := make([]mat.Matrix, len(kept))
	means := make([][]float64, len(kept))
	order := make([]string, len(kept))
	for i, c := range kept {
		pis[i] = matrix.RowVector(c.Process.StartProb)
		as[i] = c.Process.TransMat
		means[i] = append([]float64(nil), c.Process.Means...)
		order[i] = c.Name
	}

	joint := &Joint{
		Process: hmm.Process{
			StartProb: matrix.KronChain(pis...).RawRowView(0),
			TransMat:  matrix.KronChain(as...),
			Means:     SumCombinations(means),
			Covars:    constant(total, JointVariance),
		},
		Order:          order,
		StateCounts:    counts,
		ComponentMeans: means,
	}
	joint.check()

	log.WithFields(log.Fields{
		"APPLIANCES": len(order),
		"STATES":     total,
	}).Debug("FHMM: COMPOSED JOINT PROCESS")

	return joint, nil
}

// SumCombinations enumerates the Cartesian product of the mean vectors with
// the last vector varying fastest, matching Kronecker index order, and sums
// each combination.
func SumCombinations(means [][]float64) []float64 {
	counts := make([]int, len(means))
	for i, m := range means {
		counts[i] = len(m)
	}
	total, ok := StateSpaceSize(counts)
	if !ok {
		mismatchf("state space %v overflows", counts)
	}

	out := make([]float64, 0, total)
	digits := make([]int, len(means))
	for range total {
		var sum float64
		for i, d := range digits {
			sum += means[i][d]
		}
		out = append(out, sum)

		// odometer increment, least significant digit last
		for i := len(digits) - 1; i >= 0; i-- {
			digits[i]++
			if digits[i] < counts[i] {
				break
			}
			digits[i] = 0
		}
	}
	return out
}

// StateSpaceSize returns ∏counts. ok is false on overflow or a non-positive
// count.
func StateSpaceSize(counts []int) (int, bool) {
	total := 1
	for _, k := range counts {
		if k <= 0 || total > math.MaxInt/k {
			return 0, false
		}
		total *= k
	}
	return total, true
}

func (j *Joint) check() {
	if len(j.Order) != len(j.StateCounts) || len(j.Order) != len(j.ComponentMeans) {
		mismatchf("order has %d appliances, state counts %d, means %d",
			len(j.Order), len(j.StateCounts), len(j.ComponentMeans))
	}
	for i, m := range j.ComponentMeans {
		if len(m) != j.StateCounts[i] {
			mismatchf("appliance %q has %d means but %d states", j.Order[i], len(m), j.StateCounts[i])
		}
	}
	total, ok := StateSpaceSize(j.StateCounts)
	if !ok {
		mismatchf("state counts %v overflow", j.StateCounts)
	}
	r, c := j.TransMat.Dims()
	if len(j.StartProb) != total || len(j.Means) != total || len(j.Covars) != total || r != total || c != total {
		mismatchf("state count product %d does not match joint arrays (pi %d, A %dx%d, means %d, covars %d)",
			total, len(j.StartProb), r, c, len(j.Means), len(j.Covars))
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
