// Package alias draws from a fixed discrete distribution in constant time.
package alias

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// bucket keeps its own outcome with probability keep and hands the rest of
// its draws to other.
type bucket struct {
	keep  float64
	other int
}

// Table is a Vose alias table. Each of the n buckets carries mass 1/n split
// between at most two outcomes.
type Table struct {
	buckets []bucket
}

// New builds a table over weights, which need not sum to one.
func New(weights []float64) (*Table, error) {
	if len(weights) == 0 {
		return nil, errors.New("alias: no weights")
	}
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.New("alias: weights must be finite and non-negative")
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, errors.New("alias: weights sum to zero")
	}

	n := len(weights)
	mass := make([]float64, n)
	floats.ScaleTo(mass, float64(n)/total, weights)

	// Under-full buckets are topped up from over-full ones until one side
	// runs out.
	var under, over []int
	for i, m := range mass {
		if m < 1 {
			under = append(under, i)
		} else {
			over = append(over, i)
		}
	}

	buckets := make([]bucket, n)
	for len(under) > 0 && len(over) > 0 {
		u := under[0]
		under = under[1:]
		o := over[len(over)-1]

		buckets[u] = bucket{keep: mass[u], other: o}
		mass[o] -= 1 - mass[u]
		if mass[o] < 1 {
			over = over[:len(over)-1]
			under = append(under, o)
		}
	}
	// Whatever remains is full up to rounding.
	for _, i := range append(under, over...) {
		buckets[i] = bucket{keep: 1, other: i}
	}
	return &Table{buckets: buckets}, nil
}

// Len returns the number of outcomes.
func (t *Table) Len() int {
	return len(t.buckets)
}

// Sample draws an outcome using rng.
func (t *Table) Sample(rng *rand.Rand) int {
	i := rng.IntN(len(t.buckets))
	if b := t.buckets[i]; rng.Float64() >= b.keep {
		return b.other
	}
	return i
}
