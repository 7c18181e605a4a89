package alias

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewRejectsBadWeights(t *testing.T) {
	for _, w := range [][]float64{nil, {-1, 2}, {0, 0}} {
		if _, err := New(w); err == nil {
			t.Errorf("New(%v) succeeded, want error", w)
		}
	}
}

func TestSampleNeverPicksZeroWeight(t *testing.T) {
	tbl, err := New([]float64{0, 3, 0, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for range 10000 {
		if s := tbl.Sample(rng); s == 0 || s == 2 {
			t.Fatalf("sampled zero-weight outcome %d", s)
		}
	}
}

func TestSampleFrequencies(t *testing.T) {
	weights := []float64{0.1, 0.2, 0.7}
	tbl, err := New(weights)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewPCG(42, 0))

	const n = 200000
	counts := make([]int, len(weights))
	for range n {
		counts[tbl.Sample(rng)]++
	}
	for i, w := range weights {
		got := float64(counts[i]) / n
		if math.Abs(got-w) > 0.01 {
			t.Errorf("outcome %d frequency %.4f, want %.2f", i, got, w)
		}
	}
}

func TestSampleIsReproducible(t *testing.T) {
	tbl, err := New([]float64{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := rand.New(rand.NewPCG(7, 7))
	b := rand.New(rand.NewPCG(7, 7))
	for range 100 {
		if tbl.Sample(a) != tbl.Sample(b) {
			t.Fatal("same seed produced different samples")
		}
	}
}

func TestBucketsPreserveMass(t *testing.T) {
	weights := []float64{5, 0, 1, 2, 0.5}
	tbl, err := New(weights)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tbl.Len() != len(weights) {
		t.Fatalf("Len = %d, want %d", tbl.Len(), len(weights))
	}

	// Each bucket holds 1/n of the draws; the exact share of every outcome
	// must match its normalized weight.
	n := float64(tbl.Len())
	share := make([]float64, len(weights))
	for i, b := range tbl.buckets {
		share[i] += b.keep / n
		share[b.other] += (1 - b.keep) / n
	}
	for i, w := range weights {
		if want := w / 8.5; math.Abs(share[i]-want) > 1e-12 {
			t.Errorf("outcome %d share %.6f, want %.6f", i, share[i], want)
		}
	}
}
