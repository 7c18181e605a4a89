package fhmm

import (
	"errors"
	"testing"

	"github.com/hadz2damax/NILM/src/hmm"
	"github.com/hadz2damax/NILM/src/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func twoState(off, on float64) hmm.Process {
	return hmm.Process{
		StartProb: []float64{0.6, 0.4},
		TransMat:  mat.NewDense(2, 2, []float64{0.95, 0.05, 0.1, 0.9}),
		Means:     []float64{off, on},
		Covars:    []float64{1, 1},
	}
}

func threeState() hmm.Process {
	return hmm.Process{
		StartProb: []float64{0.5, 0.3, 0.2},
		TransMat: mat.NewDense(3, 3, []float64{
			0.8, 0.1, 0.1,
			0.2, 0.6, 0.2,
			0.1, 0.1, 0.8,
		}),
		Means:  []float64{0, 20, 1500},
		Covars: []float64{1, 4, 9},
	}
}

func TestComposeTrivialSingleStates(t *testing.T) {
	j, err := Compose([]Component{
		{Name: "a", Process: hmm.Constant(7, 1)},
		{Name: "b", Process: hmm.Constant(11, 1)},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if j.States() != 1 {
		t.Fatalf("states = %d, want 1", j.States())
	}
	if j.Means[0] != 18 {
		t.Fatalf("mean = %v, want 18", j.Means[0])
	}
	if !mat.Equal(j.TransMat, mat.NewDense(1, 1, []float64{1})) {
		t.Fatalf("A = %v, want [[1]]", mat.Formatted(j.TransMat))
	}
}

func TestComposeJointMeansOrder(t *testing.T) {
	j, err := Compose([]Component{
		{Name: "A", Process: twoState(0, 100)},
		{Name: "B", Process: twoState(0, 50)},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := []float64{0, 50, 100, 150}
	if !floats.Equal(j.Means, want) {
		t.Fatalf("means = %v, want %v", j.Means, want)
	}
	if len(j.Order) != 2 || j.Order[0] != "A" || j.Order[1] != "B" {
		t.Fatalf("order = %v", j.Order)
	}
}

// The Kronecker index of (a, b) must be the same as the Cartesian index, so
// pi[j] = piA[j/Kb] * piB[j%Kb] and means[j] = meanA[j/Kb] + meanB[j%Kb].
func TestComposeKroneckerMatchesCartesian(t *testing.T) {
	a, b := twoState(0, 100), threeState()
	j, err := Compose([]Component{{Name: "a", Process: a}, {Name: "b", Process: b}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	kb := b.States()
	for idx := range j.States() {
		da, db := idx/kb, idx%kb
		if got, want := j.StartProb[idx], a.StartProb[da]*b.StartProb[db]; !scalar.EqualWithinAbs(got, want, 1e-15) {
			t.Errorf("pi[%d] = %v, want %v", idx, got, want)
		}
		if got, want := j.Means[idx], a.Means[da]+b.Means[db]; got != want {
			t.Errorf("mean[%d] = %v, want %v", idx, got, want)
		}
		for to := range j.States() {
			ta, tb := to/kb, to%kb
			want := a.TransMat.At(da, ta) * b.TransMat.At(db, tb)
			if got := j.TransMat.At(idx, to); !scalar.EqualWithinAbs(got, want, 1e-15) {
				t.Errorf("A[%d][%d] = %v, want %v", idx, to, got, want)
			}
		}
	}
}

func TestComposeIsStochastic(t *testing.T) {
	j, err := Compose([]Component{
		{Name: "a", Process: twoState(0, 100)},
		{Name: "b", Process: threeState()},
		{Name: "c", Process: hmm.Constant(3, 1)},
		{Name: "d", Process: twoState(0, 60)},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if j.States() != 12 {
		t.Fatalf("states = %d, want 12", j.States())
	}
	if sum := floats.Sum(j.StartProb); !scalar.EqualWithinAbs(sum, 1, 1e-12) {
		t.Fatalf("pi sums to %v", sum)
	}
	if !matrix.IsRowStochastic(j.TransMat, 1e-12) {
		t.Fatal("joint transition matrix is not row-stochastic")
	}
	for i, c := range j.Covars {
		if c != JointVariance {
			t.Fatalf("covar[%d] = %v, want %v", i, c, JointVariance)
		}
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	comps := []Component{
		{Name: "a", Process: twoState(0, 100)},
		{Name: "b", Process: threeState()},
	}
	j1, err := Compose(comps)
	if err != nil {
		t.Fatal(err)
	}
	j2, err := Compose(comps)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(j1.StartProb, j2.StartProb) || !floats.Equal(j1.Means, j2.Means) ||
		!floats.Equal(j1.Covars, j2.Covars) || !mat.Equal(j1.TransMat, j2.TransMat) {
		t.Fatal("composition is not bit-identical across runs")
	}
}

func TestComposeSkipsEmptyComponents(t *testing.T) {
	j, err := Compose([]Component{
		{Name: "empty", Process: hmm.Process{}},
		{Name: "b", Process: threeState()},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(j.Order) != 1 || j.Order[0] != "b" || j.States() != 3 {
		t.Fatalf("order = %v, states = %d", j.Order, j.States())
	}
}

func TestComposeConfigurationErrors(t *testing.T) {
	cases := map[string][]Component{
		"none":      nil,
		"all empty": {{Name: "x", Process: hmm.Process{}}},
		"duplicate": {{Name: "x", Process: twoState(0, 1)}, {Name: "x", Process: twoState(0, 2)}},
	}
	for name, comps := range cases {
		_, err := Compose(comps)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: err = %v, want ConfigurationError", name, err)
		}
	}
}

func TestComposeRespectsMaxStates(t *testing.T) {
	comps := []Component{
		{Name: "a", Process: threeState()},
		{Name: "b", Process: threeState()},
	}
	_, err := Compose(comps, WithMaxStates(8))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if _, err := Compose(comps, WithMaxStates(9)); err != nil {
		t.Fatalf("9 states should fit: %v", err)
	}
}

func TestStateSpaceSize(t *testing.T) {
	if n, ok := StateSpaceSize([]int{2, 3, 1}); !ok || n != 6 {
		t.Fatalf("got %d, %v", n, ok)
	}
	if _, ok := StateSpaceSize([]int{2, 0}); ok {
		t.Fatal("zero count should fail")
	}
	huge := make([]int, 80)
	for i := range huge {
		huge[i] = 2
	}
	if _, ok := StateSpaceSize(huge); ok {
		t.Fatal("2^80 should overflow")
	}
}

func TestSumCombinations(t *testing.T) {
	got := SumCombinations([][]float64{{0, 10}, {0}, {1, 2, 3}})
	want := []float64{1, 2, 3, 11, 12, 13}
	if !floats.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
