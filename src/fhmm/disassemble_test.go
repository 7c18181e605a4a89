package fhmm

import (
	"errors"
	"testing"
)

func TestDisassembleHandComputedDigits(t *testing.T) {
	// K=[2,3], j=4 -> d1 = 4/3 = 1, d2 = 4%3 = 1
	traces, err := Disassemble([]int{4}, []string{"a", "b"}, []int{2, 3},
		[][]float64{{0, 100}, {0, 10, 20}})
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if d := traces["a"].States[0]; d != 1 {
		t.Errorf("a digit = %d, want 1", d)
	}
	if d := traces["b"].States[0]; d != 1 {
		t.Errorf("b digit = %d, want 1", d)
	}
	if p := traces["a"].Power[0] + traces["b"].Power[0]; p != 110 {
		t.Errorf("total power = %v, want 110", p)
	}
}

func TestDisassembleInvertsComposition(t *testing.T) {
	j, err := Compose([]Component{
		{Name: "a", Process: twoState(0, 100)},
		{Name: "b", Process: threeState()},
		{Name: "c", Process: twoState(0, 7)},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	all := make([]int, j.States())
	for i := range all {
		all[i] = i
	}
	traces, err := j.Disassemble(all)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	for idx := range all {
		var sum float64
		for _, name := range j.Order {
			sum += traces[name].Power[idx]
		}
		if sum != j.Means[idx] {
			t.Fatalf("joint %d: component powers sum to %v, joint mean is %v", idx, sum, j.Means[idx])
		}
	}
}

func TestDisassembleKeepsSingleStateDigit(t *testing.T) {
	traces, err := Disassemble([]int{0, 1, 2, 3}, []string{"a", "fridge", "b"}, []int{2, 1, 2},
		[][]float64{{0, 100}, {42}, {0, 50}})
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	wantA := []int{0, 0, 1, 1}
	wantB := []int{0, 1, 0, 1}
	for i := range wantA {
		if traces["a"].States[i] != wantA[i] || traces["b"].States[i] != wantB[i] {
			t.Fatalf("step %d: a=%d b=%d, want a=%d b=%d", i,
				traces["a"].States[i], traces["b"].States[i], wantA[i], wantB[i])
		}
		if traces["fridge"].States[i] != 0 || traces["fridge"].Power[i] != 42 {
			t.Fatalf("step %d: single-state appliance decoded as %d/%v", i,
				traces["fridge"].States[i], traces["fridge"].Power[i])
		}
	}
}

func TestDisassembleEmptyIndices(t *testing.T) {
	traces, err := Disassemble(nil, []string{"a"}, []int{2}, [][]float64{{0, 1}})
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if tr, ok := traces["a"]; !ok || len(tr.States) != 0 || len(tr.Power) != 0 {
		t.Fatalf("got %+v, want empty trace for a", traces)
	}
}

func TestDisassembleEmptyOrderIsConfigurationError(t *testing.T) {
	_, err := Disassemble([]int{0}, nil, nil, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestDisassemblePanicsOnMismatch(t *testing.T) {
	cases := map[string]func(){
		"index out of range": func() {
			Disassemble([]int{6}, []string{"a", "b"}, []int{2, 3}, [][]float64{{0, 1}, {0, 1, 2}})
		},
		"negative index": func() {
			Disassemble([]int{-1}, []string{"a"}, []int{2}, [][]float64{{0, 1}})
		},
		"counts length": func() {
			Disassemble([]int{0}, []string{"a", "b"}, []int{2}, [][]float64{{0, 1}, {0}})
		},
		"means length": func() {
			Disassemble([]int{0}, []string{"a"}, []int{2}, [][]float64{{0}})
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if _, ok := r.(*DimensionMismatchError); !ok {
					t.Fatalf("recovered %v, want *DimensionMismatchError", r)
				}
			}()
			fn()
		})
	}
}
