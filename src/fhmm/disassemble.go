package fhmm

// Trace is the decoded behaviour of one appliance: its state and power at
// every step.
type Trace struct {
	States []int
	Power  []float64
}

// Disassemble expands every joint index into one digit per appliance.
// order[0] is the most significant digit: starting from factor = ∏counts,
// appliance i divides factor by counts[i] and takes
//
//	digit = (j / factor) % counts[i]
//
// Appliances with a single state keep their width-1 digit so later digits
// stay aligned. means[i][d] is the power of appliance i in state d.
func Disassemble(indices []int, order []string, counts []int, means [][]float64) (map[string]Trace, error) {
	if len(order) == 0 {
		return nil, configErrorf("disassemble with an empty appliance order")
	}
	if len(counts) != len(order) || len(means) != len(order) {
		mismatchf("order has %d appliances, state counts %d, means %d", len(order), len(counts), len(means))
	}
	for i, k := range counts {
		if k <= 0 {
			mismatchf("appliance %q has state count %d", order[i], k)
		}
		if len(means[i]) != k {
			mismatchf("appliance %q has %d means but %d states", order[i], len(means[i]), k)
		}
	}
	total, ok := StateSpaceSize(counts)
	if !ok {
		mismatchf("state counts %v overflow", counts)
	}

	traces := make(map[string]Trace, len(order))
	for _, name := range order {
		if _, dup := traces[name]; dup {
			mismatchf("appliance %q appears twice in order", name)
		}
		traces[name] = Trace{
			States: make([]int, len(indices)),
			Power:  make([]float64, len(indices)),
		}
	}

	for t, j := range indices {
		if j < 0 || j >= total {
			mismatchf("joint index %d at step %d is outside [0, %d)", j, t, total)
		}
		factor := total
		for i, name := range order {
			if factor%counts[i] != 0 {
				mismatchf("factor %d is not divisible by state count %d of %q", factor, counts[i], name)
			}
			factor /= counts[i]
			digit := (j / factor) % counts[i]
			if digit >= counts[i] {
				mismatchf("digit %d of %q exceeds state count %d", digit, name, counts[i])
			}
			tr := traces[name]
			tr.States[t] = digit
			tr.Power[t] = means[i][digit]
		}
		if factor != 1 {
			mismatchf("radix expansion of %d left factor %d", j, factor)
		}
	}
	return traces, nil
}

// Disassemble expands indices using the joint process's own order, state
// counts and component means.
func (j *Joint) Disassemble(indices []int) (map[string]Trace, error) {
	return Disassemble(indices, j.Order, j.StateCounts, j.ComponentMeans)
}
