package fhmm

import (
	"fmt"

	"github.com/hadz2damax/NILM/src/hmm"
)

// Decoder finds the most likely hidden state sequence of p for obs. The
// returned slice has one state index in [0, p.States()) per observation.
type Decoder interface {
	MostLikelyStates(p hmm.Process, obs []float64) ([]int, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(p hmm.Process, obs []float64) ([]int, error)

func (f DecoderFunc) MostLikelyStates(p hmm.Process, obs []float64) ([]int, error) {
	return f(p, obs)
}

// Decode runs dec over the joint process and checks that every returned
// index addresses a joint state. An empty observation sequence decodes to an
// empty sequence without calling dec.
func Decode(dec Decoder, j *Joint, obs []float64) ([]int, error) {
	if j == nil {
		return nil, configErrorf("decode without a joint process")
	}
	if len(obs) == 0 {
		return []int{}, nil
	}

	states, err := dec.MostLikelyStates(j.Process, obs)
	if err != nil {
		return nil, fmt.Errorf("decode joint states: %w", err)
	}

	if len(states) != len(obs) {
		mismatchf("decoder returned %d states for %d observations", len(states), len(obs))
	}
	total := j.Process.States()
	for t, s := range states {
		if s < 0 || s >= total {
			mismatchf("decoded state %d at step %d is outside [0, %d)", s, t, total)
		}
	}
	return states, nil
}
