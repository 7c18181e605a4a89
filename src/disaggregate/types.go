// Package disaggregate trains per-appliance models from submetered power and
// splits a mains series into per-appliance predictions.
package disaggregate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotTrained is returned by Disaggregate before a model exists.
	ErrNotTrained = errors.New("disaggregate: model not trained")
	// ErrNoAppliances is returned when training is given no appliances.
	ErrNoAppliances = errors.New("disaggregate: no appliances to train")
)

// Series is a mains power sequence. Index is optional; when set it holds one
// timestamp per value.
type Series struct {
	Index  []time.Time `json:"index,omitempty"`
	Values []float64   `json:"values"`
}

func (s Series) Len() int {
	return len(s.Values)
}

func (s Series) Validate() error {
	if s.Index != nil && len(s.Index) != len(s.Values) {
		return fmt.Errorf("disaggregate: series has %d timestamps for %d values", len(s.Index), len(s.Values))
	}
	return nil
}

// finite returns s without NaN or infinite samples.
func (s Series) finite() Series {
	out := Series{Values: make([]float64, 0, len(s.Values))}
	if s.Index != nil {
		out.Index = make([]time.Time, 0, len(s.Index))
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Values = append(out.Values, v)
		if s.Index != nil {
			out.Index = append(out.Index, s.Index[i])
		}
	}
	return out
}

// Table holds one predicted power column (and decoded state column) per
// appliance, row-aligned with Index.
type Table struct {
	Index   []time.Time          `json:"index,omitempty"`
	Columns []string             `json:"columns"`
	Power   map[string][]float64 `json:"power"`
	States  map[string][]int     `json:"states"`
}

func newTable(index []time.Time, columns []string) *Table {
	t := &Table{
		Index:   index,
		Columns: append([]string(nil), columns...),
		Power:   make(map[string][]float64, len(columns)),
		States:  make(map[string][]int, len(columns)),
	}
	for _, c := range columns {
		t.Power[c] = []float64{}
		t.States[c] = []int{}
	}
	return t
}

// Rows is the number of predicted samples.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Power[t.Columns[0]])
}

// ApplianceTrain is the submetered training data of one appliance. Chunks
// are concatenated in order before fitting.
type ApplianceTrain struct {
	Name   string      `json:"name"`
	Chunks [][]float64 `json:"chunks"`
}

// Summary describes a trained model.
type Summary struct {
	Algorithm   string               `json:"algorithm"`
	Order       []string             `json:"order"`
	StateCounts []int                `json:"stateCounts,omitempty"`
	JointStates int                  `json:"jointStates,omitempty"`
	Skipped     []string             `json:"skipped,omitempty"`
	Means       map[string][]float64 `json:"means"`
}

// Disaggregator is implemented by every disaggregation algorithm.
type Disaggregator interface {
	PartialFit(trains []ApplianceTrain) error
	Disaggregate(mains Series) (*Table, error)
	DisaggregateChunks(chunks []Series) ([]*Table, error)
	Model() (Summary, error)
}

func disaggregateChunks(d Disaggregator, chunks []Series) ([]*Table, error) {
	out := make([]*Table, 0, len(chunks))
	for i, c := range chunks {
		t, err := d.Disaggregate(c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
