package disaggregate

import (
	"math"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/store"
)

// Mean predicts every appliance at its average training power. It is the
// baseline the FHMM is compared against.
type Mean struct {
	mu     sync.RWMutex
	order  []string
	sums   map[string]float64
	counts map[string]int
}

func NewMean() *Mean {
	return &Mean{
		sums:   make(map[string]float64),
		counts: make(map[string]int),
	}
}

// PartialFit accumulates the finite samples of every appliance. Repeated
// calls keep adding to the same running means.
func (m *Mean) PartialFit(trains []ApplianceTrain) error {
	if len(trains) == 0 {
		return ErrNoAppliances
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range trains {
		if _, ok := m.counts[tr.Name]; !ok {
			m.order = append(m.order, tr.Name)
			m.counts[tr.Name] = 0
		}
		for _, chunk := range tr.Chunks {
			for _, v := range chunk {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				m.sums[tr.Name] += v
				m.counts[tr.Name]++
			}
		}
		if m.counts[tr.Name] == 0 {
			log.WithFields(log.Fields{
				"APPLIANCE": tr.Name,
				"REASON":    "no usable samples",
			}).Warn("DISAGGREGATE: SKIPPING APPLIANCE")
		}
	}
	return nil
}

// trained returns the appliances with at least one sample and their means.
// Callers hold mu.
func (m *Mean) trained() ([]string, map[string]float64) {
	var names []string
	means := make(map[string]float64)
	for _, name := range m.order {
		if n := m.counts[name]; n > 0 {
			names = append(names, name)
			means[name] = m.sums[name] / float64(n)
		}
	}
	return names, means
}

func (m *Mean) Disaggregate(mains Series) (*Table, error) {
	if err := mains.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	names, means := m.trained()
	m.mu.RUnlock()
	if len(names) == 0 {
		return nil, ErrNotTrained
	}

	obs := mains.finite()
	table := newTable(obs.Index, names)
	for _, name := range names {
		power := make([]float64, obs.Len())
		for i := range power {
			power[i] = means[name]
		}
		table.Power[name] = power
		table.States[name] = make([]int, obs.Len())
	}
	return table, nil
}

func (m *Mean) DisaggregateChunks(chunks []Series) ([]*Table, error) {
	return disaggregateChunks(m, chunks)
}

func (m *Mean) Model() (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, means := m.trained()
	if len(names) == 0 {
		return Summary{}, ErrNotTrained
	}
	s := Summary{
		Algorithm: store.AlgorithmMean,
		Order:     names,
		Means:     make(map[string][]float64, len(names)),
	}
	for _, name := range m.order {
		if m.counts[name] == 0 {
			s.Skipped = append(s.Skipped, name)
		}
	}
	for name, mean := range means {
		s.Means[name] = []float64{mean}
	}
	return s, nil
}

func (m *Mean) Export() *store.MeanFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	params := make([]store.MeanParams, 0, len(m.order))
	for _, name := range m.order {
		params = append(params, store.MeanParams{
			Name:  name,
			Sum:   m.sums[name],
			Count: m.counts[name],
		})
	}
	return store.NewMeanFile(params)
}

// Import replaces all running means with those in file.
func (m *Mean) Import(file *store.MeanFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.sums = make(map[string]float64, len(file.Appliances))
	m.counts = make(map[string]int, len(file.Appliances))
	for _, a := range file.Appliances {
		if _, ok := m.counts[a.Name]; !ok {
			m.order = append(m.order, a.Name)
		}
		m.sums[a.Name] += a.Sum
		m.counts[a.Name] += a.Count
	}
}
