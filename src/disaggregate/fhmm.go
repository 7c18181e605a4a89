package disaggregate

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hadz2damax/NILM/src/cluster"
	"github.com/hadz2damax/NILM/src/estimate"
	"github.com/hadz2damax/NILM/src/fhmm"
	"github.com/hadz2damax/NILM/src/hmm"
	"github.com/hadz2damax/NILM/src/matrix"
	"github.com/hadz2damax/NILM/src/metrics"
	"github.com/hadz2damax/NILM/src/store"
	"github.com/hadz2damax/NILM/src/viterbi"
)

const (
	DefaultSeed               = 42
	DefaultApplianceThreshold = 12
)

// Estimator fits one appliance process from its own power sequence. It
// returns estimate.ErrEmptySequence for a sequence without samples.
type Estimator interface {
	Estimate(seq []float64, states int, seed uint64) (hmm.Process, error)
}

// StateCounter proposes the power levels of an appliance; their number is
// used as the state count.
type StateCounter interface {
	EstimateStateCount(seq []float64, maxClusters int, seed uint64) ([]float64, error)
}

type fhmmOptions struct {
	numStates          int
	seed               uint64
	applianceThreshold int
	maxJointStates     int
	estimator          Estimator
	counter            StateCounter
	decoder            fhmm.Decoder
	metrics            *metrics.Metrics
}

// Option configures an FHMM
type Option func(*fhmmOptions)

// WithNumStates fixes the state count of every appliance. Zero lets the
// state counter choose. Above the appliance threshold the count is capped at
// two, as clustered counts are.
func WithNumStates(n int) Option {
	return func(o *fhmmOptions) {
		o.numStates = n
	}
}

func WithSeed(seed uint64) Option {
	return func(o *fhmmOptions) {
		o.seed = seed
	}
}

// WithApplianceThreshold sets the appliance count above which every
// appliance is limited to two states.
func WithApplianceThreshold(n int) Option {
	return func(o *fhmmOptions) {
		o.applianceThreshold = n
	}
}

func WithMaxJointStates(n int) Option {
	return func(o *fhmmOptions) {
		o.maxJointStates = n
	}
}

func WithEstimator(e Estimator) Option {
	return func(o *fhmmOptions) {
		o.estimator = e
	}
}

func WithStateCounter(c StateCounter) Option {
	return func(o *fhmmOptions) {
		o.counter = c
	}
}

func WithDecoder(d fhmm.Decoder) Option {
	return func(o *fhmmOptions) {
		o.decoder = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *fhmmOptions) {
		o.metrics = m
	}
}

var defaultFHMMOptions = fhmmOptions{
	numStates:          0,
	seed:               DefaultSeed,
	applianceThreshold: DefaultApplianceThreshold,
	maxJointStates:     fhmm.DefaultMaxStates,
}

// model is immutable once published.
type model struct {
	components []fhmm.Component
	joint      *fhmm.Joint
	skipped    []string
}

// FHMM is the exact factorial HMM disaggregator. Training builds a new model
// and swaps it in; disaggregation always sees a complete model, so the two
// may run concurrently.
type FHMM struct {
	opts fhmmOptions

	fitMu   sync.Mutex
	current atomic.Pointer[model]
}

func NewFHMM(opts ...Option) *FHMM {
	options := defaultFHMMOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.estimator == nil {
		options.estimator = estimate.NewBaumWelch()
	}
	if options.counter == nil {
		options.counter = cluster.Counter{}
	}
	if options.decoder == nil {
		options.decoder = viterbi.Decoder{}
	}
	return &FHMM{opts: options}
}

// PartialFit trains one process per appliance and composes them. Appliances
// without usable samples are skipped and reported in Summary.Skipped. The
// previous model stays in place if training fails.
func (f *FHMM) PartialFit(trains []ApplianceTrain) error {
	if len(trains) == 0 {
		return ErrNoAppliances
	}

	f.fitMu.Lock()
	defer f.fitMu.Unlock()

	start := time.Now()

	maxClusters := 3
	if len(trains) > f.opts.applianceThreshold {
		maxClusters = 2
	}
	fixed := f.opts.numStates
	if maxClusters == 2 && fixed > 2 {
		log.WithFields(log.Fields{
			"APPLIANCES": len(trains),
			"THRESHOLD":  f.opts.applianceThreshold,
			"STATES":     fixed,
		}).Warn("DISAGGREGATE: TOO MANY APPLIANCES, USING TWO STATES EACH")
		fixed = 2
	}

	var (
		components []fhmm.Component
		skipped    []string
	)
	for i, tr := range trains {
		seq := concatFinite(tr.Chunks)
		if len(seq) == 0 {
			f.skip(tr.Name, "no usable samples")
			skipped = append(skipped, tr.Name)
			continue
		}

		states := fixed
		if states <= 0 {
			levels, err := f.opts.counter.EstimateStateCount(seq, maxClusters, f.opts.seed)
			if err != nil {
				return fmt.Errorf("disaggregate: state count for %s: %w", tr.Name, err)
			}
			states = len(levels)
		}

		p, err := f.opts.estimator.Estimate(seq, states, f.opts.seed+uint64(i))
		if errors.Is(err, estimate.ErrEmptySequence) {
			f.skip(tr.Name, err.Error())
			skipped = append(skipped, tr.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("disaggregate: estimate %s: %w", tr.Name, err)
		}

		p = hmm.Canonicalize(p)
		log.WithFields(log.Fields{
			"APPLIANCE": tr.Name,
			"SAMPLES":   len(seq),
			"STATES":    p.States(),
			"MEANS":     p.Means,
		}).Debug("DISAGGREGATE: FITTED APPLIANCE")
		components = append(components, fhmm.Component{Name: tr.Name, Process: p})
	}

	m, err := f.publish(components, skipped)
	if err != nil {
		return err
	}

	f.opts.metrics.ObserveFit(time.Since(start), len(m.joint.Order), m.joint.States())
	log.WithFields(log.Fields{
		"APPLIANCES":   len(m.joint.Order),
		"SKIPPED":      len(skipped),
		"JOINT_STATES": m.joint.States(),
		"DURATION":     time.Since(start),
	}).Info("DISAGGREGATE: TRAINED FHMM")
	return nil
}

func (f *FHMM) skip(name, reason string) {
	log.WithFields(log.Fields{
		"APPLIANCE": name,
		"REASON":    reason,
	}).Warn("DISAGGREGATE: SKIPPING APPLIANCE")
	f.opts.metrics.ApplianceSkipped()
}

// publish composes the components and makes the result current.
func (f *FHMM) publish(components []fhmm.Component, skipped []string) (*model, error) {
	joint, err := fhmm.Compose(components, fhmm.WithMaxStates(f.opts.maxJointStates))
	if err != nil {
		return nil, err
	}
	m := &model{
		components: components,
		joint:      joint,
		skipped:    skipped,
	}
	f.current.Store(m)
	return m, nil
}

// Disaggregate decodes mains and returns one column per trained appliance.
// NaN and infinite samples are dropped together with their timestamps, so
// the table is aligned with the remaining samples. An empty series gives an
// empty table that still lists every appliance.
func (f *FHMM) Disaggregate(mains Series) (*Table, error) {
	if err := mains.Validate(); err != nil {
		return nil, err
	}
	m := f.current.Load()
	if m == nil {
		return nil, ErrNotTrained
	}

	obs := mains.finite()
	if dropped := mains.Len() - obs.Len(); dropped > 0 {
		log.WithFields(log.Fields{
			"DROPPED": dropped,
		}).Debug("DISAGGREGATE: DROPPED NON-FINITE MAINS SAMPLES")
	}

	table := newTable(obs.Index, m.joint.Order)
	if obs.Len() == 0 {
		return table, nil
	}

	start := time.Now()
	states, err := fhmm.Decode(f.opts.decoder, m.joint, obs.Values)
	if err != nil {
		return nil, err
	}
	traces, err := m.joint.Disassemble(states)
	if err != nil {
		return nil, err
	}
	for name, tr := range traces {
		table.Power[name] = tr.Power
		table.States[name] = tr.States
	}

	f.opts.metrics.ObserveDecode(time.Since(start), obs.Len())
	log.WithFields(log.Fields{
		"SAMPLES":  obs.Len(),
		"DURATION": time.Since(start),
	}).Debug("DISAGGREGATE: DECODED MAINS")
	return table, nil
}

func (f *FHMM) DisaggregateChunks(chunks []Series) ([]*Table, error) {
	return disaggregateChunks(f, chunks)
}

func (f *FHMM) Model() (Summary, error) {
	m := f.current.Load()
	if m == nil {
		return Summary{}, ErrNotTrained
	}
	s := Summary{
		Algorithm:   store.AlgorithmFHMM,
		Order:       append([]string(nil), m.joint.Order...),
		StateCounts: append([]int(nil), m.joint.StateCounts...),
		JointStates: m.joint.States(),
		Skipped:     append([]string(nil), m.skipped...),
		Means:       make(map[string][]float64, len(m.components)),
	}
	for _, c := range m.components {
		s.Means[c.Name] = append([]float64(nil), c.Process.Means...)
	}
	return s, nil
}

// Export returns the trained appliance processes in composition order.
func (f *FHMM) Export() (*store.ModelFile, error) {
	m := f.current.Load()
	if m == nil {
		return nil, ErrNotTrained
	}
	params := make([]store.ApplianceParams, len(m.components))
	for i, c := range m.components {
		params[i] = store.ApplianceParams{
			Name:      c.Name,
			StartProb: append([]float64(nil), c.Process.StartProb...),
			TransMat:  matrix.ToRows(c.Process.TransMat),
			Means:     append([]float64(nil), c.Process.Means...),
			Covars:    append([]float64(nil), c.Process.Covars...),
		}
	}
	return store.NewModelFile(params, m.skipped), nil
}

// Import replaces the current model with the processes in file, composed in
// the file's order.
func (f *FHMM) Import(file *store.ModelFile) error {
	components := make([]fhmm.Component, len(file.Appliances))
	for i, a := range file.Appliances {
		trans, err := matrix.FromRows(a.TransMat)
		if err != nil {
			return fmt.Errorf("disaggregate: import %s: %w", a.Name, err)
		}
		p := hmm.Process{
			StartProb: append([]float64(nil), a.StartProb...),
			TransMat:  trans,
			Means:     append([]float64(nil), a.Means...),
			Covars:    append([]float64(nil), a.Covars...),
		}
		if err := p.Validate(hmm.DefaultTolerance); err != nil {
			return fmt.Errorf("disaggregate: import %s: %w", a.Name, err)
		}
		components[i] = fhmm.Component{Name: a.Name, Process: hmm.Canonicalize(hmm.Normalize(p))}
	}

	f.fitMu.Lock()
	defer f.fitMu.Unlock()
	m, err := f.publish(components, append([]string(nil), file.Skipped...))
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"ID":           file.ID,
		"APPLIANCES":   len(m.joint.Order),
		"JOINT_STATES": m.joint.States(),
	}).Info("DISAGGREGATE: IMPORTED FHMM")
	return nil
}

// concatFinite joins chunks in order, dropping NaN and infinite samples.
func concatFinite(chunks [][]float64) []float64 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range chunks {
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}
