package disaggregate

import (
	"fmt"
	"os"

	"github.com/hadz2damax/NILM/src/store"
)

// New returns an untrained disaggregator for algorithm. opts only apply to
// the FHMM.
func New(algorithm string, opts ...Option) (Disaggregator, error) {
	switch algorithm {
	case store.AlgorithmFHMM:
		return NewFHMM(opts...), nil
	case store.AlgorithmMean:
		return NewMean(), nil
	}
	return nil, fmt.Errorf("disaggregate: unknown algorithm %q", algorithm)
}

// Load restores a disaggregator saved with Save. The algorithm is taken from
// the file.
func Load(path string, opts ...Option) (Disaggregator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("disaggregate: %w", err)
	}
	algorithm, err := store.Algorithm(raw)
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case store.AlgorithmFHMM:
		file, err := store.DecodeModel(raw)
		if err != nil {
			return nil, err
		}
		f := NewFHMM(opts...)
		if err := f.Import(file); err != nil {
			return nil, err
		}
		return f, nil
	case store.AlgorithmMean:
		file, err := store.DecodeMean(raw)
		if err != nil {
			return nil, err
		}
		m := NewMean()
		m.Import(file)
		return m, nil
	}
	return nil, fmt.Errorf("disaggregate: %s: unknown algorithm %q", path, algorithm)
}

// Save writes a trained disaggregator to path.
func Save(path string, d Disaggregator) error {
	switch d := d.(type) {
	case *FHMM:
		file, err := d.Export()
		if err != nil {
			return err
		}
		return store.SaveModel(path, file)
	case *Mean:
		return store.SaveMean(path, d.Export())
	}
	return fmt.Errorf("disaggregate: cannot save %T", d)
}
