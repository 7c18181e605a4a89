package disaggregate

import (
	"errors"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestSaveLoadFHMM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	f := trainedFHMM(t)
	if err := Save(path, f); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*FHMM); !ok {
		t.Fatalf("loaded %T, want *FHMM", d)
	}
	mains := Series{Values: []float64{0, 1100}}
	want, err := f.Disaggregate(mains)
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Disaggregate(mains)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(got.Power["heater"], want.Power["heater"]) {
		t.Fatalf("heater = %v, want %v", got.Power["heater"], want.Power["heater"])
	}
}

func TestSaveLoadMean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mean.json")
	m := NewMean()
	if err := m.PartialFit([]ApplianceTrain{{Name: "tv", Chunks: [][]float64{{90}}}}); err != nil {
		t.Fatal(err)
	}
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.Model()
	if err != nil {
		t.Fatal(err)
	}
	if s.Means["tv"][0] != 90 {
		t.Fatalf("means = %v", s.Means)
	}
}

func TestSaveUntrainedFHMM(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "model.json"), NewFHMM())
	if !errors.Is(err, ErrNotTrained) {
		t.Fatalf("err = %v, want ErrNotTrained", err)
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	if _, err := New("co"); err == nil {
		t.Fatal("unknown algorithm accepted")
	}
}
