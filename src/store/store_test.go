package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fridgeParams() ApplianceParams {
	return ApplianceParams{
		Name:      "fridge",
		StartProb: []float64{0.5, 0.5},
		TransMat:  [][]float64{{0.9, 0.1}, {0.2, 0.8}},
		Means:     []float64{0, 120},
		Covars:    []float64{1, 16},
	}
}

func kettleParams() ApplianceParams {
	return ApplianceParams{
		Name:      "kettle",
		StartProb: []float64{1},
		TransMat:  [][]float64{{1}},
		Means:     []float64{0},
		Covars:    []float64{0.001},
	}
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	f := NewModelFile([]ApplianceParams{fridgeParams(), kettleParams()}, []string{"toaster"})
	if err := SaveModel(path, f); err != nil {
		t.Fatal(err)
	}

	got, err := LoadModel(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != f.ID || got.Algorithm != AlgorithmFHMM {
		t.Fatalf("header = %q/%q, want %q/%q", got.ID, got.Algorithm, f.ID, AlgorithmFHMM)
	}
	if strings.Join(got.Order, ",") != "fridge,kettle" {
		t.Fatalf("order = %v", got.Order)
	}
	if len(got.Skipped) != 1 || got.Skipped[0] != "toaster" {
		t.Fatalf("skipped = %v", got.Skipped)
	}
	if got.Appliances[0].TransMat[1][0] != 0.2 {
		t.Fatalf("transmat = %v", got.Appliances[0].TransMat)
	}
}

func TestDecodeModelRejectsReorderedAppliances(t *testing.T) {
	f := NewModelFile([]ApplianceParams{fridgeParams(), kettleParams()}, nil)
	f.Order = []string{"kettle", "fridge"}
	raw, err := EncodeModel(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeModel(raw); err == nil {
		t.Fatal("order mismatch accepted")
	}
}

func TestDecodeModelSchemaViolations(t *testing.T) {
	cases := map[string]func(*ModelFile){
		"no appliances":      func(f *ModelFile) { f.Appliances = nil; f.Order = nil },
		"negative prob":      func(f *ModelFile) { f.Appliances[0].StartProb[0] = -0.5 },
		"zero covariance":    func(f *ModelFile) { f.Appliances[0].Covars[0] = 0 },
		"wrong algorithm":    func(f *ModelFile) { f.Algorithm = AlgorithmMean },
		"empty appliance id": func(f *ModelFile) { f.Appliances[0].Name = ""; f.Order[0] = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewModelFile([]ApplianceParams{fridgeParams()}, nil)
			mutate(f)
			raw, err := EncodeModel(f)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := DecodeModel(raw); err == nil {
				t.Fatal("invalid file accepted")
			}
		})
	}
}

func TestDecodeModelRejectsGarbage(t *testing.T) {
	if _, err := DecodeModel([]byte("{not json")); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestSaveLoadMean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mean.json")
	f := NewMeanFile([]MeanParams{{Name: "fridge", Sum: 600, Count: 10}})
	if err := SaveMean(path, f); err != nil {
		t.Fatal(err)
	}
	got, err := LoadMean(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Appliances) != 1 || got.Appliances[0].Sum != 600 || got.Appliances[0].Count != 10 {
		t.Fatalf("appliances = %+v", got.Appliances)
	}
}

func TestLoadMeanRejectsModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := SaveModel(path, NewModelFile([]ApplianceParams{fridgeParams()}, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMean(path); err == nil {
		t.Fatal("model file loaded as mean file")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := SaveMean(filepath.Join(dir, "mean.json"), NewMeanFile(nil)); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want 1", len(entries))
	}
}
