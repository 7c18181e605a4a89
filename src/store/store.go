// Package store persists trained models as JSON. Files are validated against
// an embedded JSON schema on load.
//
// An FHMM model file keeps the appliance order next to the parameters: the
// joint state indices of a model are only meaningful in that order.
package store

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"
)

const (
	AlgorithmFHMM = "fhmm_exact"
	AlgorithmMean = "mean"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	modelSchema = mustCompile("schema/model.schema.json")
	meanSchema  = mustCompile("schema/mean.schema.json")
)

// ApplianceParams are the four arrays of one canonical appliance process.
type ApplianceParams struct {
	Name      string      `json:"name"`
	StartProb []float64   `json:"startprob"`
	TransMat  [][]float64 `json:"transmat"`
	Means     []float64   `json:"means"`
	Covars    []float64   `json:"covars"`
}

type ModelFile struct {
	ID         string            `json:"id"`
	Algorithm  string            `json:"algorithm"`
	CreatedAt  time.Time         `json:"createdAt"`
	Order      []string          `json:"order"`
	Skipped    []string          `json:"skipped,omitempty"`
	Appliances []ApplianceParams `json:"appliances"`
}

// MeanParams is the running sum and sample count of one appliance.
type MeanParams struct {
	Name  string  `json:"name"`
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

type MeanFile struct {
	ID         string       `json:"id"`
	Algorithm  string       `json:"algorithm"`
	CreatedAt  time.Time    `json:"createdAt"`
	Appliances []MeanParams `json:"appliances"`
}

// NewModelFile stamps a fresh id and creation time. Order is taken from the
// appliances.
func NewModelFile(appliances []ApplianceParams, skipped []string) *ModelFile {
	order := make([]string, len(appliances))
	for i, a := range appliances {
		order[i] = a.Name
	}
	return &ModelFile{
		ID:         uuid.NewString(),
		Algorithm:  AlgorithmFHMM,
		CreatedAt:  time.Now().UTC(),
		Order:      order,
		Skipped:    skipped,
		Appliances: appliances,
	}
}

func NewMeanFile(appliances []MeanParams) *MeanFile {
	if appliances == nil {
		appliances = []MeanParams{}
	}
	return &MeanFile{
		ID:         uuid.NewString(),
		Algorithm:  AlgorithmMean,
		CreatedAt:  time.Now().UTC(),
		Appliances: appliances,
	}
}

// EncodeModel renders f as indented JSON.
func EncodeModel(f *ModelFile) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// DecodeModel validates raw against the model schema and checks that Order
// names the appliances in the same sequence.
func DecodeModel(raw []byte) (*ModelFile, error) {
	if err := validate(modelSchema, raw); err != nil {
		return nil, fmt.Errorf("store: invalid model file: %w", err)
	}
	var f ModelFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("store: decode model file: %w", err)
	}
	if len(f.Order) != len(f.Appliances) {
		return nil, fmt.Errorf("store: order lists %d appliances, file has %d", len(f.Order), len(f.Appliances))
	}
	for i, a := range f.Appliances {
		if f.Order[i] != a.Name {
			return nil, fmt.Errorf("store: order[%d] is %q but appliance %d is %q", i, f.Order[i], i, a.Name)
		}
	}
	return &f, nil
}

func EncodeMean(f *MeanFile) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

func DecodeMean(raw []byte) (*MeanFile, error) {
	if err := validate(meanSchema, raw); err != nil {
		return nil, fmt.Errorf("store: invalid mean file: %w", err)
	}
	var f MeanFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("store: decode mean file: %w", err)
	}
	return &f, nil
}

func SaveModel(path string, f *ModelFile) error {
	raw, err := EncodeModel(f)
	if err != nil {
		return fmt.Errorf("store: encode model file: %w", err)
	}
	if err := writeFile(path, raw); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"PATH":       path,
		"ID":         f.ID,
		"APPLIANCES": len(f.Appliances),
	}).Info("STORE: SAVED MODEL")
	return nil
}

func LoadModel(path string) (*ModelFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return DecodeModel(raw)
}

func SaveMean(path string, f *MeanFile) error {
	raw, err := EncodeMean(f)
	if err != nil {
		return fmt.Errorf("store: encode mean file: %w", err)
	}
	return writeFile(path, raw)
}

func LoadMean(path string) (*MeanFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return DecodeMean(raw)
}

// writeFile replaces path atomically so a reader never sees half a model.
func writeFile(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func mustCompile(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Errorf("store: read embedded schema %s: %w", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(fmt.Errorf("store: add schema resource %s: %w", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Errorf("store: compile schema %s: %w", name, err))
	}
	return schema
}

func validate(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// Algorithm reads the algorithm name of an encoded model without validating
// the rest of the file.
func Algorithm(raw []byte) (string, error) {
	var head struct {
		Algorithm string `json:"algorithm"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("store: decode model header: %w", err)
	}
	return head.Algorithm, nil
}
