// Package model loads persisted linear regression models and runs them over
// normalized tables.
//
// A model file is a JSON or YAML document:
//
//	format_version: 1
//	intercept: 0.25
//	coef: [1.5, -0.75]
//	feature_names: [Flow, Pressure]
//
// Files ending in ".sz" hold the same document snappy block-compressed.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
)

// FormatVersion is the only model document version understood by Load.
const FormatVersion = 1

// CompressedSuffix marks snappy-compressed model files.
const CompressedSuffix = ".sz"

// Model is a fitted linear regression.
type Model struct {
	FormatVersion int       `json:"format_version" yaml:"format_version"`
	Intercept     float64   `json:"intercept" yaml:"intercept"`
	Coef          []float64 `json:"coef" yaml:"coef"`
	FeatureNames  []string  `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
}

// Load reads a model from path. The format is picked from the extension:
// ".yaml" and ".yml" decode as YAML, everything else as JSON.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, palserrors.NewModelError(palserrors.CodeModelLoadFailed, fmt.Sprintf("read model %s", path), err)
	}

	name := path
	if strings.HasSuffix(name, CompressedSuffix) {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, palserrors.NewModelError(palserrors.CodeModelLoadFailed, fmt.Sprintf("decompress model %s", path), err)
		}
		name = strings.TrimSuffix(name, CompressedSuffix)
	}

	m, err := Decode(data, filepath.Ext(name))
	if err != nil {
		return nil, palserrors.NewModelError(palserrors.CodeModelLoadFailed, fmt.Sprintf("decode model %s", path), err)
	}
	return m, nil
}

// Decode parses a model document. ext selects the format like Load does.
func Decode(data []byte, ext string) (*Model, error) {
	var m Model
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m to path in the format implied by its extension.
func Save(path string, m *Model) error {
	name := strings.TrimSuffix(path, CompressedSuffix)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(m)
	default:
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if name != path {
		data = snappy.Encode(nil, data)
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Model) validate() error {
	if m.FormatVersion == 0 {
		m.FormatVersion = FormatVersion
	}
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format_version %d", m.FormatVersion)
	}
	if len(m.Coef) == 0 {
		return fmt.Errorf("coef is empty")
	}
	if len(m.FeatureNames) > 0 && len(m.FeatureNames) != len(m.Coef) {
		return fmt.Errorf("feature_names has %d entries for %d coefficients", len(m.FeatureNames), len(m.Coef))
	}
	return nil
}

// Width returns the number of input features.
func (m *Model) Width() int {
	return len(m.Coef)
}

// Features returns the feature names, or nil for positional models.
func (m *Model) Features() []string {
	return m.FeatureNames
}

// Predict returns one prediction per table row. Named models select their
// columns by name; positional models need exactly Width columns.
// A NaN input yields a NaN prediction for that row.
func (m *Model) Predict(t *types.Table) ([]float64, error) {
	if t == nil {
		return nil, palserrors.NewValidationError(palserrors.CodeNullInput, "table cannot be nil")
	}

	input := t
	if len(m.FeatureNames) > 0 {
		selected, err := t.Select(m.FeatureNames...)
		if err != nil {
			return nil, palserrors.NewModelError(
				palserrors.CodeDimensionMismatch,
				fmt.Sprintf("input is missing model features: %v", err),
				nil,
			)
		}
		input = selected
	}

	if input.Width() != len(m.Coef) {
		return nil, palserrors.NewModelError(
			palserrors.CodeDimensionMismatch,
			fmt.Sprintf("model expects %d features, table has %d columns", len(m.Coef), input.Width()),
			nil,
		).WithDetails(map[string]interface{}{
			"expected": len(m.Coef),
			"actual":   input.Width(),
		})
	}

	out := make([]float64, input.Len())
	for i := range out {
		y := m.Intercept
		for j, c := range input.Columns {
			y += m.Coef[j] * c.Values[i]
		}
		out[i] = y
	}
	return out, nil
}
