// Package predictor provides potability predictors behind domain.Predictor.
package predictor

import (
	"context"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/water-quality-server/internal/domain"
)

// FeatureWeight scores one parameter by how far it strays outside
// center ± half_width, measured in half-widths.
type FeatureWeight struct {
	Name      string  `yaml:"name"`
	Center    float64 `yaml:"center"`
	HalfWidth float64 `yaml:"half_width"`
	Weight    float64 `yaml:"weight"`
}

// ModelSpec is the YAML model file.
type ModelSpec struct {
	Version   string          `yaml:"version"`
	Bias      float64         `yaml:"bias"`
	Threshold float64         `yaml:"threshold"`
	Features  []FeatureWeight `yaml:"features"`
}

// LinearModel is a logistic scorer over band excess. It is read-only after
// construction and safe for concurrent use.
type LinearModel struct {
	version   string
	bias      float64
	threshold float64
	centers   []float64
	halfWidth []float64
	weights   []float64
}

// DefaultModelSpec returns the built-in model.
func DefaultModelSpec() ModelSpec {
	return ModelSpec{
		Version:   "band-excess-v1",
		Bias:      2.0,
		Threshold: 0.5,
		Features: []FeatureWeight{
			{Name: domain.ParamTemperature, Center: 17.5, HalfWidth: 12.5, Weight: -1.5},
			{Name: domain.ParamDissolvedOxygen, Center: 9.5, HalfWidth: 4.5, Weight: -3.0},
			{Name: domain.ParamPH, Center: 7.5, HalfWidth: 1.0, Weight: -4.0},
			{Name: domain.ParamConductivity, Center: 775, HalfWidth: 725, Weight: -2.0},
			{Name: domain.ParamBOD, Center: 1.5, HalfWidth: 1.5, Weight: -3.0},
			{Name: domain.ParamNitrate, Center: 25, HalfWidth: 25, Weight: -4.0},
			{Name: domain.ParamFecalColiform, Center: 0, HalfWidth: 0.5, Weight: -4.0},
			{Name: domain.ParamTotalColiform, Center: 25, HalfWidth: 25, Weight: -3.0},
		},
	}
}

// NewLinearModel builds a model from a spec. Every parameter in
// domain.FeatureOrder must be present exactly once.
func NewLinearModel(spec ModelSpec) (*LinearModel, error) {
	if spec.Threshold <= 0 || spec.Threshold >= 1 {
		return nil, fmt.Errorf("model threshold %v must be in (0, 1)", spec.Threshold)
	}

	n := len(domain.FeatureOrder)
	m := &LinearModel{
		version:   spec.Version,
		bias:      spec.Bias,
		threshold: spec.Threshold,
		centers:   make([]float64, n),
		halfWidth: make([]float64, n),
		weights:   make([]float64, n),
	}
	if m.version == "" {
		m.version = "unversioned"
	}

	index := make(map[string]int, n)
	for i, name := range domain.FeatureOrder {
		index[name] = i
	}
	seen := make(map[string]bool, n)
	for _, f := range spec.Features {
		canonical, ok := domain.CanonicalParameter(f.Name)
		if !ok {
			return nil, fmt.Errorf("model feature %q: %w", f.Name, domain.ErrUnknownParameter)
		}
		if seen[canonical] {
			return nil, fmt.Errorf("model feature %q defined twice", canonical)
		}
		if f.HalfWidth <= 0 {
			return nil, fmt.Errorf("model feature %q: half_width must be positive", canonical)
		}
		seen[canonical] = true
		i := index[canonical]
		m.centers[i] = f.Center
		m.halfWidth[i] = f.HalfWidth
		m.weights[i] = f.Weight
	}
	for _, name := range domain.FeatureOrder {
		if !seen[name] {
			return nil, fmt.Errorf("model is missing feature %q", name)
		}
	}
	return m, nil
}

// LoadModel reads a YAML model file.
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return NewLinearModel(spec)
}

// DefaultModel returns the built-in model.
func DefaultModel() *LinearModel {
	m, err := NewLinearModel(DefaultModelSpec())
	if err != nil {
		panic(fmt.Sprintf("built-in model is invalid: %v", err))
	}
	return m
}

// Predict implements domain.Predictor.
func (m *LinearModel) Predict(ctx context.Context, features domain.Features) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}

	x, err := features.Vector()
	if err != nil {
		return domain.Verdict{}, err
	}

	for i := range x {
		excess := math.Abs(x[i]-m.centers[i])/m.halfWidth[i] - 1
		x[i] = math.Max(0, excess)
	}

	p := sigmoid(floats.Dot(m.weights, x) + m.bias)
	if p >= m.threshold {
		return domain.Verdict{IsPotable: true, Confidence: p}, nil
	}
	return domain.Verdict{IsPotable: false, Confidence: 1 - p}, nil
}

// ModelVersion implements domain.Predictor.
func (m *LinearModel) ModelVersion() string {
	return m.version
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
