package guideline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/water-quality-server/internal/domain"
)

func TestDefaultTableCoversAllParameters(t *testing.T) {
	table := Default()

	assert.Equal(t, domain.FeatureOrder, table.Parameters())
	assert.Equal(t, len(domain.FeatureOrder), table.Len())

	for _, g := range table.All() {
		for dir, byPriority := range g.Measures {
			assert.True(t, dir.IsValid())
			assert.NotEmpty(t, byPriority, "%s/%s has no measures", g.Parameter, dir)
		}
	}
}

func TestLookupResolvesAliases(t *testing.T) {
	table := Default()

	g, ok := table.Lookup("D.O")
	require.True(t, ok)
	assert.Equal(t, domain.ParamDissolvedOxygen, g.Parameter)

	g, ok = table.Lookup("pH")
	require.True(t, ok)
	assert.Equal(t, 6.5, g.Range.Min)

	_, ok = table.Lookup("turbidity")
	assert.False(t, ok)

	_, ok = table.Lookup("Lat")
	assert.False(t, ok)
}

func TestHighPHHasSingleImmediateAction(t *testing.T) {
	g, ok := Default().Lookup(domain.ParamPH)
	require.True(t, ok)
	assert.Len(t, g.Measures[domain.DirectionHigh][domain.PriorityImmediate], 1)
}

func TestNewTableRejectsNonMonotonicThresholds(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.ParameterGuideline
	}{
		{
			name: "low ascending violated",
			entry: domain.ParameterGuideline{
				Parameter: "ph",
				Range:     domain.Range{Min: 6.5, Max: 8.5},
				Severity: map[domain.Direction][]domain.SeverityThreshold{
					domain.DirectionLow: {{Level: domain.SeveritySevere, Threshold: 6.4}, {Level: domain.SeverityModerate, Threshold: 6.0}},
				},
			},
		},
		{
			name: "high descending violated",
			entry: domain.ParameterGuideline{
				Parameter: "ph",
				Range:     domain.Range{Min: 6.5, Max: 8.5},
				Severity: map[domain.Direction][]domain.SeverityThreshold{
					domain.DirectionHigh: {{Level: domain.SeveritySevere, Threshold: 8.6}, {Level: domain.SeverityModerate, Threshold: 9.0}},
				},
			},
		},
		{
			name: "inverted range",
			entry: domain.ParameterGuideline{
				Parameter: "nitrate",
				Range:     domain.Range{Min: 50, Max: 0},
			},
		},
		{
			name: "unknown parameter",
			entry: domain.ParameterGuideline{
				Parameter: "turbidity",
			},
		},
		{
			name: "bad priority",
			entry: domain.ParameterGuideline{
				Parameter: "bod",
				Range:     domain.Range{Min: 0, Max: 3},
				Measures: map[domain.Direction]map[domain.Priority][]string{
					domain.DirectionHigh: {"eventually": {"x"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable([]domain.ParameterGuideline{tt.entry})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog))
		})
	}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	entry := domain.ParameterGuideline{Parameter: "D.O", Range: domain.Range{Min: 5, Max: 14}}
	dup := domain.ParameterGuideline{Parameter: "dissolved_oxygen", Range: domain.Range{Min: 5, Max: 14}}

	_, err := NewTable([]domain.ParameterGuideline{entry, dup})
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}

func TestDefaultCatalogIsACopy(t *testing.T) {
	a := DefaultCatalog()
	a[0].Range.Min = -100

	b := DefaultCatalog()
	assert.NotEqual(t, a[0].Range.Min, b[0].Range.Min)
}

const sampleCatalog = `
guidelines:
  - parameter: pH
    range: {min: 6.5, max: 8.5}
    severity_levels:
      high:
        - {level: severe, threshold: 9.0}
        - {level: moderate, threshold: 8.6}
    measures:
      high:
        immediate: ["Dose acid"]
        preventive: ["Calibrate probes"]
    estimates:
      high:
        immediate: {cost: 100, timeframe: "1 day"}
  - parameter: B.O.D
    range: {min: 0, max: 3}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guidelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	table, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{domain.ParamPH, domain.ParamBOD}, table.Parameters())

	g, ok := table.Lookup(domain.ParamPH)
	require.True(t, ok)
	assert.Equal(t, []string{"Dose acid"}, g.Measures[domain.DirectionHigh][domain.PriorityImmediate])
	assert.Equal(t, domain.SeveritySevere, g.Severity[domain.DirectionHigh][0].Level)

	est, ok := g.Estimate(domain.DirectionHigh, domain.PriorityImmediate)
	require.True(t, ok)
	assert.Equal(t, 100.0, est.Cost)
	assert.Equal(t, "1 day", est.Timeframe)

	_, ok = g.Estimate(domain.DirectionLow, domain.PriorityImmediate)
	assert.False(t, ok)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("guidelines: []"))
	assert.True(t, errors.Is(err, ErrInvalidCatalog))

	_, err = Parse([]byte("guidelines: [:"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, len(domain.FeatureOrder), table.Len())
}
