package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

func TestSeverityClassifier_Direction(t *testing.T) {
	c := NewSeverityClassifier(guideline.Default())

	tests := []struct {
		name      string
		parameter string
		value     float64
		direction domain.Direction
		out       bool
	}{
		{"pH in range", domain.ParamPH, 7.2, "", false},
		{"pH at max", domain.ParamPH, 8.5, "", false},
		{"pH high", domain.ParamPH, 9.2, domain.DirectionHigh, true},
		{"pH low", domain.ParamPH, 5.5, domain.DirectionLow, true},
		{"DO low", "D.O", 4.2, domain.DirectionLow, true},
		{"no guideline", "turbidity", 100, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, out := c.Direction(tt.parameter, tt.value)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.direction, d)
		})
	}
}

func TestSeverityClassifier_Classify(t *testing.T) {
	c := NewSeverityClassifier(guideline.Default())

	tests := []struct {
		name      string
		parameter string
		value     float64
		direction domain.Direction
		expected  domain.Severity
	}{
		{"pH 9.2 severe", domain.ParamPH, 9.2, domain.DirectionHigh, domain.SeveritySevere},
		{"pH 9.0 boundary severe", domain.ParamPH, 9.0, domain.DirectionHigh, domain.SeveritySevere},
		{"pH 8.7 moderate", domain.ParamPH, 8.7, domain.DirectionHigh, domain.SeverityModerate},
		{"pH 8.55 falls back to normal", domain.ParamPH, 8.55, domain.DirectionHigh, domain.SeverityNormal},
		{"pH 5.5 severe", domain.ParamPH, 5.5, domain.DirectionLow, domain.SeveritySevere},
		{"pH 6.3 moderate", domain.ParamPH, 6.3, domain.DirectionLow, domain.SeverityModerate},
		{"DO 4.2 normal", domain.ParamDissolvedOxygen, 4.2, domain.DirectionLow, domain.SeverityNormal},
		{"DO 2.5 severe", domain.ParamDissolvedOxygen, 2.5, domain.DirectionLow, domain.SeveritySevere},
		{"fecal 5 mild", domain.ParamFecalColiform, 5, domain.DirectionHigh, domain.SeverityMild},
		{"direction without tiers", domain.ParamBOD, -1, domain.DirectionLow, domain.SeverityNormal},
		{"unknown parameter", "turbidity", 10, domain.DirectionHigh, domain.SeverityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.parameter, tt.value, tt.direction))
		})
	}
}

func TestSeverityClassifier_Deterministic(t *testing.T) {
	c := NewSeverityClassifier(guideline.Default())
	first := c.Classify(domain.ParamNitrate, 70, domain.DirectionHigh)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify(domain.ParamNitrate, 70, domain.DirectionHigh))
	}
}
