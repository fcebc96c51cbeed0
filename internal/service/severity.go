package service

import (
	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

// SeverityClassifier grades out-of-range readings against the guideline table
type SeverityClassifier struct {
	table *guideline.Table
}

// NewSeverityClassifier creates a new severity classifier
func NewSeverityClassifier(table *guideline.Table) *SeverityClassifier {
	return &SeverityClassifier{table: table}
}

// Direction returns which side of the acceptable band value falls on. It
// returns false when value is in range or the parameter has no guideline.
func (c *SeverityClassifier) Direction(parameter string, value float64) (domain.Direction, bool) {
	g, ok := c.table.Lookup(parameter)
	if !ok {
		return "", false
	}
	return g.DirectionOf(value)
}

// Classify walks the tiers for direction in order and returns the first match.
// Low tiers match when value <= threshold, high tiers when value >= threshold.
// A parameter without a guideline is unknown; an out-of-range value that
// matches no tier is normal.
func (c *SeverityClassifier) Classify(parameter string, value float64, direction domain.Direction) domain.Severity {
	g, ok := c.table.Lookup(parameter)
	if !ok {
		return domain.SeverityUnknown
	}

	for _, tier := range g.Severity[direction] {
		switch direction {
		case domain.DirectionLow:
			if value <= tier.Threshold {
				return tier.Level
			}
		case domain.DirectionHigh:
			if value >= tier.Threshold {
				return tier.Level
			}
		}
	}
	return domain.SeverityNormal
}
