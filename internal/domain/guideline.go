package domain

// Range is the closed acceptable band for a parameter.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the band, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// SeverityThreshold is one tier of a parameter's severity ladder.
type SeverityThreshold struct {
	Level     Severity `json:"level" yaml:"level"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
}

// Estimate is the indicative cost and lead time of a remediation tier.
type Estimate struct {
	Cost      float64 `json:"cost" yaml:"cost"`
	Timeframe string  `json:"timeframe" yaml:"timeframe"`
}

// ParameterGuideline is the reference band and remediation catalog for one
// measured parameter. Severity tiers are ordered most-severe-first for each
// direction.
type ParameterGuideline struct {
	Parameter string                              `json:"parameter" yaml:"parameter"`
	Unit      string                              `json:"unit,omitempty" yaml:"unit"`
	Range     Range                               `json:"acceptable_range" yaml:"range"`
	Severity  map[Direction][]SeverityThreshold   `json:"severity_levels" yaml:"severity_levels"`
	Measures  map[Direction]map[Priority][]string `json:"measures" yaml:"measures"`
	Estimates map[Direction]map[Priority]Estimate `json:"estimates,omitempty" yaml:"estimates"`
}

// DirectionOf returns the deviation direction of v, or false when v is within
// the acceptable range.
func (g *ParameterGuideline) DirectionOf(v float64) (Direction, bool) {
	switch {
	case v < g.Range.Min:
		return DirectionLow, true
	case v > g.Range.Max:
		return DirectionHigh, true
	default:
		return "", false
	}
}

// Estimate returns the cost/timeframe estimate for a direction and priority.
func (g *ParameterGuideline) Estimate(d Direction, p Priority) (Estimate, bool) {
	byPriority, ok := g.Estimates[d]
	if !ok {
		return Estimate{}, false
	}
	e, ok := byPriority[p]
	return e, ok
}
