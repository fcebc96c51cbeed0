package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/guideline"
)

// OutcomeStatus records what the assembler did with one reading.
type OutcomeStatus string

const (
	OutcomeApplied     OutcomeStatus = "applied"
	OutcomeInRange     OutcomeStatus = "in_range"
	OutcomeNoGuideline OutcomeStatus = "no_guideline"
	OutcomeInvalid     OutcomeStatus = "invalid"
)

// ParameterOutcome is the per-reading result of plan assembly.
type ParameterOutcome struct {
	Parameter string           `json:"parameter"`
	Value     float64          `json:"value"`
	Status    OutcomeStatus    `json:"status"`
	Direction domain.Direction `json:"direction,omitempty"`
	Severity  domain.Severity  `json:"severity,omitempty"`
	Err       error            `json:"-"`
}

// Action is one structured plan entry.
type Action struct {
	Parameter string
	Direction domain.Direction
	Severity  domain.Severity
	Priority  domain.Priority
	Text      string
	Tagged    string
	Estimate  *domain.Estimate
}

// Assembly is the result of assembling a plan from a set of readings.
type Assembly struct {
	Plan     *domain.Plan
	Actions  []Action
	Outcomes []ParameterOutcome
}

// Applied returns the readings that contributed actions.
func (a *Assembly) Applied() []ParameterOutcome {
	var out []ParameterOutcome
	for _, o := range a.Outcomes {
		if o.Status == OutcomeApplied {
			out = append(out, o)
		}
	}
	return out
}

// RecommendationAssembler turns out-of-range readings into a prioritized plan
type RecommendationAssembler struct {
	logger     *logrus.Logger
	table      *guideline.Table
	classifier *SeverityClassifier
}

// NewRecommendationAssembler creates a new assembler
func NewRecommendationAssembler(logger *logrus.Logger, table *guideline.Table) *RecommendationAssembler {
	return &RecommendationAssembler{
		logger:     logger,
		table:      table,
		classifier: NewSeverityClassifier(table),
	}
}

// Assemble builds the plan. Readings are processed in the order given and a
// reading that cannot be graded is skipped with a warning, never failing the
// batch.
func (a *RecommendationAssembler) Assemble(readings []domain.Reading) *Assembly {
	result := &Assembly{
		Plan:     domain.NewPlan(),
		Outcomes: make([]ParameterOutcome, 0, len(readings)),
	}

	for _, r := range readings {
		outcome := a.assess(r)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status != OutcomeApplied {
			continue
		}

		g, _ := a.table.Lookup(outcome.Parameter)
		measures := g.Measures[outcome.Direction]
		tag := fmt.Sprintf("[%s] [%s]", strings.ToUpper(outcome.Parameter), strings.ToUpper(string(outcome.Severity)))

		for _, priority := range domain.Priorities {
			texts := measures[priority]
			if len(texts) == 0 {
				continue
			}
			var estimate *domain.Estimate
			if e, ok := g.Estimate(outcome.Direction, priority); ok {
				estimate = &e
			}
			tier := result.Plan.Tier(priority)
			for _, text := range texts {
				tagged := tag + " " + text
				*tier = append(*tier, tagged)
				result.Actions = append(result.Actions, Action{
					Parameter: outcome.Parameter,
					Direction: outcome.Direction,
					Severity:  outcome.Severity,
					Priority:  priority,
					Text:      text,
					Tagged:    tagged,
					Estimate:  estimate,
				})
			}
		}
	}

	return result
}

// AssembleMeasurement builds the plan for a stored measurement in canonical
// parameter order.
func (a *RecommendationAssembler) AssembleMeasurement(m *domain.Measurement) *Assembly {
	return a.Assemble(m.Readings())
}

func (a *RecommendationAssembler) assess(r domain.Reading) ParameterOutcome {
	outcome := ParameterOutcome{Parameter: r.Parameter, Value: r.Value}

	if canonical, ok := domain.CanonicalParameter(r.Parameter); ok {
		outcome.Parameter = canonical
	}

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		outcome.Status = OutcomeInvalid
		outcome.Err = domain.NewValidationError(outcome.Parameter, "must be a finite number", r.Value)
		a.logger.WithFields(logrus.Fields{
			"parameter": outcome.Parameter,
			"value":     r.Value,
		}).Warn("Skipping non-finite reading")
		return outcome
	}

	g, ok := a.table.Lookup(outcome.Parameter)
	if !ok {
		outcome.Status = OutcomeNoGuideline
		outcome.Severity = domain.SeverityUnknown
		a.logger.WithField("parameter", r.Parameter).Warn("No guidelines found for parameter")
		return outcome
	}

	direction, out := g.DirectionOf(r.Value)
	if !out {
		outcome.Status = OutcomeInRange
		return outcome
	}

	outcome.Status = OutcomeApplied
	outcome.Direction = direction
	outcome.Severity = a.classifier.Classify(outcome.Parameter, r.Value, direction)

	a.logger.WithFields(logrus.Fields{
		"parameter": outcome.Parameter,
		"value":     r.Value,
		"direction": direction,
		"severity":  outcome.Severity,
	}).Debug("Reading outside acceptable range")

	return outcome
}
