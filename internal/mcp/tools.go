package mcp

import (
	"context"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/service"
)

// --- Tool input/output types ---

type assessInput struct {
	Location  string             `json:"location" jsonschema:"sampling site name"`
	Latitude  float64            `json:"latitude" jsonschema:"site latitude in degrees"`
	Longitude float64            `json:"longitude" jsonschema:"site longitude in degrees"`
	Readings  map[string]float64 `json:"readings" jsonschema:"all eight measured parameters keyed by name, e.g. temperature, D.O, pH, conductivity, B.O.D, nitrate, fecal_coliform, total_coliform"`
	Timestamp string             `json:"timestamp,omitempty" jsonschema:"RFC 3339 sampling time, defaults to now"`
}

type recommendationOutput struct {
	ID        int64    `json:"id"`
	Parameter string   `json:"parameter"`
	Severity  string   `json:"severity"`
	Priority  string   `json:"priority"`
	Text      string   `json:"recommendation"`
	Cost      *float64 `json:"estimated_cost,omitempty"`
	Timeframe *string  `json:"implementation_timeframe,omitempty"`
}

type assessmentOutput struct {
	MeasurementID   int64                  `json:"measurement_id"`
	Location        string                 `json:"location"`
	MeasuredAt      string                 `json:"measured_at"`
	Assessed        bool                   `json:"assessed"`
	Potable         bool                   `json:"potable"`
	Confidence      float64                `json:"confidence"`
	ModelVersion    string                 `json:"model_version,omitempty"`
	Plan            *domain.Plan           `json:"plan"`
	Recommendations []recommendationOutput `json:"recommendations"`
}

type recommendInput struct {
	Readings map[string]float64 `json:"readings" jsonschema:"parameter values keyed by name; any subset is accepted"`
}

type actionOutput struct {
	Parameter string   `json:"parameter"`
	Direction string   `json:"direction"`
	Severity  string   `json:"severity"`
	Priority  string   `json:"priority"`
	Text      string   `json:"text"`
	Cost      *float64 `json:"estimated_cost,omitempty"`
	Timeframe string   `json:"implementation_timeframe,omitempty"`
}

type skippedOutput struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Status    string  `json:"status"`
}

type recommendOutput struct {
	Plan    *domain.Plan    `json:"plan"`
	Actions []actionOutput  `json:"actions"`
	Skipped []skippedOutput `json:"skipped"`
}

type getAssessmentInput struct {
	MeasurementID int64 `json:"measurement_id" jsonschema:"ID returned by assess_water_sample"`
}

type lookupGuidelineInput struct {
	Parameter string `json:"parameter" jsonschema:"parameter name or alias, e.g. pH or D.O"`
}

type thresholdOutput struct {
	Level     string  `json:"level"`
	Threshold float64 `json:"threshold"`
}

type guidelineOutput struct {
	Parameter string                         `json:"parameter"`
	Unit      string                         `json:"unit,omitempty"`
	Min       float64                        `json:"min"`
	Max       float64                        `json:"max"`
	Severity  map[string][]thresholdOutput   `json:"severity_levels"`
	Measures  map[string]map[string][]string `json:"measures"`
}

// --- Tool handlers ---

func (s *Server) handleAssess(ctx context.Context, _ *sdkmcp.CallToolRequest, input assessInput) (*sdkmcp.CallToolResult, assessmentOutput, error) {
	sample, err := domain.NewSample(input.Location, input.Readings)
	if err != nil {
		return nil, assessmentOutput{}, err
	}
	_ = sample.Set(domain.FieldLatitude, input.Latitude)
	_ = sample.Set(domain.FieldLongitude, input.Longitude)
	if input.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, input.Timestamp)
		if err != nil {
			return nil, assessmentOutput{}, domain.NewValidationError("timestamp", "must be an RFC 3339 time", input.Timestamp)
		}
		sample.Timestamp = &ts
	}

	report, err := s.assessor.Assess(ctx, sample)
	if err != nil {
		s.logger.WithError(err).WithField("tool", "assess_water_sample").Warn("Tool call failed")
		return nil, assessmentOutput{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"tool":           "assess_water_sample",
		"measurement_id": report.Measurement.ID,
	}).Debug("Tool call completed")
	return nil, toAssessmentOutput(report), nil
}

func (s *Server) handleRecommend(_ context.Context, _ *sdkmcp.CallToolRequest, input recommendInput) (*sdkmcp.CallToolResult, recommendOutput, error) {
	if len(input.Readings) == 0 {
		return nil, recommendOutput{}, fmt.Errorf("at least one reading is required")
	}

	assembly := s.assessor.Recommend(domain.ReadingsFrom(input.Readings))

	out := recommendOutput{
		Plan:    assembly.Plan,
		Actions: make([]actionOutput, 0, len(assembly.Actions)),
		Skipped: []skippedOutput{},
	}
	for _, a := range assembly.Actions {
		action := actionOutput{
			Parameter: a.Parameter,
			Direction: string(a.Direction),
			Severity:  string(a.Severity),
			Priority:  string(a.Priority),
			Text:      a.Tagged,
		}
		if a.Estimate != nil {
			cost := a.Estimate.Cost
			action.Cost = &cost
			action.Timeframe = a.Estimate.Timeframe
		}
		out.Actions = append(out.Actions, action)
	}
	for _, o := range assembly.Outcomes {
		if o.Status == service.OutcomeNoGuideline || o.Status == service.OutcomeInvalid {
			out.Skipped = append(out.Skipped, skippedOutput{Parameter: o.Parameter, Value: o.Value, Status: string(o.Status)})
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetAssessment(ctx context.Context, _ *sdkmcp.CallToolRequest, input getAssessmentInput) (*sdkmcp.CallToolResult, assessmentOutput, error) {
	if input.MeasurementID <= 0 {
		return nil, assessmentOutput{}, fmt.Errorf("measurement_id must be positive")
	}
	report, err := s.assessor.GetAssessment(ctx, input.MeasurementID)
	if err != nil {
		return nil, assessmentOutput{}, err
	}
	return nil, toAssessmentOutput(report), nil
}

func (s *Server) handleLookupGuideline(_ context.Context, _ *sdkmcp.CallToolRequest, input lookupGuidelineInput) (*sdkmcp.CallToolResult, guidelineOutput, error) {
	g, ok := s.table.Lookup(input.Parameter)
	if !ok {
		return nil, guidelineOutput{}, fmt.Errorf("no guideline for parameter %q; known parameters: %v", input.Parameter, s.table.Parameters())
	}

	out := guidelineOutput{
		Parameter: g.Parameter,
		Unit:      g.Unit,
		Min:       g.Range.Min,
		Max:       g.Range.Max,
		Severity:  map[string][]thresholdOutput{},
		Measures:  map[string]map[string][]string{},
	}
	for dir, tiers := range g.Severity {
		for _, t := range tiers {
			out.Severity[string(dir)] = append(out.Severity[string(dir)], thresholdOutput{Level: string(t.Level), Threshold: t.Threshold})
		}
	}
	for dir, byPriority := range g.Measures {
		m := make(map[string][]string, len(byPriority))
		for p, texts := range byPriority {
			m[string(p)] = texts
		}
		out.Measures[string(dir)] = m
	}
	return nil, out, nil
}

func toAssessmentOutput(report *domain.AssessmentReport) assessmentOutput {
	m := report.Measurement
	out := assessmentOutput{
		MeasurementID:   m.ID,
		Location:        m.Location,
		MeasuredAt:      formatTime(m.Timestamp),
		Plan:            report.Plan,
		Recommendations: make([]recommendationOutput, 0, len(report.Recommendations)),
	}
	if out.Plan == nil {
		out.Plan = domain.NewPlan()
	}
	if p := report.Prediction; p != nil {
		out.Assessed = true
		out.Potable = p.IsPotable
		out.Confidence = p.Confidence
		out.ModelVersion = p.ModelVersion
	}
	for _, r := range report.Recommendations {
		out.Recommendations = append(out.Recommendations, recommendationOutput{
			ID:        r.ID,
			Parameter: r.Parameter,
			Severity:  string(r.Severity),
			Priority:  string(r.Priority),
			Text:      r.Recommendation,
			Cost:      r.EstimatedCost,
			Timeframe: r.ImplementationTimeframe,
		})
	}
	return out
}
