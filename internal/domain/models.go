package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Measurement is one observed water sample. It is created once per
// assessment and never modified afterwards.
type Measurement struct {
	ID              int64     `json:"id"`
	Location        string    `json:"location"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Temperature     float64   `json:"temperature"`
	DissolvedOxygen float64   `json:"dissolved_oxygen"`
	PH              float64   `json:"ph"`
	Conductivity    float64   `json:"conductivity"`
	BOD             float64   `json:"bod"`
	Nitrate         float64   `json:"nitrate"`
	FecalColiform   float64   `json:"fecal_coliform"`
	TotalColiform   float64   `json:"total_coliform"`
	Timestamp       time.Time `json:"timestamp"`
}

// Prediction is the classifier verdict for exactly one Measurement.
type Prediction struct {
	ID            int64     `json:"id"`
	MeasurementID int64     `json:"measurement_id"`
	IsPotable     bool      `json:"is_potable"`
	Confidence    float64   `json:"confidence"`
	ModelVersion  string    `json:"model_version"`
	Timestamp     time.Time `json:"timestamp"`
}

// Recommendation is one persisted remediation item. Only EstimatedCost and
// ImplementationTimeframe may change after creation.
type Recommendation struct {
	ID                      int64     `json:"id"`
	MeasurementID           int64     `json:"measurement_id"`
	Parameter               string    `json:"parameter"`
	Severity                Severity  `json:"severity"`
	Priority                Priority  `json:"priority"`
	Recommendation          string    `json:"recommendation"`
	EstimatedCost           *float64  `json:"estimated_cost,omitempty"`
	ImplementationTimeframe *string   `json:"implementation_timeframe,omitempty"`
	Timestamp               time.Time `json:"timestamp"`
}

// RecommendationUpdate carries the back-fillable fields of a Recommendation.
// Nil fields are left untouched.
type RecommendationUpdate struct {
	EstimatedCost           *float64 `json:"estimated_cost,omitempty"`
	ImplementationTimeframe *string  `json:"implementation_timeframe,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RecommendationUpdate) IsEmpty() bool {
	return u.EstimatedCost == nil && u.ImplementationTimeframe == nil
}

// Reading is a single (parameter, value) pair. Slices of readings carry the
// caller's iteration order, which plan output follows.
type Reading struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
}

// ReadingsFrom orders a name/value map for plan assembly. Names resolving to
// a measured parameter come first in FeatureOrder under their canonical name;
// anything else follows in lexical order, unchanged, so the assembler can
// report it as lacking a guideline. When several spellings of one parameter
// are present, the canonical spelling wins, then the lexically first alias.
func ReadingsFrom(values map[string]float64) []Reading {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	known := make(map[string]float64, len(values))
	var unknown []string
	for _, name := range names {
		canonical, ok := CanonicalParameter(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if _, seen := known[canonical]; !seen || name == canonical {
			known[canonical] = values[name]
		}
	}

	out := make([]Reading, 0, len(values))
	for _, name := range FeatureOrder {
		if v, ok := known[name]; ok {
			out = append(out, Reading{Parameter: name, Value: v})
		}
	}
	for _, name := range unknown {
		out = append(out, Reading{Parameter: name, Value: values[name]})
	}
	return out
}

// Features is the predictor input keyed by canonical parameter name.
type Features map[string]float64

// Vector returns the features in FeatureOrder. Missing or non-finite features
// are reported as a validation error.
func (f Features) Vector() ([]float64, error) {
	out := make([]float64, len(FeatureOrder))
	for i, name := range FeatureOrder {
		v, ok := f[name]
		if !ok {
			return nil, NewValidationError(name, "feature is missing", nil)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewValidationError(name, "feature must be a finite number", v)
		}
		out[i] = v
	}
	return out, nil
}

// Verdict is the predictor output.
type Verdict struct {
	IsPotable  bool    `json:"is_potable"`
	Confidence float64 `json:"confidence"`
}

// Readings returns the measured parameters in canonical order.
func (m *Measurement) Readings() []Reading {
	return []Reading{
		{Parameter: ParamTemperature, Value: m.Temperature},
		{Parameter: ParamDissolvedOxygen, Value: m.DissolvedOxygen},
		{Parameter: ParamPH, Value: m.PH},
		{Parameter: ParamConductivity, Value: m.Conductivity},
		{Parameter: ParamBOD, Value: m.BOD},
		{Parameter: ParamNitrate, Value: m.Nitrate},
		{Parameter: ParamFecalColiform, Value: m.FecalColiform},
		{Parameter: ParamTotalColiform, Value: m.TotalColiform},
	}
}

// Features returns the predictor input for this measurement.
func (m *Measurement) Features() Features {
	f := make(Features, len(FeatureOrder))
	for _, r := range m.Readings() {
		f[r.Parameter] = r.Value
	}
	return f
}

// Value returns the reading for a canonical parameter name.
func (m *Measurement) Value(parameter string) (float64, bool) {
	for _, r := range m.Readings() {
		if r.Parameter == parameter {
			return r.Value, true
		}
	}
	return 0, false
}

// Sample is an incoming measurement request. It accepts canonical names and
// the dataset aliases (D.O, B.O.D, Lat, Lon, ...) on decode.
type Sample struct {
	Location  string
	Timestamp *time.Time
	values    map[string]float64
}

// NewSample builds a sample from canonical or aliased names. Two spellings of
// the same field are rejected.
func NewSample(location string, values map[string]float64) (*Sample, error) {
	s := &Sample{Location: location, values: make(map[string]float64, len(values))}
	seen := make(map[string]string, len(values))
	for name, v := range values {
		if err := checkDuplicate(seen, name); err != nil {
			return nil, err
		}
		if err := s.Set(name, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// checkDuplicate records name under its canonical field and fails if another
// spelling of that field was already seen. Unknown names pass through.
func checkDuplicate(seen map[string]string, name string) error {
	canonical, ok := CanonicalName(name)
	if !ok {
		return nil
	}
	if prev, dup := seen[canonical]; dup {
		return NewValidationError(canonical, "given more than once", []string{prev, name})
	}
	seen[canonical] = name
	return nil
}

// Set assigns a parameter or coordinate value by any accepted name.
func (s *Sample) Set(name string, v float64) error {
	canonical, ok := CanonicalName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if s.values == nil {
		s.values = make(map[string]float64)
	}
	s.values[canonical] = v
	return nil
}

// Get returns a value by canonical name.
func (s *Sample) Get(canonical string) (float64, bool) {
	v, ok := s.values[canonical]
	return v, ok
}

// UnmarshalJSON decodes a flat JSON object. Unknown keys are ignored; null
// readings and repeated spellings of one field are validation errors.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.values = make(map[string]float64, len(raw))
	seen := make(map[string]string, len(raw))
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "location":
			if err := json.Unmarshal(val, &s.Location); err != nil {
				return NewValidationError("location", "must be a string", string(val))
			}
			continue
		case "timestamp":
			var ts time.Time
			if err := json.Unmarshal(val, &ts); err != nil {
				return NewValidationError("timestamp", "must be an RFC 3339 time", string(val))
			}
			s.Timestamp = &ts
			continue
		}
		canonical, ok := CanonicalName(key)
		if !ok {
			continue
		}
		if err := checkDuplicate(seen, key); err != nil {
			return err
		}
		f, err := DecodeNumber(val)
		if err != nil {
			return NewValidationError(canonical, "must be a number", string(val))
		}
		s.values[canonical] = f
	}
	return nil
}

// DecodeNumber decodes a JSON number. Unlike json.Unmarshal into a float64,
// it rejects null instead of leaving the zero value.
func DecodeNumber(raw json.RawMessage) (float64, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, errors.New("null is not a number")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// MarshalJSON encodes the sample with canonical names.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.values)+2)
	out["location"] = s.Location
	if s.Timestamp != nil {
		out["timestamp"] = s.Timestamp
	}
	for k, v := range s.values {
		out[k] = v
	}
	return json.Marshal(out)
}

// nonNegative lists parameters that are concentrations or counts.
var nonNegative = map[string]bool{
	ParamDissolvedOxygen: true,
	ParamConductivity:    true,
	ParamBOD:             true,
	ParamNitrate:         true,
	ParamFecalColiform:   true,
	ParamTotalColiform:   true,
}

// Validate checks that every field is present and plausible. It runs before
// any prediction or persistence.
func (s *Sample) Validate() error {
	if strings.TrimSpace(s.Location) == "" {
		return NewValidationError("location", "is required", s.Location)
	}
	required := append([]string{FieldLatitude, FieldLongitude}, FeatureOrder...)
	for _, name := range required {
		v, ok := s.values[name]
		if !ok {
			return NewValidationError(name, "is required", nil)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(name, "must be a finite number", v)
		}
		if nonNegative[name] && v < 0 {
			return NewValidationError(name, "must not be negative", v)
		}
	}
	if lat := s.values[FieldLatitude]; lat < -90 || lat > 90 {
		return NewValidationError(FieldLatitude, "must be between -90 and 90", lat)
	}
	if lon := s.values[FieldLongitude]; lon < -180 || lon > 180 {
		return NewValidationError(FieldLongitude, "must be between -180 and 180", lon)
	}
	if ph := s.values[ParamPH]; ph < 0 || ph > 14 {
		return NewValidationError(ParamPH, "must be between 0 and 14", ph)
	}
	return nil
}

// Measurement converts a validated sample into an unsaved Measurement.
func (s *Sample) Measurement() *Measurement {
	m := &Measurement{
		Location:        strings.TrimSpace(s.Location),
		Latitude:        s.values[FieldLatitude],
		Longitude:       s.values[FieldLongitude],
		Temperature:     s.values[ParamTemperature],
		DissolvedOxygen: s.values[ParamDissolvedOxygen],
		PH:              s.values[ParamPH],
		Conductivity:    s.values[ParamConductivity],
		BOD:             s.values[ParamBOD],
		Nitrate:         s.values[ParamNitrate],
		FecalColiform:   s.values[ParamFecalColiform],
		TotalColiform:   s.values[ParamTotalColiform],
	}
	if s.Timestamp != nil {
		m.Timestamp = s.Timestamp.UTC()
	}
	return m
}

// Plan is a remediation plan bucketed by priority. Every slice is non-nil so
// it encodes as [] rather than null.
type Plan struct {
	Immediate  []string `json:"immediate"`
	ShortTerm  []string `json:"short_term"`
	LongTerm   []string `json:"long_term"`
	Preventive []string `json:"preventive"`
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		Immediate:  []string{},
		ShortTerm:  []string{},
		LongTerm:   []string{},
		Preventive: []string{},
	}
}

// Tier returns a pointer to the bucket for p, or nil for an unknown priority.
func (p *Plan) Tier(priority Priority) *[]string {
	switch priority {
	case PriorityImmediate:
		return &p.Immediate
	case PriorityShortTerm:
		return &p.ShortTerm
	case PriorityLongTerm:
		return &p.LongTerm
	case PriorityPreventive:
		return &p.Preventive
	default:
		return nil
	}
}

// Len counts all entries across tiers.
func (p *Plan) Len() int {
	return len(p.Immediate) + len(p.ShortTerm) + len(p.LongTerm) + len(p.Preventive)
}

// AssessmentReport is the composite result returned to the transport layer.
type AssessmentReport struct {
	Measurement     *Measurement      `json:"measurement"`
	Prediction      *Prediction       `json:"prediction"`
	Recommendations []*Recommendation `json:"recommendations"`
	Plan            *Plan             `json:"plan,omitempty"`
}

// MeasurementFilter narrows measurement listings.
type MeasurementFilter struct {
	Location  string
	StartDate *time.Time
	EndDate   *time.Time
	Skip      int
	Limit     int
}
