// Package domain contains the core entities and enumerations for drinking-water
// potability assessment and remediation planning.
//
// Guideline bands follow the WHO Guidelines for Drinking-water Quality (4th ed.)
// where a guideline value exists, and common surface-water monitoring practice
// otherwise.
package domain

import (
	"errors"
	"fmt"
)

// Direction is the side of the acceptable band an out-of-range reading falls on.
type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// Severity is the graded label of how far a reading deviates from its band.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMild     Severity = "mild"
	// SeverityNormal is returned when a reading is out of range but no
	// threshold tier matches. The deviation is still reported.
	SeverityNormal Severity = "normal"
	// SeverityUnknown is returned when the parameter has no guideline.
	SeverityUnknown Severity = "unknown"
)

// Priority is the urgency bucket for a remediation action.
type Priority string

const (
	PriorityImmediate  Priority = "immediate"
	PriorityShortTerm  Priority = "short_term"
	PriorityLongTerm   Priority = "long_term"
	PriorityPreventive Priority = "preventive"
)

// Priorities lists the priority tiers in processing order.
var Priorities = []Priority{
	PriorityImmediate,
	PriorityShortTerm,
	PriorityLongTerm,
	PriorityPreventive,
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDirection  = errors.New("invalid deviation direction")
	ErrInvalidSeverity   = errors.New("invalid severity level")
	ErrInvalidPriority   = errors.New("invalid priority tier")
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// IsValid reports whether d is one of the two deviation directions.
func (d Direction) IsValid() bool {
	return d == DirectionLow || d == DirectionHigh
}

func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether s is a known severity label.
func (s Severity) IsValid() bool {
	switch s {
	case SeveritySevere, SeverityModerate, SeverityMild, SeverityNormal, SeverityUnknown:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// IsValid reports whether p is one of the four priority tiers.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityImmediate, PriorityShortTerm, PriorityLongTerm, PriorityPreventive:
		return true
	default:
		return false
	}
}

func (p Priority) String() string {
	return string(p)
}

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// ParsePriority converts a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}
