// Package guideline holds the reference thresholds and remediation catalog
// used to grade out-of-range readings.
package guideline

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/water-quality-server/internal/domain"
)

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid guideline catalog")

// Table is a validated, read-only set of parameter guidelines. It is built
// once at startup and shared by pointer; nothing mutates it afterwards.
type Table struct {
	entries map[string]*domain.ParameterGuideline
	order   []string
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Guidelines []domain.ParameterGuideline `yaml:"guidelines"`
}

// NewTable validates the catalog and freezes it. Parameter names may use any
// accepted alias and are stored under their canonical name.
func NewTable(catalog []domain.ParameterGuideline) (*Table, error) {
	t := &Table{entries: make(map[string]*domain.ParameterGuideline, len(catalog))}

	for i := range catalog {
		g := catalog[i]
		canonical, ok := domain.CanonicalParameter(g.Parameter)
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidCatalog, domain.ErrUnknownParameter, g.Parameter)
		}
		g.Parameter = canonical
		if _, dup := t.entries[canonical]; dup {
			return nil, fmt.Errorf("%w: duplicate entry for %s", ErrInvalidCatalog, canonical)
		}
		if err := validate(&g); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, canonical, err)
		}
		t.entries[canonical] = &g
	}

	for _, name := range domain.FeatureOrder {
		if _, ok := t.entries[name]; ok {
			t.order = append(t.order, name)
		}
	}
	return t, nil
}

// LoadFile reads a YAML catalog from path and builds a Table from it.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guideline file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse guideline file: %w", err)
	}
	if len(f.Guidelines) == 0 {
		return nil, fmt.Errorf("%w: no guidelines defined", ErrInvalidCatalog)
	}
	return NewTable(f.Guidelines)
}

// Default returns the table for the built-in catalog.
func Default() *Table {
	t, err := NewTable(DefaultCatalog())
	if err != nil {
		panic(fmt.Sprintf("built-in guideline catalog is invalid: %v", err))
	}
	return t
}

// Load returns the table from path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Lookup returns the guideline for a parameter. A miss is a normal outcome.
func (t *Table) Lookup(parameter string) (*domain.ParameterGuideline, bool) {
	canonical, ok := domain.CanonicalParameter(parameter)
	if !ok {
		return nil, false
	}
	g, ok := t.entries[canonical]
	return g, ok
}

// Parameters lists the covered parameters in canonical order.
func (t *Table) Parameters() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// All returns every guideline in canonical order.
func (t *Table) All() []*domain.ParameterGuideline {
	out := make([]*domain.ParameterGuideline, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.entries[name])
	}
	return out
}

// Len returns the number of parameters covered.
func (t *Table) Len() int {
	return len(t.entries)
}

func validate(g *domain.ParameterGuideline) error {
	if g.Range.Min > g.Range.Max {
		return fmt.Errorf("range min %v exceeds max %v", g.Range.Min, g.Range.Max)
	}

	for dir, tiers := range g.Severity {
		if !dir.IsValid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
		}
		for i, tier := range tiers {
			if !tier.Level.IsValid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidSeverity, tier.Level)
			}
			if i == 0 {
				continue
			}
			prev := tiers[i-1].Threshold
			// Most severe first: low ladders climb toward Min, high ladders
			// descend toward Max.
			if dir == domain.DirectionLow && tier.Threshold < prev {
				return fmt.Errorf("low thresholds must ascend, %v follows %v", tier.Threshold, prev)
			}
			if dir == domain.DirectionHigh && tier.Threshold > prev {
				return fmt.Errorf("high thresholds must descend, %v follows %v", tier.Threshold, prev)
			}
		}
	}

	for dir, byPriority := range g.Measures {
		if !dir.IsValid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
		}
		for p := range byPriority {
			if !p.IsValid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidPriority, p)
			}
		}
	}

	for dir, byPriority := range g.Estimates {
		if !dir.IsValid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
		}
		for p, e := range byPriority {
			if !p.IsValid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidPriority, p)
			}
			if e.Cost < 0 {
				return fmt.Errorf("negative cost estimate for %s/%s", dir, p)
			}
		}
	}
	return nil
}
