// Package design holds the candidate designs of one optimization run and the
// comparison math between two of them.
package design

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCatalog is returned when a set of designs cannot form a catalog.
var ErrInvalidCatalog = errors.New("invalid design catalog")

var validate = validator.New()

// Design is one point on the Pareto front. Optional fields that the optimizer
// did not report are zero.
type Design struct {
	ID              int            `json:"id"`
	Mass            float64        `json:"mass"`
	Cost            float64        `json:"cost"`
	StressPredicted float64        `json:"stress_predicted"`
	PrintScore      int            `json:"print_score"`
	PrintTimeHours  float64        `json:"print_time_hours"`
	CO2Kg           float64        `json:"co2_kg"`
	EfficiencyIndex float64        `json:"efficiency_index"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	ModelReference  string         `json:"model_reference,omitempty"`
}

// Record is a design as reported by the optimizer service. Pointer fields are
// optional; a nil pointer means absent, which is distinct from a reported zero.
type Record struct {
	ID              *int           `json:"id" validate:"required"`
	Mass            float64        `json:"mass" validate:"gt=0"`
	Cost            float64        `json:"cost" validate:"gt=0"`
	StressPredicted *float64       `json:"stress_predicted,omitempty" validate:"omitempty,gte=0"`
	PrintScore      *int           `json:"print_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	PrintTimeHours  *float64       `json:"print_time_hours,omitempty" validate:"omitempty,gte=0"`
	CO2Kg           *float64       `json:"co2_kg,omitempty" validate:"omitempty,gte=0"`
	EfficiencyIndex *float64       `json:"efficiency_index,omitempty" validate:"omitempty,gte=0"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	STLFile         *string        `json:"stl_file,omitempty"`
}

// Design applies the documented defaults to absent fields.
func (r Record) Design() Design {
	d := Design{
		Mass:            r.Mass,
		Cost:            r.Cost,
		StressPredicted: floatOr(r.StressPredicted),
		PrintTimeHours:  floatOr(r.PrintTimeHours),
		CO2Kg:           floatOr(r.CO2Kg),
		EfficiencyIndex: floatOr(r.EfficiencyIndex),
		Parameters:      r.Parameters,
	}
	if r.ID != nil {
		d.ID = *r.ID
	}
	if r.PrintScore != nil {
		d.PrintScore = *r.PrintScore
	}
	if r.STLFile != nil {
		d.ModelReference = *r.STLFile
	}
	return d
}

func floatOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Meta describes the run that produced a catalog.
type Meta struct {
	RunID         string  `json:"run_id"`
	Material      string  `json:"material"`
	YieldStrength float64 `json:"yield_strength"`
	Generations   int     `json:"n_generations"`
	Evaluations   int     `json:"n_evaluations"`
	Cached        bool    `json:"cached"`
}

// Catalog is the read-only, ordered Pareto front of one optimization run.
// A new run replaces the catalog; it is never edited in place.
type Catalog struct {
	Meta
	designs []Design
	index   map[int]int
}

// NewCatalog builds a catalog in the given order. Ids must be unique, mass
// and cost positive and print scores within 0..100.
func NewCatalog(meta Meta, designs []Design) (*Catalog, error) {
	c := &Catalog{
		Meta:    meta,
		designs: make([]Design, len(designs)),
		index:   make(map[int]int, len(designs)),
	}
	var problems []string
	for i, d := range designs {
		if _, dup := c.index[d.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate design id %d", d.ID))
			continue
		}
		if !(d.Mass > 0) || !(d.Cost > 0) {
			problems = append(problems, fmt.Sprintf("design %d: mass and cost must be positive", d.ID))
		}
		if d.PrintScore < 0 || d.PrintScore > 100 {
			problems = append(problems, fmt.Sprintf("design %d: print score %d outside 0..100", d.ID, d.PrintScore))
		}
		c.index[d.ID] = i
		c.designs[i] = d
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return c, nil
}

// FromRecords validates optimizer records and builds a catalog. Any invalid
// record rejects the whole set.
func FromRecords(meta Meta, records []Record) (*Catalog, error) {
	designs := make([]Design, 0, len(records))
	for i, r := range records {
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidCatalog, i, err)
		}
		designs = append(designs, r.Design())
	}
	return NewCatalog(meta, designs)
}

// Len returns the number of designs. A nil catalog is empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.designs)
}

// Designs returns a copy of the designs in catalog order.
func (c *Catalog) Designs() []Design {
	if c == nil {
		return []Design{}
	}
	out := make([]Design, len(c.designs))
	copy(out, c.designs)
	return out
}

// Lookup finds a design by id.
func (c *Catalog) Lookup(id int) (Design, bool) {
	if c == nil {
		return Design{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Design{}, false
	}
	return c.designs[i], true
}

// Contains reports whether id belongs to this catalog.
func (c *Catalog) Contains(id int) bool {
	_, ok := c.Lookup(id)
	return ok
}
