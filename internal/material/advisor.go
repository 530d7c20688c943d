package material

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidQuery is matched by every advisor validation failure.
var ErrInvalidQuery = errors.New("invalid advisor query")

// Environment is where the part will be used.
type Environment string

const (
	General    Environment = "general"
	Medical    Environment = "medical"
	Industrial Environment = "industrial"
	Outdoor    Environment = "outdoor"
)

// Budget is the caller's cost tolerance.
type Budget string

const (
	Low    Budget = "low"
	Medium Budget = "medium"
	High   Budget = "high"
)

// Suitability classifies a safety factor.
type Suitability string

const (
	Excellent    Suitability = "Excellent"
	Good         Suitability = "Good"
	Acceptable   Suitability = "Acceptable"
	Insufficient Suitability = "Insufficient"
)

// minLoad guards the comparison denominator.
const minLoad = 1e-9

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// Query is the advisor input. Load is in newtons.
type Query struct {
	Load        float64     `json:"load" validate:"finite,gt=0"`
	Environment Environment `json:"environment" validate:"required,oneof=general medical industrial outdoor"`
	Budget      Budget      `json:"budget" validate:"required,oneof=low medium high"`
}

// Normalized lower-cases and trims the categorical fields. It never
// substitutes a value for an unknown one.
func (q Query) Normalized() Query {
	q.Environment = Environment(strings.ToLower(strings.TrimSpace(string(q.Environment))))
	q.Budget = Budget(strings.ToLower(strings.TrimSpace(string(q.Budget))))
	return q
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid advisor query: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// Validate checks the query after normalization.
func (q Query) Validate() error {
	err := validate.Struct(q.Normalized())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: jsonField(fe.Field()), Message: describe(fe)})
	}
	return out
}

func jsonField(name string) string {
	switch name {
	case "Load":
		return "load"
	case "Environment":
		return "environment"
	case "Budget":
		return "budget"
	}
	return name
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "finite":
		return "must be a finite number"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// Alternative is a material worth considering instead of the recommendation.
type Alternative struct {
	Material Key    `json:"material"`
	Reason   string `json:"reason"`
}

// Recommendation is the advisor's answer to one query.
type Recommendation struct {
	Material     Key           `json:"material"`
	Profile      Material      `json:"profile"`
	Rule         string        `json:"rule"`
	Rationale    []string      `json:"rationale"`
	DesignTips   []string      `json:"design_tips"`
	Warnings     []string      `json:"warnings"`
	Alternatives []Alternative `json:"alternatives"`
}

// ComparisonRow rates one catalog material against the query load.
type ComparisonRow struct {
	Material     Key         `json:"material"`
	DisplayName  string      `json:"display_name"`
	SafetyFactor float64     `json:"safety_factor"`
	CostPerKg    float64     `json:"cost_per_kg"`
	CO2PerKg     float64     `json:"co2_per_kg"`
	Suitability  Suitability `json:"suitability"`
}

// Advice is the full advisor response.
type Advice struct {
	Recommendation Recommendation  `json:"recommendation"`
	Comparison     []ComparisonRow `json:"comparison"`
}

// Advisor evaluates the rule table against a material catalog. It holds no
// mutable state and is safe for concurrent use.
type Advisor struct {
	catalog *Catalog
	rules   []rule
}

// NewAdvisor returns an advisor over catalog, or the embedded catalog when nil.
func NewAdvisor(catalog *Catalog) *Advisor {
	if catalog == nil {
		catalog = Default()
	}
	return &Advisor{catalog: catalog, rules: decisionTable()}
}

// Catalog returns the advisor's material catalog.
func (a *Advisor) Catalog() *Catalog {
	return a.catalog
}

// Advise returns a recommendation and the ranked comparison for q.
func (a *Advisor) Advise(q Query) (Advice, error) {
	rec, err := a.Recommend(q)
	if err != nil {
		return Advice{}, err
	}
	rows, err := a.Compare(q.Load)
	if err != nil {
		return Advice{}, err
	}
	return Advice{Recommendation: rec, Comparison: rows}, nil
}

// Recommend validates q and applies the first matching rule.
func (a *Advisor) Recommend(q Query) (Recommendation, error) {
	if err := q.Validate(); err != nil {
		return Recommendation{}, err
	}
	q = q.Normalized()

	for _, r := range a.rules {
		if !r.when(q) {
			continue
		}
		profile, ok := a.catalog.Lookup(r.material)
		if !ok {
			return Recommendation{}, fmt.Errorf("rule %s: material %q not in catalog", r.name, r.material)
		}
		rec := Recommendation{
			Material:     r.material,
			Profile:      profile,
			Rule:         r.name,
			Rationale:    append([]string{}, r.rationale...),
			DesignTips:   r.designTips(q),
			Warnings:     append([]string{}, r.warnings...),
			Alternatives: append([]Alternative{}, r.alternatives...),
		}
		return rec, nil
	}
	// The fallback rows cover every budget, so this only happens if the table is edited badly.
	return Recommendation{}, fmt.Errorf("no rule matched %+v", q)
}

// Compare rates every catalog material against load, ordered by descending
// safety factor and then ascending cost.
func (a *Advisor) Compare(load float64) ([]ComparisonRow, error) {
	if math.IsNaN(load) || math.IsInf(load, 0) || load <= 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "load", Message: fmt.Sprintf("must be greater than 0, got %v", load)}}}
	}
	rows := make([]ComparisonRow, 0, len(a.catalog.materials))
	for _, m := range a.catalog.materials {
		sf := m.YieldStrength / math.Max(load, minLoad)
		rows = append(rows, ComparisonRow{
			Material:     m.Key,
			DisplayName:  m.DisplayName,
			SafetyFactor: sf,
			CostPerKg:    m.CostPerKg,
			CO2PerKg:     m.CO2PerKg,
			Suitability:  Classify(sf),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SafetyFactor != rows[j].SafetyFactor {
			return rows[i].SafetyFactor > rows[j].SafetyFactor
		}
		return rows[i].CostPerKg < rows[j].CostPerKg
	})
	return rows, nil
}

// Classify maps a safety factor onto the suitability thresholds.
func Classify(safetyFactor float64) Suitability {
	switch {
	case safetyFactor >= 2.0:
		return Excellent
	case safetyFactor >= 1.5:
		return Good
	case safetyFactor >= 1.2:
		return Acceptable
	default:
		return Insufficient
	}
}
