package material

import (
	"fmt"
	"math"
	"strconv"
)

// rule is one row of the decision table. Rows are evaluated in order and the
// first match wins; rows are never blended.
type rule struct {
	name         string
	when         func(q Query) bool
	material     Key
	rationale    []string
	tips         []string
	warnings     []string
	alternatives []Alternative
	// minWallMm raises the load-tier wall minimum for this row.
	minWallMm float64
	// scaledWall replaces the load tiers with max(3, round(load/50)).
	scaledWall bool
	// infill marks rows whose own tips already prescribe an infill.
	infill bool
}

func isEnv(e Environment) func(Query) bool {
	return func(q Query) bool { return q.Environment == e }
}

func decisionTable() []rule {
	medical := isEnv(Medical)
	outdoor := isEnv(Outdoor)
	industrial := isEnv(Industrial)

	return []rule{
		{
			name:     "medical-low-load",
			when:     func(q Query) bool { return medical(q) && q.Load < 150 },
			material: PLA,
			rationale: []string{
				"PLA is biocompatible and suitable for low-load medical applications",
				"Strength is sufficient for loads below 150N",
				"Can be sterilized by wiping with a medical-grade disinfectant",
				"Prints with a good surface finish for patient comfort",
			},
			tips: []string{
				"Use high infill (80-100%) in load-bearing regions",
				"Round every edge that contacts skin",
			},
			minWallMm: 3,
			infill:    true,
		},
		{
			name:     "medical-high-load",
			when:     medical,
			material: Steel,
			rationale: []string{
				"Steel provides medical-grade strength and fatigue life for high loads",
				"Withstands repeated autoclave sterilization",
			},
			tips: []string{
				"Polish patient-contact surfaces",
				"Apply a corrosion-resistant coating or passivation",
				"Avoid crevices and blind pockets so the part stays cleanable",
			},
		},
		{
			name:     "outdoor-low-budget",
			when:     func(q Query) bool { return outdoor(q) && q.Budget == Low },
			material: PLA,
			rationale: []string{
				"PLA is the most cost-effective option for outdoor use, with limitations",
			},
			warnings: []string{
				"PLA degrades under UV exposure and softens above 50°C",
			},
			tips: []string{
				"Apply a UV-resistant coating or paint",
				"Shade the part from direct sunlight where possible",
				"Use thicker walls (4-5mm) to offset weathering",
				"Plan a replacement interval and inspect for embrittlement",
			},
			alternatives: []Alternative{
				{Material: Steel, Reason: "Better outdoor durability"},
			},
			minWallMm: 4,
		},
		{
			name:     "outdoor",
			when:     outdoor,
			material: Steel,
			rationale: []string{
				"Steel offers excellent weather and UV resistance",
				"Stays dimensionally stable from -40°C to 200°C",
			},
			tips: []string{
				"Protect against corrosion with powder coating or galvanizing",
				"Add drainage paths so water cannot pool",
				"Allow for thermal expansion at joints and fasteners",
			},
		},
		{
			name:     "industrial-light-low-budget",
			when:     func(q Query) bool { return industrial(q) && q.Load < 100 && q.Budget == Low },
			material: PLA,
			rationale: []string{
				"PLA is sufficient for low-load industrial fixtures",
				"Cost-effective for prototypes and jigs",
			},
			tips: []string{
				"Increase wall thickness to 4-5mm for safety factor",
			},
			minWallMm: 4,
		},
		{
			name:     "industrial-light",
			when:     func(q Query) bool { return industrial(q) && q.Load < 100 },
			material: Aluminum,
			rationale: []string{
				"Aluminum provides an excellent strength-to-weight ratio",
				"Ideal for weight-critical industrial applications",
				"Good machinability for tight tolerances",
			},
		},
		{
			name:     "industrial-medium-low-budget",
			when:     func(q Query) bool { return industrial(q) && q.Load < 200 && q.Budget == Low },
			material: PLA,
			rationale: []string{
				"PLA can handle moderate loads with a robust design",
			},
			warnings: []string{
				"PLA may creep under sustained load; inspect for permanent deformation",
			},
			tips: []string{
				"Design for a safety factor of 2.0 or higher",
			},
			alternatives: []Alternative{
				{Material: Aluminum, Reason: "Better strength-to-weight for medium loads"},
			},
			minWallMm: 5,
		},
		{
			name:     "industrial-medium",
			when:     func(q Query) bool { return industrial(q) && q.Load < 200 },
			material: Aluminum,
			rationale: []string{
				"Aluminum balances strength and weight for medium industrial loads",
				"Excellent fatigue resistance for repeated loading",
			},
		},
		{
			name:     "industrial-heavy",
			when:     industrial,
			material: Steel,
			rationale: []string{
				"Steel is required for high-load industrial applications",
				"Safety takes precedence over the budget preference at this load",
			},
			tips: []string{
				"Specify heat treatment for maximum strength",
			},
			minWallMm: 5,
		},
		{
			name:     "general-low-budget",
			when:     func(q Query) bool { return q.Budget == Low },
			material: PLA,
			rationale: []string{
				"PLA is the most cost-effective material",
				"Widely available and easy to 3D print",
			},
			scaledWall: true,
		},
		{
			name:     "general",
			when:     func(Query) bool { return true },
			material: Aluminum,
			rationale: []string{
				"Aluminum offers a strong balance of strength, weight and cost",
				"Suitable for most general-purpose loads",
			},
			scaledWall: true,
		},
	}
}

// designTips returns the row's own tips followed by the load-derived ones.
func (r rule) designTips(q Query) []string {
	tips := append([]string{}, r.tips...)

	var wall float64
	if r.scaledWall {
		wall = math.Max(3, math.Round(q.Load/50))
	} else {
		wall = math.Max(r.minWallMm, tierWall(q.Load))
	}
	tips = append(tips, fmt.Sprintf("Keep wall thickness ≥ %smm for a %sN load", num(wall), num(q.Load)))

	if q.Load >= 100 {
		tips = append(tips, "Add reinforcement ribs (≥3mm thick) to distribute stress")
	}
	if q.Load >= 200 {
		tips = append(tips, "Target a safety factor of 2.0 or higher")
	}
	if q.Budget == Low && r.material == PLA {
		if !r.infill {
			tips = append(tips, "Print with 100% infill or solid walls")
		}
		tips = append(tips, "Orient the print so layers run parallel to the load")
	}
	return tips
}

func tierWall(load float64) float64 {
	switch {
	case load < 100:
		return 3
	case load < 200:
		return 4
	default:
		return 5
	}
}

// num prints v with at most two decimals and no trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
