package design

import "math"

// DefaultYieldStrength is used when the run's material yield strength is unknown.
const DefaultYieldStrength = 300.0

// Polarity tells a presentation layer which direction of a delta is good.
type Polarity string

const (
	LowerIsBetter  Polarity = "lower_is_better"
	HigherIsBetter Polarity = "higher_is_better"
)

// Delta is a signed B-minus-A difference.
type Delta struct {
	Value    float64  `json:"value"`
	Polarity Polarity `json:"polarity"`
}

// Improved reports whether B is better than A on this metric.
func (d Delta) Improved() bool {
	if d.Polarity == LowerIsBetter {
		return d.Value < 0
	}
	return d.Value > 0
}

// ComparisonResult holds the deltas between slot A (selected first) and
// slot B (selected second).
type ComparisonResult struct {
	A             int     `json:"a"`
	B             int     `json:"b"`
	YieldStrength float64 `json:"yield_strength"`
	SafetyFactorA float64 `json:"safety_factor_a"`
	SafetyFactorB float64 `json:"safety_factor_b"`
	Mass          Delta   `json:"mass_delta"`
	Cost          Delta   `json:"cost_delta"`
	SafetyPercent Delta   `json:"safety_delta_percent"`
	PrintScore    Delta   `json:"print_score_delta"`
	CO2           Delta   `json:"co2_delta"`
	Efficiency    Delta   `json:"efficiency_delta"`
}

// SafetyFactor is yield strength over predicted stress, or 0 when the
// stress is unavailable.
func SafetyFactor(d Design, yieldStrength float64) float64 {
	if !(d.StressPredicted > 0) {
		return 0
	}
	return yieldStrength / d.StressPredicted
}

// Compare computes the deltas of b relative to a. A non-positive or
// non-finite yield strength falls back to DefaultYieldStrength.
func Compare(a, b Design, yieldStrength float64) ComparisonResult {
	if !(yieldStrength > 0) || math.IsInf(yieldStrength, 0) {
		yieldStrength = DefaultYieldStrength
	}
	sfA := SafetyFactor(a, yieldStrength)
	sfB := SafetyFactor(b, yieldStrength)

	// 0% when A has no safety factor; this also reads as "no change".
	var safetyPct float64
	if sfA > 0 {
		safetyPct = (sfB - sfA) / sfA * 100
	}

	return ComparisonResult{
		A:             a.ID,
		B:             b.ID,
		YieldStrength: yieldStrength,
		SafetyFactorA: sfA,
		SafetyFactorB: sfB,
		Mass:          Delta{Value: b.Mass - a.Mass, Polarity: LowerIsBetter},
		Cost:          Delta{Value: b.Cost - a.Cost, Polarity: LowerIsBetter},
		SafetyPercent: Delta{Value: safetyPct, Polarity: HigherIsBetter},
		PrintScore:    Delta{Value: float64(b.PrintScore - a.PrintScore), Polarity: HigherIsBetter},
		CO2:           Delta{Value: b.CO2Kg - a.CO2Kg, Polarity: LowerIsBetter},
		Efficiency:    Delta{Value: b.EfficiencyIndex - a.EfficiencyIndex, Polarity: HigherIsBetter},
	}
}
