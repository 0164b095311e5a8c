package engine

import (
	"math"

	"github.com/talgya/earth-dominion/internal/entropy"
)

// Threat and stability tuning.
const (
	BaseThreatGrowth       = 3.0
	ThreatGrowthPeriod     = 10  // turns per +1 growth
	RegionThreatDampening  = 0.1 // per controlled region
	InactivityThreatMult   = 2.0
	InactivityStabilityHit = 2.0
	RebellionThreshold     = 20.0
	BaseStabilityDecay     = 1.0
	RebelStabilityDrain    = 0.5
)

// Resolution is the outcome of one threat and stability step.
type Resolution struct {
	Inactive    bool     `json:"inactive"`
	ThreatDelta float64  `json:"threatDelta"` // raw delta after the inactivity multiplier, before clamping
	Threat      float64  `json:"threat"`
	Stability   float64  `json:"stability"`
	Rebellious  Set      `json:"rebellious"`
	NewRebels   []string `json:"newRebels"`
	Terminal    bool     `json:"terminal"`
}

// RebellionChance is the per-region rebellion probability at a threat level.
func RebellionChance(threat float64) float64 {
	if threat <= RebellionThreshold {
		return 0
	}
	return (threat - 10) / 1000
}

// ThreatGrowth is the threat an active turn adds to s, before clamping.
func ThreatGrowth(s State, t Totals) float64 {
	growth := BaseThreatGrowth + math.Floor(float64(s.Turn)/ThreatGrowthPeriod)
	return growth - RegionThreatDampening*float64(len(s.Controlled)) - t.ThreatMitigation
}

// Resolve runs the threat and stability state machine for s. Rebellion rolls
// draw one value per eligible region in ascending code order.
func Resolve(s State, t Totals, rng entropy.Source) Resolution {
	res := Resolution{Rebellious: s.Rebellious.Clone()}

	threatMult, stabilityPenalty := 1.0, 0.0
	if !s.HasActed && s.Turn > 1 {
		res.Inactive = true
		threatMult, stabilityPenalty = InactivityThreatMult, InactivityStabilityHit
	}

	raw := ThreatGrowth(s, t)
	if raw > 0 {
		raw *= threatMult
	}
	res.ThreatDelta = raw
	res.Threat = clamp(s.Threat+raw, 0, MaxThreat)

	if chance := RebellionChance(res.Threat); chance > 0 {
		for _, code := range s.Controlled.Sorted() {
			if res.Rebellious.Has(code) {
				continue
			}
			if rng.Float64() < chance {
				res.Rebellious.Add(code)
				res.NewRebels = append(res.NewRebels, code)
			}
		}
	}

	dmg := BaseStabilityDecay + stabilityPenalty
	if res.Threat > 50 {
		dmg++
	}
	if res.Threat > 80 {
		dmg += 3
	}
	if res.Threat == MaxThreat {
		dmg += 5
	}
	dmg += RebelStabilityDrain * float64(len(res.Rebellious))
	res.Stability = clamp(s.Resources.Stability-dmg+t.StabilityRegen, 0, MaxStability)

	res.Terminal = res.Stability <= 0 || res.Threat >= MaxThreat
	return res
}
