package engine

import "github.com/talgya/earth-dominion/internal/catalog"

// Totals are the aggregated passive modifiers in effect.
type Totals struct {
	IncomeCreditMult float64 `json:"incomeCreditMult"`
	IncomeEnergyMult float64 `json:"incomeEnergyMult"`
	CostDiscount     float64 `json:"costDiscount"`
	ThreatMitigation float64 `json:"threatMitigation"`
	StabilityRegen   float64 `json:"stabilityRegen"`
}

// IdentityTotals is the modifier set with nothing unlocked.
func IdentityTotals() Totals {
	return Totals{IncomeCreditMult: 1, IncomeEnergyMult: 1}
}

// Aggregate sums the effects of the unlocked skills and active protocols.
// Unknown ids and effect kinds that do not feed turn math are ignored.
// A protocol picked twice counts twice.
func Aggregate(cat *catalog.Catalog, skills Set, protocols []string) Totals {
	t := IdentityTotals()
	for id := range skills {
		if s, ok := cat.Skill(id); ok {
			t.apply(s.Effect, s.Value)
		}
	}
	for _, id := range protocols {
		if p, ok := cat.Protocol(id); ok {
			t.apply(p.Effect, p.Value)
		}
	}
	return t
}

// StateTotals aggregates the modifiers of s.
func StateTotals(cat *catalog.Catalog, s State) Totals {
	return Aggregate(cat, s.Skills, s.Protocols)
}

func (t *Totals) apply(kind catalog.EffectKind, v float64) {
	switch kind {
	case catalog.EffectIncomeCredit:
		t.IncomeCreditMult += v
	case catalog.EffectIncomeEnergy:
		t.IncomeEnergyMult += v
	case catalog.EffectCostReduction:
		t.CostDiscount += v
	case catalog.EffectThreatReduction:
		t.ThreatMitigation += v
	case catalog.EffectStabilityRegen:
		t.StabilityRegen += v
	case catalog.EffectStabilityMax,
		catalog.EffectIntelMining,
		catalog.EffectEventLuck,
		catalog.EffectUnlockAbility,
		catalog.EffectNone:
		// Not part of turn math.
	}
}
