package steward

import (
	"cmp"
	"slices"

	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/engine"
)

// Actions the steward can take.
const (
	ActionEndTurn     = "end_turn"
	ActionControl     = "control"
	ActionSuppress    = "suppress"
	ActionNuclear     = "nuclear"
	ActionDiagnostics = "diagnostics"
	ActionUnlock      = "unlock"
	ActionActivate    = "activate"
	ActionResolve     = "resolve"
	ActionPick        = "pick"
	ActionWait        = "wait" // narrative event still being generated
	ActionStop        = "stop" // game over
)

// Decision is one chosen action.
type Decision struct {
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"` // region code, skill id or protocol id
	Option    int    `json:"option,omitempty"`
	Rationale string `json:"rationale"`
}

// creditReserve is kept back from optional spending so a critical event can
// still be paid for.
const creditReserve = 300

// Playbook picks an action by fixed rules. It is the fallback when no model
// is configured or the model's answer fails the guardrails.
func Playbook(obs *Observation, h *Health) Decision {
	snap := obs.State
	switch snap.Phase {
	case engine.PhaseOver:
		return Decision{Action: ActionStop, Rationale: "game over"}
	case engine.PhaseFetching:
		return Decision{Action: ActionWait, Rationale: "event incoming"}
	case engine.PhaseEvent:
		return resolveEvent(snap)
	case engine.PhaseDrafting:
		return pickProtocol(snap.Draft, h)
	}

	st := snap.State
	if h.Threat >= 60 {
		if d, ok := readyAbility(obs, engine.AbilityOrbitalStrike); ok {
			d.Rationale = "threat high, striking"
			return d
		}
	}
	if h.Stability <= 50 {
		if d, ok := readyAbility(obs, engine.AbilityNeuralBroadcast); ok {
			d.Rationale = "stability low, broadcasting"
			return d
		}
	}

	// Rebels drain stability every turn; repair the cheapest first.
	var rebels []engine.RegionView
	for _, r := range obs.Regions {
		if r.Status == engine.StatusRebellious && st.Resources.CanAfford(r.RepairCost) {
			rebels = append(rebels, r)
		}
	}
	if len(rebels) > 0 {
		slices.SortFunc(rebels, func(a, b engine.RegionView) int { return cmp.Compare(a.RepairCost.Credits, b.RepairCost.Credits) })
		return Decision{Action: ActionSuppress, Target: rebels[0].Code, Rationale: "suppress cheapest rebellion"}
	}

	for _, r := range obs.Regions {
		if r.PlantEligible && st.Resources.Credits-engine.PlantCost >= creditReserve {
			return Decision{Action: ActionNuclear, Target: r.Code, Rationale: "build plant"}
		}
	}

	if sk, ok := cheapestUnlock(obs.Skills, st.Resources); ok {
		return Decision{Action: ActionUnlock, Target: sk.ID, Rationale: "unlock " + sk.ID}
	}

	if r, ok := cheapestUnclaimed(obs.Regions, st.Resources); ok {
		return Decision{Action: ActionControl, Target: r.Code, Rationale: "expand into " + r.Name}
	}

	// Acting at least once per turn avoids the inactivity penalty.
	if !st.HasActed && st.Resources.Energy >= engine.DiagnosticsEnergy {
		for _, r := range obs.Regions {
			if r.Status == engine.StatusControlled {
				return Decision{Action: ActionDiagnostics, Target: r.Code, Rationale: "avoid inactivity"}
			}
		}
	}

	return Decision{Action: ActionEndTurn, Rationale: "nothing affordable"}
}

func readyAbility(obs *Observation, id string) (Decision, bool) {
	sk, ok := obs.Skill(id)
	if !ok || !sk.Unlocked || sk.Cooldown > 0 {
		return Decision{}, false
	}
	ab, ok := engine.LookupAbility(id)
	if !ok || obs.State.State.Resources.Energy < ab.EnergyCost {
		return Decision{}, false
	}
	return Decision{Action: ActionActivate, Target: id}, true
}

// resolveEvent pays for option 0 when it leaves the reserve intact, and
// otherwise takes the stability hit.
func resolveEvent(snap engine.Snapshot) Decision {
	ev := snap.Event
	if ev == nil || len(ev.Options) == 0 {
		return Decision{Action: ActionWait, Rationale: "event not visible yet"}
	}
	mult := ev.Severity.Multiplier()
	res := snap.State.Resources
	payable := res.Credits-engine.EventCreditCost*mult >= creditReserve/2 &&
		res.Energy >= engine.EventEnergyCost*mult
	if payable || len(ev.Options) == 1 || res.Stability <= engine.EventStabilityLoss*mult+10 {
		return Decision{Action: ActionResolve, Option: 0, Rationale: "pay for " + string(ev.Severity) + " event"}
	}
	return Decision{Action: ActionResolve, Option: 1, Rationale: "cannot pay, absorb " + string(ev.Severity) + " event"}
}

// protocolPreference ranks protocol effects for a health reading.
func protocolPreference(h *Health) []catalog.EffectKind {
	switch h.CrisisLevel {
	case CrisisCritical, CrisisWarning:
		return []catalog.EffectKind{catalog.EffectThreatReduction, catalog.EffectStabilityRegen, catalog.EffectCostReduction, catalog.EffectIncomeCredit}
	default:
		return []catalog.EffectKind{catalog.EffectIncomeCredit, catalog.EffectCostReduction, catalog.EffectIncomeEnergy, catalog.EffectThreatReduction}
	}
}

var rarityRank = map[catalog.Rarity]int{
	catalog.RarityLegendary: 0,
	catalog.RarityRare:      1,
	catalog.RarityCommon:    2,
}

func pickProtocol(draft []engine.DraftOption, h *Health) Decision {
	if len(draft) == 0 {
		return Decision{Action: ActionWait, Rationale: "draft not visible yet"}
	}
	pref := protocolPreference(h)
	rank := func(p engine.DraftOption) int {
		if i := slices.Index(pref, p.Effect); i >= 0 {
			return i
		}
		return len(pref)
	}
	best := slices.MinFunc(draft, func(a, b engine.DraftOption) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(rarityRank[a.Rarity], rarityRank[b.Rarity]))
	})
	return Decision{Action: ActionPick, Target: best.ID, Rationale: "draft " + best.ID}
}

func cheapestUnlock(skills []engine.SkillView, res engine.Resources) (engine.SkillView, bool) {
	var best engine.SkillView
	found := false
	for _, sk := range skills {
		if !sk.Unlockable || !sk.Affordable || res.Credits-sk.Cost.Credits < creditReserve {
			continue
		}
		if !found || sk.Cost.Credits < best.Cost.Credits {
			best, found = sk, true
		}
	}
	return best, found
}

func cheapestUnclaimed(regions []engine.RegionView, res engine.Resources) (engine.RegionView, bool) {
	var best engine.RegionView
	found := false
	for _, r := range regions {
		if r.Status != engine.StatusUnclaimed || !res.CanAfford(r.ControlCost) || res.Credits-r.ControlCost.Credits < creditReserve {
			continue
		}
		if !found || r.ControlCost.Credits < best.ControlCost.Credits {
			best, found = r, true
		}
	}
	return best, found
}
