package engine

import (
	"fmt"

	"github.com/talgya/earth-dominion/internal/catalog"
)

// Ability ids.
const (
	AbilityOrbitalStrike   = "dom_t3_a"
	AbilityNeuralBroadcast = "man_t3_a"
	AbilityResourceSynth   = "ada_t3_a"
)

// Ability is the fixed trade an active skill performs.
type Ability struct {
	ID         string
	EnergyCost float64
	apply      func(*State)
}

var abilities = map[string]Ability{
	AbilityOrbitalStrike: {
		ID:         AbilityOrbitalStrike,
		EnergyCost: 300,
		apply:      func(s *State) { s.Threat = clamp(s.Threat-25, 0, MaxThreat) },
	},
	AbilityNeuralBroadcast: {
		ID:         AbilityNeuralBroadcast,
		EnergyCost: 200,
		apply:      func(s *State) { s.Resources.Stability = clamp(s.Resources.Stability+15, 0, MaxStability) },
	},
	AbilityResourceSynth: {
		ID:         AbilityResourceSynth,
		EnergyCost: 300,
		apply:      func(s *State) { s.Resources.Credits += 1000 },
	},
}

// LookupAbility returns the trade behind an active skill id.
func LookupAbility(id string) (Ability, bool) {
	a, ok := abilities[id]
	return a, ok
}

// Activate fires an active skill.
func Activate(cat *catalog.Catalog, s State, id string) (State, error) {
	if s.GameOver {
		return s, ErrGameOver
	}
	skill, ok := cat.Skill(id)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownSkill, id)
	}
	ab, ok := abilities[id]
	if skill.Type != catalog.SkillActive || !ok {
		return s, fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	if !s.Skills.Has(id) {
		return s, fmt.Errorf("%w: %s is locked", ErrPrerequisite, id)
	}
	if s.Cooldowns[id] > 0 {
		return s, fmt.Errorf("%w: %s has %d turns left", ErrCoolingDown, id, s.Cooldowns[id])
	}
	if s.Resources.Energy < ab.EnergyCost {
		return s, fmt.Errorf("%w: %s needs %.0f energy", ErrInsufficientResources, id, ab.EnergyCost)
	}

	next := s.Clone()
	next.Resources.Energy -= ab.EnergyCost
	ab.apply(&next)
	next.Cooldowns[id] = skill.Cooldown
	next.HasActed = true
	return next, nil
}

// TickCooldowns decrements every positive entry and drops the ones that
// reach zero.
func TickCooldowns(c Cooldowns) Cooldowns {
	out := make(Cooldowns, len(c))
	for id, left := range c {
		if left > 0 {
			left--
		}
		if left > 0 {
			out[id] = left
		}
	}
	return out
}
