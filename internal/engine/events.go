package engine

import "github.com/talgya/earth-dominion/internal/narrative"

// Base consequences of an event choice, scaled by severity.
const (
	EventCreditCost     = 100
	EventEnergyCost     = 20
	EventStabilityLoss  = 5
	EventThreatIncrease = 2
)

// ResolveEvent applies the player's choice. Option 0 pays credits and
// energy; any other index costs stability and raises threat.
// It does not count as acting this turn.
func ResolveEvent(s State, ev narrative.Event, option int) (State, error) {
	if s.GameOver {
		return s, ErrGameOver
	}
	mult := ev.Severity.Multiplier()
	next := s.Clone()
	if option == 0 {
		next.Resources.Credits -= EventCreditCost * mult
		next.Resources.Energy -= EventEnergyCost * mult
	} else {
		next.Resources.Stability -= EventStabilityLoss * mult
		next.Threat += EventThreatIncrease * mult
	}
	next.Resources = next.Resources.Clamp()
	next.Threat = clamp(next.Threat, 0, MaxThreat)
	return next, nil
}
