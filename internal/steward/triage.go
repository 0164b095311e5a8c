package steward

import "github.com/talgya/earth-dominion/internal/engine"

// Crisis levels, most severe first.
const (
	CrisisCritical = "CRITICAL"
	CrisisWarning  = "WARNING"
	CrisisWatch    = "WATCH"
	CrisisHealthy  = "HEALTHY"
)

// Health holds derived signals computed from an Observation.
// Runs before any model call: deterministic and free.
type Health struct {
	Threat      float64
	Stability   float64
	Credits     float64
	Energy      float64
	Income      engine.Income
	Controlled  int
	Rebellious  int
	RebelShare  float64 // rebellious / controlled
	TurnsToMax  int     // turns until max threat at the current growth; -1 if not rising
	CrisisLevel string
}

// Triage computes the position's health.
func Triage(obs *Observation) *Health {
	st := obs.State.State
	h := &Health{
		Threat:     st.Threat,
		Stability:  st.Resources.Stability,
		Credits:    st.Resources.Credits,
		Energy:     st.Resources.Energy,
		Income:     obs.State.Income,
		Controlled: len(st.Controlled),
		Rebellious: len(st.Rebellious),
		TurnsToMax: -1,
	}
	if h.Controlled > 0 {
		h.RebelShare = float64(h.Rebellious) / float64(h.Controlled)
	}

	growth := engine.ThreatGrowth(st, obs.State.Modifiers)
	if growth > 0 {
		h.TurnsToMax = int((engine.MaxThreat - st.Threat) / growth)
	}

	h.CrisisLevel = CrisisHealthy
	switch {
	case h.Threat >= 80 || h.Stability <= 25 || (h.TurnsToMax >= 0 && h.TurnsToMax <= 2):
		h.CrisisLevel = CrisisCritical
	case h.Threat >= 60 || h.Stability <= 50 || h.RebelShare > 0.5:
		h.CrisisLevel = CrisisWarning
	case h.Threat >= 40 || h.Stability <= 75 || h.Rebellious > 0:
		h.CrisisLevel = CrisisWatch
	}
	return h
}
