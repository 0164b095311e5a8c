package engine

import (
	"fmt"
	"slices"

	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/entropy"
)

// TurnOutcome is everything one advance produced.
type TurnOutcome struct {
	State      State      `json:"state"`
	Income     Income     `json:"income"`
	Modifiers  Totals     `json:"modifiers"`
	Resolution Resolution `json:"resolution"`
	Interlude  Interlude  `json:"interlude,omitempty"`
	Draft      []string   `json:"draft,omitempty"`
}

// AdvanceTurn ends the current turn.
//
// On a terminal resolution only threat, the rebellion set, stability (forced
// to 0) and the game-over flag are committed. Otherwise income is paid, the
// resolution committed, cooldowns ticked and the turn counter bumped, and the
// interlude for the new turn is decided: a protocol draft on every
// DraftInterval-th turn, else a narrative event with probability EventChance.
func AdvanceTurn(cat *catalog.Catalog, s State, rng entropy.Source) (TurnOutcome, error) {
	if s.GameOver {
		return TurnOutcome{State: s}, ErrGameOver
	}

	mods := StateTotals(cat, s)
	income := ProjectedIncome(s, mods)
	res := Resolve(s, mods, rng)

	next := s.Clone()
	next.Threat = res.Threat
	next.Rebellious = res.Rebellious.Clone()

	out := TurnOutcome{Income: income, Modifiers: mods, Resolution: res}

	if res.Terminal {
		next.Resources.Stability = 0
		next.GameOver = true
		out.Income = Income{}
		out.State = next
		return out, nil
	}

	next.Resources.Credits += income.Credits
	next.Resources.Energy += income.Energy
	next.Resources.Stability = res.Stability
	next.Resources = next.Resources.Clamp()
	next.Cooldowns = TickCooldowns(s.Cooldowns)
	next.HasActed = false
	next.Turn++

	switch {
	case IsDraftTurn(next.Turn):
		out.Interlude = InterludeDraft
		out.Draft = DraftProtocols(cat, rng)
	case rng.Float64() < EventChance(next.Threat):
		out.Interlude = InterludeEvent
	}
	out.State = next
	return out, nil
}

// DraftProtocols draws DraftSize distinct protocols uniformly from the pool.
func DraftProtocols(cat *catalog.Catalog, rng entropy.Source) []string {
	pool := cat.ProtocolIDs()
	n := min(DraftSize, len(pool))
	for i := 0; i < n; i++ {
		j := i + entropy.Intn(rng, len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// PickProtocol integrates one drafted protocol.
func PickProtocol(cat *catalog.Catalog, s State, draft []string, id string) (State, error) {
	if s.GameOver {
		return s, ErrGameOver
	}
	if len(draft) == 0 {
		return s, ErrNoDraft
	}
	if !slices.Contains(draft, id) {
		return s, fmt.Errorf("%w: %s", ErrNotDrafted, id)
	}
	if _, ok := cat.Protocol(id); !ok {
		return s, fmt.Errorf("%w: unknown protocol %s", ErrNotDrafted, id)
	}
	next := s.Clone()
	next.Protocols = append(next.Protocols, id)
	next.HasActed = true
	return next, nil
}
