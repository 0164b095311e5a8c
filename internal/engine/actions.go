package engine

import (
	"fmt"
	"math"

	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/entropy"
)

// Player action tuning.
const (
	NuclearSkill          = "ada_nuke"
	MiningSkill           = "man_t2_a"
	MiningMultiplier      = 1.2
	DiagnosticsEnergy     = 50
	DiagnosticsCreditOdds = 0.7
)

// EstablishControl claims r.
func EstablishControl(cat *catalog.Catalog, s State, r atlas.Region) (State, Cost, error) {
	if s.GameOver {
		return s, Cost{}, ErrGameOver
	}
	if s.Controlled.Has(r.Code) {
		return s, Cost{}, fmt.Errorf("%w: %s already controlled", ErrInvalidTarget, r.Code)
	}
	cost := ControlCost(r, StateTotals(cat, s))
	if !s.Resources.CanAfford(cost) {
		return s, cost, fmt.Errorf("%w: control of %s costs %.0f CR / %.0f NRG", ErrInsufficientResources, r.Code, cost.Credits, cost.Energy)
	}
	next := s.Clone()
	next.Resources.Credits -= cost.Credits
	next.Resources.Energy -= cost.Energy
	next.Controlled.Add(r.Code)
	next.HasActed = true
	return next, cost, nil
}

// SuppressRebellion restores control over a rebellious region.
func SuppressRebellion(cat *catalog.Catalog, s State, r atlas.Region) (State, Cost, error) {
	if s.GameOver {
		return s, Cost{}, ErrGameOver
	}
	if !s.Rebellious.Has(r.Code) {
		return s, Cost{}, fmt.Errorf("%w: %s is not rebelling", ErrInvalidTarget, r.Code)
	}
	cost := RepairCost(r, StateTotals(cat, s))
	if !s.Resources.CanAfford(cost) {
		return s, cost, fmt.Errorf("%w: suppression in %s costs %.0f CR / %.0f NRG", ErrInsufficientResources, r.Code, cost.Credits, cost.Energy)
	}
	next := s.Clone()
	next.Resources.Credits -= cost.Credits
	next.Resources.Energy -= cost.Energy
	next.Rebellious.Remove(r.Code)
	next.HasActed = true
	return next, cost, nil
}

// PlantEligibility reports why r cannot host a plant, or nil if it can
// (ignoring price).
func PlantEligibility(s State, r atlas.Region) error {
	switch {
	case !s.Skills.Has(NuclearSkill):
		return fmt.Errorf("%w: %s required", ErrPrerequisite, NuclearSkill)
	case !s.Controlled.Has(r.Code):
		return fmt.Errorf("%w: %s not controlled", ErrInvalidTarget, r.Code)
	case s.Rebellious.Has(r.Code):
		return fmt.Errorf("%w: %s is rebelling", ErrInvalidTarget, r.Code)
	case s.Nuclear.Has(r.Code):
		return fmt.Errorf("%w: %s already has a plant", ErrInvalidTarget, r.Code)
	case !r.LargeEnoughForPlant():
		return fmt.Errorf("%w: %s", ErrRegionTooSmall, r.Code)
	}
	return nil
}

// BuildNuclearPlant constructs a plant in r.
func BuildNuclearPlant(s State, r atlas.Region) (State, error) {
	if s.GameOver {
		return s, ErrGameOver
	}
	if err := PlantEligibility(s, r); err != nil {
		return s, err
	}
	if s.Resources.Credits < PlantCost {
		return s, fmt.Errorf("%w: plant costs %d CR", ErrInsufficientResources, PlantCost)
	}
	next := s.Clone()
	next.Resources.Credits -= PlantCost
	next.Nuclear.Add(r.Code)
	next.HasActed = true
	return next, nil
}

// Unlockable reports whether skill id could be unlocked now, ignoring price.
func Unlockable(cat *catalog.Catalog, s State, id string) error {
	skill, ok := cat.Skill(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSkill, id)
	}
	if s.Skills.Has(id) {
		return fmt.Errorf("%w: %s", ErrAlreadyUnlocked, id)
	}
	if !skill.IsRoot() && !s.Skills.Has(skill.ParentID) {
		return fmt.Errorf("%w: %s needs %s", ErrPrerequisite, id, skill.ParentID)
	}
	return nil
}

// UnlockSkill buys skill id. Unlocking is permanent.
func UnlockSkill(cat *catalog.Catalog, s State, id string) (State, error) {
	if s.GameOver {
		return s, ErrGameOver
	}
	if err := Unlockable(cat, s, id); err != nil {
		return s, err
	}
	skill, _ := cat.Skill(id)
	if !s.Resources.CanAfford(skill.Cost) {
		return s, fmt.Errorf("%w: %s costs %.0f CR / %.0f NRG", ErrInsufficientResources, id, skill.Cost.Credits, skill.Cost.Energy)
	}
	next := s.Clone()
	next.Resources.Credits -= skill.Cost.Credits
	next.Resources.Energy -= skill.Cost.Energy
	next.Skills.Add(id)
	next.HasActed = true
	return next, nil
}

// DiagnosticsOutcome says what a diagnostics run produced. Exactly one of
// the fields is positive.
type DiagnosticsOutcome struct {
	Credits   float64 `json:"credits,omitempty"`
	Stability float64 `json:"stability,omitempty"`
}

// RunDiagnostics mines a controlled, loyal region: usually credits, else a
// little stability.
func RunDiagnostics(s State, r atlas.Region, rng entropy.Source) (State, DiagnosticsOutcome, error) {
	if s.GameOver {
		return s, DiagnosticsOutcome{}, ErrGameOver
	}
	if !s.Controlled.Has(r.Code) || s.Rebellious.Has(r.Code) {
		return s, DiagnosticsOutcome{}, fmt.Errorf("%w: %s is not a loyal region", ErrInvalidTarget, r.Code)
	}
	if s.Resources.Energy < DiagnosticsEnergy {
		return s, DiagnosticsOutcome{}, fmt.Errorf("%w: diagnostics cost %d NRG", ErrInsufficientResources, DiagnosticsEnergy)
	}

	next := s.Clone()
	next.Resources.Energy -= DiagnosticsEnergy
	next.HasActed = true

	var out DiagnosticsOutcome
	if rng.Float64() < DiagnosticsCreditOdds {
		found := float64(entropy.Intn(rng, 90) + 60)
		if s.Skills.Has(MiningSkill) {
			found = math.Floor(found * MiningMultiplier)
		}
		out.Credits = found
		next.Resources.Credits += found
	} else {
		out.Stability = float64(entropy.Intn(rng, 4) + 2)
		next.Resources.Stability = clamp(next.Resources.Stability+out.Stability, 0, MaxStability)
	}
	return next, out, nil
}
