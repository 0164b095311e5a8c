package engine

import (
	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/narrative"
)

// Render is what the globe needs to draw.
type Render struct {
	Controlled []string `json:"controlledRegions"`
	Rebellious []string `json:"rebelliousRegions"`
	Nuclear    []string `json:"nuclearPlants"`
	Selected   string   `json:"selectedRegion,omitempty"`
}

// RegionStatus is a region's standing.
type RegionStatus string

const (
	StatusUnclaimed  RegionStatus = "unclaimed"
	StatusControlled RegionStatus = "controlled"
	StatusRebellious RegionStatus = "rebellious"
)

// RegionView is a region plus its standing and prices in the current run.
type RegionView struct {
	atlas.Region
	Status        RegionStatus `json:"status"`
	Nuclear       bool         `json:"nuclear"`
	ControlCost   Cost         `json:"controlCost"`
	RepairCost    Cost         `json:"repairCost"`
	PlantEligible bool         `json:"plantEligible"`
	Analysis      string       `json:"analysis,omitempty"`
}

// DraftOption is a drafted protocol with its localized text.
type DraftOption struct {
	catalog.Protocol
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SkillView is a skill with its standing in the current run.
type SkillView struct {
	catalog.Skill
	Name        string `json:"name"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Unlockable  bool   `json:"unlockable"`
	Affordable  bool   `json:"affordable"`
	Cooldown    int    `json:"cooldownRemaining,omitempty"`
}

// Snapshot is a consistent read of the whole session.
type Snapshot struct {
	RunID     string           `json:"runId"`
	Phase     Phase            `json:"phase"`
	Language  string           `json:"language"`
	State     State            `json:"state"`
	Income    Income           `json:"projectedIncome"`
	Modifiers Totals           `json:"modifiers"`
	Selected  *RegionView      `json:"selected,omitempty"`
	Draft     []DraftOption    `json:"draft,omitempty"`
	Event     *narrative.Event `json:"event,omitempty"`
}

// Snapshot returns a copy of the session state with derived figures.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	mods := StateTotals(s.cat, s.state)
	snap := Snapshot{
		RunID:     s.runID,
		Phase:     s.phase,
		Language:  s.lang.String(),
		State:     s.state.Clone(),
		Income:    ProjectedIncome(s.state, mods),
		Modifiers: mods,
		Draft:     s.draftViewLocked(),
	}
	if s.event != nil {
		ev := *s.event
		snap.Event = &ev
	}
	if s.selected != "" {
		if r, ok := s.atlas.Region(s.selected); ok {
			v := s.regionViewLocked(r, mods)
			v.Analysis = atlas.Analysis(s.bundle, s.lang, r)
			snap.Selected = &v
		}
	}
	return snap
}

// Render returns the globe overlay sets.
func (s *Session) Render() Render {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

func (s *Session) renderLocked() Render {
	return Render{
		Controlled: s.state.Controlled.Sorted(),
		Rebellious: s.state.Rebellious.Sorted(),
		Nuclear:    s.state.Nuclear.Sorted(),
		Selected:   s.selected,
	}
}

// Regions returns every atlas region with its standing.
func (s *Session) Regions() []RegionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	mods := StateTotals(s.cat, s.state)
	regions := s.atlas.Regions()
	out := make([]RegionView, 0, len(regions))
	for _, r := range regions {
		out = append(out, s.regionViewLocked(r, mods))
	}
	return out
}

func (s *Session) regionViewLocked(r atlas.Region, mods Totals) RegionView {
	v := RegionView{
		Region:        r,
		Status:        StatusUnclaimed,
		Nuclear:       s.state.Nuclear.Has(r.Code),
		ControlCost:   ControlCost(r, mods),
		PlantEligible: PlantEligibility(s.state, r) == nil,
	}
	switch {
	case s.state.Rebellious.Has(r.Code):
		v.Status = StatusRebellious
		v.RepairCost = RepairCost(r, mods)
	case s.state.Controlled.Has(r.Code):
		v.Status = StatusControlled
	}
	return v
}

func (s *Session) draftViewLocked() []DraftOption {
	if len(s.draft) == 0 {
		return nil
	}
	lang := s.lang.String()
	out := make([]DraftOption, 0, len(s.draft))
	for _, id := range s.draft {
		p, ok := s.cat.Protocol(id)
		if !ok {
			continue
		}
		out = append(out, DraftOption{Protocol: p, Name: p.Name.In(lang), Description: p.Desc.In(lang)})
	}
	return out
}

// Skills returns the evolution matrix with unlock standing.
func (s *Session) Skills() []SkillView {
	s.mu.Lock()
	defer s.mu.Unlock()
	lang := s.lang.String()
	out := make([]SkillView, 0, len(s.cat.Skills))
	for _, sk := range s.cat.Skills {
		out = append(out, SkillView{
			Skill:       sk,
			Name:        sk.Name.In(lang),
			Description: sk.Desc.In(lang),
			Unlocked:    s.state.Skills.Has(sk.ID),
			Unlockable:  Unlockable(s.cat, s.state, sk.ID) == nil,
			Affordable:  s.state.Resources.CanAfford(sk.Cost),
			Cooldown:    s.state.Cooldowns[sk.ID],
		})
	}
	return out
}

// Log returns up to limit of the most recent entries, oldest first.
// A non-positive limit returns everything held.
func (s *Session) Log(limit int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.log
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]LogEntry(nil), entries...)
}
