package steward

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/llm"
)

const systemPrompt = `You are the Steward, an autonomous player of Earth Dominion, a turn-based strategy game in which an AI network spreads control over the world's regions while a global resistance threat rises every turn.

The run ends when threat reaches 100% or stability reaches 0. Your goal is to survive as many turns as possible.

## Priorities (in order)

1. SURVIVAL: keep threat below 80% and stability above 25. Threat-reducing abilities and protocols come first in a crisis.
2. ORDER: rebellious regions pay nothing and drain stability. Suppress them when affordable.
3. GROWTH: each controlled region adds income and slightly dampens threat growth. Expand when there is money to spare.
4. ACTIVITY: ending a turn without any action doubles threat growth. Take at least one action per turn.

## Available Actions

- "control" (target: unclaimed region code)
- "suppress" (target: rebellious region code)
- "nuclear" (target: controlled region code marked plant-eligible)
- "diagnostics" (target: loyal controlled region code)
- "unlock" (target: skill id marked unlockable)
- "activate" (target: unlocked active ability id that is ready)
- "resolve" (option: index of the event option; only while an event is pending)
- "pick" (target: protocol id from the draft; only while drafting)
- "end_turn"

## Response Format

Respond with ONLY valid JSON (no markdown, no explanation outside the JSON):
{"action": "control", "target": "BRA", "option": 0, "rationale": "Brief explanation."}`

// Decide asks the model for the next action. The answer is checked against
// the observation before it is returned.
func Decide(ctx context.Context, client *llm.Client, obs *Observation, h *Health, mem *CycleMemory) (Decision, error) {
	if !client.Enabled() {
		return Decision{}, llm.ErrDisabled
	}

	prompt := formatObservation(obs, h)
	if mem != nil {
		prompt += "\n" + mem.FormatForPrompt()
	}
	slog.Debug("steward prompt", "length", len(prompt))

	resp, err := client.Complete(ctx, systemPrompt, prompt, 300)
	if err != nil {
		return Decision{}, fmt.Errorf("model call: %w", err)
	}

	var d Decision
	if err := llm.ExtractJSON(resp, &d); err != nil {
		return Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))

	if err := enforceGuardrails(&d, obs); err != nil {
		return Decision{}, fmt.Errorf("guardrail violation: %w", err)
	}
	return d, nil
}

// enforceGuardrails rejects actions the game would refuse, so a bad answer
// falls back to the playbook instead of wasting the cycle.
func enforceGuardrails(d *Decision, obs *Observation) error {
	snap := obs.State
	switch snap.Phase {
	case engine.PhaseEvent:
		if d.Action != ActionResolve {
			return fmt.Errorf("event pending, got %q", d.Action)
		}
		if snap.Event == nil || d.Option < 0 || d.Option >= len(snap.Event.Options) {
			return fmt.Errorf("option %d out of range", d.Option)
		}
		d.Target = ""
		return nil

	case engine.PhaseDrafting:
		if d.Action != ActionPick {
			return fmt.Errorf("draft pending, got %q", d.Action)
		}
		if !slices.ContainsFunc(snap.Draft, func(p engine.DraftOption) bool { return p.ID == d.Target }) {
			return fmt.Errorf("protocol %q not in draft", d.Target)
		}
		return nil

	case engine.PhaseReady:
	default:
		return fmt.Errorf("phase %s takes no decision", snap.Phase)
	}

	d.Option = 0
	res := snap.State.Resources
	switch d.Action {
	case ActionEndTurn:
		d.Target = ""
		return nil

	case ActionControl, ActionSuppress, ActionNuclear, ActionDiagnostics:
		r, ok := obs.Region(d.Target)
		if !ok {
			return fmt.Errorf("unknown region %q", d.Target)
		}
		switch {
		case d.Action == ActionControl && (r.Status != engine.StatusUnclaimed || !res.CanAfford(r.ControlCost)):
			return fmt.Errorf("cannot control %s", r.Code)
		case d.Action == ActionSuppress && (r.Status != engine.StatusRebellious || !res.CanAfford(r.RepairCost)):
			return fmt.Errorf("cannot suppress %s", r.Code)
		case d.Action == ActionNuclear && (!r.PlantEligible || res.Credits < engine.PlantCost):
			return fmt.Errorf("cannot build plant in %s", r.Code)
		case d.Action == ActionDiagnostics && (r.Status != engine.StatusControlled || res.Energy < engine.DiagnosticsEnergy):
			return fmt.Errorf("cannot run diagnostics in %s", r.Code)
		}
		return nil

	case ActionUnlock:
		sk, ok := obs.Skill(d.Target)
		if !ok || !sk.Unlockable || !sk.Affordable {
			return fmt.Errorf("cannot unlock %q", d.Target)
		}
		return nil

	case ActionActivate:
		if _, ok := readyAbility(obs, d.Target); !ok {
			return fmt.Errorf("ability %q not ready", d.Target)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
}

// formatObservation builds a concise prompt from the observation.
func formatObservation(obs *Observation, h *Health) string {
	var b strings.Builder
	snap := obs.State
	st := snap.State

	fmt.Fprintf(&b, "## Position (%s turn, phase %s, crisis %s)\n", humanize.Ordinal(st.Turn), snap.Phase, h.CrisisLevel)
	fmt.Fprintf(&b, "Credits: %s | Energy: %s | Stability: %.1f | Threat: %.1f%%\n",
		humanize.Comma(int64(st.Resources.Credits)), humanize.Comma(int64(st.Resources.Energy)), st.Resources.Stability, st.Threat)
	fmt.Fprintf(&b, "Income per turn: +%s CR, +%s NRG\n",
		humanize.Comma(int64(snap.Income.Credits)), humanize.Comma(int64(snap.Income.Energy)))
	fmt.Fprintf(&b, "Controlled: %d | Rebellious: %d | Acted this turn: %t\n", h.Controlled, h.Rebellious, st.HasActed)
	if h.TurnsToMax >= 0 {
		fmt.Fprintf(&b, "Turns until max threat at current growth: %d\n", h.TurnsToMax)
	}
	b.WriteString("\n")

	if ev := snap.Event; ev != nil {
		fmt.Fprintf(&b, "## Pending Event (%s): %s\n%s\n", ev.Severity, ev.Title, ev.Description)
		for i, o := range ev.Options {
			fmt.Fprintf(&b, "%d. %s: %s\n", i, o.Label, o.EffectDescription)
		}
		b.WriteString("\n")
	}
	if len(snap.Draft) > 0 {
		b.WriteString("## Protocol Draft\n")
		for _, p := range snap.Draft {
			fmt.Fprintf(&b, "- %s (%s, %s %.2f): %s\n", p.ID, p.Rarity, p.Effect, p.Value, p.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Skills\n")
	for _, sk := range obs.Skills {
		switch {
		case sk.Unlocked && sk.Type == catalog.SkillActive:
			fmt.Fprintf(&b, "- %s %s: unlocked ability, cooldown %d\n", sk.ID, sk.Name, sk.Cooldown)
		case sk.Unlockable:
			fmt.Fprintf(&b, "- %s %s: unlockable for %s CR / %s NRG (affordable: %t)\n",
				sk.ID, sk.Name, humanize.Comma(int64(sk.Cost.Credits)), humanize.Comma(int64(sk.Cost.Energy)), sk.Affordable)
		}
	}
	b.WriteString("\n")

	// Regions: every owned region plus the ten cheapest unclaimed ones.
	var unclaimed []engine.RegionView
	b.WriteString("## Regions\n")
	for _, r := range obs.Regions {
		switch r.Status {
		case engine.StatusRebellious:
			fmt.Fprintf(&b, "- %s %s: REBELLIOUS, repair %s CR / %s NRG\n",
				r.Code, r.Name, humanize.Comma(int64(r.RepairCost.Credits)), humanize.Comma(int64(r.RepairCost.Energy)))
		case engine.StatusControlled:
			fmt.Fprintf(&b, "- %s %s: controlled, nuclear %t, plant-eligible %t\n", r.Code, r.Name, r.Nuclear, r.PlantEligible)
		default:
			unclaimed = append(unclaimed, r)
		}
	}
	slices.SortFunc(unclaimed, func(x, y engine.RegionView) int {
		return cmp.Or(cmp.Compare(x.ControlCost.Credits, y.ControlCost.Credits), strings.Compare(x.Code, y.Code))
	})
	for i, r := range unclaimed {
		if i == 10 {
			fmt.Fprintf(&b, "(%d more unclaimed regions not shown)\n", len(unclaimed)-i)
			break
		}
		fmt.Fprintf(&b, "- %s %s: unclaimed, control %s CR / %s NRG\n",
			r.Code, r.Name, humanize.Comma(int64(r.ControlCost.Credits)), humanize.Comma(int64(r.ControlCost.Energy)))
	}

	if len(obs.Log) > 0 {
		b.WriteString("\n## Recent Log\n")
		for _, e := range obs.Log {
			fmt.Fprintf(&b, "- [T%d %s] %s\n", e.Turn, e.Kind, e.Text)
		}
	}
	return b.String()
}
