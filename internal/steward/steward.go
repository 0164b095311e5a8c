package steward

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/llm"
)

// DefaultMaxActions bounds the decisions made in one turn.
const DefaultMaxActions = 8

// Steward plays turns through the API.
type Steward struct {
	Observer   *Observer
	Actor      *Actor
	LLM        *llm.Client // nil: playbook only
	Memory     *CycleMemory
	MaxActions int
	// Poll is the pause between observations while an event is generated.
	Poll time.Duration

	logger *slog.Logger
}

// New creates a Steward against the API at baseURL.
func New(baseURL, adminKey string, client *llm.Client, mem *CycleMemory) *Steward {
	if mem == nil {
		mem = LoadMemory("")
	}
	return &Steward{
		Observer:   NewObserver(baseURL),
		Actor:      NewActor(baseURL, adminKey),
		LLM:        client,
		Memory:     mem,
		MaxActions: DefaultMaxActions,
		Poll:       500 * time.Millisecond,
		logger:     slog.With("component", "steward"),
	}
}

// PlayTurn decides and acts until the turn advances, the game is over or the
// action budget is spent. A spent budget ends the turn.
func (s *Steward) PlayTurn(ctx context.Context) (CycleRecord, error) {
	var rec CycleRecord
	for range s.MaxActions {
		obs, err := s.Observer.Observe(ctx)
		if err != nil {
			return rec, err
		}
		h := Triage(obs)
		rec.observe(obs.State, h)

		d := s.decide(ctx, obs, h)
		switch d.Action {
		case ActionStop:
			rec.GameOver = true
			s.Memory.Record(rec)
			return rec, nil
		case ActionWait:
			if err := sleep(ctx, s.Poll); err != nil {
				return rec, err
			}
			continue
		}

		done, err := s.act(ctx, d, &rec)
		if err != nil || done {
			return rec, err
		}
	}

	s.logger.Info("action budget spent, ending turn", "turn", rec.Turn)
	if _, err := s.act(ctx, Decision{Action: ActionEndTurn, Rationale: "action budget spent"}, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// act performs d and reports whether the turn is over.
func (s *Steward) act(ctx context.Context, d Decision, rec *CycleRecord) (bool, error) {
	res, err := s.Actor.Act(ctx, d)
	if err != nil {
		return false, fmt.Errorf("act %s: %w", d.Action, err)
	}
	rec.Actions = append(rec.Actions, d.Action)
	rec.Rationale = d.Rationale
	if !res.Accepted {
		rec.Rejected++
		s.logger.Info("action rejected", "action", d.Action, "target", d.Target, "reason", res.Reason)
		return false, nil
	}
	s.logger.Debug("action accepted", "action", d.Action, "target", d.Target, "rationale", d.Rationale)

	if d.Action != ActionEndTurn {
		return false, nil
	}
	st := res.State.State
	rec.Threat = st.Threat
	rec.Stability = st.Resources.Stability
	rec.Credits = st.Resources.Credits
	rec.GameOver = st.GameOver
	s.Memory.Record(*rec)
	return true, nil
}

// decide consults the model when one is configured and falls back to the
// playbook on any failure.
func (s *Steward) decide(ctx context.Context, obs *Observation, h *Health) Decision {
	switch obs.State.Phase {
	case engine.PhaseOver, engine.PhaseFetching:
		return Playbook(obs, h)
	}
	if s.LLM.Enabled() {
		d, err := Decide(ctx, s.LLM, obs, h, s.Memory)
		if err == nil {
			return d
		}
		s.logger.Warn("model decision failed, using playbook", "error", err)
	}
	return Playbook(obs, h)
}

func (r *CycleRecord) observe(snap engine.Snapshot, h *Health) {
	r.RunID = snap.RunID
	r.Turn = snap.State.Turn
	r.Threat = h.Threat
	r.Stability = h.Stability
	r.Credits = h.Credits
	r.CrisisLevel = h.CrisisLevel
}

// Summary is a one-line report of the cycle.
func (r CycleRecord) Summary() string {
	if r.GameOver {
		return fmt.Sprintf("run %s ended on the %s turn (threat %.0f%%, stability %.0f)",
			r.RunID, humanize.Ordinal(r.Turn), r.Threat, r.Stability)
	}
	return fmt.Sprintf("%s turn played: %s; threat %.0f%%, stability %.0f, %s credits",
		humanize.Ordinal(r.Turn), strings.Join(r.Actions, ", "), r.Threat, r.Stability, humanize.Comma(int64(r.Credits)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
