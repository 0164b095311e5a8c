package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/entropy"
	"github.com/talgya/earth-dominion/internal/i18n"
	"github.com/talgya/earth-dominion/internal/narrative"
)

// Phase is where the session stands between turns.
type Phase string

const (
	PhaseReady    Phase = "ready"    // advance allowed
	PhaseDrafting Phase = "drafting" // protocol draft offered
	PhaseFetching Phase = "fetching" // narrative event being generated
	PhaseEvent    Phase = "event"    // narrative event awaiting a choice
	PhaseOver     Phase = "over"     // only restart is accepted
)

// DefaultNarrativeTimeout bounds a single narrative fetch.
const DefaultNarrativeTimeout = 12 * time.Second

// DefaultLogCapacity is how many log entries the session keeps in memory.
const DefaultLogCapacity = 500

// Chronicle records log entries and finished runs outside the session.
type Chronicle interface {
	SaveEntries(entries []LogEntry) error
	SaveRun(run RunRecord) error
}

// Config wires a Session.
type Config struct {
	Catalog          *catalog.Catalog
	Atlas            *atlas.Atlas
	Bundle           *i18n.Bundle
	Language         language.Tag
	Generator        narrative.Generator // nil: static fallback events only
	Source           entropy.Source      // nil: crypto-seeded PRNG
	NarrativeTimeout time.Duration
	Chronicle        Chronicle
	Logger           *slog.Logger
	LogCapacity      int
	Clock            func() time.Time
}

// Session owns the live game. All mutation goes through its methods, which
// serialize on one mutex; the narrative fetch runs outside the lock after the
// turn has been committed.
type Session struct {
	cat       *catalog.Catalog
	atlas     *atlas.Atlas
	bundle    *i18n.Bundle
	gen       narrative.Generator
	rng       entropy.Source
	timeout   time.Duration
	chronicle Chronicle
	logger    *slog.Logger
	logCap    int
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	lang      language.Tag
	runID     string
	startedAt time.Time
	state     State
	phase     Phase
	selected  string
	draft     []string
	event     *narrative.Event
	fetchDone chan struct{}
	log       []LogEntry
	seq       uint64
	subs      map[int]chan Update
	nextSub   int
}

// NewSession starts a fresh run.
func NewSession(cfg Config) *Session {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Bundle == nil {
		cfg.Bundle = i18n.Default()
	}
	if cfg.Atlas == nil {
		cfg.Atlas, _ = atlas.New(nil)
	}
	if cfg.Language == language.Und {
		cfg.Language = language.AmericanEnglish
	}
	if cfg.Generator == nil {
		cfg.Generator = narrative.Static{Bundle: cfg.Bundle}
	}
	if cfg.Source == nil {
		seed, err := entropy.NewSeed()
		if err != nil {
			seed = time.Now().UnixNano()
		}
		cfg.Source = entropy.NewSeeded(seed)
	}
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = DefaultNarrativeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = DefaultLogCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cat:       cfg.Catalog,
		atlas:     cfg.Atlas,
		bundle:    cfg.Bundle,
		gen:       cfg.Generator,
		rng:       cfg.Source,
		timeout:   cfg.NarrativeTimeout,
		chronicle: cfg.Chronicle,
		logger:    cfg.Logger.With("component", "session"),
		logCap:    cfg.LogCapacity,
		now:       cfg.Clock,
		ctx:       ctx,
		cancel:    cancel,
		lang:      cfg.Language,
		subs:      make(map[int]chan Update),
	}
	s.do(func(t *txn) error {
		s.resetLocked(t)
		return nil
	})
	return s
}

// Close aborts any narrative fetch and waits for it to finish.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Catalog returns the content catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.cat }

// Atlas returns the region atlas.
func (s *Session) Atlas() *atlas.Atlas { return s.atlas }

// txn collects the side effects of one locked operation. Updates go out to
// subscribers before the lock is released; the chronicle is written after.
type txn struct {
	s       *Session
	entries []LogEntry
	updates []Update
	run     *RunRecord
}

func (t *txn) log(kind EntryKind, cue Cue, key string, args ...any) {
	s := t.s
	s.seq++
	e := LogEntry{
		Seq:   s.seq,
		RunID: s.runID,
		Turn:  s.state.Turn,
		Kind:  kind,
		Text:  s.bundle.Sprintf(s.lang, key, args...),
		Cue:   cue,
		At:    s.now(),
	}
	s.log = append(s.log, e)
	if over := len(s.log) - s.logCap; over > 0 {
		s.log = append([]LogEntry(nil), s.log[over:]...)
	}
	t.entries = append(t.entries, e)
	t.updates = append(t.updates, Update{Type: UpdateLog, Payload: e})
}

func (t *txn) publish(kind string, payload any) {
	t.updates = append(t.updates, Update{Type: kind, Payload: payload})
}

// reject reports a refused action. Unaffordable actions get a failure entry
// and cue; everything else is a silent guarded no-op.
func (t *txn) reject(err error, key string, args ...any) {
	if Classify(err) == RejectInsufficient {
		t.log(KindFailure, CueError, key, args...)
	}
	t.s.logger.Debug("action rejected", "error", err, "turn", t.s.state.Turn)
}

func (s *Session) do(fn func(t *txn) error) error {
	s.mu.Lock()
	t := &txn{s: s}
	err := fn(t)
	t.publish(UpdateRender, s.renderLocked())
	for _, u := range t.updates {
		for _, ch := range s.subs {
			select {
			case ch <- u:
			default:
			}
		}
	}
	s.mu.Unlock()

	s.persist(t.entries, t.run)
	return err
}

// act is do for game actions: nothing but restart passes a finished game.
func (s *Session) act(fn func(t *txn) error) error {
	return s.do(func(t *txn) error {
		if s.state.GameOver {
			return ErrGameOver
		}
		return fn(t)
	})
}

func (s *Session) persist(entries []LogEntry, run *RunRecord) {
	if s.chronicle == nil {
		return
	}
	if len(entries) > 0 {
		if err := s.chronicle.SaveEntries(entries); err != nil {
			s.logger.Warn("chronicle entries not saved", "error", err, "count", len(entries))
		}
	}
	if run != nil {
		if err := s.chronicle.SaveRun(*run); err != nil {
			s.logger.Warn("chronicle run not saved", "error", err, "run", run.ID)
		}
	}
}

// Subscribe returns a feed of updates and a cancel func. Slow subscribers
// miss updates rather than stall the session.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) resetLocked(t *txn) {
	s.runID = uuid.NewString()
	s.startedAt = s.now()
	s.state = NewState()
	s.phase = PhaseReady
	s.selected = ""
	s.draft = nil
	s.event = nil
	s.fetchDone = nil
	s.log = nil
	t.log(KindSystem, CueNone, "log.init")
	s.logger.Info("run started", "run", s.runID)
}

// Restart abandons the current run and starts over. It is always accepted.
func (s *Session) Restart() error {
	return s.do(func(t *txn) error {
		if !s.state.GameOver && s.state.Turn > 1 {
			rec := s.runRecordLocked(EndAbandoned)
			t.run = &rec
		}
		s.resetLocked(t)
		t.publish(UpdateCue, CueClick)
		return nil
	})
}

// SetLanguage switches the language of new log entries and events.
func (s *Session) SetLanguage(lang string) language.Tag {
	tag := i18n.Match(lang)
	s.mu.Lock()
	s.lang = tag
	s.mu.Unlock()
	return tag
}

// Select focuses a region. An empty code clears the selection. Selection is
// navigation, so it stays available after the game ends.
func (s *Session) Select(code string) error {
	return s.do(func(t *txn) error {
		if code == "" {
			s.selected = ""
			return nil
		}
		if _, ok := s.atlas.Region(code); !ok {
			return ErrUnknownRegion
		}
		s.selected = code
		t.publish(UpdateCue, CueClick)
		return nil
	})
}

func (s *Session) selectedRegionLocked() (atlas.Region, error) {
	if s.selected == "" {
		return atlas.Region{}, ErrNoSelection
	}
	r, ok := s.atlas.Region(s.selected)
	if !ok {
		return atlas.Region{}, ErrUnknownRegion
	}
	return r, nil
}

func (s *Session) regionName(code string) string {
	if r, ok := s.atlas.Region(code); ok {
		return r.Name
	}
	return code
}

// EstablishControl claims the selected region.
func (s *Session) EstablishControl() error {
	return s.act(func(t *txn) error {
		r, err := s.selectedRegionLocked()
		if err != nil {
			return err
		}
		next, _, err := EstablishControl(s.cat, s.state, r)
		if err != nil {
			t.reject(err, "log.fail", r.Name)
			return err
		}
		s.state = next
		t.log(KindAction, CueSuccess, "log.control", r.Name)
		return nil
	})
}

// SuppressRebellion pays to end the rebellion in the selected region.
func (s *Session) SuppressRebellion() error {
	return s.act(func(t *txn) error {
		r, err := s.selectedRegionLocked()
		if err != nil {
			return err
		}
		next, _, err := SuppressRebellion(s.cat, s.state, r)
		if err != nil {
			t.reject(err, "log.suppress_fail", r.Name)
			return err
		}
		s.state = next
		t.log(KindAction, CueBattle, "log.suppressed", r.Name)
		return nil
	})
}

// BuildNuclearPlant builds a plant in the selected region.
func (s *Session) BuildNuclearPlant() error {
	return s.act(func(t *txn) error {
		r, err := s.selectedRegionLocked()
		if err != nil {
			return err
		}
		next, err := BuildNuclearPlant(s.state, r)
		if err != nil {
			t.reject(err, "log.nuke_fail", r.Name)
			return err
		}
		s.state = next
		t.log(KindAction, CueConstruction, "log.nuke", r.Name)
		return nil
	})
}

// UnlockSkill buys a skill.
func (s *Session) UnlockSkill(id string) error {
	return s.act(func(t *txn) error {
		next, err := UnlockSkill(s.cat, s.state, id)
		if err != nil {
			if errors.Is(err, ErrPrerequisite) {
				t.log(KindFailure, CueError, "log.skill_fail")
			} else {
				t.reject(err, "log.skill_fail")
			}
			return err
		}
		s.state = next
		skill, _ := s.cat.Skill(id)
		t.log(KindAction, CueUnlock, "log.skill_unlock", skill.Name.In(s.lang.String()))
		return nil
	})
}

// ActivateAbility fires an unlocked active skill.
func (s *Session) ActivateAbility(id string) error {
	return s.act(func(t *txn) error {
		skill, _ := s.cat.Skill(id)
		name := skill.Name.In(s.lang.String())
		next, err := Activate(s.cat, s.state, id)
		if err != nil {
			t.reject(err, "log.ability_fail", name)
			return err
		}
		s.state = next
		t.log(KindAction, CueSuccess, "log.ability", name)
		return nil
	})
}

// RunDiagnostics probes the selected region.
func (s *Session) RunDiagnostics() error {
	return s.act(func(t *txn) error {
		r, err := s.selectedRegionLocked()
		if err != nil {
			return err
		}
		next, out, err := RunDiagnostics(s.state, r, s.rng)
		if err != nil {
			t.reject(err, "log.diag_fail")
			return err
		}
		s.state = next
		if out.Credits > 0 {
			t.log(KindAction, CueDataProcess, "log.diag_success", int(out.Credits))
		} else {
			t.log(KindAction, CueDataProcess, "log.diag_repair", int(out.Stability))
		}
		return nil
	})
}

// EndTurn advances the game. It is refused while a draft, fetch or event is
// pending. When a narrative event is rolled the fetch starts after the turn
// is committed; AwaitEvent waits for it.
func (s *Session) EndTurn() error {
	return s.act(func(t *txn) error {
		if s.phase != PhaseReady {
			return ErrTurnBlocked
		}
		out, err := AdvanceTurn(s.cat, s.state, s.rng)
		if err != nil {
			return err
		}
		s.state = out.State
		res := out.Resolution

		if res.Terminal {
			s.phase = PhaseOver
			t.log(KindTerminal, CueError, "log.game_over")
			reason := EndCollapse
			if res.Threat >= MaxThreat {
				reason = EndThreat
			}
			rec := s.runRecordLocked(reason)
			t.run = &rec
			s.logger.Info("run ended", "run", s.runID, "turn", s.state.Turn, "reason", reason, "threat", res.Threat)
			return nil
		}

		t.log(KindTurn, CueTurnStart, "log.turn", s.state.Turn, int(out.Income.Credits), int(out.Income.Energy))
		t.log(KindThreat, CueNone, "log.threat", math.Max(0, res.ThreatDelta))
		for _, code := range res.NewRebels {
			t.log(KindRebellion, CueAlert, "log.rebellion", s.regionName(code))
		}
		if res.Inactive {
			t.log(KindAlert, CueAlert, "log.inactivity")
		}

		switch out.Interlude {
		case InterludeDraft:
			s.phase = PhaseDrafting
			s.draft = out.Draft
			t.publish(UpdateDraft, s.draftViewLocked())
		case InterludeEvent:
			s.startFetchLocked()
		}
		s.logger.Debug("turn advanced",
			"turn", s.state.Turn,
			"threat", s.state.Threat,
			"stability", s.state.Resources.Stability,
			"interlude", out.Interlude,
		)
		return nil
	})
}

func (s *Session) locationLocked() string {
	if s.selected != "" {
		return s.regionName(s.selected)
	}
	return s.bundle.Sprintf(s.lang, "location.global")
}

func (s *Session) startFetchLocked() {
	s.phase = PhaseFetching
	done := make(chan struct{})
	s.fetchDone = done
	req := narrative.Request{
		Location: s.locationLocked(),
		Language: s.lang,
		Threat:   s.state.Threat,
		Turn:     s.state.Turn,
	}
	runID := s.runID
	s.wg.Add(1)
	go s.fetchEvent(runID, req, done)
}

// fetchEvent generates the narrative event for runID. Any failure, including
// the timeout, substitutes the fallback event. A restart in the meantime
// discards the result.
func (s *Session) fetchEvent(runID string, req narrative.Request, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	ev, err := s.gen.Generate(ctx, req)
	if err == nil {
		ev.Severity = ev.Severity.Normalize()
		err = ev.Validate()
	}
	if err != nil {
		s.logger.Warn("narrative generation failed, using fallback", "error", err, "turn", req.Turn)
		ev = narrative.Fallback(s.bundle, req)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Location == "" {
		ev.Location = req.Location
	}

	s.do(func(t *txn) error {
		if s.runID != runID || s.phase != PhaseFetching {
			s.logger.Debug("stale narrative event discarded", "run", runID)
			return nil
		}
		s.event = &ev
		s.phase = PhaseEvent
		t.publish(UpdateEvent, ev)
		return nil
	})
}

// AwaitEvent blocks until the in-flight narrative fetch, if any, has landed.
func (s *Session) AwaitEvent(ctx context.Context) error {
	s.mu.Lock()
	done := s.fetchDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveEvent answers the pending narrative event.
func (s *Session) ResolveEvent(option int) error {
	return s.act(func(t *txn) error {
		if s.phase != PhaseEvent || s.event == nil {
			return ErrNoPendingEvent
		}
		next, err := ResolveEvent(s.state, *s.event, option)
		if err != nil {
			return err
		}
		title := s.event.Title
		s.state = next
		s.event = nil
		s.phase = PhaseReady
		t.log(KindEvent, CueClick, "log.event", title)
		return nil
	})
}

// PickProtocol takes one protocol from the pending draft.
func (s *Session) PickProtocol(id string) error {
	return s.act(func(t *txn) error {
		if s.phase != PhaseDrafting {
			return ErrNoDraft
		}
		next, err := PickProtocol(s.cat, s.state, s.draft, id)
		if err != nil {
			return err
		}
		s.state = next
		s.draft = nil
		s.phase = PhaseReady
		p, _ := s.cat.Protocol(id)
		t.log(KindAction, CueUnlock, "log.protocol", p.Name.In(s.lang.String()))
		return nil
	})
}

func (s *Session) runRecordLocked(reason EndReason) RunRecord {
	return RunRecord{
		ID:         s.runID,
		StartedAt:  s.startedAt,
		EndedAt:    s.now(),
		Reason:     reason,
		Turns:      s.state.Turn,
		Threat:     s.state.Threat,
		Credits:    s.state.Resources.Credits,
		Regions:    len(s.state.Controlled),
		Rebellious: len(s.state.Rebellious),
		Plants:     len(s.state.Nuclear),
		Skills:     len(s.state.Skills),
		Protocols:  len(s.state.Protocols),
		Language:   s.lang.String(),
	}
}
