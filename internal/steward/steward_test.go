package steward

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/earth-dominion/internal/api"
	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/entropy"
	"github.com/talgya/earth-dominion/internal/llm"
	"github.com/talgya/earth-dominion/internal/narrative"
)

func readyObservation() *Observation {
	st := engine.NewState()
	return &Observation{
		State: engine.Snapshot{Phase: engine.PhaseReady, State: st},
		Regions: []engine.RegionView{
			{Region: atlas.Region{Code: "AA", Name: "Region AA"}, Status: engine.StatusUnclaimed, ControlCost: engine.Cost{Credits: 70, Energy: 10}},
			{Region: atlas.Region{Code: "BB", Name: "Region BB"}, Status: engine.StatusUnclaimed, ControlCost: engine.Cost{Credits: 500, Energy: 50}},
		},
	}
}

func TestTriage(t *testing.T) {
	cases := []struct {
		threat, stability float64
		want              string
	}{
		{10, 100, CrisisHealthy},
		{45, 100, CrisisWatch},
		{65, 100, CrisisWarning},
		{85, 100, CrisisCritical},
		{10, 20, CrisisCritical},
		{10, 60, CrisisWatch},
	}
	for _, tc := range cases {
		obs := readyObservation()
		obs.State.State.Threat = tc.threat
		obs.State.State.Resources.Stability = tc.stability
		if got := Triage(obs).CrisisLevel; got != tc.want {
			t.Errorf("threat %v stability %v: %s, want %s", tc.threat, tc.stability, got, tc.want)
		}
	}
}

func TestTriageRebellionsAndRunway(t *testing.T) {
	obs := readyObservation()
	obs.State.State.Controlled = engine.NewSet("AA", "BB", "CC")
	obs.State.State.Rebellious = engine.NewSet("AA", "BB")
	h := Triage(obs)
	if h.CrisisLevel != CrisisWarning || h.RebelShare < 0.66 {
		t.Errorf("health = %+v", h)
	}

	// Three points of growth from 95 leaves one turn.
	obs = readyObservation()
	obs.State.State.Threat = 95
	if h := Triage(obs); h.TurnsToMax != 1 || h.CrisisLevel != CrisisCritical {
		t.Errorf("runway health = %+v", h)
	}
}

func TestPlaybookReady(t *testing.T) {
	obs := readyObservation()
	if d := Playbook(obs, Triage(obs)); d.Action != ActionControl || d.Target != "AA" {
		t.Errorf("expand: %+v", d)
	}

	obs.Regions[1].Status = engine.StatusRebellious
	obs.Regions[1].RepairCost = engine.Cost{Credits: 28, Energy: 4}
	if d := Playbook(obs, Triage(obs)); d.Action != ActionSuppress || d.Target != "BB" {
		t.Errorf("suppress: %+v", d)
	}

	// Broke, owning a loyal region: keep busy.
	obs = readyObservation()
	obs.State.State.Resources.Credits = 100
	obs.Regions[1].Status = engine.StatusControlled
	if d := Playbook(obs, Triage(obs)); d.Action != ActionDiagnostics || d.Target != "BB" {
		t.Errorf("diagnostics: %+v", d)
	}
	obs.State.State.HasActed = true
	if d := Playbook(obs, Triage(obs)); d.Action != ActionEndTurn {
		t.Errorf("end turn: %+v", d)
	}
}

func TestPlaybookAbilities(t *testing.T) {
	obs := readyObservation()
	obs.State.State.Threat = 70
	obs.Skills = []engine.SkillView{{Skill: catalog.Skill{ID: engine.AbilityOrbitalStrike, Type: catalog.SkillActive}, Unlocked: true}}
	if d := Playbook(obs, Triage(obs)); d.Action != ActionActivate || d.Target != engine.AbilityOrbitalStrike {
		t.Errorf("strike: %+v", d)
	}

	obs.Skills[0].Cooldown = 2
	if d := Playbook(obs, Triage(obs)); d.Action == ActionActivate {
		t.Errorf("cooling ability used: %+v", d)
	}
}

func TestPlaybookInterludes(t *testing.T) {
	obs := readyObservation()
	obs.State.Phase = engine.PhaseOver
	if d := Playbook(obs, Triage(obs)); d.Action != ActionStop {
		t.Errorf("over: %+v", d)
	}
	obs.State.Phase = engine.PhaseFetching
	if d := Playbook(obs, Triage(obs)); d.Action != ActionWait {
		t.Errorf("fetching: %+v", d)
	}

	obs.State.Phase = engine.PhaseEvent
	obs.State.Event = &narrative.Event{
		Severity: narrative.SeverityCritical,
		Options:  []narrative.Option{{Label: "pay"}, {Label: "refuse"}},
	}
	if d := Playbook(obs, Triage(obs)); d.Action != ActionResolve || d.Option != 0 {
		t.Errorf("rich event: %+v", d)
	}
	obs.State.State.Resources.Credits = 200
	if d := Playbook(obs, Triage(obs)); d.Action != ActionResolve || d.Option != 1 {
		t.Errorf("poor event: %+v", d)
	}

	obs.State.Phase = engine.PhaseDrafting
	obs.State.Event = nil
	obs.State.Draft = []engine.DraftOption{
		{Protocol: catalog.Protocol{ID: "gold", Rarity: catalog.RarityLegendary, Effect: catalog.EffectIncomeCredit}},
		{Protocol: catalog.Protocol{ID: "calm", Rarity: catalog.RarityCommon, Effect: catalog.EffectThreatReduction}},
	}
	if d := Playbook(obs, Triage(obs)); d.Target != "gold" {
		t.Errorf("healthy draft: %+v", d)
	}
	obs.State.State.Threat = 90
	if d := Playbook(obs, Triage(obs)); d.Action != ActionPick || d.Target != "calm" {
		t.Errorf("crisis draft: %+v", d)
	}
}

func TestGuardrails(t *testing.T) {
	obs := readyObservation()
	bad := []Decision{
		{Action: "launch"},
		{Action: ActionControl, Target: "ZZ"},
		{Action: ActionSuppress, Target: "AA"},
		{Action: ActionUnlock, Target: "nope"},
		{Action: ActionResolve, Option: 0},
	}
	for _, d := range bad {
		if err := enforceGuardrails(&d, obs); err == nil {
			t.Errorf("%+v passed", d)
		}
	}

	d := Decision{Action: ActionEndTurn, Target: "AA", Option: 3}
	if err := enforceGuardrails(&d, obs); err != nil || d.Target != "" || d.Option != 0 {
		t.Errorf("end turn: %+v %v", d, err)
	}

	obs.State.Phase = engine.PhaseEvent
	obs.State.Event = &narrative.Event{Options: []narrative.Option{{}, {}}}
	if err := enforceGuardrails(&Decision{Action: ActionResolve, Option: 2}, obs); err == nil {
		t.Error("out of range option passed")
	}
	if err := enforceGuardrails(&Decision{Action: ActionResolve, Option: 1}, obs); err != nil {
		t.Errorf("resolve: %v", err)
	}
}

func fakeModel(t *testing.T, text string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return llm.NewClient("test-key", llm.Options{Endpoint: srv.URL})
}

func TestDecideWithModel(t *testing.T) {
	obs := readyObservation()
	h := Triage(obs)

	client := fakeModel(t, "Sure.\n{\"action\": \"Control\", \"target\": \"BB\", \"rationale\": \"bigger economy\"}")
	d, err := Decide(context.Background(), client, obs, h, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionControl || d.Target != "BB" || d.Rationale != "bigger economy" {
		t.Errorf("decision = %+v", d)
	}

	client = fakeModel(t, `{"action": "control", "target": "ATLANTIS"}`)
	if _, err := Decide(context.Background(), client, obs, h, nil); err == nil || !strings.Contains(err.Error(), "guardrail") {
		t.Errorf("err = %v", err)
	}

	if _, err := Decide(context.Background(), nil, obs, h, nil); err != llm.ErrDisabled {
		t.Errorf("nil client err = %v", err)
	}
}

func TestFormatObservation(t *testing.T) {
	obs := readyObservation()
	obs.State.State.Resources.Credits = 12345
	out := formatObservation(obs, Triage(obs))
	for _, want := range []string{"1st turn", "12,345", "AA Region AA: unclaimed"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	mem := LoadMemory(path)
	for i := 1; i <= maxRecords+5; i++ {
		mem.Record(CycleRecord{Turn: i, Actions: []string{ActionEndTurn}, Credits: 1500, CrisisLevel: CrisisHealthy})
	}
	if len(mem.Records) != maxRecords || mem.Records[0].Turn != 6 {
		t.Fatalf("records = %d, first turn %d", len(mem.Records), mem.Records[0].Turn)
	}
	if err := mem.Save(); err != nil {
		t.Fatal(err)
	}

	loaded := LoadMemory(path)
	if len(loaded.Records) != maxRecords {
		t.Fatalf("loaded %d records", len(loaded.Records))
	}
	prompt := loaded.FormatForPrompt()
	if strings.Count(prompt, "- Turn") != promptRecords || !strings.Contains(prompt, "credits=1,500") {
		t.Errorf("prompt = %q", prompt)
	}

	if LoadMemory("").Save() != nil {
		t.Error("in-process memory save failed")
	}
}

func TestPlayTurnAgainstServer(t *testing.T) {
	box := &atlas.BBox{MaxLng: 10, MaxLat: 10}
	a, err := atlas.New([]atlas.Region{
		{Code: "AA", Name: "Region AA", GDP: 20000, BBox: box},
		{Code: "BB", Name: "Region BB", GDP: 1e6, BBox: box},
	})
	if err != nil {
		t.Fatal(err)
	}
	session := engine.NewSession(engine.Config{
		Atlas:  a,
		Source: entropy.NewSequence(0.99),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(session.Close)
	ts := httptest.NewServer(api.NewServer(session, nil, api.Options{AdminKey: "k"}).Handler())
	t.Cleanup(ts.Close)

	s := New(ts.URL, "k", nil, nil)
	rec, err := s.PlayTurn(context.Background())
	if err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if len(rec.Actions) == 0 || rec.Actions[len(rec.Actions)-1] != ActionEndTurn {
		t.Errorf("actions = %v", rec.Actions)
	}
	if rec.Actions[0] == ActionEndTurn {
		t.Errorf("turn ended without acting: %v", rec.Actions)
	}
	if got := session.Snapshot().State.Turn; got != 2 {
		t.Errorf("turn = %d, want 2", got)
	}
	if len(s.Memory.Records) != 1 || rec.GameOver {
		t.Errorf("memory = %+v", s.Memory.Records)
	}
	if !strings.Contains(rec.Summary(), "turn played") {
		t.Errorf("summary = %q", rec.Summary())
	}
}
