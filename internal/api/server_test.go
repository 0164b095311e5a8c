package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/entropy"
	"github.com/talgya/earth-dominion/internal/persistence"
)

type stubChronicle struct {
	runs []engine.RunRecord
	err  error
}

func (c stubChronicle) Runs(limit int) ([]engine.RunRecord, error) {
	if len(c.runs) > limit {
		return c.runs[:limit], c.err
	}
	return c.runs, c.err
}

func (c stubChronicle) Stats() (persistence.RunStats, error) {
	return persistence.RunStats{Runs: len(c.runs), BestTurns: 9, AvgTurns: 9}, c.err
}

func newTestServer(t *testing.T, src entropy.Source, opts Options) (*Server, *httptest.Server) {
	t.Helper()
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
		Source: src,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(session.Close)

	s := NewServer(session, stubChronicle{runs: []engine.RunRecord{{ID: "old", Turns: 9}}}, opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, ts *httptest.Server, path, body string) (int, actionResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out actionResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode, out
}

func get(t *testing.T, ts *httptest.Server, path string, v any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestControlFlow(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})

	code, out := post(t, ts, "/api/v1/control", "")
	if code != http.StatusOK || out.Accepted || out.Rejection != engine.RejectInvalid {
		t.Fatalf("control without selection: %d %+v", code, out)
	}

	if code, out = post(t, ts, "/api/v1/select", `{"code":"AA"}`); !out.Accepted {
		t.Fatalf("select: %d %+v", code, out)
	}
	if out.State.Selected == nil || out.State.Selected.Code != "AA" {
		t.Fatalf("selected = %+v", out.State.Selected)
	}

	_, out = post(t, ts, "/api/v1/control", "")
	if !out.Accepted || out.State.State.Resources.Credits != 1930 {
		t.Fatalf("control: %+v", out)
	}
	if !out.State.State.Controlled.Has("AA") {
		t.Error("AA not controlled")
	}

	// Already controlled: rejected, but still a 200 with state.
	_, out = post(t, ts, "/api/v1/control", "")
	if out.Accepted || out.Reason == "" || out.State.RunID == "" {
		t.Errorf("repeat control: %+v", out)
	}
}

func TestBadRequests(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})

	for _, tc := range []struct{ path, body string }{
		{"/api/v1/select", `{`},
		{"/api/v1/select", `{}`},
		{"/api/v1/skills/unlock", `{"id":""}`},
		{"/api/v1/events/resolve", `{}`},
	} {
		if code, _ := post(t, ts, tc.path, tc.body); code != http.StatusBadRequest {
			t.Errorf("%s %s: status %d", tc.path, tc.body, code)
		}
	}

	if code := get(t, ts, "/api/v1/log?limit=zero", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", code)
	}
	if code := get(t, ts, "/api/v1/regions/ZZ", nil); code != http.StatusNotFound {
		t.Errorf("unknown region: %d", code)
	}
	resp, err := http.Get(ts.URL + "/api/v1/control")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on action: %d", resp.StatusCode)
	}
}

func TestEndTurnWaitsForEvent(t *testing.T) {
	// Rolls of zero always trigger a narrative event; the static generator
	// answers immediately.
	_, ts := newTestServer(t, entropy.NewSequence(0), Options{})

	_, out := post(t, ts, "/api/v1/turn/end?wait=1", "")
	if !out.Accepted {
		t.Fatalf("end turn: %+v", out)
	}
	if out.State.Phase != engine.PhaseEvent || out.State.Event == nil {
		t.Fatalf("phase = %s, event = %v", out.State.Phase, out.State.Event)
	}

	_, out = post(t, ts, "/api/v1/turn/end", "")
	if out.Accepted || out.Reason != engine.ErrTurnBlocked.Error() {
		t.Errorf("blocked end turn: %+v", out)
	}

	_, out = post(t, ts, "/api/v1/events/resolve", `{"option":0}`)
	if !out.Accepted || out.State.Phase == engine.PhaseEvent {
		t.Errorf("resolve: %+v", out)
	}
}

func TestEndTurnRateLimited(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	if code, _ := post(t, ts, "/api/v1/turn/end", ""); code != http.StatusOK {
		t.Fatalf("first: %d", code)
	}
	resp, err := http.Post(ts.URL+"/api/v1/turn/end", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Errorf("second: %d retry-after=%q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
}

func TestAdminKey(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{AdminKey: "secret"})

	if code, _ := post(t, ts, "/api/v1/restart", ""); code != http.StatusUnauthorized {
		t.Errorf("no token: %d", code)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/restart", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token: %d", resp.StatusCode)
	}

	// Reads stay public.
	if code := get(t, ts, "/api/v1/state", nil); code != http.StatusOK {
		t.Errorf("state: %d", code)
	}
}

func TestReadEndpoints(t *testing.T) {
	s, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})
	post(t, ts, "/api/v1/select", `{"code":"AA"}`)
	post(t, ts, "/api/v1/control", "")

	var status map[string]any
	get(t, ts, "/api/v1/status", &status)
	if langs, _ := status["languages"].([]any); len(langs) < 2 || langs[0] != "en-US" {
		t.Errorf("languages = %v", status["languages"])
	}
	if status["turn"] != float64(1) || status["regions"] != float64(2) {
		t.Errorf("status = %v", status)
	}

	var regions []engine.RegionView
	get(t, ts, "/api/v1/regions?status=controlled", &regions)
	if len(regions) != 1 || regions[0].Code != "AA" {
		t.Errorf("controlled regions = %+v", regions)
	}

	var detail engine.RegionView
	get(t, ts, "/api/v1/regions/BB", &detail)
	if detail.Status != engine.StatusUnclaimed {
		t.Errorf("BB = %+v", detail)
	}

	var render engine.Render
	get(t, ts, "/api/v1/render", &render)
	if !slices.Contains(render.Controlled, "AA") || render.Selected != "AA" {
		t.Errorf("render = %+v", render)
	}

	var skills []engine.SkillView
	get(t, ts, "/api/v1/skills", &skills)
	if len(skills) != len(s.Session.Catalog().Skills) {
		t.Errorf("skills = %d", len(skills))
	}

	var entries []engine.LogEntry
	get(t, ts, "/api/v1/log?limit=1", &entries)
	if len(entries) != 1 || entries[0].Kind != engine.KindAction {
		t.Errorf("log = %+v", entries)
	}

	var runs struct {
		Runs  []engine.RunRecord   `json:"runs"`
		Stats persistence.RunStats `json:"stats"`
	}
	get(t, ts, "/api/v1/runs", &runs)
	if len(runs.Runs) != 1 || runs.Stats.BestTurns != 9 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunsChronicleError(t *testing.T) {
	s, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})
	s.Chronicle = stubChronicle{err: errors.New("disk gone")}
	if code := get(t, ts, "/api/v1/runs", nil); code != http.StatusInternalServerError {
		t.Errorf("status = %d", code)
	}
}

func TestLanguage(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})
	_, out := post(t, ts, "/api/v1/language", `{"lang":"zh"}`)
	if !out.Accepted || out.State.Language != "zh-CN" {
		t.Errorf("language = %+v", out.State.Language)
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, entropy.NewSequence(0.99), Options{CORSOrigins: []string{"http://play.test"}})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/state", nil)
	req.Header.Set("Origin", "http://play.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://play.test" {
		t.Errorf("allowed origin header = %q", got)
	}

	req.Header.Set("Origin", "http://evil.test")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin header = %q", got)
	}
}

func TestWebsocketFeed(t *testing.T) {
	s, ts := newTestServer(t, entropy.NewSequence(0.99), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, unsubscribe := s.Session.Subscribe(16)
	defer unsubscribe()
	go s.hub.Run(ctx)
	go s.hub.Pump(ctx, updates)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	if msg.Type != engine.UpdateRender {
		t.Fatalf("greeting type = %q", msg.Type)
	}

	// The client is registered once the greeting is queued; actions now fan out.
	post(t, ts, "/api/v1/select", `{"code":"BB"}`)
	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != engine.UpdateRender {
			continue
		}
		var r engine.Render
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			t.Fatal(err)
		}
		if r.Selected == "BB" {
			return
		}
	}
}
