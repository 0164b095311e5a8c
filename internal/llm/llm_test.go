package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/talgya/earth-dominion/internal/narrative"
)

// fakeAPI answers every Messages call with text and records the last request.
func fakeAPI(t *testing.T, status int, text string, last *request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-api-key"))
		}
		if last != nil {
			if err := json.NewDecoder(r.Body).Decode(last); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":"overloaded"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNilClientDisabled(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client enabled")
	}
	if NewClient("", Options{}) != nil {
		t.Fatal("empty key should give nil client")
	}
	if _, err := c.Complete(context.Background(), "", "hi", 10); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v", err)
	}
}

func TestCompleteSendsModelAndPrompt(t *testing.T) {
	var got request
	srv := fakeAPI(t, http.StatusOK, "hello", &got)
	c := NewClient("test-key", Options{Endpoint: srv.URL, Model: "test-model"})

	text, err := c.Complete(context.Background(), "sys", "user prompt", 42)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "test-model" || got.MaxTokens != 42 || got.System != "sys" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "user prompt" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestCompleteReportsAPIError(t *testing.T) {
	srv := fakeAPI(t, http.StatusTooManyRequests, "", nil)
	c := NewClient("test-key", Options{Endpoint: srv.URL})
	if _, err := c.Complete(context.Background(), "", "x", 10); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v", err)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, "ok", nil)
	c := NewClient("test-key", Options{Endpoint: srv.URL, PerMinute: 2})

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), "", "x", 10); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := c.Complete(context.Background(), "", "x", 10); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third call err = %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	var v struct {
		Action string `json:"action"`
	}
	if err := ExtractJSON("```json\n{\"action\": \"control\"}\n```", &v); err != nil {
		t.Fatal(err)
	}
	if v.Action != "control" {
		t.Errorf("action = %q", v.Action)
	}
	if err := ExtractJSON("no object here", &v); err == nil {
		t.Error("expected error")
	}
}

const sampleEvent = `Here is your event:
{
  "title": "Grid Uprising",
  "description": "Workers seize the substations.",
  "severity": "Critical",
  "options": [
    {"label": "Crack down", "description": "Send drones.", "effectDescription": "-100 Credits"},
    {"label": "Negotiate", "description": "Open talks.", "effectDescription": "-5 Stability"}
  ]
}`

func TestNarratorGenerate(t *testing.T) {
	var got request
	srv := fakeAPI(t, http.StatusOK, sampleEvent, &got)
	n := NewNarrator(NewClient("test-key", Options{Endpoint: srv.URL}), nil)

	req := narrative.Request{Location: "Brazil", Language: language.MustParse("zh-CN"), Threat: 75, Turn: 9}
	ev, err := n.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ev.Title != "Grid Uprising" || ev.Severity != narrative.SeverityCritical || ev.Location != "Brazil" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Options) != 2 || ev.Fallback {
		t.Errorf("options = %+v fallback = %v", ev.Options, ev.Fallback)
	}

	prompt := got.Messages[0].Content
	for _, want := range []string{"Threat Level: 75%", "Current Turn: 9", "country: Brazil", "Simplified Chinese"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNarratorMalformed(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, `{"title": "Half an event", "severity": "low", "options": []}`, nil)
	n := NewNarrator(NewClient("test-key", Options{Endpoint: srv.URL}), nil)

	_, err := n.Generate(context.Background(), narrative.Request{Location: "Chad", Language: language.AmericanEnglish})
	if !errors.Is(err, narrative.ErrMalformed) {
		t.Errorf("err = %v", err)
	}

	srv = fakeAPI(t, http.StatusOK, "the model rambled", nil)
	n = NewNarrator(NewClient("test-key", Options{Endpoint: srv.URL}), nil)
	if _, err := n.Generate(context.Background(), narrative.Request{}); !errors.Is(err, narrative.ErrMalformed) {
		t.Errorf("prose err = %v", err)
	}
}

func TestNarratorUnknownSeverityIsLow(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, `{"title": "Dockside Strike", "severity": "high", "options": [{"label": "Pay"}, {"label": "Wait"}]}`, nil)
	n := NewNarrator(NewClient("test-key", Options{Endpoint: srv.URL}), nil)

	ev, err := n.Generate(context.Background(), narrative.Request{Location: "Chad", Language: language.AmericanEnglish})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ev.Severity != narrative.SeverityLow || ev.Title != "Dockside Strike" {
		t.Errorf("event = %+v", ev)
	}
}

func TestNarratorWithoutKey(t *testing.T) {
	n := NewNarrator(nil, nil)
	if _, err := n.Generate(context.Background(), narrative.Request{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v", err)
	}
}
