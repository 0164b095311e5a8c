package steward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/earth-dominion/internal/engine"
)

// ActionResult is the response of every POST action endpoint.
type ActionResult struct {
	Accepted  bool              `json:"accepted"`
	Reason    string            `json:"reason,omitempty"`
	Rejection engine.RejectKind `json:"rejection,omitempty"`
	State     engine.Snapshot   `json:"state"`
}

// Actor submits actions to the API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL. adminKey may be
// empty when the server runs without one.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			// Ending a turn may wait for a narrative event.
			Timeout: 45 * time.Second,
		},
	}
}

// Act performs a decision. Region actions select the target first.
func (a *Actor) Act(ctx context.Context, d Decision) (*ActionResult, error) {
	switch d.Action {
	case ActionControl, ActionSuppress, ActionNuclear, ActionDiagnostics:
		res, err := a.post(ctx, "/api/v1/select", map[string]string{"code": d.Target})
		if err != nil {
			return nil, err
		}
		if !res.Accepted {
			return res, nil
		}
	}

	switch d.Action {
	case ActionControl:
		return a.post(ctx, "/api/v1/control", nil)
	case ActionSuppress:
		return a.post(ctx, "/api/v1/suppress", nil)
	case ActionNuclear:
		return a.post(ctx, "/api/v1/nuclear", nil)
	case ActionDiagnostics:
		return a.post(ctx, "/api/v1/diagnostics", nil)
	case ActionUnlock:
		return a.post(ctx, "/api/v1/skills/unlock", map[string]string{"id": d.Target})
	case ActionActivate:
		return a.post(ctx, "/api/v1/abilities/activate", map[string]string{"id": d.Target})
	case ActionPick:
		return a.post(ctx, "/api/v1/protocols/pick", map[string]string{"id": d.Target})
	case ActionResolve:
		return a.post(ctx, "/api/v1/events/resolve", map[string]int{"option": d.Option})
	case ActionEndTurn:
		return a.post(ctx, "/api/v1/turn/end?wait=1", nil)
	default:
		return nil, fmt.Errorf("action %q has no endpoint", d.Action)
	}
}

func (a *Actor) post(ctx context.Context, path string, payload any) (*ActionResult, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.AdminKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.AdminKey)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s failed (%d): %s", path, resp.StatusCode, string(respBody))
	}

	var result ActionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
