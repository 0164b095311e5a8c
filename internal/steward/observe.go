// Package steward implements the autonomous player.
// It observes the game through the HTTP API, triages the position, decides
// on an action (via the language model when configured, otherwise a fixed
// playbook) and acts through the same API a human client uses.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/earth-dominion/internal/engine"
)

// Observation holds everything fetched in one observe step.
type Observation struct {
	State   engine.Snapshot     `json:"state"`
	Skills  []engine.SkillView  `json:"skills"`
	Regions []engine.RegionView `json:"regions"`
	Log     []engine.LogEntry   `json:"log"`
}

// Region returns the region view with the given code.
func (o *Observation) Region(code string) (engine.RegionView, bool) {
	for _, r := range o.Regions {
		if r.Code == code {
			return r, true
		}
	}
	return engine.RegionView{}, false
}

// Skill returns the skill view with the given id.
func (o *Observation) Skill(id string) (engine.SkillView, bool) {
	for _, s := range o.Skills {
		if s.ID == id {
			return s, true
		}
	}
	return engine.SkillView{}, false
}

// Observer fetches game state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches state, skills, regions and the recent log.
func (o *Observer) Observe(ctx context.Context) (*Observation, error) {
	obs := &Observation{}

	if err := o.fetchJSON(ctx, "/api/v1/state", &obs.State); err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/skills", &obs.Skills); err != nil {
		return nil, fmt.Errorf("fetch skills: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/regions", &obs.Regions); err != nil {
		return nil, fmt.Errorf("fetch regions: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/log?limit=10", &obs.Log); err != nil {
		return nil, fmt.Errorf("fetch log: %w", err)
	}

	return obs, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
