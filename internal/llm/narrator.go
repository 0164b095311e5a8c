package llm

import (
	"context"
	"fmt"

	"github.com/talgya/earth-dominion/internal/i18n"
	"github.com/talgya/earth-dominion/internal/narrative"
)

const gameMasterPrompt = `You are the AI Game Master for "Earth Dominion".
The player is a planetary AI Administrator.
Current Global Threat Level: %.0f%% (0%% is calm, 100%% is apocalypse).
Current Turn: %d.
Generate a sci-fi scenario for the country: %s.

If Threat is HIGH (>70%%), generate riots, rebellions, or natural disasters.
If Threat is LOW (<30%%), generate political disputes or tech discoveries.

Output strictly valid JSON:
{
  "title": "Short Event Title",
  "description": "2-3 sentences describing the situation.",
  "severity": "low" | "medium" | "critical",
  "options": [
    {
      "label": "Action Name",
      "description": "Description of action.",
      "effectDescription": "E.g. -100 Credits, +5 Threat"
    },
    {
      "label": "Alt Action",
      "description": "Description.",
      "effectDescription": "E.g. -50 Energy, -5 Stability"
    }
  ]
}`

// Narrator generates narrative events with the language model. It implements
// narrative.Generator; every failure is returned so the caller can fall back.
type Narrator struct {
	client *Client
	bundle *i18n.Bundle
}

// NewNarrator returns a Narrator. A nil client yields ErrDisabled on every call.
func NewNarrator(client *Client, bundle *i18n.Bundle) *Narrator {
	if bundle == nil {
		bundle = i18n.Default()
	}
	return &Narrator{client: client, bundle: bundle}
}

// Generate implements narrative.Generator.
func (n *Narrator) Generate(ctx context.Context, req narrative.Request) (narrative.Event, error) {
	if !n.client.Enabled() {
		return narrative.Event{}, ErrDisabled
	}

	prompt := BuildEventPrompt(req) + " " + n.bundle.Sprintf(req.Language, "narrative.instruction")
	text, err := n.client.Complete(ctx, "", prompt, 600)
	if err != nil {
		return narrative.Event{}, fmt.Errorf("narrative event: %w", err)
	}

	var ev narrative.Event
	if err := ExtractJSON(text, &ev); err != nil {
		return narrative.Event{}, fmt.Errorf("%w: %v", narrative.ErrMalformed, err)
	}
	ev.Severity = ev.Severity.Normalize()
	ev.Location = req.Location
	ev.Fallback = false
	if err := ev.Validate(); err != nil {
		return narrative.Event{}, err
	}
	return ev, nil
}

// BuildEventPrompt fills the game-master prompt for req.
func BuildEventPrompt(req narrative.Request) string {
	return fmt.Sprintf(gameMasterPrompt, req.Threat, req.Turn, req.Location)
}
