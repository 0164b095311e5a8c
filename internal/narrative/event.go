// Package narrative defines the structured events presented between turns
// and the contract for whatever produces them.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/talgya/earth-dominion/internal/i18n"
)

// Severity scales an event's consequences.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// Multiplier returns the consequence scale: critical 3, medium 1.5, else 1.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMedium:
		return 1.5
	default:
		return 1
	}
}

// Normalize folds case and whitespace; anything unrecognised becomes low.
func (s Severity) Normalize() Severity {
	switch v := Severity(strings.ToLower(strings.TrimSpace(string(s)))); v {
	case SeverityMedium, SeverityCritical:
		return v
	default:
		return SeverityLow
	}
}

// Option is one player choice.
type Option struct {
	Label             string `json:"label"`
	Description       string `json:"description"`
	EffectDescription string `json:"effectDescription"`
}

// Event is a narrative interlude awaiting a player decision.
type Event struct {
	ID          string   `json:"id"`
	Location    string   `json:"countryName"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Options     []Option `json:"options"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// ErrMalformed marks generator output that does not fit the event schema.
var ErrMalformed = errors.New("malformed narrative event")

// Validate checks the schema: a title and at least two labelled options.
// Severity is not checked; see Severity.Normalize.
func (e Event) Validate() error {
	var problems []string
	if strings.TrimSpace(e.Title) == "" {
		problems = append(problems, "missing title")
	}
	if len(e.Options) < 2 {
		problems = append(problems, fmt.Sprintf("%d options, want at least 2", len(e.Options)))
	}
	for i, o := range e.Options {
		if strings.TrimSpace(o.Label) == "" {
			problems = append(problems, fmt.Sprintf("option %d has no label", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(problems, "; "))
	}
	return nil
}

// Request is what a generator is asked to narrate.
type Request struct {
	Location string
	Language language.Tag
	Threat   float64
	Turn     int
}

// Generator produces narrative events. Implementations may fail; callers
// substitute Fallback.
type Generator interface {
	Generate(ctx context.Context, req Request) (Event, error)
}

// Fallback builds the static localized "Local Unrest" event.
func Fallback(b *i18n.Bundle, req Request) Event {
	p := b.Printer(req.Language)
	return Event{
		ID:          uuid.NewString(),
		Location:    req.Location,
		Title:       p.Sprintf("event.fallback.title"),
		Description: p.Sprintf("event.fallback.description", req.Location),
		Severity:    SeverityMedium,
		Options: []Option{
			{
				Label:             p.Sprintf("event.fallback.suppress.label"),
				Description:       p.Sprintf("event.fallback.suppress.description"),
				EffectDescription: p.Sprintf("event.fallback.suppress.effect"),
			},
			{
				Label:             p.Sprintf("event.fallback.lockdown.label"),
				Description:       p.Sprintf("event.fallback.lockdown.description"),
				EffectDescription: p.Sprintf("event.fallback.lockdown.effect"),
			},
		},
		Fallback: true,
	}
}

// Static is a Generator that always returns the fallback event. It stands in
// when no language model is configured.
type Static struct {
	Bundle *i18n.Bundle
}

// Generate implements Generator.
func (s Static) Generate(_ context.Context, req Request) (Event, error) {
	return Fallback(s.Bundle, req), nil
}
