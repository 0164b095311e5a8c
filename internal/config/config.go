// Package config loads process configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/talgya/earth-dominion/internal/i18n"
)

// Logging selects the slog handler.
type Logging struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// NewLogger builds the process logger writing to w.
func (l Logging) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l Logging) level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (l Logging) problems() []string {
	var problems []string
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not a level", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q must be text or json", l.Format))
	}
	return problems
}

// Server configures cmd/dominion.
type Server struct {
	Addr     string `env:"DOMINION_ADDR" envDefault:":8080"`
	Language string `env:"DOMINION_LANG" envDefault:"en-US"`
	// Seed fixes the game's random source; 0 draws one at startup.
	Seed int64 `env:"DOMINION_SEED"`

	AnthropicKey       string        `env:"ANTHROPIC_API_KEY"`
	NarrativeModel     string        `env:"NARRATIVE_MODEL"`
	NarrativeTimeout   time.Duration `env:"NARRATIVE_TIMEOUT" envDefault:"12s"`
	NarrativePerMinute int           `env:"NARRATIVE_PER_MINUTE" envDefault:"20"`
	RandomOrgKey       string        `env:"RANDOM_ORG_KEY"`

	// AtlasPath is a Natural Earth GeoJSON file; empty generates sectors.
	AtlasPath     string   `env:"ATLAS_PATH"`
	ChroniclePath string   `env:"CHRONICLE_PATH" envDefault:"dominion.db"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	// AdminKey, when set, is required as a bearer token on POST endpoints.
	AdminKey string `env:"DOMINION_ADMIN_KEY"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"5"`
	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	Logging Logging
}

// Steward configures cmd/steward.
type Steward struct {
	APIURL       string        `env:"STEWARD_API_URL" envDefault:"http://localhost:8080"`
	Interval     time.Duration `env:"STEWARD_INTERVAL" envDefault:"5s"`
	MaxTurns     int           `env:"STEWARD_MAX_TURNS" envDefault:"100"`
	AdminKey     string        `env:"DOMINION_ADMIN_KEY"`
	MemoryPath   string        `env:"STEWARD_MEMORY" envDefault:"steward_memory.json"`
	AnthropicKey string        `env:"ANTHROPIC_API_KEY"`
	Model        string        `env:"NARRATIVE_MODEL"`

	Logging Logging
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// LoadServer reads the server configuration.
func LoadServer() (*Server, error) {
	loadDotEnv()
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSteward reads the steward configuration.
func LoadSteward() (*Steward, error) {
	loadDotEnv()
	var cfg Steward
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv reads .env if present. Variables already set win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process environment")
	}
}

// Tag resolves the configured language.
func (c *Server) Tag() language.Tag {
	return i18n.Match(c.Language)
}

func (c *Server) validate() error {
	var problems []string

	if c.Addr == "" {
		problems = append(problems, "DOMINION_ADDR is required")
	}
	if c.NarrativeTimeout <= 0 {
		problems = append(problems, "NARRATIVE_TIMEOUT must be positive")
	}
	if c.NarrativePerMinute <= 0 {
		problems = append(problems, "NARRATIVE_PER_MINUTE must be positive")
	}
	if c.RateLimitRPS <= 0 {
		problems = append(problems, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitBurst < 1 {
		problems = append(problems, "RATE_LIMIT_BURST must be at least 1")
	}
	if c.ChroniclePath == "" {
		problems = append(problems, "CHRONICLE_PATH is required")
	}
	problems = append(problems, c.Logging.problems()...)

	return joinProblems(problems)
}

func (c *Steward) validate() error {
	var problems []string

	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("STEWARD_API_URL %q is not an absolute URL", c.APIURL))
	}
	if c.Interval < 0 {
		problems = append(problems, "STEWARD_INTERVAL must not be negative")
	}
	if c.MaxTurns < 1 {
		problems = append(problems, "STEWARD_MAX_TURNS must be at least 1")
	}
	problems = append(problems, c.Logging.problems()...)

	return joinProblems(problems)
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
