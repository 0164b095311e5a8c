// Command dominion runs the Earth Dominion game server.
package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/earth-dominion/internal/api"
	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
	"github.com/talgya/earth-dominion/internal/config"
	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/entropy"
	"github.com/talgya/earth-dominion/internal/i18n"
	"github.com/talgya/earth-dominion/internal/llm"
	"github.com/talgya/earth-dominion/internal/persistence"
)

// chronicleRetention is how long log lines stay in the chronicle.
const chronicleRetention = 30 * 24 * time.Hour

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Logging.NewLogger(os.Stdout))

	slog.Info("EARTH DOMINION: strategic control network")

	// ── Chronicle ─────────────────────────────────────────────────────
	if err := ensureDir(cfg.ChroniclePath); err != nil {
		slog.Error("failed to create chronicle directory", "path", cfg.ChroniclePath, "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.ChroniclePath)
	if err != nil {
		slog.Error("failed to open chronicle", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if n, err := db.Prune(time.Now().Add(-chronicleRetention)); err != nil {
		slog.Warn("chronicle prune failed", "error", err)
	} else if n > 0 {
		slog.Info("chronicle pruned", "entries", n)
	}
	if stats, err := db.Stats(); err == nil {
		slog.Info("chronicle opened", "path", cfg.ChroniclePath, "runs", stats.Runs, "best_turns", stats.BestTurns)
	}

	// ── Randomness ────────────────────────────────────────────────────
	seed := cfg.Seed
	if seed == 0 {
		if seed, err = entropy.NewSeed(); err != nil {
			seed = time.Now().UnixNano()
		}
	}
	var source entropy.Source = entropy.NewSeeded(seed)
	if rc := entropy.NewClient(cfg.RandomOrgKey, source); rc != nil {
		slog.Info("random.org entropy enabled, seeded fallback", "seed", seed)
		source = rc
	} else {
		slog.Info("seeded entropy", "seed", seed)
	}

	// ── Atlas ─────────────────────────────────────────────────────────
	var world *atlas.Atlas
	if cfg.AtlasPath != "" {
		world, err = atlas.LoadFile(cfg.AtlasPath)
	} else {
		gen := atlas.DefaultGenConfig()
		gen.Seed = seed
		world, err = atlas.Generate(gen)
	}
	if err != nil {
		slog.Error("failed to build atlas", "path", cfg.AtlasPath, "error", err)
		os.Exit(1)
	}
	slog.Info("atlas ready", "regions", world.Len(), "source", cmp.Or(cfg.AtlasPath, "generated"))

	// ── Narrative ─────────────────────────────────────────────────────
	bundle := i18n.Default()
	llmClient := llm.NewClient(cfg.AnthropicKey, llm.Options{
		Model:     cfg.NarrativeModel,
		PerMinute: cfg.NarrativePerMinute,
	})
	var narrator *llm.Narrator
	if llmClient.Enabled() {
		narrator = llm.NewNarrator(llmClient, bundle)
		slog.Info("narrative events enabled", "model", llmClient.Model(), "timeout", cfg.NarrativeTimeout)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, narrative events use the static fallback")
	}

	// ── Session ───────────────────────────────────────────────────────
	sessionCfg := engine.Config{
		Catalog:          catalog.Default(),
		Atlas:            world,
		Bundle:           bundle,
		Language:         cfg.Tag(),
		Source:           source,
		NarrativeTimeout: cfg.NarrativeTimeout,
		Chronicle:        db,
		Logger:           slog.Default(),
	}
	if narrator != nil {
		sessionCfg.Generator = narrator
	}
	session := engine.NewSession(sessionCfg)
	defer session.Close()

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("DOMINION_ADMIN_KEY not set, action endpoints are open")
	}
	server := api.NewServer(session, db, api.Options{
		Addr:           cfg.Addr,
		AdminKey:       cfg.AdminKey,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		TrustedProxies: cfg.TrustedProxies,
		EventWait:      cfg.NarrativeTimeout + 3*time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap := session.Snapshot()
	fmt.Printf("\nRun %s online: %d regions, language %s.\n", snap.RunID, world.Len(), snap.Language)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.Addr)
	fmt.Println("Serving... (Ctrl+C to stop)")

	if err := server.Start(ctx); err != nil {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Earth Dominion stopped.")
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
