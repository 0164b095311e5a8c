// Command steward plays Earth Dominion autonomously through the HTTP API.
// Each cycle it observes the game, triages the position, decides on actions
// (via the language model when a key is set) and ends the turn.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/earth-dominion/internal/config"
	"github.com/talgya/earth-dominion/internal/llm"
	"github.com/talgya/earth-dominion/internal/steward"
)

func main() {
	cfg, err := config.LoadSteward()
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Logging.NewLogger(os.Stdout))

	slog.Info("Earth Dominion steward starting",
		"api_url", cfg.APIURL,
		"interval", cfg.Interval,
		"max_turns", cfg.MaxTurns,
	)

	llmClient := llm.NewClient(cfg.AnthropicKey, llm.Options{Model: cfg.Model})
	if llmClient.Enabled() {
		slog.Info("model decisions enabled", "model", llmClient.Model())
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, playing by the playbook")
	}

	mem := steward.LoadMemory(cfg.MemoryPath)
	s := steward.New(cfg.APIURL, cfg.AdminKey, llmClient, mem)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The server may still be starting.
	slog.Info("waiting for game API...")
	if err := waitForAPI(ctx, cfg.APIURL); err != nil {
		slog.Error("game API unavailable", "error", err)
		os.Exit(1)
	}

	played := 0
	for played < cfg.MaxTurns {
		rec, err := s.PlayTurn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("cycle failed", "error", err)
		} else {
			played++
			slog.Info(rec.Summary(), "crisis", rec.CrisisLevel, "rejected", rec.Rejected)
			if err := mem.Save(); err != nil {
				slog.Error("save memory", "error", err)
			}
			if rec.GameOver {
				break
			}
		}

		select {
		case <-time.After(cfg.Interval):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			slog.Info("received signal, shutting down")
			break
		}
	}

	fmt.Printf("Steward stopped after %d turns.\n", played)
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes.
func waitForAPI(ctx context.Context, apiURL string) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/status", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("game API is ready")
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not ready within 5 minutes")
		}
		slog.Info("game API not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
