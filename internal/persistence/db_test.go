package persistence

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/earth-dominion/internal/engine"
	"github.com/talgya/earth-dominion/internal/entropy"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chronicle.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndReadEntries(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var entries []engine.LogEntry
	for i := 1; i <= 5; i++ {
		entries = append(entries, engine.LogEntry{
			Seq:   uint64(i),
			RunID: "run-a",
			Turn:  i,
			Kind:  engine.KindTurn,
			Text:  "turn",
			Cue:   engine.CueTurnStart,
			At:    at.Add(time.Duration(i) * time.Minute),
		})
	}
	entries = append(entries, engine.LogEntry{Seq: 1, RunID: "run-b", Kind: engine.KindSystem, Text: "init", At: at})

	if err := db.SaveEntries(entries); err != nil {
		t.Fatalf("SaveEntries: %v", err)
	}
	if err := db.SaveEntries(nil); err != nil {
		t.Fatalf("SaveEntries(nil): %v", err)
	}

	got, err := db.RecentEntries("run-a", 3)
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("seqs = %d..%d, want 3..5", got[0].Seq, got[2].Seq)
	}
	if got[2].Cue != engine.CueTurnStart || got[2].Kind != engine.KindTurn {
		t.Errorf("entry = %+v", got[2])
	}
	if !got[2].At.Equal(at.Add(5 * time.Minute)) {
		t.Errorf("at = %v", got[2].At)
	}
}

func TestRunsAndStats(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	runs := []engine.RunRecord{
		{ID: "r1", StartedAt: base, EndedAt: base.Add(time.Hour), Reason: engine.EndCollapse, Turns: 12, Language: "en-US"},
		{ID: "r2", StartedAt: base, EndedAt: base.Add(2 * time.Hour), Reason: engine.EndThreat, Turns: 30, Threat: 100, Language: "zh-CN"},
	}
	for _, r := range runs {
		if err := db.SaveRun(r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	got, err := db.Runs(10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r2" || got[0].Reason != engine.EndThreat {
		t.Fatalf("runs = %+v", got)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Runs != 2 || stats.BestTurns != 30 || stats.AvgTurns != 21 {
		t.Errorf("stats = %+v", stats)
	}

	last, err := db.GetMeta("last_run")
	if err != nil || last != "r2" {
		t.Errorf("last_run = %q, %v", last, err)
	}
}

func TestEmptyStats(t *testing.T) {
	stats, err := openTestDB(t).Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats != (RunStats{}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.SaveEntries([]engine.LogEntry{
		{Seq: 1, RunID: "r", Kind: engine.KindSystem, Text: "old", At: old},
		{Seq: 2, RunID: "r", Kind: engine.KindSystem, Text: "new", At: recent},
	})

	n, err := db.Prune(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}

func TestSessionWritesChronicle(t *testing.T) {
	db := openTestDB(t)
	s := engine.NewSession(engine.Config{
		Source:    entropy.NewSequence(0.99),
		Chronicle: db,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer s.Close()

	runID := s.Snapshot().RunID
	for i := 0; i < 3; i++ {
		if err := s.EndTurn(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Restart(); err != nil {
		t.Fatal(err)
	}

	entries, err := db.RecentEntries(runID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 4 {
		t.Errorf("chronicled %d entries for the run", len(entries))
	}
	runs, err := db.Runs(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != runID || runs[0].Reason != engine.EndAbandoned || runs[0].Turns != 4 {
		t.Errorf("runs = %+v", runs)
	}
}
