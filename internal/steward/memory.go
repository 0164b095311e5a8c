package steward

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	maxRecords    = 20
	promptRecords = 5 // how many recent records go into the model prompt
)

// CycleRecord captures one played turn.
type CycleRecord struct {
	RunID       string   `json:"run_id"`
	Turn        int      `json:"turn"`
	Actions     []string `json:"actions"`
	Threat      float64  `json:"threat"`
	Stability   float64  `json:"stability"`
	Credits     float64  `json:"credits"`
	CrisisLevel string   `json:"crisis_level"`
	Rejected    int      `json:"rejected,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	GameOver    bool     `json:"game_over,omitempty"`
}

// CycleMemory keeps a ring of recent cycle records, optionally on disk.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file. An empty path keeps memory in process;
// a missing or corrupt file starts fresh.
func LoadMemory(path string) *CycleMemory {
	mem := &CycleMemory{path: path}
	if path == "" {
		return mem
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	return mem
}

// Save writes the memory to disk when it has a path.
func (m *CycleMemory) Save() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal steward memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write steward memory: %w", err)
	}
	return nil
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// FormatForPrompt summarizes the last few cycles for the model prompt.
func (m *CycleMemory) FormatForPrompt() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recent Steward Turns\n")

	start := max(0, len(m.Records)-promptRecords)
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "- Turn %d: actions=%s, threat=%.1f, stability=%.1f, credits=%s, crisis=%s",
			r.Turn, strings.Join(r.Actions, ","), r.Threat, r.Stability, humanize.Comma(int64(r.Credits)), r.CrisisLevel)
		if r.Rejected > 0 {
			fmt.Fprintf(&b, ", rejected=%d", r.Rejected)
		}
		b.WriteString("\n")
	}
	return b.String()
}
