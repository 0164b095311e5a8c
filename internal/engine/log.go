package engine

import "time"

// EntryKind tags a system log entry.
type EntryKind string

const (
	KindSystem    EntryKind = "system"
	KindAction    EntryKind = "action"
	KindFailure   EntryKind = "failure"
	KindTurn      EntryKind = "turn"
	KindThreat    EntryKind = "threat"
	KindRebellion EntryKind = "rebellion"
	KindAlert     EntryKind = "alert"
	KindEvent     EntryKind = "event"
	KindTerminal  EntryKind = "terminal"
)

// Cue is a stateless feedback signal for the audio/notification layer.
type Cue string

const (
	CueNone         Cue = ""
	CueClick        Cue = "click"
	CueSuccess      Cue = "success"
	CueError        Cue = "error"
	CueUnlock       Cue = "unlock"
	CueTurnStart    Cue = "turn_start"
	CueBattle       Cue = "battle"
	CueConstruction Cue = "construction"
	CueDataProcess  Cue = "data_process"
	CueAlert        Cue = "alert"
)

// LogEntry is one localized line of the system log.
type LogEntry struct {
	Seq   uint64    `json:"seq" db:"seq"`
	RunID string    `json:"runId" db:"run_id"`
	Turn  int       `json:"turn" db:"turn"`
	Kind  EntryKind `json:"kind" db:"kind"`
	Text  string    `json:"text" db:"text"`
	Cue   Cue       `json:"cue,omitempty" db:"cue"`
	At    time.Time `json:"at" db:"at"`
}

// Update types pushed to subscribers.
const (
	UpdateRender = "render"
	UpdateLog    = "log"
	UpdateEvent  = "event"
	UpdateDraft  = "draft"
	UpdateCue    = "cue"
)

// Update is one message on a session feed.
type Update struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EndReason says why a run stopped.
type EndReason string

const (
	EndCollapse  EndReason = "collapse"  // stability reached zero
	EndThreat    EndReason = "threat"    // threat reached the maximum
	EndAbandoned EndReason = "abandoned" // restarted mid-run
)

// RunRecord summarizes a finished run.
type RunRecord struct {
	ID         string    `json:"id" db:"id"`
	StartedAt  time.Time `json:"startedAt" db:"started_at"`
	EndedAt    time.Time `json:"endedAt" db:"ended_at"`
	Reason     EndReason `json:"reason" db:"reason"`
	Turns      int       `json:"turns" db:"turns"`
	Threat     float64   `json:"threat" db:"threat"`
	Credits    float64   `json:"credits" db:"credits"`
	Regions    int       `json:"regions" db:"regions"`
	Rebellious int       `json:"rebellious" db:"rebellious"`
	Plants     int       `json:"plants" db:"plants"`
	Skills     int       `json:"skills" db:"skills"`
	Protocols  int       `json:"protocols" db:"protocols"`
	Language   string    `json:"language" db:"language"`
}
