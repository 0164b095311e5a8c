package engine

// Turn schedule: what happens between turns.
const (
	DraftInterval    = 5   // every 5th turn offers a protocol draft
	DraftSize        = 3   // protocols per draft
	BaseEventChance  = 0.3 // narrative event probability at zero threat
	EventThreatScale = 200 // threat points per +1.0 event probability
)

// Interlude is what the player must deal with before the next advance.
type Interlude string

const (
	InterludeNone  Interlude = ""
	InterludeDraft Interlude = "draft"
	InterludeEvent Interlude = "event"
)

// IsDraftTurn reports whether reaching turn opens a protocol draft.
func IsDraftTurn(turn int) bool {
	return turn%DraftInterval == 0
}

// EventChance is the narrative event probability after a turn ending at threat.
func EventChance(threat float64) float64 {
	return BaseEventChance + threat/EventThreatScale
}
