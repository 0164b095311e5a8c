package engine

import "errors"

// Rejections. Every reducer returns one of these (possibly wrapped) instead
// of a next state when an action is not allowed.
var (
	ErrGameOver              = errors.New("game over")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrInvalidTarget         = errors.New("invalid target")
	ErrNoSelection           = errors.New("no region selected")
	ErrUnknownRegion         = errors.New("unknown region")
	ErrUnknownSkill          = errors.New("unknown skill")
	ErrAlreadyUnlocked       = errors.New("skill already unlocked")
	ErrPrerequisite          = errors.New("prerequisite not met")
	ErrNotActive             = errors.New("skill is not an active ability")
	ErrCoolingDown           = errors.New("ability cooling down")
	ErrRegionTooSmall        = errors.New("region too small")
	ErrTurnBlocked           = errors.New("turn advance blocked by pending interlude")
	ErrNoPendingEvent        = errors.New("no pending event")
	ErrNoDraft               = errors.New("no protocol draft pending")
	ErrNotDrafted            = errors.New("protocol not in current draft")
)

// RejectKind groups rejections by how the player is told about them.
type RejectKind string

const (
	// RejectNone means the error is nil.
	RejectNone RejectKind = ""
	// RejectInsufficient is a paying action the player cannot afford:
	// logged with a failure cue.
	RejectInsufficient RejectKind = "insufficient"
	// RejectInvalid is a guarded no-op on a target in the wrong state.
	RejectInvalid RejectKind = "invalid"
	// RejectTerminal means only restart is accepted.
	RejectTerminal RejectKind = "terminal"
)

// Classify maps a rejection to its kind.
func Classify(err error) RejectKind {
	switch {
	case err == nil:
		return RejectNone
	case errors.Is(err, ErrGameOver):
		return RejectTerminal
	case errors.Is(err, ErrInsufficientResources):
		return RejectInsufficient
	default:
		return RejectInvalid
	}
}
