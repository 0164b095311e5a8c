// Package engine holds the turn rules as pure reducers over State, and the
// Session that owns the live game and is the only writer.
package engine

import (
	"encoding/json"
	"math"
	"sort"
)

// Starting values for a fresh run.
const (
	InitialCredits   = 2000
	InitialEnergy    = 500
	InitialStability = 100
	InitialThreat    = 10
	MaxStability     = 100
	MaxThreat        = 100
)

// Resources are the spendable stocks. Credits and energy are non-negative;
// stability is in [0, MaxStability].
type Resources struct {
	Credits   float64 `json:"credits"`
	Energy    float64 `json:"energy"`
	Stability float64 `json:"stability"`
}

// Clamp pins every component to its valid range.
func (r Resources) Clamp() Resources {
	return Resources{
		Credits:   math.Max(0, r.Credits),
		Energy:    math.Max(0, r.Energy),
		Stability: clamp(r.Stability, 0, MaxStability),
	}
}

// CanAfford reports whether both components of c are covered.
func (r Resources) CanAfford(c Cost) bool {
	return r.Credits >= c.Credits && r.Energy >= c.Energy
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Set is an unordered set of ids. It marshals as a sorted array.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s Set) Add(id string) { s[id] = struct{}{} }

// Remove deletes id.
func (s Set) Remove(id string) { delete(s, id) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s Set) SubsetOf(other Set) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array into the set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}

// Cooldowns maps an ability id to its remaining turns. Absent means ready.
type Cooldowns map[string]int

// Clone returns an independent copy.
func (c Cooldowns) Clone() Cooldowns {
	out := make(Cooldowns, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// State is the aggregate root of a run. Reducers never mutate their input;
// they work on a Clone.
type State struct {
	Turn       int       `json:"turn"`
	Resources  Resources `json:"resources"`
	Threat     float64   `json:"threat"`
	Controlled Set       `json:"controlledRegions"`
	Rebellious Set       `json:"rebelliousRegions"`
	Nuclear    Set       `json:"nuclearPlants"`
	Protocols  []string  `json:"activeProtocols"`
	Skills     Set       `json:"unlockedSkills"`
	Cooldowns  Cooldowns `json:"abilityCooldowns"`
	HasActed   bool      `json:"hasActedThisTurn"`
	GameOver   bool      `json:"gameOver"`
}

// NewState returns the initial state of a run.
func NewState() State {
	return State{
		Turn: 1,
		Resources: Resources{
			Credits:   InitialCredits,
			Energy:    InitialEnergy,
			Stability: InitialStability,
		},
		Threat:     InitialThreat,
		Controlled: NewSet(),
		Rebellious: NewSet(),
		Nuclear:    NewSet(),
		Protocols:  []string{},
		Skills:     NewSet(),
		Cooldowns:  Cooldowns{},
	}
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := s
	out.Controlled = s.Controlled.Clone()
	out.Rebellious = s.Rebellious.Clone()
	out.Nuclear = s.Nuclear.Clone()
	out.Skills = s.Skills.Clone()
	out.Cooldowns = s.Cooldowns.Clone()
	out.Protocols = append([]string(nil), s.Protocols...)
	if out.Protocols == nil {
		out.Protocols = []string{}
	}
	return out
}

// ActiveRegions returns the controlled regions that are not in rebellion.
func (s State) ActiveRegions() int {
	n := 0
	for code := range s.Controlled {
		if !s.Rebellious.Has(code) {
			n++
		}
	}
	return n
}
