// Package catalog holds the static game content: the evolution matrix (a skill
// forest with one root per branch) and the pool of drafted protocols.
// Content is declared in catalog.yaml and embedded at build time.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// EffectKind is the closed set of modifier kinds a skill or protocol can carry.
type EffectKind string

const (
	EffectNone            EffectKind = ""
	EffectIncomeCredit    EffectKind = "income_credit"
	EffectIncomeEnergy    EffectKind = "income_energy"
	EffectCostReduction   EffectKind = "cost_reduction"
	EffectThreatReduction EffectKind = "threat_reduction"
	EffectStabilityRegen  EffectKind = "stability_regen"
	EffectStabilityMax    EffectKind = "stability_max"
	EffectIntelMining     EffectKind = "intel_mining"
	EffectEventLuck       EffectKind = "event_luck"
	EffectUnlockAbility   EffectKind = "unlock_ability"
)

// threat_growth_reduction is how skills spell threat mitigation.
const effectThreatGrowthAlias = "threat_growth_reduction"

var knownEffects = map[EffectKind]bool{
	EffectIncomeCredit:    true,
	EffectIncomeEnergy:    true,
	EffectCostReduction:   true,
	EffectThreatReduction: true,
	EffectStabilityRegen:  true,
	EffectStabilityMax:    true,
	EffectIntelMining:     true,
	EffectEventLuck:       true,
	EffectUnlockAbility:   true,
}

// UnmarshalYAML rejects effect kinds outside the closed set.
func (k *EffectKind) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == effectThreatGrowthAlias {
		*k = EffectThreatReduction
		return nil
	}
	kind := EffectKind(raw)
	if !knownEffects[kind] {
		return fmt.Errorf("line %d: unknown effect kind %q", node.Line, raw)
	}
	*k = kind
	return nil
}

// Branch is one of the three skill trees.
type Branch string

const (
	BranchDominion     Branch = "dominion"
	BranchManipulation Branch = "manipulation"
	BranchAdaptation   Branch = "adaptation"
)

// Branches lists the branches in display order.
var Branches = []Branch{BranchDominion, BranchManipulation, BranchAdaptation}

// SkillType distinguishes passive modifiers from activatable abilities.
type SkillType string

const (
	SkillPassive SkillType = "passive"
	SkillActive  SkillType = "active"
)

// Rarity grades a protocol.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// Cost is a credits/energy price.
type Cost struct {
	Credits float64 `yaml:"credits" json:"credits"`
	Energy  float64 `yaml:"energy" json:"energy"`
}

// Text is a string localized by base language ("en", "zh").
type Text map[string]string

// In returns the text for lang, falling back to English.
func (t Text) In(lang string) string {
	if s, ok := t[baseLang(lang)]; ok {
		return s
	}
	return t["en"]
}

func baseLang(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

// Skill is a node of the evolution matrix.
type Skill struct {
	ID       string     `yaml:"id" json:"id"`
	Branch   Branch     `yaml:"branch" json:"branch"`
	Tier     int        `yaml:"tier" json:"tier"`
	ParentID string     `yaml:"parent" json:"parentId,omitempty"`
	Cost     Cost       `yaml:"cost" json:"cost"`
	Type     SkillType  `yaml:"type" json:"type"`
	Effect   EffectKind `yaml:"effect" json:"effect,omitempty"`
	Value    float64    `yaml:"value" json:"value,omitempty"`
	Cooldown int        `yaml:"cooldown" json:"cooldown,omitempty"`
	Name     Text       `yaml:"name" json:"-"`
	Desc     Text       `yaml:"desc" json:"-"`
}

// IsRoot reports whether the skill has no parent.
func (s Skill) IsRoot() bool { return s.ParentID == "" }

// Protocol is a draftable global modifier.
type Protocol struct {
	ID     string     `yaml:"id" json:"id"`
	Rarity Rarity     `yaml:"rarity" json:"rarity"`
	Effect EffectKind `yaml:"effect" json:"effect"`
	Value  float64    `yaml:"value" json:"value"`
	Name   Text       `yaml:"name" json:"-"`
	Desc   Text       `yaml:"desc" json:"-"`
}

// Catalog is the loaded, validated content set. It is immutable after Load.
type Catalog struct {
	Skills    []Skill    `yaml:"skills"`
	Protocols []Protocol `yaml:"protocols"`

	skillIndex    map[string]int
	protocolIndex map[string]int
}

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads and validates a catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.skillIndex = make(map[string]int, len(c.Skills))
	for i, s := range c.Skills {
		if s.ID == "" {
			return fmt.Errorf("skill at position %d has no id", i)
		}
		if _, dup := c.skillIndex[s.ID]; dup {
			return fmt.Errorf("duplicate skill id %q", s.ID)
		}
		c.skillIndex[s.ID] = i
	}
	c.protocolIndex = make(map[string]int, len(c.Protocols))
	for i, p := range c.Protocols {
		if p.ID == "" {
			return fmt.Errorf("protocol at position %d has no id", i)
		}
		if _, dup := c.protocolIndex[p.ID]; dup {
			return fmt.Errorf("duplicate protocol id %q", p.ID)
		}
		c.protocolIndex[p.ID] = i
	}
	return nil
}

// validate checks the forest shape: one root per branch, parents exist in
// the same branch at a lower tier, and active skills carry a cooldown.
func (c *Catalog) validate() error {
	var problems []string
	roots := make(map[Branch]int)
	for _, s := range c.Skills {
		switch s.Branch {
		case BranchDominion, BranchManipulation, BranchAdaptation:
		default:
			problems = append(problems, fmt.Sprintf("skill %s: unknown branch %q", s.ID, s.Branch))
		}
		switch s.Type {
		case SkillPassive:
		case SkillActive:
			if s.Cooldown <= 0 {
				problems = append(problems, fmt.Sprintf("skill %s: active skill needs a positive cooldown", s.ID))
			}
		default:
			problems = append(problems, fmt.Sprintf("skill %s: unknown type %q", s.ID, s.Type))
		}
		if s.Cost.Credits < 0 || s.Cost.Energy < 0 {
			problems = append(problems, fmt.Sprintf("skill %s: negative cost", s.ID))
		}
		if s.IsRoot() {
			roots[s.Branch]++
			continue
		}
		parent, ok := c.Skill(s.ParentID)
		if !ok {
			problems = append(problems, fmt.Sprintf("skill %s: unknown parent %q", s.ID, s.ParentID))
			continue
		}
		if parent.Branch != s.Branch {
			problems = append(problems, fmt.Sprintf("skill %s: parent %s is in branch %s", s.ID, parent.ID, parent.Branch))
		}
		if parent.Tier >= s.Tier {
			problems = append(problems, fmt.Sprintf("skill %s: parent tier %d not below %d", s.ID, parent.Tier, s.Tier))
		}
	}
	for _, b := range Branches {
		if roots[b] != 1 {
			problems = append(problems, fmt.Sprintf("branch %s: %d roots, want 1", b, roots[b]))
		}
	}
	for _, p := range c.Protocols {
		switch p.Rarity {
		case RarityCommon, RarityRare, RarityLegendary:
		default:
			problems = append(problems, fmt.Sprintf("protocol %s: unknown rarity %q", p.ID, p.Rarity))
		}
		if p.Effect == EffectNone {
			problems = append(problems, fmt.Sprintf("protocol %s: missing effect", p.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Skill looks up a skill by id.
func (c *Catalog) Skill(id string) (Skill, bool) {
	i, ok := c.skillIndex[id]
	if !ok {
		return Skill{}, false
	}
	return c.Skills[i], true
}

// Protocol looks up a protocol by id.
func (c *Catalog) Protocol(id string) (Protocol, bool) {
	i, ok := c.protocolIndex[id]
	if !ok {
		return Protocol{}, false
	}
	return c.Protocols[i], true
}

// Children returns the direct children of a skill, ordered by id.
func (c *Catalog) Children(id string) []Skill {
	var out []Skill
	for _, s := range c.Skills {
		if s.ParentID == id && id != "" {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Root returns the root skill of a branch.
func (c *Catalog) Root(b Branch) (Skill, bool) {
	for _, s := range c.Skills {
		if s.Branch == b && s.IsRoot() {
			return s, true
		}
	}
	return Skill{}, false
}

// ProtocolIDs returns every protocol id in declaration order.
func (c *Catalog) ProtocolIDs() []string {
	ids := make([]string, len(c.Protocols))
	for i, p := range c.Protocols {
		ids[i] = p.ID
	}
	return ids
}
