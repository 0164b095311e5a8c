package catalog

import (
	"strings"
	"testing"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := Default()

	if got := len(c.Skills); got != 28 {
		t.Errorf("skills = %d, want 28", got)
	}
	if got := len(c.Protocols); got != 8 {
		t.Errorf("protocols = %d, want 8", got)
	}
	for _, b := range Branches {
		root, ok := c.Root(b)
		if !ok {
			t.Fatalf("branch %s has no root", b)
		}
		if root.Tier != 1 {
			t.Errorf("root %s tier = %d, want 1", root.ID, root.Tier)
		}
	}
}

func TestThreatGrowthAliasDecodes(t *testing.T) {
	c := Default()
	s, ok := c.Skill("man_root")
	if !ok {
		t.Fatal("man_root missing")
	}
	if s.Effect != EffectThreatReduction {
		t.Errorf("man_root effect = %q, want %q", s.Effect, EffectThreatReduction)
	}
}

func TestActiveSkillsCarryCooldown(t *testing.T) {
	c := Default()
	want := map[string]int{"dom_t3_a": 5, "man_t3_a": 4, "ada_t3_a": 3}
	for id, cd := range want {
		s, ok := c.Skill(id)
		if !ok {
			t.Fatalf("%s missing", id)
		}
		if s.Type != SkillActive {
			t.Errorf("%s type = %q, want active", id, s.Type)
		}
		if s.Cooldown != cd {
			t.Errorf("%s cooldown = %d, want %d", id, s.Cooldown, cd)
		}
	}
}

func TestChildren(t *testing.T) {
	c := Default()
	kids := c.Children("ada_t2_a")
	var ids []string
	for _, k := range kids {
		ids = append(ids, k.ID)
	}
	got := strings.Join(ids, ",")
	if got != "ada_nuke,ada_t3_a,ada_t3_b" {
		t.Errorf("children = %s, want ada_nuke,ada_t3_a,ada_t3_b", got)
	}
}

func TestTextFallsBackToEnglish(t *testing.T) {
	c := Default()
	p, _ := c.Protocol("eco_1")
	if got := p.Name.In("zh-CN"); got != "量子银行" {
		t.Errorf("zh name = %q", got)
	}
	if got := p.Name.In("fr"); got != "Quantum Banking" {
		t.Errorf("fr name = %q, want English fallback", got)
	}
}

func TestParseRejectsUnknownEffect(t *testing.T) {
	doc := `
skills:
  - {id: a, branch: dominion, tier: 1, type: passive, effect: teleport, value: 1}
protocols: []
`
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "unknown effect kind") {
		t.Fatalf("err = %v, want unknown effect kind", err)
	}
}

func TestParseRejectsBrokenForest(t *testing.T) {
	doc := `
skills:
  - {id: d, branch: dominion, tier: 1, type: passive}
  - {id: m, branch: manipulation, tier: 1, type: passive}
  - {id: a, branch: adaptation, tier: 1, type: passive}
  - {id: a2, branch: adaptation, tier: 1, type: passive}
  - {id: orphan, branch: dominion, tier: 2, parent: ghost, type: passive}
  - {id: act, branch: dominion, tier: 2, parent: d, type: active}
protocols: []
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"branch adaptation: 2 roots", "unknown parent", "positive cooldown"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, missing %q", err, want)
		}
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	doc := `
skills: []
protocols:
  - {id: p, rarity: common, effect: income_credit, value: 1}
  - {id: p, rarity: rare, effect: income_energy, value: 1}
`
	if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "duplicate protocol") {
		t.Fatalf("err = %v, want duplicate protocol", err)
	}
}
