package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tryon-compositor/internal/mathutil"
)

const sample = `
outfits:
  polo:
    url: models/polo.json
  onesie:
    url: models/onesie.json
    hidden: ["/Eye/", "/Teeth/"]
hats:
  dadA:
    url: models/dadA.json
    offset: [0, 0.12, 0.01]
    scale: [1.1, 1.1, 1.1]
  painterA:
    url: models/painterA.json
  noHat: {}
backgrounds:
  bg1:
    url: backgrounds/bg1.jpeg
  noBg:
    mode: blur
`

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Anchor != DefaultAnchor {
		t.Errorf("anchor = %q", c.Anchor)
	}
	h, err := c.Hat("painterA")
	if err != nil {
		t.Fatal(err)
	}
	if h.Scale != (mathutil.Vec3{1, 1, 1}) {
		t.Errorf("default hat scale = %v", h.Scale)
	}
	h, _ = c.Hat("dadA")
	if h.Offset != (mathutil.Vec3{0, 0.12, 0.01}) {
		t.Errorf("offset = %v", h.Offset)
	}
	b, _ := c.Background("noBg")
	if b.Mode != "blur" {
		t.Errorf("noBg mode = %q", b.Mode)
	}
}

func TestRulesForOverridesPerList(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	onesie, _ := c.Outfit("onesie")
	r := c.RulesFor(onesie)
	if r.Classify("Footwear") != ClassVisible {
		t.Error("onesie does not hide footwear")
	}
	if r.Classify("Body") != ClassOccluder {
		t.Error("default occluders not inherited")
	}
	polo, _ := c.Outfit("polo")
	if c.RulesFor(polo).Classify("Footwear") != ClassHidden {
		t.Error("polo should hide footwear")
	}
}

func TestClassifyOrder(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		name string
		want Class
	}{
		{"Head", ClassOccluder},
		{"HeadTop", ClassVisible},
		{"Body_Eye", ClassOccluder}, // occluders win over hidden
		{"EyeLeft", ClassHidden},
		{"Shirt_Cloth", ClassVisible},
	}
	for _, tt := range tests {
		if got := r.Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestPatternSyntax(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"/cloth/i", "Shirt_CLOTH", true},
		{"/cloth/", "Shirt_CLOTH", false},
		{"Body", "Body", true},
		{"Body", "BodyUpper", false},
		{"/^Cap$/", "Cap", true},
	}
	for _, tt := range tests {
		p, err := ParsePattern(tt.pattern)
		if err != nil {
			t.Fatalf("ParsePattern(%q): %v", tt.pattern, err)
		}
		if got := p.Match(tt.name); got != tt.want {
			t.Errorf("%s matches %q = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
	if _, err := ParsePattern("/x/g"); err == nil {
		t.Error("unsupported flag accepted")
	}
	if _, err := ParsePattern("/(/"); err == nil {
		t.Error("bad expression accepted")
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		"outfits: {a: {}}",
		"backgrounds: {a: {mode: sepia}}",
		"backgrounds: {a: {mode: replace}}",
		"outfits: {a: {url: x, occluders: ['/x/q']}}",
	}
	for _, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q) succeeded", doc)
		}
	}
}

func TestUnknownIDs(t *testing.T) {
	c := New()
	if _, err := c.Outfit("nope"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("outfit: %v", err)
	}
	if _, err := c.Hat("nope"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("hat: %v", err)
	}
	if _, err := c.Background("nope"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("background: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Outfits) != 2 || len(c.Hats) != 3 || len(c.Backgrounds) != 2 {
		t.Errorf("counts = %d/%d/%d", len(c.Outfits), len(c.Hats), len(c.Backgrounds))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
