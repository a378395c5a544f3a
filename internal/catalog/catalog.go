// Package catalog loads the asset catalog: outfits with their submesh
// classification rules, hats with their anchor offsets and backgrounds.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tryon-compositor/internal/mathutil"
)

// ErrUnknownID is returned for ids missing from the catalog.
var ErrUnknownID = errors.New("catalog: unknown id")

// Outfit is a garment model. Nil rule lists fall back to the catalog defaults.
type Outfit struct {
	URL       string    `yaml:"url"`
	Occluders []Pattern `yaml:"occluders"`
	Hidden    []Pattern `yaml:"hidden"`
}

// Hat is a headwear model attached to the anchor bone. An empty URL is the
// "no hat" entry.
type Hat struct {
	URL    string        `yaml:"url"`
	Offset mathutil.Vec3 `yaml:"offset"`
	Scale  mathutil.Vec3 `yaml:"scale"`
}

// Background is a replacement image, or with Mode "blur" the entry that
// switches the pipeline to blurring the real background.
type Background struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Anchor      string                `yaml:"anchor"`
	Rules       *Rules                `yaml:"rules"`
	Patch       *PatchRules           `yaml:"patch"`
	Outfits     map[string]Outfit     `yaml:"outfits"`
	Hats        map[string]Hat        `yaml:"hats"`
	Backgrounds map[string]Background `yaml:"backgrounds"`
}

// DefaultAnchor is the bone hats are parented to.
const DefaultAnchor = "Head"

// Load reads and parses a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML and fills defaults.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New returns an empty catalog with defaults filled.
func New() *Catalog {
	c := &Catalog{}
	c.normalize()
	return c
}

func (c *Catalog) normalize() {
	if c.Anchor == "" {
		c.Anchor = DefaultAnchor
	}
	if c.Rules == nil {
		r := DefaultRules()
		c.Rules = &r
	}
	if c.Patch == nil {
		p := DefaultPatchRules()
		c.Patch = &p
	}
	if c.Outfits == nil {
		c.Outfits = make(map[string]Outfit)
	}
	if c.Hats == nil {
		c.Hats = make(map[string]Hat)
	}
	for id, h := range c.Hats {
		if h.Scale == (mathutil.Vec3{}) {
			h.Scale = mathutil.Vec3{1, 1, 1}
			c.Hats[id] = h
		}
	}
	if c.Backgrounds == nil {
		c.Backgrounds = make(map[string]Background)
	}
}

// Validate checks that every entry can be acted on.
func (c *Catalog) Validate() error {
	for id, o := range c.Outfits {
		if o.URL == "" {
			return fmt.Errorf("outfit %q: url is required", id)
		}
	}
	for id, b := range c.Backgrounds {
		switch b.Mode {
		case "", "replace":
			if b.URL == "" {
				return fmt.Errorf("background %q: url is required unless mode is blur", id)
			}
		case "blur":
		default:
			return fmt.Errorf("background %q: unknown mode %q", id, b.Mode)
		}
	}
	return nil
}

// Outfit looks up an outfit by id.
func (c *Catalog) Outfit(id string) (Outfit, error) {
	o, ok := c.Outfits[id]
	if !ok {
		return Outfit{}, fmt.Errorf("%w: outfit %q", ErrUnknownID, id)
	}
	return o, nil
}

// Hat looks up a hat by id.
func (c *Catalog) Hat(id string) (Hat, error) {
	h, ok := c.Hats[id]
	if !ok {
		return Hat{}, fmt.Errorf("%w: hat %q", ErrUnknownID, id)
	}
	return h, nil
}

// Background looks up a background by id.
func (c *Catalog) Background(id string) (Background, error) {
	b, ok := c.Backgrounds[id]
	if !ok {
		return Background{}, fmt.Errorf("%w: background %q", ErrUnknownID, id)
	}
	return b, nil
}

// RulesFor returns the classification rules of o, taking each list from the
// catalog defaults when the outfit leaves it unset.
func (c *Catalog) RulesFor(o Outfit) Rules {
	r := *c.Rules
	if o.Occluders != nil {
		r.Occluders = o.Occluders
	}
	if o.Hidden != nil {
		r.Hidden = o.Hidden
	}
	return r
}
