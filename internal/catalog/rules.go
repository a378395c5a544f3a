package catalog

// Class is the treatment a submesh receives when an outfit is attached.
type Class uint8

const (
	ClassVisible Class = iota
	ClassOccluder
	ClassHidden
)

func (c Class) String() string {
	switch c {
	case ClassOccluder:
		return "occluder"
	case ClassHidden:
		return "hidden"
	}
	return "visible"
}

// Rules are the outfit classification lists. Occluders are checked before
// hidden; a name matching neither is visible.
type Rules struct {
	Occluders []Pattern `yaml:"occluders"`
	Hidden    []Pattern `yaml:"hidden"`
}

// Classify returns the class of a submesh name.
func (r Rules) Classify(name string) Class {
	if AnyMatch(r.Occluders, name) {
		return ClassOccluder
	}
	if AnyMatch(r.Hidden, name) {
		return ClassHidden
	}
	return ClassVisible
}

// DefaultRules is the stock avatar rig: head, body and bottom act as
// occluders for the real person, eyes and teeth and accessories are hidden.
func DefaultRules() Rules {
	return Rules{
		Occluders: mustPatterns("/Head$/", "/Body/", "/Bottom/"),
		Hidden:    mustPatterns("/Eye/", "/Teeth/", "/Footwear/", "/Glasses/"),
	}
}

// PatchRules pick the outfit submeshes that are painted over the real body.
// Headwear applies only while a hat is attached.
type PatchRules struct {
	Cloth    []Pattern `yaml:"cloth"`
	Headwear []Pattern `yaml:"headwear"`
}

// DefaultPatchRules matches cloth meshes and, with a hat on, caps.
func DefaultPatchRules() PatchRules {
	return PatchRules{
		Cloth:    mustPatterns("/cloth/i"),
		Headwear: mustPatterns("/cap/i"),
	}
}
