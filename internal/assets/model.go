package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"

	"go.uber.org/zap"

	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/scene"
)

// Loader turns a model URL into a fresh object graph. Every call returns new
// nodes: the caller owns the result exclusively.
type Loader interface {
	Load(ctx context.Context, url string) (*scene.Node, error)
}

// ModelFile is the on-disk model format: a node tree plus a material table
// the nodes refer to by name.
type ModelFile struct {
	Name      string                  `json:"name"`
	Materials map[string]MaterialSpec `json:"materials"`
	Root      NodeSpec                `json:"root"`
}

type MaterialSpec struct {
	Color [4]uint8 `json:"color"`
}

type NodeSpec struct {
	Name     string       `json:"name"`
	Kind     string       `json:"kind"`
	Position *[3]float64  `json:"position,omitempty"`
	Rotation *[3]float64  `json:"rotation,omitempty"`
	Scale    *[3]float64  `json:"scale,omitempty"`
	Material string       `json:"material,omitempty"`
	Verts    [][3]float64 `json:"verts,omitempty"`
	Tris     [][3]int     `json:"tris,omitempty"`
	Children []NodeSpec   `json:"children,omitempty"`
}

// ModelLoader reads ModelFile JSON from disk or over HTTP.
type ModelLoader struct {
	Root   string
	Client *http.Client
	log    *zap.Logger
}

func NewModelLoader(root string, log *zap.Logger) *ModelLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelLoader{Root: root, log: log}
}

func (l *ModelLoader) Load(ctx context.Context, url string) (*scene.Node, error) {
	raw, err := fetch(ctx, l.Client, l.Root, url)
	if err != nil {
		return nil, fmt.Errorf("assets: read %s: %w", url, err)
	}
	var mf ModelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("assets: decode %s: %w", url, err)
	}
	root, err := Build(&mf)
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", url, err)
	}
	l.log.Debug("model loaded", zap.String("url", url), zap.Int("meshes", len(root.Meshes())))
	return root, nil
}

// Build instantiates a model. Materials are created once per call and
// shared by every node naming them.
func Build(mf *ModelFile) (*scene.Node, error) {
	mats := make(map[string]*scene.Material, len(mf.Materials))
	for name, spec := range mf.Materials {
		c := spec.Color
		mats[name] = scene.NewMaterial(name, color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
	}
	root, err := buildNode(&mf.Root, mats)
	if err != nil {
		return nil, err
	}
	if root.Name == "" {
		root.Name = mf.Name
	}
	return root, nil
}

func buildNode(spec *NodeSpec, mats map[string]*scene.Material) (*scene.Node, error) {
	n := scene.NewNode(spec.Name, scene.ParseKind(spec.Kind))
	if spec.Position != nil {
		n.Position = mathutil.Vec3(*spec.Position)
	}
	if spec.Rotation != nil {
		n.Rotation = mathutil.Vec3(*spec.Rotation)
	}
	if spec.Scale != nil {
		n.Scale = mathutil.Vec3(*spec.Scale)
	}
	if len(spec.Verts) > 0 {
		g := &scene.Geometry{Verts: make([]mathutil.Vec3, len(spec.Verts)), Tris: spec.Tris}
		for i, v := range spec.Verts {
			g.Verts[i] = mathutil.Vec3(v)
		}
		for _, tri := range spec.Tris {
			for _, vi := range tri {
				if vi < 0 || vi >= len(g.Verts) {
					return nil, fmt.Errorf("node %q: triangle index %d out of range", spec.Name, vi)
				}
			}
		}
		n.Geometry = g
	}
	if spec.Material != "" {
		m, ok := mats[spec.Material]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown material %q", spec.Name, spec.Material)
		}
		n.SetMaterial(m)
	}
	for i := range spec.Children {
		c, err := buildNode(&spec.Children[i], mats)
		if err != nil {
			return nil, err
		}
		n.AddChild(c)
	}
	return n, nil
}
