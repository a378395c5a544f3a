package scene

import (
	"image"
	"image/color"
	"sync"

	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/pipeline"
)

// ShadowGenerator is a light that casts shadows from registered meshes.
type ShadowGenerator interface {
	AddCaster(n *Node)
	RemoveCaster(n *Node)
}

// Renderer is what the attachment manager needs from the scene side.
type Renderer interface {
	AddObject(root *Node)
	RemoveObject(root *Node)
	ShadowGenerators() []ShadowGenerator
	// FindBone looks a bone up by name across every attached object.
	FindBone(name string) *Node
	// OccluderMaterial returns the shared depth-only material.
	OccluderMaterial() *Material
	// Dispose releases the GPU resources of an object graph.
	Dispose(root *Node)
	DisposeMaterial(m *Material)
}

// ShadowMap is an in-memory ShadowGenerator.
type ShadowMap struct {
	Name string

	mu      sync.Mutex
	casters map[uint32]*Node
}

func NewShadowMap(name string) *ShadowMap {
	return &ShadowMap{Name: name, casters: make(map[uint32]*Node)}
}

func (s *ShadowMap) AddCaster(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casters[n.ID] = n
}

func (s *ShadowMap) RemoveCaster(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.casters, n.ID)
}

// Has reports whether n is registered.
func (s *ShadowMap) Has(n *Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.casters[n.ID]
	return ok
}

// Len returns the number of registered casters.
func (s *ShadowMap) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.casters)
}

// Camera projects camera-relative meters onto the frame orthographically.
// Origin is where the metric origin lands, in normalized frame coordinates.
type Camera struct {
	PixelsPerMeter float64
	OriginX        float64
	OriginY        float64
}

// DefaultCamera centers the metric origin on the frame.
func DefaultCamera() Camera {
	return Camera{PixelsPerMeter: 400, OriginX: 0.5, OriginY: 0.5}
}

// World is an in-memory Renderer: it keeps the attached objects, the shadow
// generators and a record of what was disposed, and rasterizes the attached
// meshes into a pipeline scene layer.
type World struct {
	Camera Camera

	mu       sync.Mutex
	objects  []*Node
	shadows  []*ShadowMap
	occluder *Material

	disposed          map[uint32]bool
	disposedMaterials []*Material
}

// NewWorld creates a world with the given shadow generators.
func NewWorld(shadows ...*ShadowMap) *World {
	return &World{
		Camera:   DefaultCamera(),
		shadows:  shadows,
		occluder: &Material{Name: "occluder", DepthOnly: true},
		disposed: make(map[uint32]bool),
	}
}

func (w *World) AddObject(root *Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.objects {
		if o == root {
			return
		}
	}
	w.objects = append(w.objects, root)
}

func (w *World) RemoveObject(root *Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, o := range w.objects {
		if o == root {
			w.objects = append(w.objects[:i:i], w.objects[i+1:]...)
			return
		}
	}
}

func (w *World) ShadowGenerators() []ShadowGenerator {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ShadowGenerator, len(w.shadows))
	for i, s := range w.shadows {
		out[i] = s
	}
	return out
}

func (w *World) FindBone(name string) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.objects {
		if n := o.FindBone(name); n != nil {
			return n
		}
	}
	return nil
}

func (w *World) OccluderMaterial() *Material { return w.occluder }

func (w *World) Dispose(root *Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	root.Walk(func(n *Node) bool {
		w.disposed[n.ID] = true
		return true
	})
}

func (w *World) DisposeMaterial(m *Material) {
	if m == nil || m == w.occluder {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disposedMaterials = append(w.disposedMaterials, m)
}

// Objects returns the attached roots.
func (w *World) Objects() []*Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Node, len(w.objects))
	copy(out, w.objects)
	return out
}

// Attached reports whether root is currently in the scene.
func (w *World) Attached(root *Node) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.objects {
		if o == root {
			return true
		}
	}
	return false
}

// Disposed reports whether n was released.
func (w *World) Disposed(n *Node) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed[n.ID]
}

// DisposedMaterials returns every material released so far.
func (w *World) DisposedMaterials() []*Material {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Material, len(w.disposedMaterials))
	copy(out, w.disposedMaterials)
	return out
}

// Render rasterizes every visible mesh of the attached objects at w×h.
func (w *World) Render(width, height int) *pipeline.SceneLayer {
	w.mu.Lock()
	objects := make([]*Node, len(w.objects))
	copy(objects, w.objects)
	cam := w.Camera
	w.mu.Unlock()

	buf := newLayerBuffer(width, height)
	for _, root := range objects {
		for _, mesh := range root.Meshes() {
			if mesh.Geometry == nil || !mesh.Visible() {
				continue
			}
			drawMesh(buf, mesh, cam)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, buf.color)
	return &pipeline.SceneLayer{Color: img, Parts: buf.parts}
}

func drawMesh(buf *layerBuffer, mesh *Node, cam Camera) {
	world := mesh.World()
	n := len(mesh.Geometry.Verts)
	px := make([]float64, n)
	py := make([]float64, n)
	pz := make([]float64, n)
	for i, v := range mesh.Geometry.Verts {
		p := world.MulPoint(v)
		px[i], py[i], pz[i] = cam.project(p, buf.w, buf.h)
	}

	c := color.NRGBA{R: 160, G: 160, B: 170, A: 255}
	depthOnly := false
	if mesh.Material != nil {
		c = mesh.Material.Color
		depthOnly = mesh.Material.DepthOnly
	}
	for _, tri := range mesh.Geometry.Tris {
		fillTriangle(buf, px, py, pz, tri, c, depthOnly, mesh.ID)
	}
}

// project maps metric (Y up) to frame pixels (Y down).
func (c Camera) project(p mathutil.Vec3, w, h int) (x, y, z float64) {
	ppm := c.PixelsPerMeter
	if ppm <= 0 {
		ppm = 1
	}
	return c.OriginX*float64(w) + p[0]*ppm, c.OriginY*float64(h) - p[1]*ppm, p[2]
}
