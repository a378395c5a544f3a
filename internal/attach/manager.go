// Package attach owns the outfit, hat and background currently shown.
//
// Every slot follows Empty → Loading → Attached. Loads run outside the
// manager lock so frames keep rendering the previous asset; a load is
// applied only if no newer request for the same slot was made meanwhile,
// otherwise its result is released and the call reports ErrSuperseded.
// The previous asset is released only after its replacement is attached,
// so a failed load leaves the slot as it was.
package attach

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"tryon-compositor/internal/assets"
	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/scene"
)

var (
	ErrUnknownAsset = errors.New("attach: unknown asset id")
	ErrSuperseded   = errors.New("attach: superseded by a newer request")
	ErrNoAnchor     = errors.New("attach: anchor bone not found")
	ErrClosed       = errors.New("attach: manager torn down")
)

// Images resolves background image URLs.
type Images interface {
	Image(ctx context.Context, url string) (*image.NRGBA, error)
}

// ModeSwitch is the pipeline's background treatment toggle.
type ModeSwitch interface {
	Mode() pipeline.Mode
	Set(mode pipeline.Mode) (bool, error)
}

// PartSink receives the body-part patch classification.
type PartSink interface {
	SetParts(patch, keep []uint32)
}

// Options wires a Manager to its collaborators. Catalog, Loader and
// Renderer are required.
type Options struct {
	Catalog    *catalog.Catalog
	Loader     assets.Loader
	Images     Images
	Renderer   scene.Renderer
	Background ModeSwitch
	Patch      PartSink
	Log        *zap.Logger
}

// Manager is the asset attachment manager.
type Manager struct {
	cat      *catalog.Catalog
	loader   assets.Loader
	images   Images
	renderer scene.Renderer
	bgSwitch ModeSwitch
	patch    PartSink
	log      *zap.Logger

	mu     sync.Mutex
	closed bool

	outfit     slot
	outfitRoot *scene.Node
	casters    []*scene.Node

	hat        slot
	hatRoot    *scene.Node
	hatEntry   catalog.Hat
	hatCasters []*scene.Node
	hatPatched bool

	bg      slot
	bgImage *image.NRGBA
}

// New creates a manager with every slot empty.
func New(opts Options) (*Manager, error) {
	if opts.Catalog == nil || opts.Loader == nil || opts.Renderer == nil {
		return nil, errors.New("attach: catalog, loader and renderer are required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cat:      opts.Catalog,
		loader:   opts.Loader,
		images:   opts.Images,
		renderer: opts.Renderer,
		bgSwitch: opts.Background,
		patch:    opts.Patch,
		log:      log,
	}, nil
}

// View is the frame loop's access to slot state inside Frame.
type View struct {
	m *Manager
}

// Frame runs fn while holding the manager lock: no swap is applied while a
// frame is being composed.
func (m *Manager) Frame(fn func(v View) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(View{m: m})
}

// Background returns the attached background image, or nil.
func (v View) Background() *image.NRGBA { return v.m.bgImage }

// Outfit returns the attached outfit graph, or nil.
func (v View) Outfit() *scene.Node { return v.m.outfitRoot }

// EnsurePatchParts pushes the patch classification if a hat was attached
// but has not been included yet.
func (v View) EnsurePatchParts() bool {
	if v.m.hatRoot == nil || v.m.hatPatched {
		return false
	}
	return v.m.updatePatchPartsLocked(true)
}

// State returns the lifecycle state of one slot.
func (m *Manager) State(s Slot) State {
	snap := m.Snapshot()
	switch s {
	case SlotOutfit:
		return snap.Outfit.State
	case SlotHat:
		return snap.Hat.State
	}
	return snap.Background.State
}

// Snapshot returns the state of every slot.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Outfit:     m.outfit.info(m.outfitRoot != nil),
		Hat:        m.hat.info(m.hatRoot != nil),
		Background: m.bg.info(m.bg.id != ""),
	}
	if m.bgSwitch != nil {
		snap.Mode = string(m.bgSwitch.Mode())
	}
	return snap
}

// Clear empties one slot, releasing its asset and abandoning any in-flight load.
// Clearing the outfit also releases the hat, which hangs off the outfit's bone.
func (m *Manager) Clear(s Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.clearLocked(s)
	return nil
}

// Teardown releases every asset. The manager refuses further requests.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.clearLocked(SlotHat)
	m.clearLocked(SlotOutfit)
	m.clearLocked(SlotBackground)
	m.closed = true
	m.log.Info("attachments torn down")
}

func (m *Manager) clearLocked(s Slot) {
	switch s {
	case SlotOutfit:
		m.clearLocked(SlotHat)
		gen := m.outfit.gen + 1
		if m.outfitRoot != nil {
			old := m.outfitRoot
			m.detachOutfitLocked(old)
			m.renderer.Dispose(old)
			m.outfitRoot = nil
			m.casters = nil
		}
		m.outfit = slot{gen: gen}
		if m.patch != nil {
			m.patch.SetParts(nil, nil)
		}
	case SlotHat:
		gen := m.hat.gen + 1
		m.releaseHatLocked()
		m.hat = slot{gen: gen}
		m.updatePatchPartsLocked(false)
	case SlotBackground:
		m.bg = slot{gen: m.bg.gen + 1}
		m.bgImage = nil
	}
}

func (m *Manager) begin(s *slot, id string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return s.begin(id), nil
}

// finish checks, under the lock, whether a load may be applied. The caller
// must hold m.mu.
func (m *Manager) finishLocked(s *slot, gen uint64, what string) error {
	if m.closed {
		return ErrClosed
	}
	if !s.current(gen) {
		m.log.Info("load superseded", zap.String("slot", what), zap.Uint64("gen", gen), zap.Uint64("latest", s.gen))
		return ErrSuperseded
	}
	return nil
}

func unknown(err error) error {
	return fmt.Errorf("%w: %w", ErrUnknownAsset, err)
}
