package attach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/scene"
)

// SetHat loads the catalog hat id and parents it to the outfit's anchor
// bone. Without an anchor the request is ignored and ErrNoAnchor returned.
// The catalog's "no hat" entry (empty URL) clears the slot.
func (m *Manager) SetHat(ctx context.Context, id string) error {
	h, err := m.cat.Hat(id)
	if err != nil {
		m.log.Warn("unknown hat", zap.String("id", id))
		return unknown(err)
	}
	if h.URL == "" {
		return m.Clear(SlotHat)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.renderer.FindBone(m.cat.Anchor) == nil {
		m.mu.Unlock()
		m.log.Warn("hat ignored: anchor bone not found", zap.String("hat", id), zap.String("anchor", m.cat.Anchor))
		return ErrNoAnchor
	}
	gen := m.hat.begin(id)
	m.mu.Unlock()

	m.log.Info("loading hat", zap.String("id", id), zap.String("url", h.URL), zap.Uint64("gen", gen))
	root, loadErr := m.loader.Load(ctx, h.URL)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.finishLocked(&m.hat, gen, "hat"); err != nil {
		if root != nil {
			m.renderer.Dispose(root)
		}
		return err
	}
	m.hat.settle()
	if loadErr != nil {
		m.log.Warn("hat load failed, keeping previous", zap.String("url", h.URL), zap.Error(loadErr))
		return fmt.Errorf("attach: load hat %s: %w", h.URL, loadErr)
	}

	// The outfit may have changed while the hat was loading.
	casters, err := m.anchorHatLocked(root, h)
	if err != nil {
		m.renderer.Dispose(root)
		m.log.Warn("hat ignored: anchor bone not found", zap.String("hat", id), zap.String("anchor", m.cat.Anchor))
		return err
	}

	old, oldCasters := m.hatRoot, m.hatCasters
	m.hatRoot, m.hatEntry, m.hatCasters = root, h, casters
	m.hat.id, m.hat.url, m.hat.instance = id, h.URL, uuid.New().String()
	if old != nil {
		m.releaseNodeLocked(old, oldCasters)
	}

	m.hatPatched = false
	m.updatePatchPartsLocked(true)
	m.log.Info("hat attached", zap.String("id", id), zap.String("instance", m.hat.instance))
	return nil
}

// anchorHatLocked parents root to the anchor bone with the catalog offset
// and registers its meshes as shadow casters.
func (m *Manager) anchorHatLocked(root *scene.Node, h catalog.Hat) ([]*scene.Node, error) {
	bone := m.renderer.FindBone(m.cat.Anchor)
	if bone == nil {
		return nil, ErrNoAnchor
	}
	root.Position = h.Offset
	root.Scale = h.Scale
	bone.AddChild(root)

	var casters []*scene.Node
	for _, mesh := range root.Meshes() {
		if !mesh.Enabled {
			continue
		}
		mesh.ReceiveShadows = true
		casters = append(casters, mesh)
	}
	for _, g := range m.renderer.ShadowGenerators() {
		for _, c := range casters {
			g.AddCaster(c)
		}
	}
	return casters, nil
}

func (m *Manager) releaseHatLocked() {
	if m.hatRoot == nil {
		return
	}
	m.releaseNodeLocked(m.hatRoot, m.hatCasters)
	m.hatRoot, m.hatCasters = nil, nil
	m.hatPatched = false
}

func (m *Manager) releaseNodeLocked(root *scene.Node, casters []*scene.Node) {
	for _, g := range m.renderer.ShadowGenerators() {
		for _, c := range casters {
			g.RemoveCaster(c)
		}
	}
	root.Detach()
	m.renderer.Dispose(root)
}

// ClearHat removes the hat, if any.
func (m *Manager) ClearHat() error {
	return m.Clear(SlotHat)
}
