package attach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/scene"
)

// SetOutfit loads the catalog outfit id and swaps it in.
func (m *Manager) SetOutfit(ctx context.Context, id string) error {
	o, err := m.cat.Outfit(id)
	if err != nil {
		m.log.Warn("unknown outfit", zap.String("id", id))
		return unknown(err)
	}
	return m.setOutfit(ctx, id, o.URL, m.cat.RulesFor(o))
}

// SetOutfitURL loads a model that is not in the catalog, classifying its
// submeshes with rules.
func (m *Manager) SetOutfitURL(ctx context.Context, url string, rules catalog.Rules) error {
	return m.setOutfit(ctx, "", url, rules)
}

func (m *Manager) setOutfit(ctx context.Context, id, url string, rules catalog.Rules) error {
	gen, err := m.begin(&m.outfit, label(id, url))
	if err != nil {
		return err
	}
	m.log.Info("loading outfit", zap.String("id", id), zap.String("url", url), zap.Uint64("gen", gen))

	root, loadErr := m.loader.Load(ctx, url)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.finishLocked(&m.outfit, gen, "outfit"); err != nil {
		if root != nil {
			m.renderer.Dispose(root)
		}
		return err
	}
	m.outfit.settle()
	if loadErr != nil {
		m.log.Warn("outfit load failed, keeping previous", zap.String("url", url), zap.Error(loadErr))
		return fmt.Errorf("attach: load outfit %s: %w", url, loadErr)
	}

	casters := m.classifyLocked(root, rules)

	old := m.outfitRoot
	// The hat hangs off the old outfit's anchor; carry it over.
	if m.hatRoot != nil {
		m.hatRoot.Detach()
	}
	if m.patch != nil {
		m.patch.SetParts(nil, nil)
	}
	if old != nil {
		m.detachOutfitLocked(old)
	}

	m.renderer.AddObject(root)
	for _, g := range m.renderer.ShadowGenerators() {
		for _, c := range casters {
			g.AddCaster(c)
		}
	}
	m.outfitRoot, m.casters = root, casters
	m.outfit.id, m.outfit.url, m.outfit.instance = id, url, uuid.New().String()

	if old != nil {
		m.renderer.Dispose(old)
	}

	if m.hatRoot != nil {
		if _, err := m.anchorHatLocked(m.hatRoot, m.hatEntry); err != nil {
			m.log.Warn("hat released: new outfit has no anchor", zap.String("anchor", m.cat.Anchor))
			gen := m.hat.gen + 1
			m.releaseHatLocked()
			m.hat = slot{gen: gen}
		}
	}
	m.hatPatched = false
	m.updatePatchPartsLocked(m.hatRoot != nil)

	m.log.Info("outfit attached",
		zap.String("id", id),
		zap.String("instance", m.outfit.instance),
		zap.Int("casters", len(casters)))
	return nil
}

// classifyLocked applies rules to every submesh of root and returns the
// meshes that stay visible: those receive and cast shadows.
func (m *Manager) classifyLocked(root *scene.Node, rules catalog.Rules) []*scene.Node {
	occ := m.renderer.OccluderMaterial()
	var visible []*scene.Node
	for _, mesh := range root.Meshes() {
		switch rules.Classify(mesh.Name) {
		case catalog.ClassOccluder:
			if released := mesh.SetMaterial(occ); released != nil {
				m.renderer.DisposeMaterial(released)
			}
		case catalog.ClassHidden:
			mesh.Enabled = false
		default:
			mesh.ReceiveShadows = true
			visible = append(visible, mesh)
		}
	}
	return visible
}

func (m *Manager) detachOutfitLocked(root *scene.Node) {
	for _, g := range m.renderer.ShadowGenerators() {
		for _, c := range m.casters {
			g.RemoveCaster(c)
		}
	}
	m.renderer.RemoveObject(root)
}

func label(id, url string) string {
	if id != "" {
		return id
	}
	return url
}
