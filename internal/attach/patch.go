package attach

import (
	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/scene"
)

// PatchParts splits the outfit's submeshes into the parts painted over the
// real body and the parts kept as they are. With includeHat and a hat
// attached, the hat and the outfit's cap meshes are patched too.
func (m *Manager) PatchParts(includeHat bool) (patch, keep []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patchPartsLocked(includeHat)
}

// UpdatePatchParts recomputes the classification and pushes it to the patch
// stage. Nothing is pushed when the keep set would be empty.
func (m *Manager) UpdatePatchParts(includeHat bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePatchPartsLocked(includeHat)
}

func (m *Manager) updatePatchPartsLocked(includeHat bool) bool {
	if m.patch == nil || m.outfitRoot == nil {
		return false
	}
	patch, keep := m.patchPartsLocked(includeHat)
	if len(keep) == 0 {
		return false
	}
	m.patch.SetParts(patch, keep)
	if includeHat && m.hatRoot != nil {
		m.hatPatched = true
	}
	return true
}

func (m *Manager) patchPartsLocked(includeHat bool) (patch, keep []uint32) {
	if m.outfitRoot == nil {
		return nil, nil
	}
	rules := catalog.DefaultPatchRules()
	if m.cat.Patch != nil {
		rules = *m.cat.Patch
	}
	withHat := includeHat && m.hatRoot != nil

	meshes := meshesExcluding(m.outfitRoot, m.hatRoot)
	inPatch := make(map[uint32]bool)
	for _, mesh := range meshes {
		if catalog.AnyMatch(rules.Cloth, mesh.Name) || (withHat && catalog.AnyMatch(rules.Headwear, mesh.Name)) {
			inPatch[mesh.ID] = true
			patch = append(patch, mesh.ID)
		}
	}
	if withHat {
		for _, mesh := range m.hatRoot.Meshes() {
			inPatch[mesh.ID] = true
			patch = append(patch, mesh.ID)
		}
	}
	for _, mesh := range meshes {
		if !inPatch[mesh.ID] && mesh.Visible() {
			keep = append(keep, mesh.ID)
		}
	}
	return patch, keep
}

// meshesExcluding lists the meshes under root, skipping the subtree at skip.
func meshesExcluding(root, skip *scene.Node) []*scene.Node {
	var out []*scene.Node
	root.Walk(func(n *scene.Node) bool {
		if skip != nil && n == skip {
			return false
		}
		if n.Kind == scene.KindMesh {
			out = append(out, n)
		}
		return true
	})
	return out
}
