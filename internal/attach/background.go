package attach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tryon-compositor/internal/pipeline"
)

// SetBackground shows the catalog background id. An image entry switches
// the pipeline to replace mode once loaded; the blur entry switches to blur
// mode and keeps the last image for a later switch back.
func (m *Manager) SetBackground(ctx context.Context, id string) error {
	b, err := m.cat.Background(id)
	if err != nil {
		m.log.Warn("unknown background", zap.String("id", id))
		return unknown(err)
	}

	if b.Mode == string(pipeline.ModeBlur) {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		m.bg = slot{gen: m.bg.gen + 1, id: id, instance: uuid.New().String()}
		m.mu.Unlock()
		_, err := m.ToggleBgMode(pipeline.ModeBlur)
		return err
	}

	if m.images == nil {
		return errors.New("attach: no image loader configured")
	}
	gen, err := m.begin(&m.bg, id)
	if err != nil {
		return err
	}
	img, loadErr := m.images.Image(ctx, b.URL)

	m.mu.Lock()
	if err := m.finishLocked(&m.bg, gen, "background"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.bg.settle()
	if loadErr != nil {
		m.mu.Unlock()
		m.log.Warn("background load failed, keeping previous", zap.String("url", b.URL), zap.Error(loadErr))
		return fmt.Errorf("attach: load background %s: %w", b.URL, loadErr)
	}
	m.bgImage = img
	m.bg.id, m.bg.url, m.bg.instance = id, b.URL, uuid.New().String()
	m.mu.Unlock()

	m.log.Info("background attached", zap.String("id", id))
	_, err = m.ToggleBgMode(pipeline.ModeReplace)
	return err
}

// ToggleBgMode switches the pipeline's background treatment. It reports
// false when mode was already active.
func (m *Manager) ToggleBgMode(mode pipeline.Mode) (bool, error) {
	if m.bgSwitch == nil {
		return false, errors.New("attach: no background switch configured")
	}
	changed, err := m.bgSwitch.Set(mode)
	if err != nil {
		return false, err
	}
	if changed {
		m.log.Info("background mode changed", zap.String("mode", string(mode)))
	}
	return changed, nil
}

// Mode returns the active background treatment.
func (m *Manager) Mode() pipeline.Mode {
	if m.bgSwitch == nil {
		return ""
	}
	return m.bgSwitch.Mode()
}
