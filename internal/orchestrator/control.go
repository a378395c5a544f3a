package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/pipeline"
)

// SetOutfit swaps the outfit to a catalog entry.
func (o *Orchestrator) SetOutfit(ctx context.Context, id string) error {
	return o.att.SetOutfit(ctx, id)
}

// SetHat swaps the hat to a catalog entry.
func (o *Orchestrator) SetHat(ctx context.Context, id string) error {
	return o.att.SetHat(ctx, id)
}

// SetBackground swaps the background and reports a resulting mode change.
func (o *Orchestrator) SetBackground(ctx context.Context, id string) error {
	o.modeMu.Lock()
	defer o.modeMu.Unlock()
	before := o.att.Mode()
	err := o.att.SetBackground(ctx, id)
	o.modeChanged(before)
	return err
}

// ToggleBgMode switches between replace and blur, notifying on change.
func (o *Orchestrator) ToggleBgMode(mode pipeline.Mode) (bool, error) {
	o.modeMu.Lock()
	defer o.modeMu.Unlock()
	before := o.att.Mode()
	changed, err := o.att.ToggleBgMode(mode)
	if err != nil {
		return false, err
	}
	o.modeChanged(before)
	return changed, nil
}

// Mode returns the active background treatment.
func (o *Orchestrator) Mode() pipeline.Mode {
	return o.att.Mode()
}

// Snapshot returns the attachment slots.
func (o *Orchestrator) Snapshot() attach.Snapshot {
	return o.att.Snapshot()
}

func (o *Orchestrator) modeChanged(before pipeline.Mode) {
	after := o.att.Mode()
	if after == before {
		return
	}
	o.log.Info("background mode", zap.String("from", string(before)), zap.String("to", string(after)))
	o.emit("background-mode", o.notifier.BackgroundModeChanged(after))
}

// ClearHat removes the hat.
func (o *Orchestrator) ClearHat() error {
	return o.att.ClearHat()
}
