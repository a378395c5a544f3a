// Package notify delivers one-way events from the core to the UI layer.
package notify

import (
	"errors"

	"go.uber.org/zap"

	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/pipeline"
)

// Notifier receives UI events. Implementations must not block the frame
// loop for long; errors are logged by the caller and otherwise ignored.
type Notifier interface {
	// NoPose fires after the configured number of consecutive frames
	// without a detected person.
	NoPose(frames int) error
	// ScanStarted fires once when a person is first seen after an absence.
	ScanStarted() error
	MeasurementUpdated(r measure.Result) error
	BackgroundModeChanged(mode pipeline.Mode) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) NoPose(int) error                          { return nil }
func (Nop) ScanStarted() error                        { return nil }
func (Nop) MeasurementUpdated(measure.Result) error   { return nil }
func (Nop) BackgroundModeChanged(pipeline.Mode) error { return nil }

// Log writes events to a zap logger.
type Log struct {
	log *zap.Logger
}

// NewLog returns a notifier logging at info level.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) NoPose(frames int) error {
	l.log.Info("no pose", zap.Int("frames", frames))
	return nil
}

func (l *Log) ScanStarted() error {
	l.log.Info("scan started")
	return nil
}

func (l *Log) MeasurementUpdated(r measure.Result) error {
	l.log.Info("measurement updated",
		zap.Uint64("seq", r.Seq),
		zap.Float64("height_cm", r.HeightCm),
		zap.Float64("waist_cm", r.WaistCm),
		zap.String("size", string(r.Size)),
	)
	return nil
}

func (l *Log) BackgroundModeChanged(mode pipeline.Mode) error {
	l.log.Info("background mode changed", zap.String("mode", string(mode)))
	return nil
}

// Multi fans every event out to each notifier, joining their errors.
type Multi []Notifier

func (m Multi) NoPose(frames int) error {
	return m.each(func(n Notifier) error { return n.NoPose(frames) })
}

func (m Multi) ScanStarted() error {
	return m.each(func(n Notifier) error { return n.ScanStarted() })
}

func (m Multi) MeasurementUpdated(r measure.Result) error {
	return m.each(func(n Notifier) error { return n.MeasurementUpdated(r) })
}

func (m Multi) BackgroundModeChanged(mode pipeline.Mode) error {
	return m.each(func(n Notifier) error { return n.BackgroundModeChanged(mode) })
}

func (m Multi) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
