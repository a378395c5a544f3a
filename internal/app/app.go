// Package app assembles the try-on core from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"

	"go.uber.org/zap"

	"tryon-compositor/internal/assets"
	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/config"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/notify"
	"tryon-compositor/internal/orchestrator"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/scene"
)

// App holds the wired components.
type App struct {
	Device       *gpu.SoftDevice
	Pipeline     *pipeline.Standard
	Catalog      *catalog.Catalog
	World        *scene.World
	Overlay      *scene.Node
	Attach       *attach.Manager
	Engine       *measure.Engine
	Latest       *measure.Latest
	MQTT         *notify.MQTT
	Orchestrator *orchestrator.Orchestrator

	log *zap.Logger
}

// Build wires every component described by cfg. With MQTT enabled a
// broker that cannot be reached is logged and skipped.
func Build(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Device: gpu.NewSoftDevice(), Latest: &measure.Latest{}, log: log}

	std, err := pipeline.NewStandard(a.Device, cfg.Pipeline, log.Named("pipeline"))
	if err != nil {
		return nil, err
	}
	a.Pipeline = std

	a.Catalog, err = catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	a.World = scene.NewWorld(scene.NewShadowMap("key"))
	a.Overlay = NewOverlay()
	a.World.AddObject(a.Overlay)

	a.Attach, err = attach.New(attach.Options{
		Catalog:    a.Catalog,
		Loader:     assets.NewModelLoader(cfg.Catalog.AssetRoot, log.Named("assets")),
		Images:     assets.NewImageCache(cfg.Catalog.AssetRoot),
		Renderer:   a.World,
		Background: std.Background,
		Patch:      std.Patch,
		Log:        log.Named("attach"),
	})
	if err != nil {
		return nil, err
	}

	mc, err := cfg.Measure.Engine()
	if err != nil {
		return nil, err
	}
	a.Engine, err = measure.NewEngine(mc, log.Named("measure"))
	if err != nil {
		return nil, err
	}

	notifiers := notify.Multi{notify.NewLog(log)}
	if cfg.MQTT.Enabled {
		m := notify.NewMQTT(cfg.MQTT.MQTTConfig, log)
		if err := m.Connect(); err != nil {
			log.Warn("mqtt disabled", zap.Error(err))
		} else {
			a.MQTT = m
			notifiers = append(notifiers, m)
		}
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Options{
		Pipeline: std.Pipeline,
		Attach:   a.Attach,
		Scene:    a.World,
		Device:   a.Device,
		Engine:   a.Engine,
		Latest:   a.Latest,
		Notifier: notifiers,
		Overlay:  a.Overlay,
		Config:   cfg.Orchestrator.Config,
		Log:      log.Named("orchestrator"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ApplySession attaches the configured starting assets. Each failure is
// logged; the rest are still attempted.
func (a *App) ApplySession(ctx context.Context, s config.SessionConfig) error {
	var errs []error
	if s.Outfit != "" {
		if err := a.Orchestrator.SetOutfit(ctx, s.Outfit); err != nil {
			errs = append(errs, fmt.Errorf("outfit %s: %w", s.Outfit, err))
		}
	}
	if s.Hat != "" {
		if err := a.Orchestrator.SetHat(ctx, s.Hat); err != nil {
			errs = append(errs, fmt.Errorf("hat %s: %w", s.Hat, err))
		}
	}
	if s.Background != "" {
		if err := a.Orchestrator.SetBackground(ctx, s.Background); err != nil {
			errs = append(errs, fmt.Errorf("background %s: %w", s.Background, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("session partly applied", zap.Error(err))
	}
	return err
}

// Close releases every attachment and the broker connection.
func (a *App) Close() {
	a.Attach.Teardown()
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
}

// NewOverlay returns the hidden banner revealed by the arms-up gesture:
// a 40×10 cm quad centered on its origin.
func NewOverlay() *scene.Node {
	n := scene.NewNode("Overlay", scene.KindMesh)
	n.Geometry = &scene.Geometry{
		Verts: []mathutil.Vec3{{-0.2, -0.05, 0}, {0.2, -0.05, 0}, {0.2, 0.05, 0}, {-0.2, 0.05, 0}},
		Tris:  [][3]int{{0, 1, 2}, {0, 2, 3}},
	}
	n.SetMaterial(scene.NewMaterial("overlay", color.NRGBA{R: 255, G: 210, B: 0, A: 255}))
	n.SetEnabled(false)
	return n
}
