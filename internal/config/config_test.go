package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/raster"
)

const sample = `
server:
  addr: ":9000"
  mode: release
catalog:
  path: assets/catalog.yaml
session:
  outfit: polo
  background: noBg
pipeline:
  smooth_radius: 5
  initial_mode: blur
measure:
  channel: alpha
  reference_height_cm: 172
  sizes:
    labels: [S, M, L]
    waist: [30, 36, 42]
    height: [160, 175, 190]
orchestrator:
  no_pose_limit: 300
mqtt:
  enabled: true
  broker: broker:1883
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Mode != "release" || cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Session.Outfit != "polo" || cfg.Session.Background != "noBg" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Pipeline.SmoothRadius != 5 || cfg.Pipeline.InitialMode != pipeline.ModeBlur {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.PatchRadius != pipeline.DefaultParams().PatchRadius || !cfg.Pipeline.Mirror {
		t.Errorf("pipeline defaults lost: %+v", cfg.Pipeline)
	}
	if cfg.Orchestrator.NoPoseLimit != 300 || cfg.Orchestrator.MeasureEvery != 15 || cfg.Orchestrator.FPS != 30 {
		t.Errorf("orchestrator = %+v", cfg.Orchestrator)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "broker:1883" || cfg.MQTT.TopicPrefix != "tryon" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}

	mc, err := cfg.Measure.Engine()
	if err != nil {
		t.Fatal(err)
	}
	if mc.Channel != raster.ChannelA || mc.Threshold != 128 || mc.ReferenceHeightCm != 172 {
		t.Errorf("measure = %+v", mc)
	}
	if len(mc.Table.Labels) != 3 || mc.Table.Labels[1] != measure.SizeM || mc.Table.Validate() != nil {
		t.Errorf("size table = %+v", mc.Table)
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	cfg, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("missing file not reported")
	}
	if cfg == nil || cfg.Server.Addr != ":8080" || cfg.Measure.Sizes.Validate() != nil {
		t.Fatalf("fallback = %+v", cfg)
	}
}

func TestResolveFlagsOverride(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Resolve(Flags{Addr: ":7000", Recording: "rec", Workers: 3, Height: 180})

	if cfg.Server.Addr != ":7000" || cfg.Replay.Input != "rec" || cfg.Replay.Workers != 3 {
		t.Errorf("overrides not applied: %+v %+v", cfg.Server, cfg.Replay)
	}
	if cfg.Measure.ReferenceHeightCm != 180 {
		t.Errorf("height = %v", cfg.Measure.ReferenceHeightCm)
	}
	if cfg.Log.Mode != "debug" {
		t.Errorf("log mode = %q", cfg.Log.Mode)
	}
	if cfg.Catalog.AssetRoot != "assets" {
		t.Errorf("asset root = %q", cfg.Catalog.AssetRoot)
	}
}

func TestResolveFillsZeroConfig(t *testing.T) {
	var cfg Config
	cfg.Resolve(Flags{})
	if cfg.Server.Addr == "" || cfg.Measure.Threshold != 128 || cfg.Replay.Workers < 1 {
		t.Fatalf("zero config not filled: %+v", cfg)
	}
	if err := cfg.Measure.Sizes.Validate(); err != nil {
		t.Error(err)
	}
}

func TestUnknownChannel(t *testing.T) {
	if _, err := (MeasureConfig{Channel: "x"}).Engine(); err == nil {
		t.Fatal("unknown channel accepted")
	}
}
