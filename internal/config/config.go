// Package config loads the service configuration with viper. CLI flags
// override file values through Resolve, which then fills anything left
// empty with defaults.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/notify"
	"tryon-compositor/internal/orchestrator"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/raster"
)

// Config holds every section of config.yaml.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Session      SessionConfig      `mapstructure:"session"`
	Pipeline     pipeline.Params    `mapstructure:"pipeline"`
	Measure      MeasureConfig      `mapstructure:"measure"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	Replay       ReplayConfig       `mapstructure:"replay"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// CatalogConfig locates the asset catalog. AssetRoot is where relative
// asset URLs are resolved; it defaults to the catalog's directory.
type CatalogConfig struct {
	Path      string `mapstructure:"path"`
	AssetRoot string `mapstructure:"asset_root"`
}

// SessionConfig is what is attached at startup.
type SessionConfig struct {
	Outfit     string `mapstructure:"outfit"`
	Hat        string `mapstructure:"hat"`
	Background string `mapstructure:"background"`
}

type MeasureConfig struct {
	Threshold         int               `mapstructure:"threshold"`
	Channel           string            `mapstructure:"channel"`
	ReferenceHeightCm float64           `mapstructure:"reference_height_cm"`
	Sizes             measure.SizeTable `mapstructure:"sizes"`
}

type OrchestratorConfig struct {
	orchestrator.Config `mapstructure:",squash"`
	FPS                 int `mapstructure:"fps"`
}

type MQTTConfig struct {
	notify.MQTTConfig `mapstructure:",squash"`
	Enabled           bool `mapstructure:"enabled"`
}

type ReplayConfig struct {
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
	Workers int    `mapstructure:"workers"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	Addr      string
	LogMode   string
	Catalog   string
	Recording string
	OutputDir string
	Workers   int
	Height    float64
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// New loads path, falling back to the defaults when it cannot be read.
func New(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log:      LogConfig{Mode: "debug"},
		Catalog:  CatalogConfig{Path: "catalog.yaml"},
		Pipeline: pipeline.DefaultParams(),
		Measure: MeasureConfig{
			Threshold: 128,
			Channel:   "r",
			Sizes:     measure.DefaultSizeTable(),
		},
		Orchestrator: OrchestratorConfig{Config: orchestrator.DefaultConfig(), FPS: 30},
		MQTT: MQTTConfig{MQTTConfig: notify.MQTTConfig{
			Broker:      "localhost:1883",
			ClientID:    "tryond",
			TopicPrefix: "tryon",
			Timeout:     2 * time.Second,
		}},
		Replay: ReplayConfig{Output: "out"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("catalog.path", d.Catalog.Path)

	p := d.Pipeline
	v.SetDefault("pipeline.smooth_radius", p.SmoothRadius)
	v.SetDefault("pipeline.fill_radius", p.FillRadius)
	v.SetDefault("pipeline.morph_radius", p.MorphRadius)
	v.SetDefault("pipeline.erode_radius", p.ErodeRadius)
	v.SetDefault("pipeline.despeckle_ratio", p.DespeckleRatio)
	v.SetDefault("pipeline.patch_threshold", p.PatchThreshold)
	v.SetDefault("pipeline.patch_radius", p.PatchRadius)
	v.SetDefault("pipeline.replace_lo", p.ReplaceLo)
	v.SetDefault("pipeline.replace_hi", p.ReplaceHi)
	v.SetDefault("pipeline.blur_radius", p.BlurRadius)
	v.SetDefault("pipeline.blur_transition", p.BlurTransition)
	v.SetDefault("pipeline.brightness", p.Brightness)
	v.SetDefault("pipeline.mirror", p.Mirror)
	v.SetDefault("pipeline.upscale", p.Upscale)
	v.SetDefault("pipeline.initial_mode", string(p.InitialMode))

	v.SetDefault("measure.threshold", d.Measure.Threshold)
	v.SetDefault("measure.channel", d.Measure.Channel)
	v.SetDefault("measure.reference_height_cm", 0.0)
	v.SetDefault("measure.sizes.labels", []string{"XS", "S", "M", "L", "XL"})
	v.SetDefault("measure.sizes.waist", d.Measure.Sizes.Waist)
	v.SetDefault("measure.sizes.height", d.Measure.Sizes.Height)

	v.SetDefault("orchestrator.no_pose_limit", d.Orchestrator.NoPoseLimit)
	v.SetDefault("orchestrator.measure_every", d.Orchestrator.MeasureEvery)
	v.SetDefault("orchestrator.fps", d.Orchestrator.FPS)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.topic_prefix", d.MQTT.TopicPrefix)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.timeout", d.MQTT.Timeout)

	v.SetDefault("replay.output", d.Replay.Output)
	v.SetDefault("replay.workers", 0)
}

// Resolve applies CLI overrides, fills empty fields and resolves the asset
// root.
func (c *Config) Resolve(flags Flags) {
	if flags.Addr != "" {
		c.Server.Addr = flags.Addr
	}
	if flags.LogMode != "" {
		c.Log.Mode = flags.LogMode
	}
	if flags.Catalog != "" {
		c.Catalog.Path = flags.Catalog
	}
	if flags.Recording != "" {
		c.Replay.Input = flags.Recording
	}
	if flags.OutputDir != "" {
		c.Replay.Output = flags.OutputDir
	}
	if flags.Workers > 0 {
		c.Replay.Workers = flags.Workers
	}
	if flags.Height > 0 {
		c.Measure.ReferenceHeightCm = flags.Height
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = c.Server.Mode
	}
	if c.Catalog.AssetRoot == "" && c.Catalog.Path != "" {
		c.Catalog.AssetRoot = filepath.Dir(c.Catalog.Path)
	}
	if c.Measure.Threshold <= 0 || c.Measure.Threshold > 255 {
		c.Measure.Threshold = 128
	}
	if len(c.Measure.Sizes.Labels) == 0 {
		c.Measure.Sizes = measure.DefaultSizeTable()
	}
	if c.Orchestrator.NoPoseLimit <= 0 {
		c.Orchestrator.NoPoseLimit = orchestrator.DefaultNoPoseLimit
	}
	if c.Orchestrator.FPS <= 0 {
		c.Orchestrator.FPS = 30
	}
	if c.Pipeline.InitialMode == "" {
		c.Pipeline.InitialMode = pipeline.ModeReplace
	}
	if c.Replay.Workers <= 0 {
		c.Replay.Workers = runtime.NumCPU()
	}
}

// Engine converts the measure section for measure.NewEngine.
func (m MeasureConfig) Engine() (measure.Config, error) {
	ch, err := parseChannel(m.Channel)
	if err != nil {
		return measure.Config{}, err
	}
	return measure.Config{
		Threshold:         uint8(m.Threshold),
		Channel:           ch,
		ReferenceHeightCm: m.ReferenceHeightCm,
		Table:             m.Sizes,
	}, nil
}

func parseChannel(s string) (raster.Channel, error) {
	switch strings.ToLower(s) {
	case "", "r", "red":
		return raster.ChannelR, nil
	case "g", "green":
		return raster.ChannelG, nil
	case "b", "blue":
		return raster.ChannelB, nil
	case "a", "alpha":
		return raster.ChannelA, nil
	}
	return 0, fmt.Errorf("config: unknown mask channel %q", s)
}
