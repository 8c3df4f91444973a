// Package config loads the renderer's YAML configuration, following the
// layout and load order of kikiluvv-slopCannon's internal/config package.
package config

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type contextKey struct{}

var configKey contextKey

// WithConfig stores cfg in ctx for downstream cobra command handlers.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves the config stored by WithConfig, or defaults if
// none was stored.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

// Config holds process-wide defaults that the CLI flags in spec.md §6
// override on a per-run basis.
type Config struct {
	Render    RenderConfig    `yaml:"render"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	FramePool FramePoolConfig `yaml:"frame_pool"`
}

// RenderConfig holds encoder defaults.
type RenderConfig struct {
	Codec   string `yaml:"codec"`
	Bitrate int64  `yaml:"bitrate"`
	Preset  string `yaml:"preset"`
	CRF     int    `yaml:"crf"`
	GopSize int    `yaml:"gop_size"`
}

// HardwareConfig holds hardware acceleration defaults.
type HardwareConfig struct {
	AccelType     string `yaml:"accel_type"` // auto, none, nvenc, vaapi, videotoolbox
	DeviceIndex   int    `yaml:"device_index"`
	AllowDecode   bool   `yaml:"allow_decode"`
	AllowEncode   bool   `yaml:"allow_encode"`
	AllowFallback bool   `yaml:"allow_fallback"`
}

// FramePoolConfig holds frame buffer pool sizing. PoolSize sizes the
// compositor's frame pool; AsyncDepth and SurfaceCount are not read.
type FramePoolConfig struct {
	PoolSize     int `yaml:"pool_size"`
	AsyncDepth   int `yaml:"async_depth"`
	SurfaceCount int `yaml:"surface_count"`
}

func defaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			Codec:   "libx264",
			Preset:  "medium",
			CRF:     23,
			GopSize: 300,
		},
		Hardware: HardwareConfig{
			AccelType:     "auto",
			AllowDecode:   true,
			AllowEncode:   true,
			AllowFallback: true,
		},
		FramePool: FramePoolConfig{
			PoolSize:     10,
			AsyncDepth:   4,
			SurfaceCount: 20,
		},
	}
}

// Load reads configuration from path, or from ./edl2ffmpeg.yaml if path is
// empty and that file exists, or returns defaults if neither is found.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, name := range []string{"edl2ffmpeg.yaml", "edl2ffmpeg.yml"} {
		if _, err := os.Stat(name); err == nil {
			abs, err := filepath.Abs(name)
			if err == nil {
				return abs
			}
			return name
		}
	}
	return ""
}
