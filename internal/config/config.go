// Package config handles analyzer configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/tanalyzer/internal/filter"
	"firestige.xyz/tanalyzer/internal/log"
	"firestige.xyz/tanalyzer/internal/mutation"
	"firestige.xyz/tanalyzer/internal/queue"
)

// Capture source types.
const (
	SourceLive     = "live"
	SourceAFPacket = "afpacket"
	SourceFile     = "file"
)

// MinStatisticsInterval is the floor applied to worker.statistics_interval.
const MinStatisticsInterval = 2 * time.Second

// Config represents the analyzer configuration.
// Maps to the `analyzer:` root key in YAML.
type Config struct {
	Log       log.Config      `mapstructure:"log" yaml:"log"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker" yaml:"worker"`
	Filter    filter.Criteria `mapstructure:"filter" yaml:"filter"`
	Mutation  MutationConfig  `mapstructure:"mutation" yaml:"mutation"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
}

// ─── Capture ───

// CaptureConfig selects and configures the capture device.
type CaptureConfig struct {
	Source       string        `mapstructure:"source" yaml:"source"` // live | afpacket | file
	Device       string        `mapstructure:"device" yaml:"device"`
	File         string        `mapstructure:"file" yaml:"file"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	Promiscuous  bool          `mapstructure:"promiscuous" yaml:"promiscuous"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	BPFFilter    string        `mapstructure:"bpf_filter" yaml:"bpf_filter"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
}

// ─── Pipeline ───

// QueueConfig bounds the ingest queue. MaxDepth 0 means unbounded.
type QueueConfig struct {
	MaxDepth   int    `mapstructure:"max_depth" yaml:"max_depth"`
	DropPolicy string `mapstructure:"drop_policy" yaml:"drop_policy"` // tail | head
}

// Options converts the section into queue options. Call after validation.
func (c QueueConfig) Options() queue.Options {
	policy, _ := queue.ParseDropPolicy(c.DropPolicy)
	return queue.Options{MaxDepth: c.MaxDepth, DropPolicy: policy}
}

type WorkerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StatisticsInterval time.Duration `mapstructure:"statistics_interval" yaml:"statistics_interval"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ─── Observability ───

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// WebSocketConfig enables the browser display sink.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// configRoot is the top-level YAML wrapper (`analyzer:` root key).
type configRoot struct {
	Analyzer Config `mapstructure:"analyzer" yaml:"analyzer"`
}

// Load loads configuration from a YAML file. An empty path loads defaults
// and environment overrides only.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `analyzer.` key prefix maps to `ANALYZER_` in env vars via the key
	// replacer (e.g., key "analyzer.capture.device" → env "ANALYZER_CAPTURE_DEVICE").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Analyzer

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "analyzer." prefix to match the YAML root wrapper.
// Mutation layer groups have no defaults: an absent group stays nil.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("analyzer.log.level", "info")
	v.SetDefault("analyzer.log.pattern", log.DefaultPattern)
	v.SetDefault("analyzer.log.time", log.DefaultTimeLayout)
	v.SetDefault("analyzer.log.outputs.file.enabled", false)
	v.SetDefault("analyzer.log.outputs.file.path", "/var/log/tanalyzer/tanalyzer.log")
	v.SetDefault("analyzer.log.outputs.file.max_size_mb", 100)
	v.SetDefault("analyzer.log.outputs.file.max_backups", 5)
	v.SetDefault("analyzer.log.outputs.file.max_age_days", 30)
	v.SetDefault("analyzer.log.outputs.file.compress", true)

	// Capture defaults
	v.SetDefault("analyzer.capture.source", SourceLive)
	v.SetDefault("analyzer.capture.device", "")
	v.SetDefault("analyzer.capture.file", "")
	v.SetDefault("analyzer.capture.snap_len", 65535)
	v.SetDefault("analyzer.capture.promiscuous", true)
	v.SetDefault("analyzer.capture.read_timeout", "1s")
	v.SetDefault("analyzer.capture.bpf_filter", "")
	v.SetDefault("analyzer.capture.buffer_size_mb", 8)

	// Pipeline defaults
	v.SetDefault("analyzer.queue.max_depth", 65536)
	v.SetDefault("analyzer.queue.drop_policy", "tail")
	v.SetDefault("analyzer.worker.poll_interval", "250ms")
	v.SetDefault("analyzer.worker.statistics_interval", "2s")
	v.SetDefault("analyzer.worker.shutdown_timeout", "5s")

	// Filter defaults
	v.SetDefault("analyzer.filter.source_ip", "")
	v.SetDefault("analyzer.filter.destination_ip", "")
	v.SetDefault("analyzer.filter.type", "")

	// Mutation defaults
	v.SetDefault("analyzer.mutation.enabled", false)
	v.SetDefault("analyzer.mutation.mode", string(mutation.ModeOneShot))
	v.SetDefault("analyzer.mutation.burst", mutation.DefaultBurst)

	// Metrics defaults
	v.SetDefault("analyzer.metrics.enabled", false)
	v.SetDefault("analyzer.metrics.listen", ":9091")
	v.SetDefault("analyzer.metrics.path", "/metrics")

	// WebSocket defaults
	v.SetDefault("analyzer.websocket.enabled", false)
	v.SetDefault("analyzer.websocket.listen", ":8765")
	v.SetDefault("analyzer.websocket.path", "/ws")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = log.DefaultPattern
	}
	if cfg.Log.Time == "" {
		cfg.Log.Time = log.DefaultTimeLayout
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Capture ──
	c := &cfg.Capture
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Source {
	case SourceLive, SourceAFPacket:
		if c.Device == "" {
			return fmt.Errorf("capture.device is required for %s capture", c.Source)
		}
	case SourceFile:
		if c.File == "" {
			return fmt.Errorf("capture.file is required for file capture")
		}
	default:
		return fmt.Errorf("invalid capture source: %q (must be live/afpacket/file)", c.Source)
	}
	if c.SnapLen <= 0 || c.SnapLen > 262144 {
		return fmt.Errorf("capture.snap_len out of range: %d", c.SnapLen)
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = 8
	}

	// ── Queue / worker ──
	if cfg.Queue.MaxDepth < 0 {
		return fmt.Errorf("queue.max_depth must not be negative")
	}
	if _, err := queue.ParseDropPolicy(cfg.Queue.DropPolicy); err != nil {
		return err
	}
	w := &cfg.Worker
	if w.PollInterval <= 0 {
		w.PollInterval = 250 * time.Millisecond
	}
	if w.StatisticsInterval < MinStatisticsInterval {
		w.StatisticsInterval = MinStatisticsInterval
	}
	if w.ShutdownTimeout <= 0 {
		w.ShutdownTimeout = 5 * time.Second
	}

	// ── Filter ──
	cfg.Filter = cfg.Filter.Normalize()

	// ── Mutation ──
	m := &cfg.Mutation
	if _, err := mutation.ParseMode(m.Mode); err != nil {
		return err
	}
	if m.Burst <= 0 {
		m.Burst = mutation.DefaultBurst
	}
	if m.Enabled {
		if _, err := m.Template(); err != nil {
			return err
		}
	}

	// ── Listeners ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	if cfg.WebSocket.Enabled && cfg.WebSocket.Listen == "" {
		return fmt.Errorf("websocket.listen is required when the websocket sink is enabled")
	}
	return nil
}
