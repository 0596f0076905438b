package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// Config represents the application configuration
type Config struct {
	Export    ExportConfig  `json:"export" yaml:"export" mapstructure:"export"`
	Source    SourceConfig  `json:"source" yaml:"source" mapstructure:"source"`
	Stream    StreamConfig  `json:"stream" yaml:"stream" mapstructure:"stream"`
	Overlay   OverlayConfig `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
	LogLevel  string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// ExportConfig describes where and how frames are written
type ExportConfig struct {
	// Output is a file path, "-" for stdout, or a printf pattern for the sequence format
	Output          string        `json:"output" yaml:"output" mapstructure:"output"`
	Format          string        `json:"format" yaml:"format" mapstructure:"format"`
	Generator       string        `json:"generator" yaml:"generator" mapstructure:"generator"`
	Quality         int           `json:"quality" yaml:"quality" mapstructure:"quality"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// SourceConfig describes the render loop feeding the exporter
type SourceConfig struct {
	Kind      string `json:"kind" yaml:"kind" mapstructure:"kind"`
	Width     int    `json:"width" yaml:"width" mapstructure:"width"`
	Height    int    `json:"height" yaml:"height" mapstructure:"height"`
	FPS       int    `json:"fps" yaml:"fps" mapstructure:"fps"`
	Frames    int    `json:"frames" yaml:"frames" mapstructure:"frames"` // 0 means until interrupted
	ImagePath string `json:"image_path,omitempty" yaml:"image_path,omitempty" mapstructure:"image_path"`
	X         int    `json:"x" yaml:"x" mapstructure:"x"`
	Y         int    `json:"y" yaml:"y" mapstructure:"y"`
}

// StreamConfig represents the live preview server configuration
type StreamConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" yaml:"port" mapstructure:"port"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled bool                     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Widgets []map[string]interface{} `json:"widgets" yaml:"widgets" mapstructure:"widgets"`
}

// MaxFPS caps source.fps so the render tick stays a usable interval
const MaxFPS = 1000

// FrameInterval returns the render tick for FPS, clamped to [1, MaxFPS]
func (s SourceConfig) FrameInterval() time.Duration {
	fps := min(max(s.FPS, 1), MaxFPS)
	return time.Second / time.Duration(fps)
}

var (
	validFormats   = []string{"ppm", "png", "jpeg", "jpg", "bmp", "tiff", "sequence", "gstreamer", "window"}
	validSources   = []string{"pattern", "image", "x11"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Export: ExportConfig{
			Output:          "frameexport.ppm",
			Format:          "ppm",
			Generator:       "FrameExport",
			Quality:         90,
			ShutdownTimeout: 5 * time.Second,
		},
		Source: SourceConfig{
			Kind:   "pattern",
			Width:  640,
			Height: 360,
			FPS:    30,
			Frames: 90,
		},
		Stream: StreamConfig{
			Enabled: false,
			Port:    8080,
		},
		Overlay: OverlayConfig{
			Enabled: true,
			Widgets: []map[string]interface{}{
				{
					"type":       "text",
					"id":         "frame-counter",
					"text":       "frame {frame}",
					"x":          8,
					"y":          8,
					"background": map[string]interface{}{"r": 0, "g": 0, "b": 0, "a": 160},
				},
			},
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Export.Output == "" {
		errs = append(errs, errors.New("export.output must not be empty"))
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Export.Format)) {
		errs = append(errs, fmt.Errorf("export.format %q is not one of %s", c.Export.Format, strings.Join(validFormats, ", ")))
	}
	if c.Export.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("export.shutdown_timeout must not be negative"))
	}
	if !slices.Contains(validSources, strings.ToLower(c.Source.Kind)) {
		errs = append(errs, fmt.Errorf("source.kind %q is not one of %s", c.Source.Kind, strings.Join(validSources, ", ")))
	}
	// x11 may take its size from the screen
	if !strings.EqualFold(c.Source.Kind, "x11") && (c.Source.Width <= 0 || c.Source.Height <= 0) {
		errs = append(errs, fmt.Errorf("source size %dx%d must be positive", c.Source.Width, c.Source.Height))
	}
	if c.Source.FPS <= 0 || c.Source.FPS > MaxFPS {
		errs = append(errs, fmt.Errorf("source.fps must be between 1 and %d, got %d", MaxFPS, c.Source.FPS))
	}
	if c.Source.Frames < 0 {
		errs = append(errs, fmt.Errorf("source.frames must not be negative, got %d", c.Source.Frames))
	}
	if strings.EqualFold(c.Source.Kind, "image") && c.Source.ImagePath == "" {
		errs = append(errs, errors.New("source.image_path is required for the image source"))
	}
	if c.Stream.Enabled && (c.Stream.Port <= 0 || c.Stream.Port > 65535) {
		errs = append(errs, fmt.Errorf("stream.port %d is out of range", c.Stream.Port))
	}
	if c.LogLevel != "" && !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of %s", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	return errors.Join(errs...)
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/frameexport/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "frameexport", "config.yaml"), nil
}

// NewManager loads configFile (or the default path), creating it with
// defaults when it does not exist. Values set on the global viper instance
// (bound command-line flags) override the file.
func NewManager(configFile string) (*Manager, error) {
	return NewManagerWithViper(configFile, viper.GetViper())
}

// NewManagerWithViper is NewManager with an explicit override source
func NewManagerWithViper(configFile string, overrides *viper.Viper) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
		v:          viper.New(),
	}
	m.v.SetConfigFile(actualConfigPath)
	m.v.SetConfigType("yaml")
	setDefaults(m.v, Defaults())

	if _, err := os.Stat(actualConfigPath); errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if overrides != nil {
		for _, key := range overrides.AllKeys() {
			if overrides.IsSet(key) {
				m.v.Set(key, overrides.Get(key))
			}
		}
	}

	if err := m.reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// setDefaults registers every leaf of cfg as a viper default
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("export.output", cfg.Export.Output)
	v.SetDefault("export.format", cfg.Export.Format)
	v.SetDefault("export.generator", cfg.Export.Generator)
	v.SetDefault("export.quality", cfg.Export.Quality)
	v.SetDefault("export.shutdown_timeout", cfg.Export.ShutdownTimeout)
	v.SetDefault("source.kind", cfg.Source.Kind)
	v.SetDefault("source.width", cfg.Source.Width)
	v.SetDefault("source.height", cfg.Source.Height)
	v.SetDefault("source.fps", cfg.Source.FPS)
	v.SetDefault("source.frames", cfg.Source.Frames)
	v.SetDefault("source.image_path", cfg.Source.ImagePath)
	v.SetDefault("source.x", cfg.Source.X)
	v.SetDefault("source.y", cfg.Source.Y)
	v.SetDefault("stream.enabled", cfg.Stream.Enabled)
	v.SetDefault("stream.port", cfg.Stream.Port)
	v.SetDefault("overlay.enabled", cfg.Overlay.Enabled)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_pretty", cfg.LogPretty)
}

// reload decodes the viper state into a fresh Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Overlay.Widgets == nil {
		cfg.Overlay.Widgets = []map[string]interface{}{}
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper returns the viper instance backing this manager, for key-based access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Set assigns a dotted key (e.g. "source.fps") and refreshes the decoded config
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	return m.reload()
}

// Save writes the current configuration to disk as YAML
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration and saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
