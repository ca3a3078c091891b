// Package config provides configuration management for ResponsiveBOXES.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

const envPrefix = "RBOXES_"

// Config holds the application configuration with thread-safe access.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Profiling ProfilingConfig `yaml:"profiling"`
	LogLevel  string          `yaml:"log_level"`
	Cameras   []CameraConfig  `yaml:"cameras"`
	Zones     []zones.Zone    `yaml:"zones"`
	Motion    MotionConfig    `yaml:"motion"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Health    HealthConfig    `yaml:"health"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	mu          sync.RWMutex
	subscribers []func(Snapshot)
}

// Snapshot is a read-only copy of the current configuration.
type Snapshot struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Profiling ProfilingConfig `yaml:"profiling" json:"profiling"`
	LogLevel  string          `yaml:"log_level" json:"log_level"`
	Cameras   []CameraConfig  `yaml:"cameras" json:"cameras"`
	Zones     []zones.Zone    `yaml:"zones" json:"zones"`
	Motion    MotionConfig    `yaml:"motion" json:"motion"`
	Trigger   TriggerConfig   `yaml:"trigger" json:"trigger"`
	Health    HealthConfig    `yaml:"health" json:"health"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt" json:"mqtt"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// ProfilingConfig controls the pprof/fgprof listener. An empty Addr disables it.
type ProfilingConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// CameraConfig describes one snapshot camera.
type CameraConfig struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	// SetupURL is requested once before polling starts.
	SetupURL   string `yaml:"setup_url,omitempty" json:"setup_url,omitempty"`
	IntervalMs int    `yaml:"interval_ms,omitempty" json:"interval_ms,omitempty"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

// MotionConfig contains motion detection settings.
type MotionConfig struct {
	Backend       string  `yaml:"backend" json:"backend"`
	IntervalMs    int     `yaml:"interval_ms" json:"interval_ms"`
	DiffThreshold int     `yaml:"diff_threshold" json:"diff_threshold"`
	MinArea       int     `yaml:"min_area" json:"min_area"`
	BlurSigma     float64 `yaml:"blur_sigma" json:"blur_sigma"`
	DilateRadius  float64 `yaml:"dilate_radius" json:"dilate_radius"`
	FrameWidth    int     `yaml:"frame_width" json:"frame_width"`
}

// TriggerConfig contains command dispatch settings.
type TriggerConfig struct {
	Workers    int `yaml:"workers" json:"workers"`
	QueueSize  int `yaml:"queue_size" json:"queue_size"`
	CooldownMs int `yaml:"cooldown_ms" json:"cooldown_ms"`
	TimeoutMs  int `yaml:"timeout_ms" json:"timeout_ms"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds" json:"check_interval_seconds"`
	TimeoutSeconds       int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// StorageConfig selects where zones and cameras are persisted.
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// MQTTConfig configures the optional MQTT event publisher.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	User        string `yaml:"user" json:"user"`
	Pass        string `yaml:"pass" json:"-"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	cfg.setDefaults()
	return cfg
}

// newConfig presets the fields whose zero value is meaningful, so only an
// absent key picks up the default.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Motion.MinArea = motion.DefaultMinArea
	return cfg
}

// Load reads configuration from a YAML file and applies env var overrides.
// A missing file is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := newConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Get().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (c *Config) applyEnvOverrides() {
	envString("HOST", &c.Server.Host)
	envInt("PORT", &c.Server.Port)
	envString("PROFILING_ADDR", &c.Profiling.Addr)
	envString("LOG_LEVEL", &c.LogLevel)

	envString("MOTION_BACKEND", &c.Motion.Backend)
	envInt("INTERVAL_MS", &c.Motion.IntervalMs)
	envInt("DIFF_THRESHOLD", &c.Motion.DiffThreshold)
	envInt("MIN_AREA", &c.Motion.MinArea)
	envFloat("BLUR_SIGMA", &c.Motion.BlurSigma)
	envFloat("DILATE_RADIUS", &c.Motion.DilateRadius)
	envInt("FRAME_WIDTH", &c.Motion.FrameWidth)

	envInt("TRIGGER_WORKERS", &c.Trigger.Workers)
	envInt("TRIGGER_COOLDOWN_MS", &c.Trigger.CooldownMs)

	envString("STORAGE_DRIVER", &c.Storage.Driver)
	envString("STORAGE_PATH", &c.Storage.Path)

	if v := os.Getenv(envPrefix + "MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MQTT.Enabled = b
		}
	}
	envString("MQTT_HOST", &c.MQTT.Host)
	envInt("MQTT_PORT", &c.MQTT.Port)
	envString("MQTT_USER", &c.MQTT.User)
	envString("MQTT_PASS", &c.MQTT.Pass)
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Motion.Backend == "" {
		c.Motion.Backend = "native"
	}
	if c.Motion.IntervalMs <= 0 {
		c.Motion.IntervalMs = 83
	}
	if c.Motion.DiffThreshold == 0 {
		c.Motion.DiffThreshold = motion.DefaultDiffThreshold
	}

	if c.Trigger.Workers <= 0 {
		c.Trigger.Workers = 4
	}
	if c.Trigger.QueueSize <= 0 {
		c.Trigger.QueueSize = 32
	}
	if c.Trigger.TimeoutMs <= 0 {
		c.Trigger.TimeoutMs = 5000
	}

	if c.Health.CheckIntervalSeconds <= 0 {
		c.Health.CheckIntervalSeconds = 30
	}
	if c.Health.TimeoutSeconds <= 0 {
		c.Health.TimeoutSeconds = 5
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "yaml"
	}
	if c.Storage.Path == "" {
		if c.Storage.Driver == "sqlite" {
			c.Storage.Path = "responsiveboxes.db"
		} else {
			c.Storage.Path = "state.yaml"
		}
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "responsiveboxes"
	}

	for i := range c.Cameras {
		if c.Cameras[i].ID == "" {
			c.Cameras[i].ID = c.Cameras[i].Name
		}
	}
}

// Validate checks the values that cannot be defaulted.
func (s Snapshot) Validate() error {
	var errs []error
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be debug, info, warn or error", s.LogLevel))
	}
	if s.Motion.DiffThreshold < 0 || s.Motion.DiffThreshold > 255 {
		errs = append(errs, fmt.Errorf("motion.diff_threshold %d must be within 0-255", s.Motion.DiffThreshold))
	}
	if s.Motion.MinArea < 0 {
		errs = append(errs, fmt.Errorf("motion.min_area %d must not be negative", s.Motion.MinArea))
	}
	if s.Motion.IntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("motion.interval_ms must be positive"))
	}
	if s.Motion.BlurSigma < 0 || s.Motion.DilateRadius < 0 || s.Motion.FrameWidth < 0 {
		errs = append(errs, fmt.Errorf("motion blur_sigma, dilate_radius and frame_width must not be negative"))
	}
	if s.Trigger.CooldownMs < 0 {
		errs = append(errs, fmt.Errorf("trigger.cooldown_ms must not be negative"))
	}
	switch s.Storage.Driver {
	case "yaml", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be yaml or sqlite", s.Storage.Driver))
	}
	if s.MQTT.Enabled && s.MQTT.Host == "" {
		errs = append(errs, fmt.Errorf("mqtt.host is required when mqtt is enabled"))
	}

	seen := make(map[string]bool)
	for i, cam := range s.Cameras {
		if cam.ID == "" {
			errs = append(errs, fmt.Errorf("cameras[%d]: id or name is required", i))
		} else if seen[cam.ID] {
			errs = append(errs, fmt.Errorf("cameras[%d]: duplicate id %q", i, cam.ID))
		}
		seen[cam.ID] = true
		if strings.TrimSpace(cam.Address) == "" {
			errs = append(errs, fmt.Errorf("cameras[%d]: address is required", i))
		}
		if cam.IntervalMs < 0 {
			errs = append(errs, fmt.Errorf("cameras[%d]: interval_ms must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// MotionSettings returns the detection tuning for one cycle.
func (s Snapshot) MotionSettings() motion.Settings {
	return motion.Settings{
		DiffThreshold: uint8(s.Motion.DiffThreshold),
		MinArea:       s.Motion.MinArea,
		BlurSigma:     s.Motion.BlurSigma,
		DilateRadius:  s.Motion.DilateRadius,
	}
}

// PollInterval returns the interval for cam, falling back to the global one.
func (s Snapshot) PollInterval(cam CameraConfig) time.Duration {
	ms := cam.IntervalMs
	if ms <= 0 {
		ms = s.Motion.IntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Update atomically updates the configuration.
func (c *Config) Update(updater func(*Config)) {
	c.mu.Lock()
	updater(c)
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, callback := range subs {
		go callback(snap)
	}
}

// Get safely retrieves a snapshot of the config.
func (c *Config) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Config) snapshotLocked() Snapshot {
	cameras := make([]CameraConfig, len(c.Cameras))
	copy(cameras, c.Cameras)
	zs := make([]zones.Zone, len(c.Zones))
	copy(zs, c.Zones)

	return Snapshot{
		Server:    c.Server,
		Profiling: c.Profiling,
		LogLevel:  c.LogLevel,
		Cameras:   cameras,
		Zones:     zs,
		Motion:    c.Motion,
		Trigger:   c.Trigger,
		Health:    c.Health,
		Storage:   c.Storage,
		MQTT:      c.MQTT,
	}
}

// Subscribe registers a callback for config changes. Callbacks run on their
// own goroutine.
func (c *Config) Subscribe(callback func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, callback)
}

// Save writes the current configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c.Get())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
