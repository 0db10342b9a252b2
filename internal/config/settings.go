package config

import (
	"errors"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultStreamBaseURL = "http://127.0.0.1:8900"

// Batching and watchdog defaults are tuned policy, not contracts. The
// three-tier shape (fast/default/slow) is the requirement; the literal
// values are not.
const (
	defaultFastDelayMs    = 40
	defaultDefaultDelayMs = 120
	defaultSlowDelayMs    = 400
	defaultFastGapMs      = 100
	defaultSlowGapMs      = 2000

	defaultWatchdogSeconds = 5
	defaultSessionCacheCap = 50
	defaultMinStepMs       = 10
)

type Config struct {
	Stream  StreamConfig  `toml:"stream"`
	Store   StoreConfig   `toml:"store"`
	Engine  EngineConfig  `toml:"engine"`
	Replay  ReplayConfig  `toml:"replay"`
	Logging LoggingConfig `toml:"logging"`
}

type StreamConfig struct {
	BaseURL string `toml:"base_url"`
}

type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

type EngineConfig struct {
	FastDelayMs     int `toml:"fast_delay_ms"`
	DefaultDelayMs  int `toml:"default_delay_ms"`
	SlowDelayMs     int `toml:"slow_delay_ms"`
	FastGapMs       int `toml:"fast_gap_ms"`
	SlowGapMs       int `toml:"slow_gap_ms"`
	WatchdogSeconds int `toml:"watchdog_seconds"`
	SessionCacheCap int `toml:"session_cache_cap"`
}

type ReplayConfig struct {
	MinStepMs    int     `toml:"min_step_ms"`
	DefaultSpeed float64 `toml:"default_speed"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Stream: StreamConfig{BaseURL: defaultStreamBaseURL},
		Engine: EngineConfig{
			FastDelayMs:     defaultFastDelayMs,
			DefaultDelayMs:  defaultDefaultDelayMs,
			SlowDelayMs:     defaultSlowDelayMs,
			FastGapMs:       defaultFastGapMs,
			SlowGapMs:       defaultSlowGapMs,
			WatchdogSeconds: defaultWatchdogSeconds,
			SessionCacheCap: defaultSessionCacheCap,
		},
		Replay: ReplayConfig{
			MinStepMs:    defaultMinStepMs,
			DefaultSpeed: 1.0,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return loadFromPath(path)
}

func loadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func (c Config) StreamBaseURL() string {
	url := strings.TrimSpace(c.Stream.BaseURL)
	if url == "" {
		return defaultStreamBaseURL
	}
	return strings.TrimRight(url, "/")
}

func (c Config) StoreDBPath() (string, error) {
	path := strings.TrimSpace(c.Store.DBPath)
	if path != "" {
		return path, nil
	}
	return DBPath()
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) FastDelay() time.Duration {
	return positiveMs(c.Engine.FastDelayMs, defaultFastDelayMs)
}

func (c Config) DefaultDelay() time.Duration {
	return positiveMs(c.Engine.DefaultDelayMs, defaultDefaultDelayMs)
}

func (c Config) SlowDelay() time.Duration {
	return positiveMs(c.Engine.SlowDelayMs, defaultSlowDelayMs)
}

func (c Config) FastGap() time.Duration {
	return positiveMs(c.Engine.FastGapMs, defaultFastGapMs)
}

func (c Config) SlowGap() time.Duration {
	return positiveMs(c.Engine.SlowGapMs, defaultSlowGapMs)
}

func (c Config) WatchdogInterval() time.Duration {
	seconds := c.Engine.WatchdogSeconds
	if seconds <= 0 {
		seconds = defaultWatchdogSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (c Config) SessionCacheCap() int {
	if c.Engine.SessionCacheCap <= 0 {
		return defaultSessionCacheCap
	}
	return c.Engine.SessionCacheCap
}

func (c Config) MinStep() time.Duration {
	return positiveMs(c.Replay.MinStepMs, defaultMinStepMs)
}

func (c Config) Speed() float64 {
	if c.Replay.DefaultSpeed <= 0 {
		return 1.0
	}
	return c.Replay.DefaultSpeed
}

func positiveMs(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}
