package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dealgrip/internal/eventbus"
)

// Config represents the application configuration
type Config struct {
	Version  int          `toml:"version"`
	LogLevel string       `toml:"log_level"`
	API      APIConfig    `toml:"api"`
	Search   SearchConfig `toml:"search"`
	Cache    CacheConfig  `toml:"cache"`
	UI       UISettings   `toml:"ui"`
}

// APIConfig points the client at the deals API
type APIConfig struct {
	BaseURL    string   `toml:"base_url"`
	Token      string   `toml:"token,omitempty"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries uint     `toml:"max_retries"`
}

// SearchConfig holds debounce and paging settings
type SearchConfig struct {
	Delay          Duration `toml:"delay"`
	QuickDelay     Duration `toml:"quick_delay"`
	RateLimit      Duration `toml:"rate_limit"`
	MinQueryLength int      `toml:"min_query_length"`
	PageSize       int      `toml:"page_size"`
}

// CacheConfig bounds the session cache
type CacheConfig struct {
	Capacity   int      `toml:"capacity"`
	StaleAfter Duration `toml:"stale_after"`
}

// UISettings represents UI-related configuration
type UISettings struct {
	PrefetchDistance int  `toml:"prefetch_distance"`
	ShowShop         bool `toml:"show_shop"`
}

// Duration is a time.Duration written as a string such as "800ms"
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.API.BaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q must be an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.Search.Delay <= 0 || c.Search.QuickDelay <= 0 {
		errs = append(errs, errors.New("search.delay and search.quick_delay must be positive"))
	}
	if c.Search.RateLimit < 0 {
		errs = append(errs, errors.New("search.rate_limit must not be negative"))
	}
	if c.Search.MinQueryLength < 0 {
		errs = append(errs, errors.New("search.min_query_length must not be negative"))
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 100 {
		errs = append(errs, fmt.Errorf("search.page_size %d must be between 1 and 100", c.Search.PageSize))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.capacity must be positive"))
	}
	if c.UI.PrefetchDistance < 0 {
		errs = append(errs, errors.New("ui.prefetch_distance must not be negative"))
	}
	return errors.Join(errs...)
}

// ConfigService handles configuration management
type ConfigService interface {
	Load() (*Config, error)
	Save(config *Config) error
	LoadFromPath(path string) (*Config, error)
	SaveToPath(config *Config, path string) error
	Path() string
}

// configService is the concrete implementation
type configService struct {
	bus      eventbus.EventBus
	filePath string
}

// DefaultPath returns $XDG_CONFIG_HOME/dealgrip/config.toml or its fallback
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to home directory
		configDir, err = os.UserHomeDir()
		if err != nil {
			configDir = "."
		}
		configDir = filepath.Join(configDir, ".config")
	}
	return filepath.Join(configDir, "dealgrip", "config.toml")
}

// NewConfigService creates a config service for the default path
func NewConfigService() ConfigService {
	return &configService{filePath: DefaultPath()}
}

// NewConfigServiceWithPath creates a config service for path; empty means
// the default path
func NewConfigServiceWithPath(path string, bus eventbus.EventBus) ConfigService {
	if path == "" {
		path = DefaultPath()
	}
	return &configService{filePath: path, bus: bus}
}

// NewConfigServiceWithBus creates a config service with event bus support
func NewConfigServiceWithBus(bus eventbus.EventBus) ConfigService {
	return NewConfigServiceWithPath("", bus)
}

func (cs *configService) Path() string {
	return cs.filePath
}

// Load loads the configuration file, falling back to defaults when it
// does not exist
func (cs *configService) Load() (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(cs.filePath); errors.Is(err, os.ErrNotExist) {
		cfg = DefaultConfig()
	} else {
		cfg, err = cs.LoadFromPath(cs.filePath)
		if err != nil {
			return nil, err
		}
	}

	if cs.bus != nil {
		cs.bus.Publish(eventbus.ConfigLoadedEvent{Path: cs.filePath})
	}
	return cfg, nil
}

// Save saves the configuration to file
func (cs *configService) Save(config *Config) error {
	if err := cs.SaveToPath(config, cs.filePath); err != nil {
		return err
	}

	if cs.bus != nil {
		cs.bus.Publish(eventbus.ConfigSavedEvent{Path: cs.filePath})
	}
	return nil
}

// LoadFromPath loads configuration from a specific path. Keys missing
// from the file keep their default values.
func (cs *configService) LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToPath saves configuration to a specific path
func (cs *configService) SaveToPath(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// the file may hold an API token
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			Timeout:    Duration(10 * time.Second),
			MaxRetries: 3,
		},
		Search: SearchConfig{
			Delay:          Duration(800 * time.Millisecond),
			QuickDelay:     Duration(300 * time.Millisecond),
			RateLimit:      Duration(800 * time.Millisecond),
			MinQueryLength: 3,
			PageSize:       20,
		},
		Cache: CacheConfig{
			Capacity:   512,
			StaleAfter: Duration(5 * time.Minute),
		},
		UI: UISettings{
			PrefetchDistance: 3,
			ShowShop:         true,
		},
	}
}
