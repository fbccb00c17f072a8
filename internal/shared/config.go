package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Graph backends selectable in [GraphConfig.Backend].
const (
	GraphBackendSQLite = "sqlite"
	GraphBackendMemory = "memory"
)

// Storage drivers selectable in [StorageConfig.Driver].
const (
	StorageDriverBadger = "badger"
	StorageDriverFile   = "file"
	StorageDriverMemory = "memory"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Graph       GraphConfig       `toml:"graph"`
	Storage     StorageConfig     `toml:"storage"`
	Recommend   RecommendConfig   `toml:"recommend"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	AI      AIConfig      `toml:"ai"`
}

// SpotifyConfig contains Spotify API credentials.
//
// Search and recommendations only need client credentials; playlist ingestion needs a user access token.
type SpotifyConfig struct {
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	AccessToken  string  `toml:"access_token"`
	Market       string  `toml:"market"`
	RateLimit    float64 `toml:"rate_limit"`
}

// Map returns the credentials in the shape expected by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"access_token":  s.AccessToken,
		"market":        s.Market,
	}
}

// AIConfig contains settings for the OpenRouter-compatible suggestion endpoint.
type AIConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Timeout returns the configured request timeout.
func (a AIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// GraphConfig selects the preference graph backend.
type GraphConfig struct {
	Backend     string `toml:"backend"`
	SnapshotKey string `toml:"snapshot_key"`
}

// StorageConfig configures the key/value persistence port.
type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// RecommendConfig contains orchestrator tunables.
type RecommendConfig struct {
	ExclusionTTLSeconds int `toml:"exclusion_ttl_seconds"`
	VibeOptionTarget    int `toml:"vibe_option_target"`
	RescueTarget        int `toml:"rescue_target"`
	ExpandTarget        int `toml:"expand_target"`
}

// ExclusionTTL returns the exclusion cache lifetime.
func (r RecommendConfig) ExclusionTTL() time.Duration {
	if r.ExclusionTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.ExclusionTTLSeconds) * time.Second
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case GraphBackendSQLite, GraphBackendMemory:
	default:
		return fmt.Errorf("%w: unknown graph backend %q", ErrInvalidConfig, c.Graph.Backend)
	}

	switch c.Storage.Driver {
	case StorageDriverBadger, StorageDriverFile, StorageDriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes the configuration to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
