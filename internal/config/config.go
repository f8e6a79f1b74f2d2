// Package config loads collabgraph settings from defaults, an optional YAML
// file, environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/collabgraph/internal/checkpoint"
	"github.com/Sternrassler/collabgraph/internal/collab"
	"github.com/Sternrassler/collabgraph/internal/harvest"
	"github.com/Sternrassler/collabgraph/pkg/client"
	"github.com/Sternrassler/collabgraph/pkg/logging"
	"github.com/Sternrassler/collabgraph/pkg/ratelimit"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. COLLABGRAPH_LOG_LEVEL.
const EnvPrefix = "COLLABGRAPH"

// Config holds application configuration.
type Config struct {
	Spotify    SpotifyConfig
	RateLimit  ratelimit.Config
	Retry      client.RetryConfig
	Harvest    harvest.Config
	Pipeline   PipelineConfig
	Checkpoint checkpoint.Config
	Cache      CacheConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Neo4j      Neo4jConfig
}

// SpotifyConfig holds API access settings.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Market       string
	Timeout      time.Duration
}

// Credentials returns the client-credentials grant settings.
func (s SpotifyConfig) Credentials() client.Credentials {
	return client.Credentials{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     s.TokenURL,
	}
}

// PipelineConfig holds the run inputs and outputs.
type PipelineConfig struct {
	Mode   collab.Mode
	Roster string
	Output string
}

// CacheConfig enables the Redis response cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Pretty bool
	File   string
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string
}

// Neo4jConfig holds graph export settings.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// New returns a viper instance with defaults and environment bindings set.
// Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	rl := ratelimit.DefaultConfig()
	retry := client.DefaultRetryConfig()
	hv := harvest.DefaultConfig()

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.base_url", client.DefaultBaseURL)
	v.SetDefault("spotify.token_url", client.DefaultTokenURL)
	v.SetDefault("spotify.market", "US")
	v.SetDefault("spotify.timeout", 15*time.Second)

	v.SetDefault("ratelimit.max_requests", rl.MaxRequests)
	v.SetDefault("ratelimit.window", rl.Window)
	v.SetDefault("ratelimit.buffer", rl.Buffer)
	v.SetDefault("ratelimit.min_interval", rl.MinInterval)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)

	v.SetDefault("harvest.page_size", hv.PageSize)
	v.SetDefault("harvest.max_albums", hv.MaxAlbums)
	v.SetDefault("harvest.batch_size", hv.BatchSize)
	v.SetDefault("harvest.track_page_size", hv.TrackPageSize)

	v.SetDefault("pipeline.mode", string(collab.ModeEgo))
	v.SetDefault("pipeline.roster", "merged_top_artists.csv")
	v.SetDefault("pipeline.output", "artist_collaborators_network.csv")

	v.SetDefault("checkpoint.backend", checkpoint.BackendCSV)
	v.SetDefault("checkpoint.sqlite_path", "collabgraph.db")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", true)
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The bare names are what existing setups already export.
	_ = v.BindEnv("spotify.client_id", EnvPrefix+"_SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_ID")
	_ = v.BindEnv("spotify.client_secret", EnvPrefix+"_SPOTIFY_CLIENT_SECRET", "SPOTIFY_CLIENT_SECRET")

	return v
}

// Load reads configFile, or collabgraph.yaml from the working directory or
// the user config directory when configFile is empty, and maps v into a
// Config. A missing default file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("collabgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	mode, err := collab.ParseMode(v.GetString("pipeline.mode"))
	if err != nil {
		return nil, fmt.Errorf("pipeline.mode: %w", err)
	}

	cfg := &Config{
		Spotify: SpotifyConfig{
			ClientID:     v.GetString("spotify.client_id"),
			ClientSecret: v.GetString("spotify.client_secret"),
			BaseURL:      v.GetString("spotify.base_url"),
			TokenURL:     v.GetString("spotify.token_url"),
			Market:       v.GetString("spotify.market"),
			Timeout:      v.GetDuration("spotify.timeout"),
		},
		RateLimit: ratelimit.Config{
			MaxRequests: v.GetInt("ratelimit.max_requests"),
			Window:      v.GetDuration("ratelimit.window"),
			Buffer:      v.GetDuration("ratelimit.buffer"),
			MinInterval: v.GetDuration("ratelimit.min_interval"),
		},
		Retry: client.RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
		},
		Harvest: harvest.Config{
			PageSize:      v.GetInt("harvest.page_size"),
			MaxAlbums:     v.GetInt("harvest.max_albums"),
			BatchSize:     v.GetInt("harvest.batch_size"),
			TrackPageSize: v.GetInt("harvest.track_page_size"),
		},
		Pipeline: PipelineConfig{
			Mode:   mode,
			Roster: v.GetString("pipeline.roster"),
			Output: v.GetString("pipeline.output"),
		},
		Checkpoint: checkpoint.Config{
			Backend:    v.GetString("checkpoint.backend"),
			CSVPath:    v.GetString("pipeline.output"),
			SQLitePath: v.GetString("checkpoint.sqlite_path"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
			File:   v.GetString("log.file"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Neo4j: Neo4jConfig{
			URI:      v.GetString("neo4j.uri"),
			User:     v.GetString("neo4j.user"),
			Password: v.GetString("neo4j.password"),
			Database: v.GetString("neo4j.database"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that do not depend on the command being run.
// Credentials are checked by the harvest command.
func (c *Config) Validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Harvest.Validate(); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Checkpoint.Backend) {
	case checkpoint.BackendCSV, checkpoint.BackendSQLite:
	default:
		return fmt.Errorf("checkpoint.backend: %w: %q", checkpoint.ErrUnknownBackend, c.Checkpoint.Backend)
	}
	if c.Spotify.Timeout <= 0 {
		return fmt.Errorf("spotify.timeout must be positive (got %s)", c.Spotify.Timeout)
	}
	return nil
}

// Dir returns the user configuration directory for collabgraph.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "collabgraph")
}
