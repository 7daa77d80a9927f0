package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the mascot service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Poll      PollConfig      `mapstructure:"poll"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Liveness  LivenessConfig  `mapstructure:"liveness"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// StaticDir, when set, is served at "/" so the chat widget and its
	// links.json can live next to the API.
	StaticDir string `mapstructure:"static_dir"`
}

// AssistantConfig describes the remote thread/run service.
type AssistantConfig struct {
	APIKey               string        `mapstructure:"api_key"`
	AssistantID          string        `mapstructure:"assistant_id"`
	BaseURL              string        `mapstructure:"base_url"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	FollowupInstructions string        `mapstructure:"followup_instructions"`
}

// ConfigurationError reports a required setting that is missing.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Key)
}

// Validate reports the first missing credential. It is checked per request so
// a misconfigured deployment answers with a clear error instead of failing
// halfway through a turn.
func (a AssistantConfig) Validate() error {
	if strings.TrimSpace(a.APIKey) == "" {
		return &ConfigurationError{Key: "assistant.api_key (OPENAI_API_KEY)"}
	}
	if strings.TrimSpace(a.AssistantID) == "" {
		return &ConfigurationError{Key: "assistant.assistant_id (OPENAI_ASSISTANT_ID)"}
	}
	return nil
}

// PollConfig tunes the deadline governor. Backoff constants are tunables,
// not contracts.
type PollConfig struct {
	Deadline     time.Duration `mapstructure:"deadline"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

func (p PollConfig) Normalize() PollConfig {
	if p.Deadline <= 0 {
		p.Deadline = DefaultDeadline
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// RegistryConfig locates the static links.json document. URL may be
// relative, in which case it is resolved against Origin, or against the
// request origin when Origin is empty. Path takes precedence over URL when
// both are set.
type RegistryConfig struct {
	URL      string        `mapstructure:"url"`
	Origin   string        `mapstructure:"origin"`
	Path     string        `mapstructure:"path"`
	TTL      time.Duration `mapstructure:"ttl"`
	StaleTTL time.Duration `mapstructure:"stale_ttl"`
}

func (r RegistryConfig) Normalize() RegistryConfig {
	r.URL = strings.TrimSpace(r.URL)
	r.Path = strings.TrimSpace(r.Path)
	r.Origin = strings.TrimRight(strings.TrimSpace(r.Origin), "/")
	if r.URL == "" && r.Path == "" {
		r.URL = DefaultRegistryURL
	}
	if r.TTL <= 0 {
		r.TTL = DefaultRegistryTTL
	}
	if r.StaleTTL < r.TTL {
		r.StaleTTL = DefaultRegistryStaleTTL
	}
	return r
}

// SourcesConfig controls curation output.
type SourcesConfig struct {
	Max          int      `mapstructure:"max"`
	PreferredIDs []string `mapstructure:"preferred_ids"`
}

func (s SourcesConfig) Normalize() SourcesConfig {
	if s.Max <= 0 {
		s.Max = DefaultMaxSources
	}
	ids := make([]string, 0, len(s.PreferredIDs))
	for _, id := range s.PreferredIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	s.PreferredIDs = ids
	return s
}

// LivenessConfig controls reachability checks of curated links.
type LivenessConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TTL            time.Duration `mapstructure:"ttl"`
	Concurrency    int           `mapstructure:"concurrency"`
	TrustedDomains []string      `mapstructure:"trusted_domains"`
	BlockedDomains []string      `mapstructure:"blocked_domains"`
}

// StorageConfig contains cache backend settings. With no Redis host the
// caches live in process memory.
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when storage.redis.host is set")
	}
	return nil
}

// TelemetryConfig toggles the Prometheus endpoint.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads an optional JSON config file and overlays MASCOT_*
// environment variables. An empty path searches ./config and the working
// directory; a missing file is not an error since deployments are usually
// configured through the environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.SetConfigName("mascot")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("MASCOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by the hosting platform's secret store.
	_ = v.BindEnv("assistant.api_key", "MASCOT_ASSISTANT_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("assistant.assistant_id", "MASCOT_ASSISTANT_ASSISTANT_ID", "OPENAI_ASSISTANT_ID")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Poll = cfg.Poll.Normalize()
	cfg.Registry = cfg.Registry.Normalize()
	cfg.Sources = cfg.Sources.Normalize()
	cfg.Liveness = cfg.Liveness.Normalize()
	if cfg.Assistant.RequestTimeout <= 0 {
		cfg.Assistant.RequestTimeout = DefaultRequestTimeout
	}
	if strings.TrimSpace(cfg.Assistant.BaseURL) == "" {
		cfg.Assistant.BaseURL = DefaultBaseURL
	}

	if err := cfg.Liveness.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_pretty", false)
	v.SetDefault("server.address", DefaultAddress)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.static_dir", "")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.assistant_id", "")
	v.SetDefault("assistant.base_url", DefaultBaseURL)
	v.SetDefault("assistant.request_timeout", DefaultRequestTimeout)
	v.SetDefault("assistant.followup_instructions", DefaultFollowupInstructions)
	v.SetDefault("poll.deadline", DefaultDeadline)
	v.SetDefault("poll.initial_delay", DefaultInitialDelay)
	v.SetDefault("poll.multiplier", DefaultMultiplier)
	v.SetDefault("poll.max_delay", DefaultMaxDelay)
	v.SetDefault("registry.url", DefaultRegistryURL)
	v.SetDefault("registry.origin", "")
	v.SetDefault("registry.path", "")
	v.SetDefault("registry.ttl", DefaultRegistryTTL)
	v.SetDefault("registry.stale_ttl", DefaultRegistryStaleTTL)
	v.SetDefault("sources.max", DefaultMaxSources)
	v.SetDefault("sources.preferred_ids", DefaultPreferredIDs)
	v.SetDefault("liveness.enabled", false)
	v.SetDefault("liveness.timeout", DefaultLivenessTimeout)
	v.SetDefault("liveness.ttl", DefaultLivenessTTL)
	v.SetDefault("liveness.concurrency", DefaultLivenessConcurrency)
	v.SetDefault("liveness.trusted_domains", []string{})
	v.SetDefault("liveness.blocked_domains", []string{})
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 3*time.Second)
	v.SetDefault("telemetry.enabled", true)
}
