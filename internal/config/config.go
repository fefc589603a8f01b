// Package config loads the raidcore gateway's configuration: a JSON5 file
// (comments and trailing commas allowed, matching the teacher's config
// format) overlaid with environment variables bound through struct tags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// Config is the root configuration for the raidcore gateway.
type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis,omitempty"`
	Sessions    SessionsConfig    `json:"sessions"`
	Raids       RaidsConfig       `json:"raids"`
	Ingress     IngressConfig     `json:"ingress"`
	Memory      MemoryConfig      `json:"memory"`
	Bus         BusConfig         `json:"bus"`
	Prompt      PromptConfig      `json:"prompt"`
	Platforms   PlatformsConfig   `json:"platforms"`
	ModelEngine ModelEngineConfig `json:"model_engine"`
}

// GatewayConfig configures the HTTP/WS surface.
type GatewayConfig struct {
	Host              string   `json:"host" env:"GATEWAY_HOST" envDefault:"0.0.0.0"`
	Port              int      `json:"port" env:"GATEWAY_PORT" envDefault:"8080"`
	Token             string   `json:"-" env:"GATEWAY_TOKEN"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty" env:"GATEWAY_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownGraceMS   int      `json:"shutdown_grace_ms" env:"SHUTDOWN_GRACE_MS" envDefault:"15000"`
	MetricsPath       string   `json:"metrics_path" env:"METRICS_PATH" envDefault:"/metrics"`
}

// DatabaseConfig configures the two datastore-router pools.
// DSNs are secrets — read from env only, never persisted to the config file.
type DatabaseConfig struct {
	TxDSN       string `json:"-" env:"DATABASE_TX_DSN"`
	SessDSN     string `json:"-" env:"DATABASE_SESS_DSN"`
	PoolTxSize  int    `json:"pool_tx_size" env:"POOL_TX_SIZE" envDefault:"20"`
	PoolSessSize int   `json:"pool_sess_size" env:"POOL_SESS_SIZE" envDefault:"5"`
	// StandaloneDir: when set (and no DSNs configured), the router runs
	// against two modernc.org/sqlite files in this directory instead of
	// Postgres — local-dev / test mode, matching the teacher's
	// standalone/managed split.
	StandaloneDir string `json:"standalone_dir,omitempty" env:"STANDALONE_DIR" envDefault:"~/.raidcore/standalone"`
}

// IsStandalone reports whether the router should use the embedded sqlite
// backend instead of Postgres.
func (d DatabaseConfig) IsStandalone() bool {
	return d.TxDSN == "" && d.SessDSN == ""
}

// RedisConfig configures the optional Redis-backed dedup/rate-limit cache.
type RedisConfig struct {
	Addr string `json:"-" env:"REDIS_ADDR"`
}

// Enabled reports whether Redis-backed dedup/rate-limiting should be used.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// SessionsConfig configures Session Manager defaults.
type SessionsConfig struct {
	TimeoutMSDefault int `json:"timeout_ms_default" env:"TIMEOUT_MS_DEFAULT" envDefault:"600000"`
	SweepIntervalMS  int `json:"sweep_interval_ms" env:"SWEEP_INTERVAL_MS" envDefault:"60000"`
	RetentionMS      int `json:"retention_ms" envDefault:"86400000"`
}

// RaidsConfig configures Raid Coordinator defaults.
type RaidsConfig struct {
	PollIntervalMS       int `json:"poll_interval_ms" env:"VERIFY_POLL_INTERVAL_MS" envDefault:"30000"`
	VerifyLatencyMinMS   int `json:"verify_latency_min_ms" envDefault:"3000"`
	MaxInFlightVerifyPerRaid int `json:"max_inflight_verify_per_raid" envDefault:"4"`
}

// IngressConfig configures Ingress Pipeline defaults.
type IngressConfig struct {
	RateLimitPerMin int `json:"rate_limit_per_min" env:"RATE_LIMIT_PER_MIN" envDefault:"100"`
	DedupTTLMS      int `json:"dedup_ttl_ms" env:"DEDUP_TTL_MS" envDefault:"300000"`
	RateLimitEventsToBlocklist int `json:"rate_limit_events_to_blocklist" envDefault:"5"`
	// BlocklistFile, if set, is hot-reloaded via config.WatchBlocklistFile
	// into the ingress Blocklist without a restart.
	BlocklistFile string `json:"blocklist_file,omitempty" env:"INGRESS_BLOCKLIST_FILE"`
}

// MemoryConfig configures the Memory Store.
type MemoryConfig struct {
	EmbeddingDim int `json:"embedding_dim" env:"EMBEDDING_DIM" envDefault:"384"`
}

// BusConfig configures the Event Bus.
type BusConfig struct {
	SubscriptionQueueSize int `json:"subscription_queue_size" envDefault:"256"`
	WebSocketWriteTimeoutMS int `json:"websocket_write_timeout_ms" envDefault:"2000"`
}

// PromptConfig configures the Prompt Composer/Dispatcher's default model
// params and humanization post-processing rates.
type PromptConfig struct {
	ModelEngineTimeoutMS int     `json:"model_engine_timeout_ms" envDefault:"30000"`
	Temperature          float64 `json:"temperature" envDefault:"0.7"`
	TopP                 float64 `json:"top_p" envDefault:"1.0"`
	FrequencyPenalty     float64 `json:"frequency_penalty" envDefault:"0"`
	PresencePenalty      float64 `json:"presence_penalty" envDefault:"0"`
	HistoryLimit         int     `json:"history_limit" envDefault:"20"`
	TypoRate             float64 `json:"typo_rate" envDefault:"0"`
	ContradictionRate    float64 `json:"contradiction_rate" envDefault:"0"`
}

// PlatformsConfig carries per-platform ingress-adapter and
// verification-adapter credentials. Secrets are env-only, never
// persisted to the config file; a platform with an empty bot token is
// simply not registered by internal/app at startup.
type PlatformsConfig struct {
	Discord DiscordConfig `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	WebScrapeFallback bool `json:"web_scrape_fallback" env:"RAID_WEBSCRAPE_FALLBACK" envDefault:"false"`
}

type DiscordConfig struct {
	BotToken     string `json:"-" env:"DISCORD_BOT_TOKEN"`
	PublicKeyHex string `json:"-" env:"DISCORD_PUBLIC_KEY"`
}

func (d DiscordConfig) Enabled() bool { return d.BotToken != "" && d.PublicKeyHex != "" }

type TelegramConfig struct {
	BotToken    string `json:"-" env:"TELEGRAM_BOT_TOKEN"`
	SecretToken string `json:"-" env:"TELEGRAM_SECRET_TOKEN"`
}

func (t TelegramConfig) Enabled() bool { return t.BotToken != "" }

type SlackConfig struct {
	BotToken      string `json:"-" env:"SLACK_BOT_TOKEN"`
	SigningSecret string `json:"-" env:"SLACK_SIGNING_SECRET"`
}

func (s SlackConfig) Enabled() bool { return s.BotToken != "" && s.SigningSecret != "" }

// ModelEngineConfig configures the out-of-scope model-engine HTTP
// boundary (internal/modelengine). An empty APIKey with a non-empty
// APIBase still works against local OpenAI-compatible servers that don't
// check auth; a wholly empty config falls back to the dependency-free
// EchoEngine so the gateway runs standalone without any LLM configured.
type ModelEngineConfig struct {
	APIBase string `json:"api_base,omitempty" env:"MODEL_ENGINE_API_BASE"`
	APIKey  string `json:"-" env:"MODEL_ENGINE_API_KEY"`
	Model   string `json:"model,omitempty" env:"MODEL_ENGINE_MODEL" envDefault:"gpt-4o-mini"`
}

func (m ModelEngineConfig) Enabled() bool { return m.APIBase != "" }

// Default returns a Config with spec-mandated defaults.
func Default() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg) // populate envDefault values even with no env vars set
	return cfg
}

// Load reads config from a JSON5 file (if present) and overlays environment
// variables, which always win — matching the teacher's Load() in
// internal/config/config_load.go.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: invalid gateway port %d", c.Gateway.Port)
	}
	if c.Database.PoolTxSize <= 0 || c.Database.PoolSessSize <= 0 {
		return fmt.Errorf("config: pool sizes must be positive")
	}
	if c.Memory.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}
	return nil
}

// ShutdownGrace returns the configured shutdown grace as a duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Gateway.ShutdownGraceMS) * time.Millisecond
}

// SessionTimeoutDefault returns the default session timeout as a duration.
func (c *Config) SessionTimeoutDefault() time.Duration {
	return time.Duration(c.Sessions.TimeoutMSDefault) * time.Millisecond
}

// SessionRetention returns how long a terminal-state session is kept
// before the sweep purges it.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.Sessions.RetentionMS) * time.Millisecond
}

// DedupTTL returns the Ingress Pipeline's duplicate-detection window.
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Ingress.DedupTTLMS) * time.Millisecond
}

// PromptTimeout returns the Dispatcher's model-engine call timeout.
func (c *Config) PromptTimeout() time.Duration {
	return time.Duration(c.Prompt.ModelEngineTimeoutMS) * time.Millisecond
}
