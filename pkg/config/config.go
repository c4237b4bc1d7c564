// Package config loads process settings from defaults, an optional config
// file and A2UI_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "A2UI"

// Broker kinds.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// MemoryDatabase as database_url keeps surfaces and providers in process.
const MemoryDatabase = "memory"

// Video-room providers. RoomsAuto selects daily when an API key is set and
// confirms bookings without rooms otherwise.
const (
	RoomsAuto  = "auto"
	RoomsDaily = "daily"
	RoomsFake  = "fake"
)

// Vector stores backing semantic provider search.
const (
	VectorStoreMemory   = "memory"
	VectorStoreChromaDB = "chromadb"
)

// Action delivery modes for clients.
const (
	ActionModeBroadcast = "broadcast"
	ActionModeHTTP      = "http"
)

// Config is the resolved process configuration.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	DatabaseURL  string        `mapstructure:"database_url"`
	Broker       string        `mapstructure:"broker"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	OtelStdout   bool          `mapstructure:"otel_stdout"`
	RoomsAPIURL  string        `mapstructure:"rooms_api_url"`
	RoomsAPIKey  string        `mapstructure:"rooms_api_key"`
	Rooms        string        `mapstructure:"rooms"`
	Narrator     string        `mapstructure:"narrator"`
	NarratorLLM  string        `mapstructure:"narrator_model"`
	ActionMode   string        `mapstructure:"action_mode"`
	CachePath    string        `mapstructure:"cache_path"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	ProviderSeed string        `mapstructure:"provider_seed"`
	PromptsFile  string        `mapstructure:"prompts_file"`

	// Embedder enables semantic provider search when set.
	Embedder       string `mapstructure:"embedder"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	VectorStore    string `mapstructure:"vector_store"`
	ChromaDBURL    string `mapstructure:"chromadb_url"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "sqlite:file:a2ui.db?_pragma=foreign_keys(1)")
	v.SetDefault("broker", BrokerMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_stdout", false)
	v.SetDefault("rooms_api_url", "")
	v.SetDefault("rooms_api_key", "")
	v.SetDefault("rooms", RoomsAuto)
	v.SetDefault("narrator", "template")
	v.SetDefault("narrator_model", "")
	v.SetDefault("action_mode", ActionModeBroadcast)
	v.SetDefault("cache_path", "")
	v.SetDefault("cache_ttl", 7*24*time.Hour)
	v.SetDefault("provider_seed", "")
	v.SetDefault("prompts_file", "")
	v.SetDefault("embedder", "")
	v.SetDefault("embedding_model", "")
	v.SetDefault("vector_store", VectorStoreMemory)
	v.SetDefault("chromadb_url", "")
}

// New returns a viper instance wired for defaults and A2UI_* env vars.
// When file is non-empty it is read as well.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return c, c.Validate()
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Broker {
	case BrokerMemory, BrokerRedis:
	default:
		return fmt.Errorf("config: unknown broker %q", c.Broker)
	}
	switch c.ActionMode {
	case ActionModeBroadcast, ActionModeHTTP:
	default:
		return fmt.Errorf("config: unknown action_mode %q", c.ActionMode)
	}
	switch c.Narrator {
	case "template", "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown narrator %q", c.Narrator)
	}
	switch c.Rooms {
	case RoomsAuto, RoomsFake:
	case RoomsDaily:
		if c.RoomsAPIKey == "" {
			return fmt.Errorf("config: daily rooms require rooms_api_key")
		}
	default:
		return fmt.Errorf("config: unknown rooms %q", c.Rooms)
	}
	switch c.Embedder {
	case "", "fake", "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown embedder %q", c.Embedder)
	}
	switch c.VectorStore {
	case VectorStoreMemory, VectorStoreChromaDB:
	default:
		return fmt.Errorf("config: unknown vector_store %q", c.VectorStore)
	}
	if c.Broker == BrokerRedis && c.RedisAddr == "" {
		return fmt.Errorf("config: redis broker requires redis_addr")
	}
	return nil
}
