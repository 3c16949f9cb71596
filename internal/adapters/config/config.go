package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Logging    LoggingConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Telegram   TelegramConfig
	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Pinecone   PineconeConfig
	ClickHouse ClickHouseConfig
	Market     MarketConfig
	Engine     EngineConfig
	Security   SecurityConfig
	Health     HealthConfig
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"tradefork"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig represents cache connection parameters
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// TelegramConfig represents messenger configuration
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
}

// AnthropicConfig represents the LLM provider configuration.
// FastModel serves chat-grade calls, DeepModel the signal judge and
// trade reasoning.
type AnthropicConfig struct {
	APIKey    string        `envconfig:"ANTHROPIC_API_KEY" required:"true"`
	FastModel string        `envconfig:"ANTHROPIC_FAST_MODEL" default:"claude-sonnet-4-5-20250929"`
	DeepModel string        `envconfig:"ANTHROPIC_DEEP_MODEL" default:"claude-opus-4-6"`
	Timeout   time.Duration `envconfig:"ANTHROPIC_TIMEOUT" default:"120s"`
}

// OpenAIConfig holds the embeddings provider key
type OpenAIConfig struct {
	APIKey string `envconfig:"OPENAI_API_KEY" default:""`
}

// PineconeConfig represents vector index configuration
type PineconeConfig struct {
	APIKey    string `envconfig:"PINECONE_API_KEY" default:""`
	IndexHost string `envconfig:"PINECONE_INDEX_HOST" default:""`
	Dimension int    `envconfig:"PINECONE_DIMENSION" default:"1024"`
}

// ClickHouseConfig represents the analytics sink
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Addr     string `envconfig:"CLICKHOUSE_ADDR" default:"localhost:9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"tradefork"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
}

// MarketConfig holds public data source keys
type MarketConfig struct {
	CryptoPanicAPIKey string `envconfig:"CRYPTOPANIC_API_KEY" default:""`
	TavilyAPIKey      string `envconfig:"TAVILY_API_KEY" default:""`
	WebsocketEnabled  bool   `envconfig:"MARKET_WEBSOCKET_ENABLED" default:"true"`
}

// EngineConfig holds monitoring cadences and policy limits
type EngineConfig struct {
	HotPollInterval   time.Duration `envconfig:"HOT_POLL_INTERVAL" default:"10s"`
	WarmPollInterval  time.Duration `envconfig:"WARM_POLL_INTERVAL" default:"30m"`
	HotThresholdDays  int           `envconfig:"HOT_THRESHOLD_DAYS" default:"7"`
	WarmThresholdDays int           `envconfig:"WARM_THRESHOLD_DAYS" default:"30"`

	TradePollInterval    time.Duration `envconfig:"TRADE_POLL_INTERVAL" default:"30s"`
	DustThresholdPercent float64       `envconfig:"DUST_THRESHOLD_PERCENT" default:"1.0"`

	PatrolInterval   time.Duration `envconfig:"PRO_PATROL_INTERVAL" default:"1h"`
	DailySignalLimit int           `envconfig:"PRO_DAILY_SIGNAL_LIMIT" default:"5"`
	MaxExchanges     int           `envconfig:"PRO_MAX_EXCHANGES" default:"3"`
}

// SecurityConfig holds the credential cipher key
type SecurityConfig struct {
	// Base64-encoded 32-byte AES key
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
}

// HealthConfig represents the health server
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8080"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid. These are fatal
// configuration states; the scheduler never starts on failure.
func (c *Config) Validate() error {
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic api key is required")
	}

	if c.Engine.HotPollInterval <= 0 {
		return fmt.Errorf("hot poll interval must be positive")
	}
	if c.Engine.WarmPollInterval < c.Engine.HotPollInterval {
		return fmt.Errorf("warm poll interval must not be shorter than hot poll interval")
	}
	if c.Engine.HotThresholdDays <= 0 || c.Engine.WarmThresholdDays <= c.Engine.HotThresholdDays {
		return fmt.Errorf("temperature thresholds must satisfy 0 < hot < warm")
	}
	if c.Engine.DustThresholdPercent < 0 || c.Engine.DustThresholdPercent > 100 {
		return fmt.Errorf("dust threshold must be between 0 and 100")
	}
	if c.Engine.DailySignalLimit < 1 {
		return fmt.Errorf("daily signal limit must be at least 1")
	}

	if c.Pinecone.APIKey != "" && c.Pinecone.IndexHost == "" {
		return fmt.Errorf("pinecone index host is required when pinecone api key is set")
	}

	return nil
}

// WarmCycleEvery returns how many hot cycles pass between warm polls
func (c *EngineConfig) WarmCycleEvery() int {
	n := int(c.WarmPollInterval / c.HotPollInterval)
	if n < 1 {
		n = 1
	}
	return n
}
