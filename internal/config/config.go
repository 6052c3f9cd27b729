package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JustTCG   JustTCGConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	CORSOrigins     string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	DefaultUser     string        `envconfig:"DEFAULT_USER_EMAIL" default:"collector@localhost"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path    string `envconfig:"DB_PATH" default:"./mythicstats.db"`
	LogSQL  bool   `envconfig:"DB_LOG_SQL" default:"false"`
	Migrate bool   `envconfig:"DB_MIGRATE" default:"true"`
}

// JustTCGConfig holds upstream pricing API settings.
type JustTCGConfig struct {
	APIKey         string        `envconfig:"JUSTTCG_API_KEY" default:""`
	BaseURL        string        `envconfig:"JUSTTCG_BASE_URL" default:"https://api.justtcg.com/v1"`
	Timeout        time.Duration `envconfig:"JUSTTCG_TIMEOUT" default:"10s"`
	MaxAttempts    int           `envconfig:"JUSTTCG_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"JUSTTCG_INITIAL_BACKOFF" default:"1s"`
	SetCacheSize   int           `envconfig:"JUSTTCG_SET_CACHE_SIZE" default:"512"`
}

// QueueConfig selects and configures the job transport.
type QueueConfig struct {
	Type          string        `envconfig:"QUEUE_TYPE" default:"memory"` // memory or redis
	Name          string        `envconfig:"QUEUE_NAME" default:"mythicstats-jobs"`
	MaxAttempts   int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"QUEUE_RETRY_BACKOFF" default:"2s"`
	Lease         time.Duration `envconfig:"QUEUE_LEASE" default:"1h"`
	PollInterval  time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

// SchedulerConfig holds the repeat intervals of the periodic jobs.
type SchedulerConfig struct {
	Enabled          bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	DiscoverInterval time.Duration `envconfig:"SCHEDULE_DISCOVER_SETS" default:"168h"`
	SyncInterval     time.Duration `envconfig:"SCHEDULE_SYNC_TRACKED_SETS" default:"168h"`
	PriceInterval    time.Duration `envconfig:"SCHEDULE_UPDATE_PRICES" default:"1h"`
	CheckInterval    time.Duration `envconfig:"SCHEDULE_CHECK_INTERVAL" default:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
	Caller bool   `envconfig:"LOG_CALLER" default:"false"`
}

// Address returns the listen address for the HTTP server.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (s *ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// RedisAddress returns the Redis address in host:port format.
func (q *QueueConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", q.RedisHost, q.RedisPort)
}

// Validate rejects settings the worker cannot run with.
func (c *Config) Validate() error {
	switch c.Queue.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown QUEUE_TYPE %q (want memory or redis)", c.Queue.Type)
	}
	if c.JustTCG.MaxAttempts < 1 {
		return fmt.Errorf("JUSTTCG_MAX_ATTEMPTS must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
