package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "dev-only-secret-change-me-0123456789abcdef"

// Config representa as configurações da aplicação
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	App       AppConfig       `mapstructure:"app"`
	Slug      SlugConfig      `mapstructure:"slug"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       string `mapstructure:"db"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig is optional; an empty Addr disables the cache and the shared rate limiter.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type AppConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	Environment    string   `mapstructure:"env"`
	AllowAnonymous bool     `mapstructure:"allow_anonymous"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SlugConfig struct {
	Length      int `mapstructure:"length"`
	MaxLength   int `mapstructure:"max_length"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	LokiURL string `mapstructure:"loki_url"`
}

// TelemetryConfig follows the standard OTEL_* variable names.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoadConfig carrega as variáveis de ambiente e retorna uma estrutura Config
func LoadConfig() (*Config, error) {
	// Carrega variáveis de ambiente do arquivo .env, se existir
	_ = godotenv.Load()

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys whose environment names predate the nested layout.
	_ = v.BindEnv("app.env", "ENV")
	_ = v.BindEnv("app.base_url", "BASE_URL")
	_ = v.BindEnv("app.allow_anonymous", "ALLOW_ANONYMOUS")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("log.loki_url", "LOKI_URL")
	_ = v.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Postgres.URL == "" {
		if cfg.Postgres.Host == "" || cfg.Postgres.User == "" || cfg.Postgres.DB == "" {
			return nil, fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
		}
		cfg.Postgres.URL = buildPostgresURL(cfg.Postgres)
	}

	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")

	if cfg.JWT.Secret == "" && !cfg.IsProduction() {
		cfg.JWT.Secret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.db", "")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.sslmode", "prefer")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.issuer", "shortly")

	v.SetDefault("app.base_url", "")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.allow_anonymous", false)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("slug.length", 6)
	v.SetDefault("slug.max_length", 32)
	v.SetDefault("slug.max_attempts", 10)

	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.loki_url", "")

	v.SetDefault("telemetry.service_name", "shortly")
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	switch c.App.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("invalid environment: %s (must be development, production, or testing)", c.App.Environment)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.IsProduction() && len(c.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}

	if c.Slug.Length < 1 || c.Slug.Length > c.Slug.MaxLength {
		return fmt.Errorf("slug length %d must be between 1 and %d", c.Slug.Length, c.Slug.MaxLength)
	}
	if c.Slug.MaxAttempts < 1 {
		return errors.New("SLUG_MAX_ATTEMPTS must be at least 1")
	}

	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit requests and window must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(pg PostgresConfig) string {
	// Escape credentials; passwords may contain @, / or :
	user := url.User(pg.User)
	if pg.Password != "" {
		user = url.UserPassword(pg.User, pg.Password)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     net.JoinHostPort(pg.Host, strconv.Itoa(pg.Port)),
		Path:     "/" + pg.DB,
		RawQuery: url.Values{"sslmode": {pg.SSLMode}}.Encode(),
	}
	return u.String()
}
