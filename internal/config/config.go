package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

// Config is the complete runtime configuration of the API process.
type Config struct {
	HTTPAddr string `yaml:"httpAddr"`
	Dev      bool   `yaml:"dev"`

	DatabaseURL            string `yaml:"databaseURL"`
	DatabaseMaxConns       int    `yaml:"databaseMaxConns"`
	DatabaseTimeZone       string `yaml:"databaseTimeZone"`
	DatabaseClientEncoding string `yaml:"databaseClientEncoding"`

	TokenSecret   string        `yaml:"tokenSecret"`
	TokenTTL      time.Duration `yaml:"tokenTTL"`
	TokenIssuer   string        `yaml:"tokenIssuer"`
	TokenAudience string        `yaml:"tokenAudience"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SnowflakeNode int64 `yaml:"snowflakeNode"`
	BcryptCost    int   `yaml:"bcryptCost"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr:         "0.0.0.0:8431",
		DatabaseURL:      database.DefaultDSN,
		DatabaseMaxConns: 5,
		TokenTTL:         24 * time.Hour,
		TokenIssuer:      "pitchfork-library",
		TokenAudience:    "pitchfork-library-api",
		SnowflakeNode:    1,
		BcryptCost:       12,
	}
}

// Load builds the configuration from defaults, an optional YAML file
// (CONFIG_FILE), a .env file if present and finally the process environment.
func Load() (Config, error) {
	// best-effort: a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if os.Getenv("LOG_DEV") == "1" {
		cfg.Dev = true
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DATABASE_TIMEZONE"); v != "" {
		cfg.DatabaseTimeZone = v
	}
	if v := os.Getenv("DATABASE_CLIENT_ENCODING"); v != "" {
		cfg.DatabaseClientEncoding = v
	}
	if v := os.Getenv("AUTH_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: AUTH_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if v := os.Getenv("AUTH_TOKEN_ISSUER"); v != "" {
		cfg.TokenIssuer = v
	}
	if v := os.Getenv("AUTH_TOKEN_AUDIENCE"); v != "" {
		cfg.TokenAudience = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: SNOWFLAKE_NODE: %w", err)
		}
		cfg.SnowflakeNode = n
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: BCRYPT_COST: %w", err)
		}
		cfg.BcryptCost = n
	}
	return nil
}

// Validate reports configuration that cannot produce a working server.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: httpAddr is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: databaseURL is required")
	}
	if c.TokenSecret == "" && !c.Dev {
		return errors.New("config: tokenSecret is required (set AUTH_TOKEN_SECRET)")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: tokenTTL must be positive")
	}
	return nil
}

// Database returns the connection settings for pkg/database.
func (c Config) Database() database.Config {
	return database.Config{
		DSN:            c.DatabaseURL,
		MaxConns:       c.DatabaseMaxConns,
		Timeout:        5 * time.Second,
		TimeZone:       c.DatabaseTimeZone,
		ClientEncoding: c.DatabaseClientEncoding,
	}
}
