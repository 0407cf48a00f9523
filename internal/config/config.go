package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string
	AuthToken         string
	DBURL             string
	LogLevel          string
	MigrationsDir     string
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	RateLimitRPS      float64
	RateLimitBurst    int
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Its values act
// as defaults; environment variables win.
type fileConfig struct {
	Port          string `yaml:"port"`
	AuthToken     string `yaml:"auth_token"`
	DBURL         string `yaml:"db_url"`
	LogLevel      string `yaml:"log_level"`
	MigrationsDir string `yaml:"migrations_dir"`
	Server        struct {
		ReadTimeoutSecs  int `yaml:"read_timeout_secs"`
		WriteTimeoutSecs int `yaml:"write_timeout_secs"`
		IdleTimeoutSecs  int `yaml:"idle_timeout_secs"`
	} `yaml:"server"`
	DB struct {
		MaxConns               int  `yaml:"max_conns"`
		MinConns               int  `yaml:"min_conns"`
		MaxConnIdleSecs        int  `yaml:"max_conn_idle_secs"`
		MaxConnLifetimeSecs    int  `yaml:"max_conn_lifetime_secs"`
		ConnTimeoutSecs        int  `yaml:"conn_timeout_secs"`
		StatementCacheCapacity *int `yaml:"statement_cache_capacity"`
	} `yaml:"db"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Load reads configuration from .env files, the optional CONFIG_FILE and
// environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if err := cfg.validateDatabase(); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_BURST must be positive")
	}
	return cfg, nil
}

// LoadDatabase is Load for processes that only talk to the database, such
// as the migration CLI. AUTH_TOKEN and rate limits are not checked.
func LoadDatabase() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MigrationsDirectory resolves MIGRATIONS_DIR the same way Load does, without
// requiring database settings.
func MigrationsDirectory() (string, error) {
	cfg, err := read()
	if err != nil {
		return "", err
	}
	return cfg.MigrationsDir, nil
}

func read() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(payload, &file); err != nil {
			return Config{}, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}

	stmtCache := 256
	if file.DB.StatementCacheCapacity != nil {
		stmtCache = *file.DB.StatementCacheCapacity
	}

	cfg := Config{
		Port:              getEnv("PORT", orString(file.Port, "8080")),
		AuthToken:         getEnv("AUTH_TOKEN", file.AuthToken),
		DBURL:             getEnv("DB_URL", file.DBURL),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", orString(file.LogLevel, "info"))),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", orString(file.MigrationsDir, "db/migrations")),
		ReadTimeoutSecs:   getEnvInt("SERVER_READ_TIMEOUT", orInt(file.Server.ReadTimeoutSecs, 15)),
		WriteTimeoutSecs:  getEnvInt("SERVER_WRITE_TIMEOUT", orInt(file.Server.WriteTimeoutSecs, 15)),
		IdleTimeoutSecs:   getEnvInt("SERVER_IDLE_TIMEOUT", orInt(file.Server.IdleTimeoutSecs, 60)),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", orInt(file.DB.MaxConns, 20)),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", orInt(file.DB.MinConns, 2)),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", orInt(file.DB.MaxConnIdleSecs, 300)),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", orInt(file.DB.MaxConnLifetimeSecs, 3600)),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", orInt(file.DB.ConnTimeoutSecs, 10)),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", stmtCache),
		RateLimitRPS:      getEnvFloat("RATE_LIMIT_RPS", orFloat(file.RateLimit.RPS, 10)),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", orInt(file.RateLimit.Burst, 20)),
	}
	return cfg, nil
}

func (c Config) validateDatabase() error {
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func orString(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func orInt(val, fallback int) int {
	if val != 0 {
		return val
	}
	return fallback
}

func orFloat(val, fallback float64) float64 {
	if val != 0 {
		return val
	}
	return fallback
}
