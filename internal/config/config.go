package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"nutri-practice/internal/storage"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	StoreDriver        string        `mapstructure:"STORE_DRIVER"`
	SQLitePath         string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	GeminiAPIKey       string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel        string        `mapstructure:"GEMINI_MODEL"`
	AITimeout          time.Duration `mapstructure:"AI_TIMEOUT"`
	ProfessionalSecret string        `mapstructure:"PROFESSIONAL_SECRET_HASH"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
	LoginRatePerMinute int           `mapstructure:"LOGIN_RATE_PER_MINUTE"`
	TelegramBotToken   string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID     int64         `mapstructure:"TELEGRAM_CHAT_ID"`
	ReportFontPath     string        `mapstructure:"REPORT_FONT_PATH"`
	GeneratedJWTSecret bool          `mapstructure:"-"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "REDIS_URL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "AI_TIMEOUT",
	"PROFESSIONAL_SECRET_HASH", "JWT_SECRET", "TOKEN_TTL", "LOGIN_RATE_PER_MINUTE",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "REPORT_FONT_PATH",
}

// Load reads .env from the working directory, if present, then the
// environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", storage.DriverSQLite)
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("AI_TIMEOUT", "60s")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 5)

	for _, k := range keys {
		v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.SQLitePath == "" && cfg.StoreDriver == storage.DriverSQLite {
		p, err := storage.DefaultSQLitePath()
		if err != nil {
			return nil, err
		}
		cfg.SQLitePath = p
	}

	// Development sessions do not need to survive a restart.
	if cfg.JWTSecret == "" && cfg.IsDev() {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		cfg.GeneratedJWTSecret = true
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:      c.StoreDriver,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		RedisURL:    c.RedisURL,
	}
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case storage.DriverSQLite, storage.DriverMemory:
	case storage.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case storage.DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite, postgres, redis or memory, got %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.ProfessionalSecret != "" && !strings.HasPrefix(c.ProfessionalSecret, "$2") {
		return fmt.Errorf("PROFESSIONAL_SECRET_HASH must be a bcrypt hash (see `nutri hash-secret`)")
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout)
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive, got %d", c.LoginRatePerMinute)
	}
	return nil
}
