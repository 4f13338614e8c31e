package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers for the sync endpoint.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds sync endpoint configuration.
type Config struct {
	ServerAddr     string        `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	StorageDriver  string        `env:"STORAGE_DRIVER"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"questionnaire.db"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR" envDefault:"internal/migrations"`
	HistoryTimeout time.Duration `env:"HISTORY_TIMEOUT" envDefault:"5s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	OTELEndpoint   string        `env:"OTEL_ENDPOINT"`
}

// Load reads server configuration from environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.StorageDriver {
	case "":
		cfg.StorageDriver = DriverNone
		if cfg.DatabaseURL != "" {
			cfg.StorageDriver = DriverPostgres
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = postgresDSNFromParts()
		}
	case DriverSQLite, DriverNone:
	default:
		return nil, fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalidConfig, cfg.StorageDriver)
	}
	return &cfg, nil
}

func postgresDSNFromParts() string {
	user := getenv("POSTGRES_USER", "questionnaire")
	pass := getenv("POSTGRES_PASSWORD", "questionnaire_pass")
	db := getenv("POSTGRES_DB", "questionnaire")
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	sslmode := getenv("DATABASE_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

// ClientConfig holds terminal client configuration.
type ClientConfig struct {
	SyncBaseURL     string        `env:"SYNC_BASE_URL" envDefault:"http://localhost:8080"`
	ClientID        string        `env:"CLIENT_ID"`
	QuestionnaireID string        `env:"QUESTIONNAIRE_ID" envDefault:"discovery"`
	DeviceStorePath string        `env:"DEVICE_STORE_PATH" envDefault:"questionnaire-device.db"`
	LocalSaveDelay  time.Duration `env:"LOCAL_SAVE_DELAY" envDefault:"500ms"`
	SyncDelay       time.Duration `env:"SYNC_DELAY" envDefault:"2s"`
	SyncTimeout     time.Duration `env:"SYNC_TIMEOUT" envDefault:"10s"`
	DeviceKeyHex    string        `env:"DEVICE_KEY"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"warn"`
	OTELEndpoint    string        `env:"OTEL_ENDPOINT"`
}

// LoadClient reads client configuration from environment.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DeviceKeyHex != "" {
		key, err := cfg.DeviceKey()
		if err != nil {
			return nil, err
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%w: DEVICE_KEY must be 32 bytes, got %d", ErrInvalidConfig, len(key))
		}
	}
	return &cfg, nil
}

// DeviceKey decodes DEVICE_KEY. It returns nil when no key is configured.
func (c *ClientConfig) DeviceKey() ([]byte, error) {
	if c.DeviceKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.DeviceKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: DEVICE_KEY is not hex: %v", ErrInvalidConfig, err)
	}
	return key, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
