package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fleet-backend/internal/archive"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
		Timezone           string   `mapstructure:"timezone"`
	} `mapstructure:"server"`

	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Webhook struct {
		Secret          string `mapstructure:"secret"`
		SignatureHeader string `mapstructure:"signature_header"`
		AmountMatching  bool   `mapstructure:"amount_matching"`
		AmountTolerance string `mapstructure:"amount_tolerance"`
	} `mapstructure:"webhook"`

	Archive struct {
		Enabled   bool   `mapstructure:"enabled"`
		Endpoint  string `mapstructure:"endpoint"`
		Bucket    string `mapstructure:"bucket"`
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Prefix    string `mapstructure:"prefix"`
		// SecretsKey is an optional object holding the webhook secret for
		// disaster recovery when WEBHOOK_SECRET is not set
		SecretsKey string `mapstructure:"secrets_key"`
	} `mapstructure:"archive"`
}

// Load reads configs/config.yaml (optional), .env and environment overrides
func Load() *Config {
	return LoadFile("configs/config.yaml")
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string) *Config {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	// Auto bind environment variables (server.port -> SERVER_PORT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set sensible defaults (binary works without config file)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type", "X-Fleet-Signature"})
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("store.driver", StorePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "fleet_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("jwt.issuer", "fleet-auth")
	v.SetDefault("webhook.signature_header", "X-Fleet-Signature")
	v.SetDefault("webhook.amount_matching", true)
	v.SetDefault("webhook.amount_tolerance", "0.00")
	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.prefix", "webhooks")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("config unmarshal error: %v", err)
	}

	applyEnv(&cfg)

	if cfg.Webhook.Secret == "" && cfg.Archive.SecretsKey != "" {
		log.Printf("[Config] WEBHOOK_SECRET not set, fetching from archive bucket...")
		cfg.Webhook.Secret = fetchSecretFromArchive(&cfg)
		if cfg.Webhook.Secret != "" {
			log.Printf("[Config] Webhook secret loaded from archive bucket")
		}
	}

	return &cfg
}

func applyEnv(cfg *Config) {
	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	// K8s sets REDIS_SERVICE_HOST and REDIS_SERVICE_PORT for services
	if host := os.Getenv("REDIS_SERVICE_HOST"); host != "" {
		port := os.Getenv("REDIS_SERVICE_PORT")
		if port == "" {
			port = "6379"
		}
		cfg.Redis.Addr = host + ":" + port
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Webhook.Secret = secret
	}
	if tol := os.Getenv("WEBHOOK_AMOUNT_TOLERANCE"); tol != "" {
		cfg.Webhook.AmountTolerance = tol
	}

	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
}

// DatabaseURL builds the pgx connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.SSLMode)
}

// AmountTolerance parses the configured tolerance. Negative or invalid
// values are an error.
func (c *Config) AmountTolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Webhook.AmountTolerance)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid webhook.amount_tolerance %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("webhook.amount_tolerance must not be negative, got %s", raw)
	}
	return d, nil
}

// ArchiveOptions returns the bucket settings for the payload archive
func (c *Config) ArchiveOptions() archive.Options {
	return archive.Options{
		Endpoint:  c.Archive.Endpoint,
		Bucket:    c.Archive.Bucket,
		Region:    c.Archive.Region,
		AccessKey: c.Archive.AccessKey,
		SecretKey: c.Archive.SecretKey,
		Prefix:    c.Archive.Prefix,
	}
}

// fetchSecretFromArchive reads the webhook secret from the archive bucket
func fetchSecretFromArchive(cfg *Config) string {
	opts := cfg.ArchiveOptions()
	if !opts.Configured() {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	archiver, err := archive.NewR2Archiver(ctx, opts)
	if err != nil {
		log.Printf("[Config] Failed to configure archive client: %v", err)
		return ""
	}

	secret, err := archiver.Get(ctx, cfg.Archive.SecretsKey)
	if err != nil {
		log.Printf("[Config] Failed to fetch webhook secret: %v", err)
		return ""
	}
	return strings.TrimSpace(string(secret))
}
