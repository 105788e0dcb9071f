// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type PaymentsConfig struct {
	// Provider is "stripe" or "none". With "none" every priced slot fails the
	// payment-account precondition unless payment is skipped by staff.
	Provider           string  `yaml:"provider"`
	PlatformFeePercent float64 `yaml:"platform_fee_percent"`
	DefaultCurrency    string  `yaml:"default_currency"`
	SecretKey          string  `yaml:"-"` // Loaded from environment
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	DB       int           `yaml:"db"`
	SlotTTL  time.Duration `yaml:"slot_ttl"`
	Password string        `yaml:"-"` // Loaded from environment
}

type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exchange string `yaml:"exchange"`
	URL      string `yaml:"-"` // Loaded from environment
}

type EmailConfig struct {
	Enabled bool   `yaml:"enabled"`
	From    string `yaml:"from"`
	Region  string `yaml:"region"`
	// Static SES credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Window            time.Duration `yaml:"window"`
	ActorMaxPerWindow int           `yaml:"actor_max_per_window"`
	IPMaxPerWindow    int           `yaml:"ip_max_per_window"`
	// TrustProxy reads the client IP from forwarding headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type SchedulerConfig struct {
	OrphanSweepCron    string        `yaml:"orphan_sweep_cron"`
	OrphanMinAge       time.Duration `yaml:"orphan_min_age"`
	OutboxDispatchCron string        `yaml:"outbox_dispatch_cron"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int64         `yaml:"outbox_max_attempts"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PhoneRegion     string        `yaml:"phone_region"`
		// Locale picks the clock style in notification emails.
		Locale string `yaml:"locale"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Redis     RedisConfig     `yaml:"redis"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Email     EmailConfig     `yaml:"email"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.Payments.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.AMQP.URL = os.Getenv("AMQP_URL")
	cfg.Email.AccessKeyID = os.Getenv("SES_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("SES_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes yaml and fills defaults. It does not read the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.App.PhoneRegion == "" {
		c.App.PhoneRegion = "US"
	}
	if c.App.Locale == "" {
		c.App.Locale = "en-US"
	}
	if c.Payments.Provider == "" {
		c.Payments.Provider = "none"
	}
	if c.Payments.DefaultCurrency == "" {
		c.Payments.DefaultCurrency = "usd"
	}
	if c.Redis.SlotTTL == 0 {
		c.Redis.SlotTTL = time.Minute
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "courtbook.bookings"
	}
	if c.Email.Region == "" {
		c.Email.Region = "us-east-1"
	}
	if c.Scheduler.OrphanSweepCron == "" {
		c.Scheduler.OrphanSweepCron = "*/10 * * * *"
	}
	if c.Scheduler.OrphanMinAge == 0 {
		c.Scheduler.OrphanMinAge = 15 * time.Minute
	}
	if c.Scheduler.OutboxDispatchCron == "" {
		c.Scheduler.OutboxDispatchCron = "* * * * *"
	}
	if c.Scheduler.OutboxBatchSize == 0 {
		c.Scheduler.OutboxBatchSize = 100
	}
	if c.Scheduler.OutboxMaxAttempts == 0 {
		c.Scheduler.OutboxMaxAttempts = 10
	}
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch strings.ToLower(c.Payments.Provider) {
	case "none":
	case "stripe":
		if c.Payments.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe payment provider")
		}
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.Payments.Provider)
	}
	if c.Payments.PlatformFeePercent < 0 || c.Payments.PlatformFeePercent > 100 {
		return fmt.Errorf("platform fee percent must be between 0 and 100")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.AMQP.Enabled && c.AMQP.URL == "" {
		return fmt.Errorf("AMQP_URL is required when amqp is enabled")
	}
	if c.Email.Enabled && c.Email.From == "" {
		return fmt.Errorf("email from address is required when email is enabled")
	}
	if (c.Email.AccessKeyID == "") != (c.Email.SecretAccessKey == "") {
		return fmt.Errorf("SES_ACCESS_KEY_ID and SES_SECRET_ACCESS_KEY must be set together")
	}

	return nil
}
