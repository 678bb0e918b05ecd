package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SETTLEMENT_DATABASE_PASSWORD.
const EnvPrefix = "SETTLEMENT"

type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"database"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	RabbitMQ struct {
		Host           string        `mapstructure:"host"`
		Port           int           `mapstructure:"port"`
		User           string        `mapstructure:"user"`
		Password       string        `mapstructure:"password"`
		VHost          string        `mapstructure:"vhost"`
		Prefetch       int           `mapstructure:"prefetch"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	} `mapstructure:"rabbitmq"`
	Redis struct {
		Enabled      bool          `mapstructure:"enabled"`
		Addr         string        `mapstructure:"addr"`
		Password     string        `mapstructure:"password"`
		DB           int           `mapstructure:"db"`
		ProcessedTTL time.Duration `mapstructure:"processed_ttl"`
		LockTTL      time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"redis"`
	Gateway struct {
		URL     string        `mapstructure:"url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
		// Fake approves every charge; for local runs without a gateway.
		Fake    bool `mapstructure:"fake"`
		Breaker struct {
			MaxFailures int           `mapstructure:"max_failures"`
			OpenTimeout time.Duration `mapstructure:"open_timeout"`
		} `mapstructure:"breaker"`
	} `mapstructure:"gateway"`
	Profile struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"profile"`
	Notifications struct {
		Webhooks   []string      `mapstructure:"webhooks"`
		MaxRetries int           `mapstructure:"max_retries"`
		RetryDelay time.Duration `mapstructure:"retry_delay"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"notifications"`
	Services struct {
		PaymentServicePort      int `mapstructure:"payment_service"`
		NotificationServicePort int `mapstructure:"notification_service"`
	} `mapstructure:"services"`
	NewRelic struct {
		Enabled    bool   `mapstructure:"enabled"`
		AppName    string `mapstructure:"app_name"`
		LicenseKey string `mapstructure:"license_key"`
	} `mapstructure:"newrelic"`
	Log struct {
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"log"`
}

// LoadFromFile loads config from a YAML file and SETTLEMENT_* environment variables,
// applies defaults, and validates required fields. A missing file is not an error.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// registering every key lets AutomaticEnv override keys absent from the file
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// a comma separated env value arrives as a single element
	if len(cfg.Notifications.Webhooks) == 1 && strings.Contains(cfg.Notifications.Webhooks[0], ",") {
		cfg.Notifications.Webhooks = strings.Split(cfg.Notifications.Webhooks[0], ",")
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// defaults lists every known key with its default value.
func defaults() map[string]any {
	return map[string]any{
		"database.host":                 "localhost",
		"database.port":                 5432,
		"database.user":                 "",
		"database.password":             "",
		"database.database":             "",
		"database.sslmode":              "disable",
		"database.max_conns":            10,
		"rabbitmq.host":                 "localhost",
		"rabbitmq.port":                 5672,
		"rabbitmq.user":                 "",
		"rabbitmq.password":             "",
		"rabbitmq.vhost":                "/",
		"rabbitmq.prefetch":             10,
		"rabbitmq.reconnect_delay":      "5s",
		"redis.enabled":                 false,
		"redis.addr":                    "localhost:6379",
		"redis.password":                "",
		"redis.db":                      0,
		"redis.processed_ttl":           "24h",
		"redis.lock_ttl":                "45s",
		"gateway.url":                   "",
		"gateway.api_key":               "",
		"gateway.timeout":               "5s",
		"gateway.fake":                  false,
		"gateway.breaker.max_failures":  5,
		"gateway.breaker.open_timeout":  "30s",
		"profile.url":                   "",
		"profile.timeout":               "5s",
		"notifications.webhooks":        []string{},
		"notifications.max_retries":     5,
		"notifications.retry_delay":     "10s",
		"notifications.timeout":         "5s",
		"services.payment_service":      3005,
		"services.notification_service": 3006,
		"newrelic.enabled":              false,
		"newrelic.app_name":             "ride-settlement",
		"newrelic.license_key":          "",
		"log.debug":                     false,
	}
}

// applyDefaults sets safe defaults for values that decode to their zero value.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.ReconnectDelay <= 0 {
		cfg.RabbitMQ.ReconnectDelay = 5 * time.Second
	}
	if cfg.RabbitMQ.Prefetch <= 0 {
		cfg.RabbitMQ.Prefetch = 10
	}

	// Gateway and profile lookups
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 5 * time.Second
	}
	if cfg.Profile.Timeout <= 0 {
		cfg.Profile.Timeout = cfg.Gateway.Timeout
	}

	// Notifications
	if cfg.Notifications.MaxRetries == 0 {
		cfg.Notifications.MaxRetries = 5
	}
	if cfg.Notifications.RetryDelay <= 0 {
		cfg.Notifications.RetryDelay = 10 * time.Second
	}
	if cfg.Notifications.Timeout <= 0 {
		cfg.Notifications.Timeout = 5 * time.Second
	}
	hooks := cfg.Notifications.Webhooks[:0]
	for _, h := range cfg.Notifications.Webhooks {
		if h = strings.TrimSpace(h); h != "" {
			hooks = append(hooks, h)
		}
	}
	cfg.Notifications.Webhooks = hooks

	// Services
	if cfg.Services.PaymentServicePort == 0 {
		cfg.Services.PaymentServicePort = 3005
	}
	if cfg.Services.NotificationServicePort == 0 {
		cfg.Services.NotificationServicePort = 3006
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}

	// Gateway
	if !c.Gateway.Fake {
		if err := checkURL(c.Gateway.URL); err != nil {
			problems = append(problems, "gateway.url "+err.Error())
		}
		if err := checkURL(c.Profile.URL); err != nil {
			problems = append(problems, "profile.url "+err.Error())
		}
	}
	if c.Gateway.Breaker.MaxFailures < 0 {
		problems = append(problems, "gateway.breaker.max_failures must be >= 0")
	}

	// Notifications
	if c.Notifications.MaxRetries < 0 {
		problems = append(problems, "notifications.max_retries must be >= 0")
	}
	for _, h := range c.Notifications.Webhooks {
		if err := checkURL(h); err != nil {
			problems = append(problems, fmt.Sprintf("notifications.webhooks %q %s", h, err.Error()))
		}
	}

	// Services
	if c.Services.PaymentServicePort <= 0 || c.Services.PaymentServicePort > 65535 {
		problems = append(problems, "services.payment_service must be in 1..65535")
	}
	if c.Services.NotificationServicePort <= 0 || c.Services.NotificationServicePort > 65535 {
		problems = append(problems, "services.notification_service must be in 1..65535")
	}

	// New Relic
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		problems = append(problems, "newrelic.license_key is required when newrelic is enabled")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func checkURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// AMQPURL builds the broker URL from the rabbitmq section.
func (c *Config) AMQPURL() string {
	u := &url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitMQ.User, c.RabbitMQ.Password),
		Host:   fmt.Sprintf("%s:%d", c.RabbitMQ.Host, c.RabbitMQ.Port),
		Path:   c.RabbitMQ.VHost,
	}
	return u.String()
}
