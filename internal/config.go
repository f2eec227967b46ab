package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Order         OrderConfig         `mapstructure:"order"`
	Notification  NotificationConfig  `mapstructure:"notification"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type PaymentConfig struct {
	// CallbackBaseURL is where gateways redirect customers after checkout.
	CallbackBaseURL string                   `mapstructure:"callback_base_url"`
	RequestTimeout  time.Duration            `mapstructure:"request_timeout"`
	Gateways        map[string]GatewayConfig `mapstructure:"gateways"`
}

// GatewayConfig holds the per-provider credentials and endpoint. Read-only
// to the core; changing it requires a restart or an explicit registry reload.
type GatewayConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicKey     string `mapstructure:"public_key"`
	SupportRefund bool   `mapstructure:"support_refund"`
}

type OrderConfig struct {
	// NotifyURL is the order subsystem endpoint for payment outcome
	// notifications. Empty means notifications are only logged.
	NotifyURL      string        `mapstructure:"notify_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NotificationConfig struct {
	MaxWorkers   int `mapstructure:"max_workers"`
	JobQueueSize int `mapstructure:"job_queue_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if len(c.Gateways) == 0 {
		return errors.New("at least one gateway must be configured")
	}
	for name, gw := range c.Gateways {
		if !gw.Enabled {
			continue
		}
		if gw.SecretKey == "" {
			return fmt.Errorf("gateway %s: secret_key is required", name)
		}
		if gw.BaseURL != "" {
			if _, err := url.Parse(gw.BaseURL); err != nil {
				return fmt.Errorf("gateway %s: invalid base_url: %w", name, err)
			}
		}
	}
	return nil
}

// RequestTimeoutOrDefault bounds every gateway call so no orchestrator
// operation blocks indefinitely.
func (c *PaymentConfig) RequestTimeoutOrDefault() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}
