package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vendsim/internal/models"
)

// Config defines the vendsim service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"VENDSIM_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"VENDSIM_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"VENDSIM_REDIS_ADDR"`
		Password string `yaml:"password" env:"VENDSIM_REDIS_PASSWORD"`
		TTL      int    `yaml:"ttlSeconds" env:"VENDSIM_REDIS_TTL"`
	} `yaml:"redis"`
	Admin struct {
		Password  string `yaml:"password" env:"VENDSIM_ADMIN_PASSWORD"`
		JWTSecret string `yaml:"jwtSecret" env:"VENDSIM_JWT_SECRET"`
		TokenTTL  int    `yaml:"tokenTTLMinutes" env:"VENDSIM_TOKEN_TTL"`
	} `yaml:"admin"`
	Machine struct {
		CashTimeoutMS       int              `yaml:"cashTimeoutMs" env:"VENDSIM_CASH_TIMEOUT_MS"`
		CardTimeoutMS       int              `yaml:"cardTimeoutMs" env:"VENDSIM_CARD_TIMEOUT_MS"`
		MinInsertIntervalMS int              `yaml:"minInsertIntervalMs" env:"VENDSIM_MIN_INSERT_INTERVAL_MS"`
		Denominations       []int64          `yaml:"denominations"`
		InitialFloat        int              `yaml:"initialFloat" env:"VENDSIM_INITIAL_FLOAT"`
		Products            []models.Product `yaml:"products"`
	} `yaml:"machine"`
}

// Load reads configuration and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.TTL = 3600
	cfg.Admin.Password = "operator"
	cfg.Admin.TokenTTL = 60
	cfg.Machine.CashTimeoutMS = 60000
	cfg.Machine.CardTimeoutMS = 30000
	cfg.Machine.MinInsertIntervalMS = 1000
	cfg.Machine.InitialFloat = 3

	if err := load(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Machine.Denominations) == 0 {
		cfg.Machine.Denominations = []int64{100, 500, 1000, 5000, 10000}
	}
	if len(cfg.Machine.Products) == 0 {
		cfg.Machine.Products = []models.Product{
			{ID: "cola", Name: "Cola", Price: 1100, Stock: 10},
			{ID: "coffee", Name: "Coffee", Price: 700, Stock: 10},
			{ID: "water", Name: "Water", Price: 600, Stock: 10},
		}
	}

	if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		return nil, errors.New("config: admin jwt secret required")
	}
	for _, d := range cfg.Machine.Denominations {
		if d <= 0 {
			return nil, fmt.Errorf("config: invalid denomination %d", d)
		}
	}
	for _, p := range cfg.Machine.Products {
		if p.ID == "" || p.Price <= 0 {
			return nil, fmt.Errorf("config: invalid product %+v", p)
		}
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// SessionMirrorTTL returns the redis mirror TTL.
func (c *Config) SessionMirrorTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// AdminTokenTTL returns the operator token lifetime.
func (c *Config) AdminTokenTTL() time.Duration {
	if c.Admin.TokenTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Admin.TokenTTL) * time.Minute
}

// CashTimeout returns the cash session inactivity timeout.
func (c *Config) CashTimeout() time.Duration {
	return time.Duration(c.Machine.CashTimeoutMS) * time.Millisecond
}

// CardTimeout returns the card session inactivity timeout.
func (c *Config) CardTimeout() time.Duration {
	return time.Duration(c.Machine.CardTimeoutMS) * time.Millisecond
}

// MinInsertInterval returns the minimum gap between cash insertions.
func (c *Config) MinInsertInterval() time.Duration {
	return time.Duration(c.Machine.MinInsertIntervalMS) * time.Millisecond
}

// Denominations returns the accepted denomination set.
func (c *Config) Denominations() []models.Denomination {
	out := make([]models.Denomination, 0, len(c.Machine.Denominations))
	for _, d := range c.Machine.Denominations {
		out = append(out, models.Denomination(d))
	}
	return out
}
