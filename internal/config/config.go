package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"pharmapos/backend/internal/printing"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	// No defaults: the server refuses to start without real values.
	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	ManagerPIN     string        `envconfig:"MANAGER_PIN"`

	ShopTimezone string `envconfig:"SHOP_TIMEZONE" default:"Asia/Kolkata"`
	PhoneRegion  string `envconfig:"PHONE_REGION" default:"IN"`

	ShopName          string `envconfig:"SHOP_NAME" default:"PharmaPOS Pharmacy"`
	ShopAddress       string `envconfig:"SHOP_ADDRESS"`
	ShopPhone         string `envconfig:"SHOP_PHONE"`
	ShopEmail         string `envconfig:"SHOP_EMAIL"`
	ShopLicenseNumber string `envconfig:"SHOP_LICENSE_NUMBER"`
	ShopGSTNumber     string `envconfig:"SHOP_GST_NUMBER"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DemoSeedDays int    `envconfig:"DEMO_SEED_DAYS" default:"0"`
	DemoSeed     uint64 `envconfig:"DEMO_SEED" default:"1"`

	Location *time.Location `ignored:"true"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	cfg.PhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.PhoneRegion))

	loc, err := time.LoadLocation(cfg.ShopTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("SHOP_TIMEZONE: %w", err)
	}
	cfg.Location = loc
	if cfg.DemoSeedDays < 0 {
		return Config{}, errors.New("DEMO_SEED_DAYS must not be negative")
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Shop() printing.ShopInfo {
	return printing.ShopInfo{
		Name:          c.ShopName,
		Address:       c.ShopAddress,
		Phone:         c.ShopPhone,
		Email:         c.ShopEmail,
		LicenseNumber: c.ShopLicenseNumber,
		GSTNumber:     c.ShopGSTNumber,
	}
}
