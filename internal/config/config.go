package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret      string   `mapstructure:"JWT_SECRET"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// DefaultCurrency is the ISO code stamped on generated reports.
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	// InpatientMedDefaultPrice is the flat unit price charged for an
	// administered medication whose inventory record carries no price.
	InpatientMedDefaultPrice string `mapstructure:"INPATIENT_MED_DEFAULT_PRICE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("DEFAULT_CURRENCY", "NGN")
	v.SetDefault("INPATIENT_MED_DEFAULT_PRICE", "500")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SECRET", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"DEFAULT_CURRENCY", "INPATIENT_MED_DEFAULT_PRICE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; all requests get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory so real authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is not development")
	}
	return nil
}
