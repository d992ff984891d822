/**
 * @description
 * Configuration management for the catalog-service.
 */
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the catalog-service.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	BankServiceURL       string `mapstructure:"BANK_SERVICE_URL"`
	BankInternalAPIKey   string `mapstructure:"BANK_INTERNAL_API_KEY"`
	BankTimeoutSeconds   int    `mapstructure:"BANK_TIMEOUT_SECONDS"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes        int    `mapstructure:"JWT_TTL_MINUTES"`
	BcryptCost           int    `mapstructure:"BCRYPT_COST"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	EnrollRateLimit      int    `mapstructure:"ENROLL_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	ReconcileSchedule    string `mapstructure:"RECONCILE_JOB_SCHEDULE"`
	ReconcileStaleMins   int    `mapstructure:"RECONCILE_STALE_MINUTES"`
	ReconcileMaxAttempts int    `mapstructure:"RECONCILE_MAX_ATTEMPTS"`
	ReconcileBatchSize   int    `mapstructure:"RECONCILE_BATCH_SIZE"`
}

// BankTimeout is the bound on every settlement call.
func (c Config) BankTimeout() time.Duration {
	return time.Duration(c.BankTimeoutSeconds) * time.Second
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c Config) ReconcileStaleAfter() time.Duration {
	return time.Duration(c.ReconcileStaleMins) * time.Minute
}

// LoadConfig reads configuration from environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("BANK_SERVICE_URL", "http://localhost:8090")
	viper.SetDefault("BANK_TIMEOUT_SECONDS", 10)
	viper.SetDefault("JWT_TTL_MINUTES", 24*60)
	viper.SetDefault("BCRYPT_COST", 10)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "lms:rate_limit")
	viper.SetDefault("ENROLL_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("RECONCILE_JOB_SCHEDULE", "@every 5m")
	viper.SetDefault("RECONCILE_STALE_MINUTES", 15)
	viper.SetDefault("RECONCILE_MAX_ATTEMPTS", 5)
	viper.SetDefault("RECONCILE_BATCH_SIZE", 50)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("BANK_SERVICE_URL")
	_ = viper.BindEnv("BANK_INTERNAL_API_KEY")
	_ = viper.BindEnv("BANK_TIMEOUT_SECONDS")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_TTL_MINUTES")
	_ = viper.BindEnv("BCRYPT_COST")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("ENROLL_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RECONCILE_JOB_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_STALE_MINUTES")
	_ = viper.BindEnv("RECONCILE_MAX_ATTEMPTS")
	_ = viper.BindEnv("RECONCILE_BATCH_SIZE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.BankServiceURL = strings.TrimRight(strings.TrimSpace(config.BankServiceURL), "/")
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.BankInternalAPIKey = strings.TrimSpace(config.BankInternalAPIKey)
	if config.BankInternalAPIKey == "" {
		config.BankInternalAPIKey = config.InternalAPIKey
	}
	// An explicitly empty schedule disables the reconciliation job.
	if value, ok := os.LookupEnv("RECONCILE_JOB_SCHEDULE"); ok {
		config.ReconcileSchedule = strings.TrimSpace(value)
	}
	if config.BankTimeoutSeconds <= 0 {
		config.BankTimeoutSeconds = 10
	}
	if config.JWTTTLMinutes <= 0 {
		config.JWTTTLMinutes = 24 * 60
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		return config, errors.New("JWT_SECRET is required")
	}
	return config, nil
}
