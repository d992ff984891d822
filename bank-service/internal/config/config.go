/**
 * @description
 * Configuration management for the bank-service. Values come from environment
 * variables, with an optional .env file in the given path.
 */
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPlatformAccountNo is the intermediary account used when none is configured.
const DefaultPlatformAccountNo = "9999999999999999"

// Config holds all configuration for the bank-service.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`
	PlatformAccountNo string `mapstructure:"PLATFORM_ACCOUNT_NO"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("PLATFORM_ACCOUNT_NO", DefaultPlatformAccountNo)
	viper.SetDefault("BCRYPT_COST", 10)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BANK_INTERNAL_API_KEY")
	_ = viper.BindEnv("PLATFORM_ACCOUNT_NO")
	_ = viper.BindEnv("BCRYPT_COST")

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
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.PlatformAccountNo = strings.TrimSpace(config.PlatformAccountNo)
	if config.PlatformAccountNo == "" {
		config.PlatformAccountNo = DefaultPlatformAccountNo
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, errors.New("DATABASE_URL is required")
	}
	if config.InternalAPIKey == "" {
		return config, errors.New("INTERNAL_API_KEY is required")
	}
	return config, nil
}
