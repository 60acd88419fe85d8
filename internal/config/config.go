/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	PaygateAPIBaseURL       string `mapstructure:"PAYGATE_API_BASE_URL"`
	PaygateAPIKey           string `mapstructure:"PAYGATE_API_KEY"`
	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	SweepSharedSecret       string `mapstructure:"SWEEP_SHARED_SECRET"`
	SweepSchedule           string `mapstructure:"SWEEP_SCHEDULE"`
	ApplyRateLimitPerMinute int    `mapstructure:"APPLY_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "betatide:rate_limit")
	viper.SetDefault("SWEEP_SCHEDULE", "0 2 * * *")
	viper.SetDefault("APPLY_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYGATE_API_BASE_URL")
	_ = viper.BindEnv("PAYGATE_API_KEY")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("SWEEP_SHARED_SECRET", "SWEEP_SHARED_SECRET", "SETTLEMENT_SWEEP_SECRET")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("APPLY_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.SweepSharedSecret = strings.TrimSpace(config.SweepSharedSecret)
	if config.SweepSharedSecret == "" {
		config.SweepSharedSecret = strings.TrimSpace(os.Getenv("SETTLEMENT_SWEEP_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "betatide:rate_limit"
	}
	config.SweepSchedule = strings.TrimSpace(config.SweepSchedule)
	if config.SweepSchedule == "" {
		config.SweepSchedule = "0 2 * * *"
	}
	if config.ApplyRateLimitPerMinute <= 0 {
		config.ApplyRateLimitPerMinute = 10
	}

	return
}
