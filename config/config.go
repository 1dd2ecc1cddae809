package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Mapstructure tags are used to map environment variables and config file keys.
type Config struct {
	// Server Configuration
	ServerAddress string        `mapstructure:"SERVER_ADDRESS"` // e.g., ":8080"
	AppEnv        string        `mapstructure:"APP_ENV"`        // "development" or "production"
	LogFile       string        `mapstructure:"LOG_FILE"`       // Rotating log file, empty for stderr only
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`    // Idle time before a generation session is dropped

	// AI Configuration
	OpenAIKey     string  `mapstructure:"OPENAI_API_KEY"`  // API key for the completion provider
	OpenAIBaseURL string  `mapstructure:"OPENAI_BASE_URL"` // OpenAI-compatible endpoint, empty for api.openai.com
	ModelID       string  `mapstructure:"MODEL_ID"`        // e.g., "gpt-4o"
	Temperature   float32 `mapstructure:"TEMPERATURE"`
	MaxTokens     int     `mapstructure:"MAX_TOKENS"`
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)     // Path to look for the config file in
	v.SetConfigName("config") // Name of config file (without extension)
	v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	// Unmarshal only sees keys viper knows about, so every key needs a default
	// for environment-only deployments.
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("MODEL_ID", "gpt-4o")
	v.SetDefault("TEMPERATURE", 0.7)
	v.SetDefault("MAX_TOKENS", 16000)

	v.AutomaticEnv() // Read environment variables that match keys

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file ('config.yaml') not found in specified path, relying solely on environment variables.")
		} else {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Using configuration file: %s", v.ConfigFileUsed())
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.OpenAIKey == "" {
		log.Println("WARN: OPENAI_API_KEY is not set. Generation requests will fail until it is configured.")
	}

	return
}
