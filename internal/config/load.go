package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults for everything that is not a secret.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.rate_per_second", 10.0)
	v.SetDefault("worker.rate_burst", 20)
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.stuck_job_age", 30*time.Minute)
	v.SetDefault("worker.critical_jobs", []string{"analyze", "invite"})
	v.SetDefault("tracker.data_dir", "")
	// Secrets default to empty so the keys are visible to AutomaticEnv;
	// validation rejects them when left unset.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("evaluation.lock_ttl", 10*time.Minute)
	v.SetDefault("evaluation.result_ttl", 24*time.Hour)
	v.SetDefault("evaluation.fetch_timeout", 10*time.Second)
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.request_timeout", 30*time.Second)

	// Optional config file in the working directory.
	v.SetConfigName("worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file values, e.g.
	// INTERVIEWLM_DATABASE_URL maps to database.url.
	v.SetEnvPrefix("INTERVIEWLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
