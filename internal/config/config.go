package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker" validate:"required"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Evaluation EvaluationConfig `mapstructure:"evaluation" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
}

// ServerConfig contains the operational HTTP surface and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// WorkerConfig controls the per-queue consumer loops.
type WorkerConfig struct {
	// Concurrency bounds how many jobs a single queue consumer processes at once.
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`

	// RatePerSecond caps job dispatch to respect downstream rate limits.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gt=0"`

	// RateBurst is the token-bucket burst size for the dispatch limiter.
	RateBurst int `mapstructure:"rate_burst" validate:"gt=0"`

	// PollInterval is how often a consumer asks the job store for due jobs.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// StuckJobAge defines how long a job may stay active before it is
	// considered abandoned by a crashed worker and reset to pending.
	StuckJobAge time.Duration `mapstructure:"stuck_job_age"`

	// CriticalJobs lists queue or event-type names whose dead-lettering
	// must raise an alert.
	CriticalJobs []string `mapstructure:"critical_jobs"`
}

// TrackerConfig controls the ability tracker's persisted metrics arena.
type TrackerConfig struct {
	// DataDir is where the bbolt metrics arena lives. Empty disables
	// persistence and the tracker runs purely in memory.
	DataDir string `mapstructure:"data_dir"`
}

// EvaluationConfig controls the evaluator's locking and caching windows.
type EvaluationConfig struct {
	// LockTTL bounds how long a single evaluation may hold the session lock.
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"required"`

	// ResultTTL is the idempotency cache window for completed evaluations.
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"required"`

	// FetchTimeout bounds the session-recording fetch so a hung read never
	// blocks the job goroutine.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// LLMConfig contains the text-generation integration settings used by the
// qualitative code review scorer. An empty API key disables the reviewer and
// the qualitative score degrades to 0.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`

	// RequestTimeout bounds a single model call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
