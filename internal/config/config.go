// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and MATCHLEARN_* environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory feedback queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of feedback workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the submission idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDriver selects the feedback/registry backend: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// ProfileStore selects the profile backend: memory or redis.
	ProfileStore    string `koanf:"profile_store"`
	RedisAddr       string `koanf:"redis_addr"`
	RedisDB         int    `koanf:"redis_db"`
	ProfileSeedFile string `koanf:"profile_seed_file"`

	// Training.
	MinTrainingSamples int     `koanf:"min_training_samples"`
	MaxStepFraction    float64 `koanf:"max_step_fraction"`
	StepFloorFraction  float64 `koanf:"step_floor_fraction"`
	HoldoutFraction    float64 `koanf:"holdout_fraction"`
	LearningRate       float64 `koanf:"learning_rate"`
	TrainingEpochs     int     `koanf:"training_epochs"`

	// Confidence.
	ProvisionalCeiling    float64 `koanf:"provisional_ceiling"`
	ConfidenceHalfSamples float64 `koanf:"confidence_half_samples"`

	// Ranking.
	RankConcurrency int    `koanf:"rank_concurrency"`
	MaxCandidates   int    `koanf:"max_candidates"`
	DefaultDomain   string `koanf:"default_domain"`

	// Rationale generation: none, template or anthropic.
	InsightProvider  string `koanf:"insight_provider"`
	AnthropicAPIKey  string `koanf:"anthropic_api_key"`
	AnthropicModel   string `koanf:"anthropic_model"`
	InsightTimeoutMS int    `koanf:"insight_timeout_ms"`

	// RetrainSchedule is a 5-field cron expression. Empty disables the trigger.
	RetrainSchedule     string   `koanf:"retrain_schedule"`
	RetrainThreshold    int      `koanf:"retrain_threshold"`
	RetrainDomains      []string `koanf:"retrain_domains"`
	AutoActivate        bool     `koanf:"auto_activate"`
	AutoActivateMinGain float64  `koanf:"auto_activate_min_gain"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 2,
		DedupeSize:            50_000,
		StoreDriver:           "memory",
		ProfileStore:          "memory",
		RedisAddr:             "localhost:6379",
		MinTrainingSamples:    30,
		MaxStepFraction:       0.2,
		StepFloorFraction:     0.1,
		HoldoutFraction:       0.2,
		LearningRate:          0.05,
		TrainingEpochs:        50,
		ProvisionalCeiling:    0.6,
		ConfidenceHalfSamples: 20,
		RankConcurrency:       8,
		MaxCandidates:         500,
		DefaultDomain:         "default",
		InsightProvider:       "template",
		InsightTimeoutMS:      2000,
		RetrainThreshold:      50,
		AutoActivateMinGain:   0.01,
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(msg, args...))
		}
	}
	check(c.Addr != "", "addr must not be empty")
	check(oneOf(c.LogFormat, "text", "json"), "log_format %q must be text or json", c.LogFormat)
	check(oneOf(c.StoreDriver, "memory", "sqlite", "postgres"), "store_driver %q must be memory, sqlite or postgres", c.StoreDriver)
	check(c.StoreDriver == "memory" || c.StoreDSN != "", "store_dsn is required for store_driver %q", c.StoreDriver)
	check(oneOf(c.ProfileStore, "memory", "redis"), "profile_store %q must be memory or redis", c.ProfileStore)
	check(c.ProfileStore != "redis" || c.RedisAddr != "", "redis_addr is required for profile_store redis")
	check(oneOf(c.InsightProvider, "none", "template", "anthropic"), "insight_provider %q must be none, template or anthropic", c.InsightProvider)
	check(c.InsightProvider != "anthropic" || c.AnthropicAPIKey != "", "anthropic_api_key is required for insight_provider anthropic")
	check(c.QueueSize > 0, "queue_size must be positive")
	check(c.DedupeSize > 0, "dedupe_size must be positive")
	check(c.MinTrainingSamples > 0, "min_training_samples must be positive")
	check(c.MaxStepFraction > 0 && c.MaxStepFraction <= 1, "max_step_fraction must be in (0,1]")
	check(c.StepFloorFraction >= 0 && c.StepFloorFraction <= 1, "step_floor_fraction must be in [0,1]")
	check(c.HoldoutFraction >= 0 && c.HoldoutFraction < 1, "holdout_fraction must be in [0,1)")
	check(c.ProvisionalCeiling > 0 && c.ProvisionalCeiling <= 1, "provisional_ceiling must be in (0,1]")
	check(c.MaxCandidates > 0, "max_candidates must be positive")
	check(c.DefaultDomain != "", "default_domain must not be empty")
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
