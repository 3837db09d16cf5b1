// Package worker holds the scheduled-worker runtime pieces: env
// configuration, the health endpoint server, and worker job metrics.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	"research-pipeline/internal/pkg/config"
)

// Config controls the scheduled worker.
type Config struct {
	// CronSchedule is the five-field cron expression for pipeline runs.
	CronSchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	Timezone string

	// RunTimeout bounds a single pipeline run.
	RunTimeout time.Duration

	// HealthPort serves the liveness/readiness endpoints.
	HealthPort int
}

// DefaultConfig returns the worker defaults: one run per day at 06:00 UTC,
// a one hour run timeout, health endpoints on 9091.
func DefaultConfig() Config {
	return Config{
		CronSchedule: "0 6 * * *",
		Timezone:     "UTC",
		RunTimeout:   1 * time.Hour,
		HealthPort:   9091,
	}
}

// Validate checks all fields, collecting every violation.
func (c *Config) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.RunTimeout); err != nil {
		errs = append(errs, fmt.Errorf("run timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration fail-open: invalid values
// fall back to defaults with a warning, and the returned config is always
// valid.
//
// Environment variables:
//   - PIPELINE_CRON_SCHEDULE (default "0 6 * * *")
//   - PIPELINE_TIMEZONE (default "UTC")
//   - PIPELINE_RUN_TIMEOUT (duration string, 1m to 4h, default "1h")
//   - PIPELINE_HEALTH_PORT (1024-65535, default 9091)
func LoadConfigFromEnv(logger *slog.Logger) Config {
	cfg := DefaultConfig()

	result := config.LoadEnvWithFallback("PIPELINE_CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = result.Value.(string)
	logFallback(logger, "CronSchedule", result)

	result = config.LoadEnvWithFallback("PIPELINE_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	logFallback(logger, "Timezone", result)

	result = config.LoadEnvDuration("PIPELINE_RUN_TIMEOUT", cfg.RunTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Minute, 4*time.Hour)
	})
	cfg.RunTimeout = result.Value.(time.Duration)
	logFallback(logger, "RunTimeout", result)

	result = config.LoadEnvInt("PIPELINE_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	logFallback(logger, "HealthPort", result)

	return cfg
}

func logFallback(logger *slog.Logger, field string, result config.ConfigLoadResult) {
	if !result.FallbackApplied {
		return
	}
	for _, warning := range result.Warnings {
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
}
