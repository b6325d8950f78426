// Package config loads the scheduler's operating parameters, layering
// defaults, an optional JSON file, then environment variables, the same
// precedence the teacher's daemon config uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// ServerConfig configures the HTTP surface in internal/daemon.
type ServerConfig struct {
	ListenAddr      string        `json:"listen_addr"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite persistence adapter.
type DatabaseConfig struct {
	Path               string `json:"path"`
	MaxConnections     int    `json:"max_connections"`
	MaxIdleConnections int    `json:"max_idle_connections"`
}

// GraphStoreConfig configures the optional embedded KuzuDB dependency
// graph store.
type GraphStoreConfig struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path"`
	MaxConns int    `json:"max_connections"`
}

// SchedulingConfig carries the §6.3 working-hours/recurring schedule
// options.
type SchedulingConfig struct {
	WorkStartHour        int    `json:"work_start_hour"`
	WorkEndHour          int    `json:"work_end_hour"`
	WorkEndMinute        int    `json:"work_end_minute"`
	BusyPeriodActive     bool   `json:"busy_period_active"`
	BusyStartHour        int    `json:"busy_start_hour"`
	BusyEndHour          int    `json:"busy_end_hour"`
	BusyEndMinute        int    `json:"busy_end_minute"`
	Timezone             string `json:"timezone"`
	SLABufferWorkingDays int    `json:"sla_buffer_working_days"`

	RecalculateAllCron        string `json:"recalculate_all_cron"`
	RecalcTentativeDatesCron  string `json:"recalc_tentative_dates_cron"`
}

// LoggingConfig mirrors the teacher's logging section.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SchedulerConfig is the full process configuration.
type SchedulerConfig struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	GraphStore GraphStoreConfig `json:"graphstore"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Logging    LoggingConfig    `json:"logging"`
}

// Default returns the §6.3 documented defaults plus ambient server/database
// defaults appropriate for a single-host deployment.
func Default() *SchedulerConfig {
	return &SchedulerConfig{
		Server: ServerConfig{
			ListenAddr:      "localhost:8093",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:               "./data/scheduler.db",
			MaxConnections:     25,
			MaxIdleConnections: 5,
		},
		GraphStore: GraphStoreConfig{
			Enabled:  true,
			Path:     "./data/scheduler.kuzu",
			MaxConns: 4,
		},
		Scheduling: SchedulingConfig{
			WorkStartHour:            8,
			WorkEndHour:              16,
			WorkEndMinute:            30,
			Timezone:                 "Africa/Johannesburg",
			SLABufferWorkingDays:     1,
			RecalculateAllCron:       "0 2 * * *",
			RecalcTentativeDatesCron: "*/15 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a SchedulerConfig from defaults, overlays an optional JSON
// file at configPath (skipped silently if empty or absent), then applies
// SCHEDULER_-prefixed environment variable overrides, validating the
// result before returning it.
func Load(configPath string) (*SchedulerConfig, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
			}
		}
	}

	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvironment(cfg *SchedulerConfig) {
	if v := os.Getenv("SCHEDULER_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SCHEDULER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SCHEDULER_GRAPHSTORE_PATH"); v != "" {
		cfg.GraphStore.Path = v
	}
	if v := os.Getenv("SCHEDULER_TIMEZONE"); v != "" {
		cfg.Scheduling.Timezone = v
	}
	if v := os.Getenv("SCHEDULER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCHEDULER_WORK_START_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.WorkStartHour = n
		}
	}
	if v := os.Getenv("SCHEDULER_WORK_END_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.WorkEndHour = n
		}
	}
	if v := os.Getenv("SCHEDULER_SLA_BUFFER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.SLABufferWorkingDays = n
		}
	}
}

// Validate checks internal consistency of the loaded configuration,
// creating the database/graphstore parent directories as a side effect
// the way the teacher's daemon config does.
func (c *SchedulerConfig) Validate() error {
	if c.Scheduling.WorkStartHour < 0 || c.Scheduling.WorkStartHour > 23 {
		return fmt.Errorf("work_start_hour must be 0-23, got %d", c.Scheduling.WorkStartHour)
	}
	if c.Scheduling.WorkEndHour < 0 || c.Scheduling.WorkEndHour > 23 {
		return fmt.Errorf("work_end_hour must be 0-23, got %d", c.Scheduling.WorkEndHour)
	}
	if c.Scheduling.WorkEndMinute < 0 || c.Scheduling.WorkEndMinute > 59 {
		return fmt.Errorf("work_end_minute must be 0-59, got %d", c.Scheduling.WorkEndMinute)
	}
	if c.Scheduling.SLABufferWorkingDays < 0 {
		return fmt.Errorf("sla_buffer_working_days must be >= 0, got %d", c.Scheduling.SLABufferWorkingDays)
	}
	if c.Scheduling.Timezone == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Scheduling.Timezone, err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	if c.GraphStore.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.GraphStore.Path), 0755); err != nil {
			return fmt.Errorf("creating graphstore directory: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// WorkingHoursConfig projects the scheduling section into the domain type
// consumed by internal/calendar.
func (c *SchedulerConfig) WorkingHoursConfig() domain.WorkingHoursConfig {
	return domain.WorkingHoursConfig{
		WorkStartHour:    c.Scheduling.WorkStartHour,
		WorkEndHour:      c.Scheduling.WorkEndHour,
		WorkEndMinute:    c.Scheduling.WorkEndMinute,
		Timezone:         c.Scheduling.Timezone,
		BusyPeriodActive: c.Scheduling.BusyPeriodActive,
		BusyStartHour:    c.Scheduling.BusyStartHour,
		BusyEndHour:      c.Scheduling.BusyEndHour,
		BusyEndMinute:    c.Scheduling.BusyEndMinute,
	}
}
