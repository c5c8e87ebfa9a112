package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/limaJavier/campus-timetabling/pkg/calendar"
	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/mitchellh/mapstructure"
)

type Config struct {
	Environment       string        `mapstructure:"ENV"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	SnapshotFile      string        `mapstructure:"SNAPSHOT_FILE"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	GridDays          string        `mapstructure:"GRID_DAYS"`
	GridPeriods       string        `mapstructure:"GRID_PERIODS"`
	SemesterDates     string        `mapstructure:"SEMESTER_DATES"`
	CalendarTimezone  string        `mapstructure:"CALENDAR_TIMEZONE"`
	MaxBacktrackSteps uint64        `mapstructure:"MAX_BACKTRACK_STEPS"`
	TimeBudget        time.Duration `mapstructure:"TIME_BUDGET"`
	RunMigrations     bool          `mapstructure:"RUN_MIGRATIONS"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func defaults() map[string]any {
	return map[string]any{
		"ENV":                 "development",
		"HTTP_ADDR":           ":8080",
		"GRID_DAYS":           "Mon,Tue,Wed,Thu,Fri",
		"GRID_PERIODS":        "08:00-09:30,09:45-11:15,11:30-13:00,14:00-15:30,15:45-17:15",
		"SEMESTER_DATES":      calendar.DefaultTermDates,
		"CALENDAR_TIMEZONE":   "UTC",
		"MAX_BACKTRACK_STEPS": engine.DefaultMaxBacktrackSteps,
		"TIME_BUDGET":         engine.DefaultTimeBudget.String(),
		"RUN_MIGRATIONS":      "true",
		"SHUTDOWN_TIMEOUT":    "10s",
	}
}

// Load reads the .env file when present and decodes the environment into a Config
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	return FromEnvironment(os.Environ())
}

// FromEnvironment decodes KEY=VALUE pairs on top of the defaults
func FromEnvironment(environment []string) (*Config, error) {
	values := defaults()
	for _, pair := range environment {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}
		values[key] = value
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(values); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DatabaseURL == "" && cfg.SnapshotFile == "" {
		return nil, fmt.Errorf("either DATABASE_URL or SNAPSHOT_FILE is required")
	}
	if cfg.TimeBudget <= 0 {
		return nil, fmt.Errorf("TIME_BUDGET must be positive, got %v", cfg.TimeBudget)
	}
	return &cfg, nil
}

func (c *Config) Grid() (model.Grid, error) {
	return model.ParseGrid(c.GridDays, c.GridPeriods)
}

func (c *Config) TermDates() (calendar.TermDates, error) {
	return calendar.ParseTermDates(c.SemesterDates)
}

func (c *Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(c.CalendarTimezone)
	if err != nil {
		return nil, fmt.Errorf("load CALENDAR_TIMEZONE: %w", err)
	}
	return location, nil
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{MaxBacktrackSteps: c.MaxBacktrackSteps, TimeBudget: c.TimeBudget}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
