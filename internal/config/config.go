package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// Environment variables that override secrets in the YAML file
const (
	EnvDatabaseURL   = "MENTOR_DATABASE_URL"
	EnvSessionSecret = "MENTOR_SESSION_SECRET"
	EnvRedisURL      = "MENTOR_REDIS_URL"
)

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"required,oneof=postgres file"`
	DatabaseURL string `yaml:"databaseURL,omitempty" validate:"required_if=Backend postgres"`
	DataDir     string `yaml:"dataDir,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Storage                  StorageConfig `yaml:"storage"`
	RedisURL                 string        `yaml:"redisURL,omitempty"`
	SessionSecret            string        `yaml:"sessionSecret,omitempty" validate:"omitempty,min=32"`
	SessionTTL               time.Duration `yaml:"sessionTTL,omitempty" validate:"min=0"`
	HTTPAddr                 string        `yaml:"httpAddr,omitempty"`
	ConflictRetries          int           `yaml:"conflictRetries,omitempty" validate:"min=0,max=20"`
	GraduationSteps          []string      `yaml:"graduationSteps,omitempty" validate:"dive,required"`
	MaxRecurrenceOccurrences int           `yaml:"maxRecurrenceOccurrences,omitempty" validate:"min=0,max=1000"`
	DefaultShiftRRule        string        `yaml:"defaultShiftRRule,omitempty"`
	ScheduleSheetID          string        `yaml:"scheduleSheetID,omitempty"`
	SnapshotMaxAge           time.Duration `yaml:"snapshotMaxAge,omitempty" validate:"min=0"`
}

// Defaults applied to unset fields after loading
const (
	DefaultSessionTTL               = 12 * time.Hour
	DefaultHTTPAddr                 = ":8080"
	DefaultConflictRetries          = 3
	DefaultMaxRecurrenceOccurrences = 52
	DefaultSnapshotMaxAge           = 5 * time.Minute
	DefaultDataDir                  = "data"
)

// DefaultGraduationSteps are used when the config file lists none
var DefaultGraduationSteps = []string{
	"housing_secured",
	"employment_or_education",
	"id_documents",
	"support_network",
	"exit_interview",
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadWithEnv loads mentor_config.<env>.yaml (or mentor_config.yaml when env is empty),
// overlays secrets from the environment and .env files, applies defaults and validates
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	loadDotEnv(env)

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads .env.<env> then .env. Existing variables are never overwritten,
// so the environment-specific file wins over the generic one.
func loadDotEnv(env string) {
	files := []string{}
	if env != "" {
		files = append(files, ".env."+env)
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ApplyEnvOverrides replaces secret fields with their environment variable values when set
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv(EnvSessionSecret); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.RedisURL = v
	}
}

// ApplyDefaults fills zero-valued optional fields
func ApplyDefaults(cfg *Config) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = DefaultConflictRetries
	}
	if cfg.MaxRecurrenceOccurrences == 0 {
		cfg.MaxRecurrenceOccurrences = DefaultMaxRecurrenceOccurrences
	}
	if cfg.SnapshotMaxAge == 0 {
		cfg.SnapshotMaxAge = DefaultSnapshotMaxAge
	}
	if len(cfg.GraduationSteps) == 0 {
		cfg.GraduationSteps = append([]string(nil), DefaultGraduationSteps...)
	}
	if cfg.Storage.Backend == BackendFile && cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.DefaultShiftRRule != "" {
		if _, err := rrule.StrToRRule(cfg.DefaultShiftRRule); err != nil {
			return fmt.Errorf("invalid rrule in defaultShiftRRule: %w", err)
		}
	}

	seen := make(map[string]bool, len(cfg.GraduationSteps))
	for _, step := range cfg.GraduationSteps {
		if seen[step] {
			return fmt.Errorf("duplicate graduation step %q", step)
		}
		seen[step] = true
	}

	return nil
}

// findConfigFile searches for mentor_config.yaml in current directory and home directory
// If env is provided, it adds it as an extension (e.g., "mentor_config.test.yaml")
func findConfigFile(env string) (string, error) {
	configFileName := "mentor_config.yaml"
	if env != "" {
		configFileName = "mentor_config." + env + ".yaml"
	}

	return findFile(configFileName)
}
