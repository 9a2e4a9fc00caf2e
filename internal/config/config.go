// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration read from the environment.
// Strategy calibration lives in StrategyConfig, loaded separately.
type Config struct {
	DataDir      string // Base directory for all databases, always absolute
	StrategyPath string // Optional strategy YAML; built-in defaults when empty/missing
	LogLevel     string
	Port         int
	DevMode      bool
	Timezone     string // IANA zone for schedules, default Asia/Ho_Chi_Minh

	// Cron schedules (6-field, with seconds)
	CycleSchedule       string
	AlertSweepSchedule  string
	MaintenanceSchedule string
	BackupSchedule      string

	ScoringWorkers int // parallel scoring fan-out, 0 = NumCPU
	RetentionYears int // prune bars and signals older than this, 0 keeps everything

	Backup BackupConfig
}

// BackupConfig holds S3-compatible backup storage settings.
// Backups are disabled unless a bucket is configured.
type BackupConfig struct {
	Enabled       bool
	Endpoint      string // custom endpoint for S3-compatible stores, empty = AWS
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VNSENTRY_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		StrategyPath: getEnv("VNSENTRY_STRATEGY_CONFIG", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("VNSENTRY_PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		Timezone:     getEnv("VNSENTRY_TZ", "Asia/Ho_Chi_Minh"),

		// Analysis runs after the HOSE afternoon close once the feed has settled.
		CycleSchedule:       getEnv("VNSENTRY_CYCLE_SCHEDULE", "0 0 16 * * MON-FRI"),
		AlertSweepSchedule:  getEnv("VNSENTRY_ALERT_SWEEP_SCHEDULE", "0 */30 * * * *"),
		MaintenanceSchedule: getEnv("VNSENTRY_MAINTENANCE_SCHEDULE", "0 0 2 * * *"),
		BackupSchedule:      getEnv("VNSENTRY_BACKUP_SCHEDULE", "0 30 2 * * *"),

		ScoringWorkers: getEnvAsInt("VNSENTRY_SCORING_WORKERS", 0),
		RetentionYears: getEnvAsInt("VNSENTRY_RETENTION_YEARS", 0),

		Backup: BackupConfig{
			Endpoint:      getEnv("VNSENTRY_S3_ENDPOINT", ""),
			Region:        getEnv("VNSENTRY_S3_REGION", "auto"),
			Bucket:        getEnv("VNSENTRY_S3_BUCKET", ""),
			AccessKey:     getEnv("VNSENTRY_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("VNSENTRY_S3_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("VNSENTRY_BACKUP_RETENTION_DAYS", 30),
		},
	}
	cfg.Backup.Enabled = cfg.Backup.Bucket != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RetentionYears < 0 {
		return fmt.Errorf("retention years cannot be negative")
	}
	if c.Backup.Enabled && (c.Backup.AccessKey == "" || c.Backup.SecretKey == "") {
		return fmt.Errorf("backup bucket configured but credentials missing")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
