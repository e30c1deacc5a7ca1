package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Driver names accepted for the store. Both are registered with database/sql
// by blank imports in internal/db.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Platform overrides accepted for the capability provider.
const (
	PlatformAuto    = ""
	PlatformAndroid = "android"
	PlatformDesktop = "desktop"
)

// DefaultBackupKeep is how many scheduled backups are retained when
// backup_keep is not set.
const DefaultBackupKeep = 10

// AppConfig is the optional JSON or YAML configuration file. Every field is a
// pointer so that omitted keys fall back to the Get* defaults and command-line
// flags can tell "unset" apart from a zero value.
type AppConfig struct {
	DBPath          *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Driver          *string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Listen          *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	GRPCListen      *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
	Platform        *string `json:"platform,omitempty" yaml:"platform,omitempty"`
	BackupDir       *string `json:"backup_dir,omitempty" yaml:"backup_dir,omitempty"`
	BackupSchedule  *string `json:"backup_schedule,omitempty" yaml:"backup_schedule,omitempty"` // standard 5-field cron expression
	BackupKeep      *int    `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"` // duration string like "5s"
	DevMode         *bool   `json:"dev_mode,omitempty" yaml:"dev_mode,omitempty"`
}

// EmptyConfig returns an AppConfig with all fields set to nil.
func EmptyConfig() *AppConfig {
	return &AppConfig{}
}

// LoadConfig loads an AppConfig from a JSON or YAML file, chosen by
// extension (.json, .yaml, .yml). The file must be at most 1MB. Unknown keys
// are ignored so newer config files still load.
func LoadConfig(path string) (*AppConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AppConfig) Validate() error {
	if c.Driver != nil {
		switch *c.Driver {
		case DriverModernc, DriverCgo:
		default:
			return fmt.Errorf("driver must be %q or %q, got %q", DriverModernc, DriverCgo, *c.Driver)
		}
	}

	if c.Platform != nil {
		switch *c.Platform {
		case PlatformAuto, PlatformAndroid, PlatformDesktop:
		default:
			return fmt.Errorf("platform must be %q or %q, got %q", PlatformAndroid, PlatformDesktop, *c.Platform)
		}
	}

	if c.Listen != nil && *c.Listen != "" {
		if _, _, err := net.SplitHostPort(*c.Listen); err != nil {
			return fmt.Errorf("invalid listen address '%s': %w", *c.Listen, err)
		}
	}
	if c.GRPCListen != nil && *c.GRPCListen != "" {
		if _, _, err := net.SplitHostPort(*c.GRPCListen); err != nil {
			return fmt.Errorf("invalid grpc_listen address '%s': %w", *c.GRPCListen, err)
		}
	}

	if c.BackupSchedule != nil && *c.BackupSchedule != "" {
		if _, err := cron.ParseStandard(*c.BackupSchedule); err != nil {
			return fmt.Errorf("invalid backup_schedule '%s': %w", *c.BackupSchedule, err)
		}
	}
	if c.BackupKeep != nil && *c.BackupKeep < 1 {
		return fmt.Errorf("backup_keep must be at least 1, got %d", *c.BackupKeep)
	}

	if c.ShutdownTimeout != nil && *c.ShutdownTimeout != "" {
		d, err := time.ParseDuration(*c.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout '%s': %w", *c.ShutdownTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("shutdown_timeout must be positive, got %s", d)
		}
	}

	return nil
}

// GetDBPath returns the configured store path, or "" when the platform
// provider should choose it.
func (c *AppConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetDriver returns the database/sql driver name or the default.
func (c *AppConfig) GetDriver() string {
	if c.Driver == nil || *c.Driver == "" {
		return DriverModernc
	}
	return *c.Driver
}

// GetListen returns the HTTP listen address or the default.
func (c *AppConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC listen address. Empty disables gRPC.
func (c *AppConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetPlatform returns the platform override, or PlatformAuto.
func (c *AppConfig) GetPlatform() string {
	if c.Platform == nil {
		return PlatformAuto
	}
	return *c.Platform
}

// GetBackupDir returns the backup directory or the default.
func (c *AppConfig) GetBackupDir() string {
	if c.BackupDir == nil || *c.BackupDir == "" {
		return "backups"
	}
	return *c.BackupDir
}

// GetBackupSchedule returns the cron expression for scheduled backups.
// Empty disables the scheduler.
func (c *AppConfig) GetBackupSchedule() string {
	if c.BackupSchedule == nil {
		return ""
	}
	return *c.BackupSchedule
}

// GetBackupKeep returns how many scheduled backups to retain.
func (c *AppConfig) GetBackupKeep() int {
	if c.BackupKeep == nil || *c.BackupKeep < 1 {
		return DefaultBackupKeep
	}
	return *c.BackupKeep
}

// GetShutdownTimeout parses and returns the ShutdownTimeout as a time.Duration.
func (c *AppConfig) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout == nil || *c.ShutdownTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetDevMode returns the dev_mode value or the default.
func (c *AppConfig) GetDevMode() bool {
	if c.DevMode == nil {
		return false
	}
	return *c.DevMode
}
