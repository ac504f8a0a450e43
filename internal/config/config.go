package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CA       CAConfig       `yaml:"ca"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CAConfig contains CA configuration. CertPath and KeyPath point at the
// CA certificate and private key; SerialPath is the monotonic serial log
// shared with any other signer on the machine, so access to it goes
// through an advisory file lock on LockPath.
type CAConfig struct {
	CertPath     string `yaml:"cert_path"`
	KeyPath      string `yaml:"key_path"`
	SerialPath   string `yaml:"serial_path"`
	LockPath     string `yaml:"lock_path"`
	CertValidity string `yaml:"cert_validity"`
}

// IngestConfig contains archive ingestion configuration
type IngestConfig struct {
	QueueDir string `yaml:"queue_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// CA validation
	if c.CA.CertPath == "" {
		return fmt.Errorf("ca.cert_path is required")
	}
	if c.CA.KeyPath == "" {
		return fmt.Errorf("ca.key_path is required")
	}
	if c.CA.SerialPath == "" {
		return fmt.Errorf("ca.serial_path is required")
	}
	if c.CA.CertValidity != "" {
		if _, err := parseDuration(c.CA.CertValidity); err != nil {
			return fmt.Errorf("ca.cert_validity is invalid: %w", err)
		}
	}

	// Ingest validation
	if c.Ingest.QueueDir == "" {
		return fmt.Errorf("ingest.queue_dir is required")
	}

	// Logging validation
	if c.Logging.Level != "" {
		validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLogLevels[c.Logging.Level] {
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
		}
	}

	return nil
}

// CALockPath returns the configured lock file path, defaulting to a lock
// file next to the serial log.
func (c *Config) CALockPath() string {
	if c.CA.LockPath != "" {
		return c.CA.LockPath
	}
	return filepath.Join(filepath.Dir(c.CA.SerialPath), "serial.lock")
}

// GetCertValidityDuration returns the issued-certificate validity as
// time.Duration, defaulting to one year.
func (c *Config) GetCertValidityDuration() time.Duration {
	if c.CA.CertValidity == "" {
		return 365 * 24 * time.Hour
	}
	d, _ := parseDuration(c.CA.CertValidity)
	return d
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
