// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/parser"
)

// FileName is the config file created beside the executable.
const FileName = "UD7Tracker.exe.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"UD7Tracker"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Export defaults
	Export ExportConfig `xml:"Export"`

	// Logging configuration
	Logging LoggingConfig `xml:"Logging"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	TempDirectory    string `xml:"TempDirectory"`
	MaxUploadSize    string `xml:"MaxUploadSize"`
}

// ProcessingConfig contains merge and session settings
type ProcessingConfig struct {
	MaxSessions            int    `xml:"MaxSessions"`
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	AllowFolderSessions    bool   `xml:"AllowFolderSessions"`
	DefaultChannels        string `xml:"DefaultChannels"`
}

// ExportConfig contains workbook and plot defaults
type ExportConfig struct {
	WorkbookName string `xml:"WorkbookName"`
}

// LoggingConfig controls the application log
type LoggingConfig struct {
	Level      string `xml:"Level"`
	File       string `xml:"File"`
	MaxSizeMB  int    `xml:"MaxSizeMB"`
	MaxBackups int    `xml:"MaxBackups"`
	MaxAgeDays int    `xml:"MaxAgeDays"`
	Compress   bool   `xml:"Compress"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	EnableMetrics        bool   `xml:"EnableMetrics"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
	DuckDBBatchSize      int    `xml:"DuckDBBatchSize"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			TempDirectory:    "./data/temp",
			MaxUploadSize:    "512M",
		},
		Processing: ProcessingConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			AllowFolderSessions:    false,
			DefaultChannels:        "FREQ,IFB",
		},
		Export: ExportConfig{
			WorkbookName: "UD7_HMI_Output.xlsx",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "./logs/ud7tracker.log",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
			EnableMetrics:        true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "512MB",
			DuckDBBatchSize:      10000,
		},
	}
}

// LoadConfig loads configuration from XML file, creating it with defaults on first run.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- UD7 HMI Tracking Analyzer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Logging.File,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// LoggerConfig maps the Logging section onto the logger package.
func (c *AppConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// StoreOptions maps the DuckDB tuning knobs onto record store options.
func (c *AppConfig) StoreOptions() parser.StoreOptions {
	opts := parser.DefaultStoreOptions()
	if c.Advanced.DuckDBMemoryLimit != "" {
		opts.MemoryLimit = c.Advanced.DuckDBMemoryLimit
	}
	if c.Advanced.DuckDBThreads > 0 {
		opts.Threads = c.Advanced.DuckDBThreads
	}
	if c.Advanced.DuckDBBatchSize > 0 {
		opts.BatchSize = c.Advanced.DuckDBBatchSize
	}
	return opts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
