// Package config provides unified configuration for the PALS entry services.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MerlinMa/pals/internal/filter"
	"github.com/MerlinMa/pals/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PALS_"

// Config holds the unified configuration for the PALS services.
type Config struct {
	// DataDir is the base directory for local state
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// GRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Model configuration
	Model ModelConfig `json:"model" yaml:"model"`

	// Storage backs the blob sink
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Blob configures uploads of result tables
	Blob BlobConfig `json:"blob" yaml:"blob"`

	// SQL configures the database sink
	SQL SQLConfig `json:"sql" yaml:"sql"`

	// Endpoint configures the REST scoring endpoint
	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint"`

	// Filters gate scheduled runs, evaluated in configuration order
	Filters filter.Specs `json:"filters" yaml:"filters"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Entry configures the execution entry point
	Entry EntryConfig `json:"entry" yaml:"entry"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxBodyBytes bounds request payloads
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// GRPCConfig holds gRPC server settings.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled enables the gRPC server
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ModelConfig locates the regression model.
type ModelConfig struct {
	// Path is the model file; empty disables prediction
	Path string `json:"path" yaml:"path"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// Type is the storage type: local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3-specific settings.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// BlobConfig holds blob sink settings.
type BlobConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Subdir    string `json:"subdir" yaml:"subdir"`
	Overwrite bool   `json:"overwrite" yaml:"overwrite"`
	Compress  bool   `json:"compress" yaml:"compress"`
}

// SQLConfig holds SQL sink settings.
type SQLConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
	Table   string `json:"table" yaml:"table"`
}

// EndpointConfig holds scoring endpoint settings.
type EndpointConfig struct {
	// URL of the endpoint; empty disables it
	URL               string        `json:"url" yaml:"url"`
	Key               string        `json:"key" yaml:"key"`
	Tags              []string      `json:"tags" yaml:"tags"`
	IncludeTimestamps bool          `json:"include_timestamps" yaml:"include_timestamps"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount        int           `json:"retry_count" yaml:"retry_count"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level"`
	JSON     bool   `json:"json" yaml:"json"`
	FilePath string `json:"filepath" yaml:"filepath"`
	FileName string `json:"filename" yaml:"filename"`
	FileMode string `json:"filemode" yaml:"filemode"`
}

// EntryConfig holds execution entry settings.
type EntryConfig struct {
	// PredictedColumn names the model output column
	PredictedColumn string `json:"predicted_column" yaml:"predicted_column"`

	// StatsWindow drops idle stats counters; 0 keeps them forever
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/pals",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodyBytes: 32 << 20,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Blob: BlobConfig{
			Overwrite: true,
		},
		SQL: SQLConfig{
			Driver: "sqlite3",
			Table:  "pals_results",
		},
		Endpoint: EndpointConfig{
			Timeout:    30 * time.Second,
			RetryCount: 3,
		},
		Logging: LoggingConfig{
			Level:    "info",
			FileMode: "a",
		},
		Entry: EntryConfig{
			PredictedColumn: "Predicted_Value",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/pals"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "blobs")
	}

	if c.SQL.Driver == "" {
		c.SQL.Driver = "sqlite3"
	}
	if c.SQL.DSN == "" && c.SQL.Driver == "sqlite3" {
		c.SQL.DSN = filepath.Join(c.DataDir, "pals.db")
	}

	if c.Logging.FileName != "" && c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.DataDir, "logs")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.SQL.Enabled && c.SQL.DSN == "" {
		return fmt.Errorf("sql.dsn is required when sql is enabled")
	}

	if c.Endpoint.RetryCount < 0 {
		return fmt.Errorf("endpoint.retry_count must not be negative, got %d", c.Endpoint.RetryCount)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if _, err := c.Filters.Compile(); err != nil {
		return fmt.Errorf("filters: %w", err)
	}

	return nil
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() logging.Config {
	opts := logging.DefaultConfig()
	opts.Level = c.Logging.Level
	opts.JSON = c.Logging.JSON
	opts.FilePath = c.Logging.FilePath
	opts.FileName = c.Logging.FileName
	if c.Logging.FileMode != "" {
		opts.FileMode = c.Logging.FileMode
	}
	return opts
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PALS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := env("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// gRPC configuration
	if v := env("GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := env("GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = parseBool(v)
	}

	// Model configuration
	if v := env("MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}

	// Storage configuration
	if v := env("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := env("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := env("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := env("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := env("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := env("S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v)
	}

	// Blob configuration
	if v := env("BLOB_ENABLED"); v != "" {
		cfg.Blob.Enabled = parseBool(v)
	}
	if v := env("BLOB_SUBDIR"); v != "" {
		cfg.Blob.Subdir = v
	}
	if v := env("BLOB_OVERWRITE"); v != "" {
		cfg.Blob.Overwrite = parseBool(v)
	}
	if v := env("BLOB_COMPRESS"); v != "" {
		cfg.Blob.Compress = parseBool(v)
	}

	// SQL configuration
	if v := env("SQL_ENABLED"); v != "" {
		cfg.SQL.Enabled = parseBool(v)
	}
	if v := env("SQL_DRIVER"); v != "" {
		cfg.SQL.Driver = v
	}
	if v := env("SQL_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
	if v := env("SQL_TABLE"); v != "" {
		cfg.SQL.Table = v
	}

	// Endpoint configuration
	if v := env("ENDPOINT_URL"); v != "" {
		cfg.Endpoint.URL = v
	}
	if v := env("ENDPOINT_KEY"); v != "" {
		cfg.Endpoint.Key = v
	}
	if v := env("ENDPOINT_TAGS"); v != "" {
		cfg.Endpoint.Tags = splitList(v)
	}
	if v := env("ENDPOINT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Endpoint.Timeout = d
		}
	}
	if v := env("ENDPOINT_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Endpoint.RetryCount = n
		}
	}

	// Logging configuration
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_JSON"); v != "" {
		cfg.Logging.JSON = parseBool(v)
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.Logging.FilePath, cfg.Logging.FileName = filepath.Split(v)
	}

	// Entry configuration
	if v := env("PREDICTED_COLUMN"); v != "" {
		cfg.Entry.PredictedColumn = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes" || v == "on"
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
