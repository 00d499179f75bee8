// Package main implements the pals server binary. It serves the execute,
// schedule and hello entry points over HTTP and, when enabled, gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MerlinMa/pals/internal/app"
	"github.com/MerlinMa/pals/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		envFile     string
		dataDir     string
		httpAddr    string
		grpcAddr    string
		modelPath   string
		logLevel    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local state")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (enables gRPC)")
	flag.StringVar(&modelPath, "model", "", "Path to the regression model file")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warning, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "PALS - entry-script server for the PALS executor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pals [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pals --data-dir /data/pals --model /models/water.json\n")
		fmt.Fprintf(os.Stderr, "  pals --config /etc/pals/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PALS_DATA_DIR         Base directory for local state\n")
		fmt.Fprintf(os.Stderr, "  PALS_HTTP_ADDR        HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  PALS_GRPC_ADDR        gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  PALS_MODEL_PATH       Regression model file\n")
		fmt.Fprintf(os.Stderr, "  PALS_STORAGE_TYPE     Blob storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  PALS_SQL_DSN          SQL sink data source name\n")
		fmt.Fprintf(os.Stderr, "  PALS_ENDPOINT_URL     REST scoring endpoint\n")
		fmt.Fprintf(os.Stderr, "  PALS_LOG_LEVEL        Log level\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("pals version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	cfg, err := loadConfig(configFile, dataDir, httpAddr, grpcAddr, modelPath, logLevel)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Blocks until SIGINT/SIGTERM, then drains and closes everything.
	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, httpAddr, grpcAddr, modelPath, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Flags have the highest priority.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
		cfg.GRPC.Enabled = true
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("PALS entry server %s", version)
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	if cfg.Model.Path != "" {
		log.Printf("  Model:    %s", cfg.Model.Path)
	}
	log.Printf("")

	log.Printf("Sinks:")
	if cfg.Blob.Enabled {
		log.Printf("  Blob:     %s (subdir=%q, overwrite=%v, compress=%v)", cfg.Storage.Type, cfg.Blob.Subdir, cfg.Blob.Overwrite, cfg.Blob.Compress)
	}
	if cfg.SQL.Enabled {
		log.Printf("  SQL:      %s table %s", cfg.SQL.Driver, cfg.SQL.Table)
	}
	if cfg.Endpoint.URL != "" {
		log.Printf("  Endpoint: %s", cfg.Endpoint.URL)
	}
	log.Printf("  Filters:  %d", cfg.Filters.Len())
	log.Printf("")
}
