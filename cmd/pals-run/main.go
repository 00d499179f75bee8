// Package main implements pals-run, which invokes one entry point on a
// payload file and prints the result document. It is the local stand-in for
// the PALS executor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/MerlinMa/pals/internal/app"
	"github.com/MerlinMa/pals/internal/config"
	"github.com/MerlinMa/pals/internal/entry"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/pkg/types"
)

func main() {
	var (
		configFile  string
		envFile     string
		entryPoint  string
		payloadFile string
		modelPath   string
		indent      bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")
	flag.StringVar(&entryPoint, "entry", entry.EntryExecute, "Entry point: execute, schedule, hello")
	flag.StringVar(&payloadFile, "payload", "-", "Payload JSON file, - for stdin")
	flag.StringVar(&modelPath, "model", "", "Path to the regression model file")
	flag.BoolVar(&indent, "indent", true, "Indent the result document")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pals-run [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pals-run -entry execute -payload values.json -model water.json\n")
		fmt.Fprintf(os.Stderr, "  pals-run -entry schedule -config pals.yaml < tags.json\n")
	}
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logCloser.Close()

	ctx := context.Background()
	rt, closer, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer closer.Close()

	result, err := run(ctx, rt, entryPoint, payloadFile)
	if err != nil {
		logger.Error("entry failed", "entry", entryPoint, "error", err)
		closer.Close()
		logCloser.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

func run(ctx context.Context, rt *entry.Runtime, entryPoint, payloadFile string) (interface{}, error) {
	if entryPoint == entry.EntryHello {
		return rt.HelloWorld(), nil
	}

	payload, err := readPayload(payloadFile)
	if err != nil {
		return nil, err
	}

	switch entryPoint {
	case entry.EntryExecute:
		return rt.Execute(ctx, payload)
	case entry.EntrySchedule:
		return rt.Schedule(ctx, payload)
	default:
		return nil, fmt.Errorf("unknown entry point: %s", entryPoint)
	}
}

// readPayload decodes the payload file. Empty input is a nil payload.
func readPayload(path string) (*types.ExtractionPayload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	payload, err := types.DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}
