package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/logger"
	"github.com/veildoc/veildoc/internal/pipeline"
	"github.com/veildoc/veildoc/internal/server"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `veildoc %s - reversible PII redaction for documents

Usage:
  veildoc serve   [-config path]
  veildoc mask    [-config path] -in file [-out dir]
  veildoc restore [-config path] -in file -mapping file -key file [-out dir]
  veildoc version
`, version)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "mask":
		runMask(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "version":
		fmt.Printf("veildoc %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		usage()
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup(configPath string) (*config.Config, *logger.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, log
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	defer log.Sync()

	log.Info("Starting veildoc",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("port", cfg.Server.Port))

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}
		log.Info("Server shutdown complete")
	}
}

func runMask(args []string) {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	inPath := fs.String("in", "", "Input document")
	outDir := fs.String("out", ".", "Output directory for artifacts")
	fs.Parse(args)

	if *inPath == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, log := setup(*configPath)
	defer log.Sync()

	pipe, err := pipeline.New(cfg, log.WithComponent("pipeline").Logger)
	if err != nil {
		log.Fatal("Failed to create pipeline", zap.Error(err))
	}
	defer pipe.Close()

	opts := pipeline.Options{TaskID: uuid.NewString()}
	result, err := pipe.Mask(context.Background(), *inPath, *outDir, opts)
	if err != nil {
		log.Fatal("Masking failed", zap.Error(err))
	}

	fmt.Printf("Masked:  %s\n", result.Artifacts.MaskedPath)
	fmt.Printf("Mapping: %s\n", result.Artifacts.MappingPath)
	fmt.Printf("Key:     %s\n", result.Artifacts.KeyPath)
	fmt.Printf("Status:  %s (%d detected, %d masked)\n", result.Status, result.Detected, result.Masked)
	if len(result.FailedPages) > 0 {
		fmt.Printf("Failed pages: %v\n", result.FailedPages)
	}
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	inPath := fs.String("in", "", "Masked document")
	mappingPath := fs.String("mapping", "", "Mapping file")
	keyPath := fs.String("key", "", "Key file")
	outDir := fs.String("out", ".", "Output directory")
	fs.Parse(args)

	if *inPath == "" || *keyPath == "" {
		fs.Usage()
		os.Exit(2)
	}
	if *mappingPath == "" {
		// Default to the sibling mapping written at mask time.
		base := *inPath
		ext := filepath.Ext(base)
		*mappingPath = base[:len(base)-len(ext)] + ".json"
	}

	cfg, log := setup(*configPath)
	defer log.Sync()

	pipe, err := pipeline.New(cfg, log.WithComponent("pipeline").Logger)
	if err != nil {
		log.Fatal("Failed to create pipeline", zap.Error(err))
	}
	defer pipe.Close()

	opts := pipeline.Options{TaskID: uuid.NewString()}
	result, err := pipe.Restore(context.Background(), *inPath, *mappingPath, *keyPath, *outDir, opts)
	if err != nil {
		log.Fatal("Restoration failed", zap.Error(err))
	}

	fmt.Printf("Restored: %s (%d of %d records)\n", result.OutputPath, result.Restored, result.Records)
	if len(result.Unresolved) > 0 {
		fmt.Printf("Unresolved: %v\n", result.Unresolved)
	}
}
