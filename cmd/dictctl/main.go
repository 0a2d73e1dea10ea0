package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/dictionary"
	"github.com/veildoc/veildoc/internal/logger"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		inputFile    = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		batchSize    = flag.Int("batch-size", 1000, "Batch size for processing")
		validateOnly = flag.Bool("validate-only", false, "Only validate data, don't write dictionaries")
		showStats    = flag.Bool("stats", false, "Show dictionary statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input names.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input org_names.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dictDir := cfg.Detectors.Dictionary.Path
	store, err := dictionary.Load(dictDir, log.Logger)
	if err != nil {
		log.Fatal("Failed to load dictionaries", zap.Error(err))
	}

	if *showStats {
		printStats(store)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling ingestion")
		cancel()
	}()

	ingestor := dictionary.NewIngestor(store, &dictionary.IngestConfig{
		BatchSize:      *batchSize,
		ValidateData:   true,
		ProgressReport: 10000,
	}, log.WithComponent("ingest").Logger)

	result, err := ingestor.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Ingestion failed", zap.Error(err))
	}

	fmt.Printf("Processed %d records: %d loaded, %d skipped (%s)\n",
		result.TotalRecords, result.Loaded, result.Skipped, result.Duration)

	if *validateOnly {
		fmt.Println("Validate-only run, dictionaries not written")
		return
	}

	if err := store.Save(dictDir); err != nil {
		log.Fatal("Failed to save dictionaries", zap.Error(err))
	}
	printStats(store)
}

func printStats(store *dictionary.Store) {
	fmt.Printf("Dictionary store: %d terms across %d categories\n",
		store.Size(), len(store.Categories()))
	for _, category := range store.Categories() {
		fmt.Printf("  %-12s %d terms\n", category, len(store.Terms(category)))
	}
}
