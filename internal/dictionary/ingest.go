package dictionary

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// FileFormat identifies a dictionary dataset format.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat guesses the dataset format from the file extension.
func DetectFileFormat(filePath string) FileFormat {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// TermRecord is one dictionary dataset row: a term and the PII category it
// belongs to.
type TermRecord struct {
	Term     string `parquet:"term" json:"term"`
	Category string `parquet:"category" json:"category"`
}

// IngestConfig controls dataset ingestion.
type IngestConfig struct {
	BatchSize      int
	ValidateData   bool
	ProgressReport int
}

// DefaultIngestConfig returns the default ingestion configuration.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		BatchSize:      1000,
		ValidateData:   true,
		ProgressReport: 10000,
	}
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	TotalRecords int64
	Loaded       int64
	Skipped      int64
	Duration     time.Duration
}

// Ingestor loads dictionary datasets (CSV, Parquet, or JSON lines) into a
// Store.
type Ingestor struct {
	store  *Store
	config *IngestConfig
	logger *zap.Logger
}

// NewIngestor creates a dataset ingestor writing into store.
func NewIngestor(store *Store, config *IngestConfig, logger *zap.Logger) *Ingestor {
	if config == nil {
		config = DefaultIngestConfig()
	}
	return &Ingestor{store: store, config: config, logger: logger}
}

// ProcessFile ingests one dataset file into the store.
func (in *Ingestor) ProcessFile(ctx context.Context, filePath string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}

	format := DetectFileFormat(filePath)
	in.logger.Info("Starting dictionary ingestion",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", in.config.BatchSize))

	var err error
	switch format {
	case FormatCSV:
		err = in.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = in.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = in.processJSON(ctx, filePath, result)
	default:
		return result, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(filePath))
	}
	if err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	in.logger.Info("Dictionary ingestion completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("loaded", result.Loaded),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processCSV ingests a two-column (term, category) CSV file with a header.
func (in *Ingestor) processCSV(ctx context.Context, filePath string, result *IngestResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2 // term, category

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	in.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return in.processBatches(ctx, func() ([]TermRecord, error) {
		var batch []TermRecord
		for len(batch) < in.config.BatchSize {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				in.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			batch = append(batch, TermRecord{
				Term:     strings.TrimSpace(record[0]),
				Category: strings.TrimSpace(record[1]),
			})
		}
		return batch, nil
	}, result)
}

// processParquet ingests a Parquet dataset of TermRecord rows.
func (in *Ingestor) processParquet(ctx context.Context, filePath string, result *IngestResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return in.processBatches(ctx, func() ([]TermRecord, error) {
		var batch []TermRecord
		for len(batch) < in.config.BatchSize {
			var record TermRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				in.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, result)
}

// processJSON ingests a dataset with one JSON object per line.
func (in *Ingestor) processJSON(ctx context.Context, filePath string, result *IngestResult) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return in.processBatches(ctx, func() ([]TermRecord, error) {
		var batch []TermRecord
		for len(batch) < in.config.BatchSize {
			var record TermRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				in.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, result)
}

// processBatches drains the reader function batch by batch.
func (in *Ingestor) processBatches(ctx context.Context, readBatch func() ([]TermRecord, error), result *IngestResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break // end of file
		}

		for _, record := range batch {
			result.TotalRecords++
			if in.config.ValidateData && !in.validateRecord(record) {
				result.Skipped++
				continue
			}
			in.store.Add(strings.ToUpper(record.Category), record.Term)
			result.Loaded++
		}

		if in.config.ProgressReport > 0 && result.TotalRecords%int64(in.config.ProgressReport) == 0 {
			in.logger.Info("Ingestion progress",
				zap.Int64("records", result.TotalRecords),
				zap.Int64("loaded", result.Loaded),
				zap.Int64("skipped", result.Skipped))
		}
	}

	return nil
}

// validateRecord rejects rows that would pollute the dictionaries.
func (in *Ingestor) validateRecord(record TermRecord) bool {
	term := strings.TrimSpace(record.Term)
	if term == "" || strings.TrimSpace(record.Category) == "" {
		return false
	}
	// Single-character terms match far too aggressively.
	if len([]rune(term)) < 2 {
		return false
	}
	if len(term) > 200 {
		return false
	}
	return true
}
