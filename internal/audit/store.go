package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/veildoc/veildoc/internal/config"
	"go.uber.org/zap"
)

// Store persists the audit trail: sessions, per-file operations and PII
// processing events. PostgreSQL via sqlx.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Session groups the operations of one client interaction.
type Session struct {
	ID        string    `db:"id" json:"id"`
	ClientIP  string    `db:"client_ip" json:"client_ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FileOperation records one mask or restore run over one file.
type FileOperation struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	TaskID      string    `db:"task_id" json:"task_id"`
	Operation   string    `db:"operation" json:"operation"` // mask | restore | manual_mask
	FileName    string    `db:"file_name" json:"file_name"`
	FileType    string    `db:"file_type" json:"file_type"`
	Status      string    `db:"status" json:"status"` // completed | partial | failed
	Detected    int       `db:"detected" json:"detected"`
	Masked      int       `db:"masked" json:"masked"`
	FailedPages int       `db:"failed_pages" json:"failed_pages"`
	DurationMS  int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CategoryEvent counts masked values per PII category for one operation.
type CategoryEvent struct {
	OperationID int64  `db:"operation_id" json:"operation_id"`
	Category    string `db:"category" json:"category"`
	Count       int    `db:"count" json:"count"`
}

// Statistics is the aggregate view served by the stats endpoint.
type Statistics struct {
	TotalOperations int64            `json:"total_operations"`
	TotalMasked     int64            `json:"total_masked"`
	TotalFailed     int64            `json:"total_failed"`
	ByCategory      map[string]int64 `json:"by_category"`
	ByFileType      map[string]int64 `json:"by_file_type"`
}

// NewStore connects to the audit database and ensures the schema exists.
func NewStore(cfg *config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	store := &Store{db: db, logger: logger}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS audit_sessions (
			id          TEXT PRIMARY KEY,
			client_ip   TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS audit_operations (
			id           BIGSERIAL PRIMARY KEY,
			session_id   TEXT NOT NULL REFERENCES audit_sessions(id),
			task_id      TEXT NOT NULL,
			operation    TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			file_type    TEXT NOT NULL,
			status       TEXT NOT NULL,
			detected     INTEGER NOT NULL DEFAULT 0,
			masked       INTEGER NOT NULL DEFAULT 0,
			failed_pages INTEGER NOT NULL DEFAULT 0,
			duration_ms  BIGINT NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS audit_category_events (
			operation_id BIGINT NOT NULL REFERENCES audit_operations(id),
			category     TEXT NOT NULL,
			count        INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_audit_operations_session
			ON audit_operations(session_id);
		CREATE INDEX IF NOT EXISTS idx_audit_category_events_op
			ON audit_category_events(operation_id)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// CreateSession registers a session. Idempotent on the session id.
func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO audit_sessions (id, client_ip, user_agent)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, session.ID, session.ClientIP, session.UserAgent); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// RecordOperation stores one file operation plus its per-category counts in
// a single transaction and fills in the generated operation ID.
func (s *Store) RecordOperation(ctx context.Context, op *FileOperation, categories map[string]int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO audit_operations
			(session_id, task_id, operation, file_name, file_type, status,
			 detected, masked, failed_pages, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, query,
		op.SessionID, op.TaskID, op.Operation, op.FileName, op.FileType,
		op.Status, op.Detected, op.Masked, op.FailedPages, op.DurationMS,
	).Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	for category, count := range categories {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO audit_category_events (operation_id, category, count) VALUES ($1, $2, $3)`,
			op.ID, category, count)
		if err != nil {
			return fmt.Errorf("failed to record category event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	s.logger.Debug("Audit operation recorded",
		zap.Int64("id", op.ID),
		zap.String("operation", op.Operation),
		zap.String("status", op.Status))

	return nil
}

// ListOperations returns the most recent operations for a session.
func (s *Store) ListOperations(ctx context.Context, sessionID string, limit int) ([]FileOperation, error) {
	if limit <= 0 {
		limit = 50
	}

	var ops []FileOperation
	query := `
		SELECT * FROM audit_operations
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := s.db.SelectContext(ctx, &ops, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// GetStatistics aggregates totals across all recorded operations.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ByCategory: make(map[string]int64),
		ByFileType: make(map[string]int64),
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(masked), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM audit_operations`
	row := s.db.QueryRowContext(ctx, query)
	if err := row.Scan(&stats.TotalOperations, &stats.TotalMasked, &stats.TotalFailed); err != nil {
		return nil, fmt.Errorf("failed to aggregate operations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COALESCE(SUM(count), 0) FROM audit_category_events GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category rows: %w", err)
	}

	typeRows, err := s.db.QueryContext(ctx,
		`SELECT file_type, COUNT(*) FROM audit_operations GROUP BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate file types: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var fileType string
		var count int64
		if err := typeRows.Scan(&fileType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan file type row: %w", err)
		}
		stats.ByFileType[fileType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file type rows: %w", err)
	}

	return stats, nil
}

// GetOperation fetches a single operation by id.
func (s *Store) GetOperation(ctx context.Context, id int64) (*FileOperation, error) {
	var op FileOperation
	err := s.db.GetContext(ctx, &op, `SELECT * FROM audit_operations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operation: %w", err)
	}
	return &op, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides credentials in a connection URL before logging it.
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "//")
	if scheme < 0 || scheme+2 > at {
		return url
	}
	return url[:scheme+2] + "***" + url[at:]
}
