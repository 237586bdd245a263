package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS results (
    id              TEXT PRIMARY KEY,
    file_name       TEXT NOT NULL,
    doc_type        TEXT NOT NULL,
    raw_text        TEXT NOT NULL DEFAULT '',
    structured_data TEXT NOT NULL DEFAULT '{}',
    confidence      REAL NOT NULL DEFAULT 0,
    page_count      INTEGER NOT NULL DEFAULT 0,
    processing_ms   INTEGER NOT NULL DEFAULT 0,
    source_path     TEXT NOT NULL DEFAULT '',
    output_path     TEXT NOT NULL DEFAULT '',
    processed_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_doc_type ON results(doc_type);
CREATE INDEX IF NOT EXISTS idx_results_processed_at ON results(processed_at);
`

// Store persists extraction results in a node-local SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and opens the database at path, applying the
// schema. WAL keeps concurrent worker writes from blocking readers.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc's driver is single-writer; one connection sidesteps SQLITE_BUSY
	// under concurrent job completion.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("store.open", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a new result. Result IDs are write-once; inserting a
// duplicate is an error, not an upsert.
func (s *Store) Save(ctx context.Context, r *entity.Result) error {
	if r.ID == "" {
		return fmt.Errorf("result id is empty")
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now().UTC()
	}
	structured := string(r.StructuredData)
	if structured == "" {
		structured = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO results
            (id, file_name, doc_type, raw_text, structured_data, confidence,
             page_count, processing_ms, source_path, output_path, processed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FileName, string(r.DocType), r.RawText, structured, r.Confidence,
		r.PageCount, r.ProcessingMS, r.SourcePath, r.OutputPath, r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ID, err)
	}
	s.logger.Info("store.save", "result_id", r.ID, "doc_type", r.DocType, "file", r.FileName)
	return nil
}

// Get fetches a single result by id.
func (s *Store) Get(ctx context.Context, id string) (*entity.Result, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, file_name, doc_type, raw_text, structured_data, confidence,
               page_count, processing_ms, source_path, output_path, processed_at
        FROM results WHERE id = ?`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Errorf(common.KindNotFound, "result %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return r, nil
}

// List returns results newest-first, optionally filtered by doc type.
func (s *Store) List(ctx context.Context, docType constants.DocType) ([]*entity.Result, error) {
	q := `
        SELECT id, file_name, doc_type, raw_text, structured_data, confidence,
               page_count, processing_ms, source_path, output_path, processed_at
        FROM results`
	var args []any
	if docType != "" {
		q += ` WHERE doc_type = ?`
		args = append(args, string(docType))
	}
	q += ` ORDER BY processed_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*entity.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a result row and reports the artifact paths that were
// recorded on it so callers can clean up files. Deleting an absent id is a
// no-op.
func (s *Store) Delete(ctx context.Context, id string) (sourcePath, outputPath string, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_path, output_path FROM results WHERE id = ?`, id)
	if err := row.Scan(&sourcePath, &outputPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("lookup result %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id); err != nil {
		return "", "", fmt.Errorf("delete result %s: %w", id, err)
	}
	s.logger.Info("store.delete", "result_id", id)
	return sourcePath, outputPath, nil
}

// AggregateCounts returns per-doc-type result counts plus the grand total.
func (s *Store) AggregateCounts(ctx context.Context) (map[constants.DocType]int, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_type, COUNT(*) FROM results GROUP BY doc_type`)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[constants.DocType]int)
	total := 0
	for rows.Next() {
		var dt string
		var n int
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, 0, fmt.Errorf("scan count: %w", err)
		}
		counts[constants.DocType(dt)] = n
		total += n
	}
	return counts, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*entity.Result, error) {
	var r entity.Result
	var dt, structured string
	if err := row.Scan(&r.ID, &r.FileName, &dt, &r.RawText, &structured, &r.Confidence,
		&r.PageCount, &r.ProcessingMS, &r.SourcePath, &r.OutputPath, &r.ProcessedAt); err != nil {
		return nil, err
	}
	r.DocType = constants.DocType(dt)
	r.StructuredData = []byte(structured)
	return &r, nil
}
