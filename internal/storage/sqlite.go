package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tanya/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// Wait for a concurrent writer (server and ingest share the file) instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		documents INTEGER NOT NULL DEFAULT 0,
		skipped_documents INTEGER NOT NULL DEFAULT 0,
		processed_chunks INTEGER NOT NULL DEFAULT 0,
		failed_chunks INTEGER NOT NULL DEFAULT 0,
		skipped_chunks INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		url TEXT,
		path TEXT,
		sha256 TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		extracted_chars INTEGER NOT NULL DEFAULT 0,
		stub INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		run_id TEXT,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chars INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		run_id TEXT,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks(status);
	`
	_, err := db.Exec(schema)
	return err
}

// StartRun records a new run and returns its id.
func (s *SQLiteLedger) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final counts of a run.
func (s *SQLiteLedger) FinishRun(ctx context.Context, id string, stats models.IngestStats) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, documents = ?, skipped_documents = ?, processed_chunks = ?,
		 failed_chunks = ?, skipped_chunks = ?, duration_ms = ? WHERE id = ?`,
		time.Now().UTC(), stats.Documents, stats.SkippedDocuments, stats.ProcessedChunks,
		stats.FailedChunks, stats.SkippedChunks, stats.Duration.Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *SQLiteLedger) LastRun(ctx context.Context) (*models.RunRecord, error) {
	var (
		run        models.RunRecord
		finishedAt sql.NullTime
		durationMS int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, documents, skipped_documents, processed_chunks,
		 failed_chunks, skipped_chunks, duration_ms
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Stats.Documents, &run.Stats.SkippedDocuments,
		&run.Stats.ProcessedChunks, &run.Stats.FailedChunks, &run.Stats.SkippedChunks, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no runs: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.Stats.RunID = run.ID
	run.Stats.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// UpsertDocument inserts or replaces the ledger row for doc.Name.
func (s *SQLiteLedger) UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error {
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (name, url, path, sha256, pages, extracted_chars, stub, chunks, status, run_id, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   url = excluded.url, path = excluded.path, sha256 = excluded.sha256, pages = excluded.pages,
		   extracted_chars = excluded.extracted_chars, stub = excluded.stub, chunks = excluded.chunks,
		   status = excluded.status, run_id = excluded.run_id, ingested_at = excluded.ingested_at`,
		doc.Name, doc.URL, doc.Path, doc.SHA256, doc.Pages, doc.ExtractedChars, doc.Stub, doc.Chunks,
		doc.Status, doc.RunID, doc.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.Name, err)
	}
	return nil
}

const documentColumns = `name, url, path, sha256, pages, extracted_chars, stub, chunks, status, run_id, ingested_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.DocumentRecord, error) {
	var (
		doc                   models.DocumentRecord
		url, path, sum, runID sql.NullString
	)
	if err := row.Scan(&doc.Name, &url, &path, &sum, &doc.Pages, &doc.ExtractedChars, &doc.Stub,
		&doc.Chunks, &doc.Status, &runID, &doc.IngestedAt); err != nil {
		return nil, err
	}
	doc.URL, doc.Path, doc.SHA256, doc.RunID = url.String, path.String, sum.String, runID.String
	return &doc, nil
}

// GetDocument returns the ledger row for a document name.
func (s *SQLiteLedger) GetDocument(ctx context.Context, name string) (*models.DocumentRecord, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", name, ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns documents ordered by name.
func (s *SQLiteLedger) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpsertChunk inserts or replaces the ledger row for chunk.ID.
func (s *SQLiteLedger) UpsertChunk(ctx context.Context, chunk *models.ChunkRecord) error {
	if chunk.UpdatedAt.IsZero() {
		chunk.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document, chunk_index, chars, status, error, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   document = excluded.document, chunk_index = excluded.chunk_index, chars = excluded.chars,
		   status = excluded.status, error = excluded.error, run_id = excluded.run_id, updated_at = excluded.updated_at`,
		chunk.ID, chunk.Document, chunk.ChunkIndex, chunk.Chars, chunk.Status, chunk.Error, chunk.RunID, chunk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// ListChunks returns the chunks of a document in ordinal order.
func (s *SQLiteLedger) ListChunks(ctx context.Context, document string) ([]*models.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, chunk_index, chars, status, error, run_id, updated_at
		 FROM chunks WHERE document = ? ORDER BY chunk_index`, document)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.ChunkRecord
	for rows.Next() {
		var (
			c           models.ChunkRecord
			errMsg, run sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Document, &c.ChunkIndex, &c.Chars, &c.Status, &errMsg, &run, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Error, c.RunID = errMsg.String, run.String
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the number of documents in the ledger.
func (s *SQLiteLedger) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// CountChunks returns the number of chunks with the given status, or all chunks when status is empty.
func (s *SQLiteLedger) CountChunks(ctx context.Context, status string) (int64, error) {
	var n int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE status = ?", status).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
