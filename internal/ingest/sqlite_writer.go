package ingest

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// SQLiteWriter is a Sink storing simplified documents and their processing
// errors in a SQLite database, committing in batches.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtDoc   *sql.Stmt
	stmtErr   *sql.Stmt
	batchSize int
	count     int
	mu        sync.Mutex
}

// NewSQLiteWriter creates a new writer and initializes the schema.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Performance tuning for bulk insert
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT,
		action_type TEXT,
		item INTEGER NOT NULL,
		document JSON NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processing_errors (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT,
		action_type TEXT,
		kind TEXT NOT NULL,
		field TEXT,
		path TEXT,
		message TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{
		db:        db,
		batchSize: 10000,
	}

	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	w.stmtDoc, err = w.tx.Prepare(`
		INSERT INTO documents (record_id, action_type, item, document)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	w.stmtErr, err = w.tx.Prepare(`
		INSERT INTO processing_errors (record_id, action_type, kind, field, path, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	return err
}

func (w *SQLiteWriter) commitTx() error {
	if w.stmtDoc != nil {
		_ = w.stmtDoc.Close()
	}
	if w.stmtErr != nil {
		_ = w.stmtErr.Close()
	}
	return w.tx.Commit()
}

// Write stores every document and error of out.
func (w *SQLiteWriter) Write(out Output) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := out.Result
	for i, d := range res.Documents {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode document %s/%d: %w", out.RecordID, i, err)
		}
		if _, err := w.stmtDoc.Exec(out.RecordID, res.ActionType, i, string(raw)); err != nil {
			return fmt.Errorf("insert document %s/%d: %w", out.RecordID, i, err)
		}
		w.count++
	}
	for _, pe := range res.Errors {
		if _, err := w.stmtErr.Exec(out.RecordID, res.ActionType, pe.Kind.String(), pe.Field, pe.Path, pe.Error()); err != nil {
			return fmt.Errorf("insert error for %s: %w", out.RecordID, err)
		}
		w.count++
	}

	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		if err := w.beginTx(); err != nil {
			return fmt.Errorf("begin batch: %w", err)
		}
		w.count = 0
	}
	return nil
}

// Close commits the pending batch and closes the database.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}

	// Create indices after bulk load for speed
	if _, err := w.db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_action ON documents(action_type)`); err != nil {
		log.Printf("SQLiteWriter: index creation failed: %v", err)
	}

	return w.db.Close()
}

// Interface compliance
var _ Sink = (*SQLiteWriter)(nil)
