package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrRecordNotFound is returned when a results table has no row for an id.
var ErrRecordNotFound = errors.New("record not found")

// SQLiteResolver fetches single records from results databases by id,
// keeping one read-only handle per database open.
type SQLiteResolver struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewSQLiteResolver() *SQLiteResolver {
	return &SQLiteResolver{
		dbs: make(map[string]*sql.DB),
	}
}

// Raw returns the stored JSON text of one record.
func (r *SQLiteResolver) Raw(dbPath, recordID string) (string, error) {
	db, err := r.getDB(dbPath)
	if err != nil {
		return "", err
	}

	var raw string
	err = db.QueryRow("SELECT record FROM results WHERE id = ?", recordID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve record %s: %w", recordID, ErrRecordNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve record %s: %w", recordID, err)
	}
	return raw, nil
}

// Record returns one decoded record.
func (r *SQLiteResolver) Record(dbPath, recordID string) (any, error) {
	raw, err := r.Raw(dbPath, recordID)
	if err != nil {
		return nil, err
	}
	parsed, err := DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse record %s: %w", recordID, err)
	}
	return parsed, nil
}

func (r *SQLiteResolver) getDB(path string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[path]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}

	r.dbs[path] = db
	return db, nil
}

// Close closes all open database connections.
func (r *SQLiteResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, db := range r.dbs {
		_ = db.Close()
		delete(r.dbs, path)
	}
}
