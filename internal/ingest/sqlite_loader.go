package ingest

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const selectResults = "SELECT id, record FROM results ORDER BY rowid"

// StreamSQLite iterates over all records of the results table, calling fn
// for each one. Only one parsed record is alive at a time.
func StreamSQLite(dbPath string, fn func(recordID string, record any) error) error {
	return StreamSQLiteRaw(dbPath, func(id, raw string) error {
		parsed, err := DecodeJSON([]byte(raw))
		if err != nil {
			return fmt.Errorf("parse record %s: %w", id, err)
		}
		return fn(id, parsed)
	})
}

// StreamSQLiteRaw iterates over all records yielding raw (id, json) strings
// without parsing, so callers can decode on worker goroutines.
func StreamSQLiteRaw(dbPath string, fn func(id, raw string) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query(selectResults)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(id, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LoadSQLite reads and parses every record of the results table.
// Prefer StreamSQLite for large databases.
func LoadSQLite(dbPath string) ([]any, error) {
	var records []any
	err := StreamSQLite(dbPath, func(_ string, record any) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
