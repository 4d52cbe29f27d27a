package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// DecodeJSON parses exactly one JSON value. Numbers are kept as json.Number
// so their source text survives a pass-through unchanged.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}

// StreamJSON decodes a sequence of JSON values from r, calling fn with each
// record. A top-level array contributes its elements as separate records;
// objects may follow each other directly (NDJSON or concatenated JSON).
func StreamJSON(r io.Reader, fn func(index int, record any) error) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()
	n := 0
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode record %d: %w", n, err)
		}
		if arr, ok := v.([]any); ok {
			for _, item := range arr {
				if err := fn(n, item); err != nil {
					return err
				}
				n++
			}
			continue
		}
		if err := fn(n, v); err != nil {
			return err
		}
		n++
	}
}

// StreamFile streams records from a .json, .ndjson or .jsonl file.
func StreamFile(path string, fn func(index int, record any) error) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson", ".jsonl":
	default:
		return fmt.Errorf("unsupported input %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := StreamJSON(f, fn); err != nil {
		return fmt.Errorf("failed to parse json %s: %w", path, err)
	}
	return nil
}

// LoadFile reads every record of a JSON file into memory.
func LoadFile(path string) ([]any, error) {
	var records []any
	err := StreamFile(path, func(_ int, record any) error {
		records = append(records, record)
		return nil
	})
	return records, err
}
