package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/jflat/api"
)

// chunkSize bounds how many records are held in memory between reading and
// writing.
const chunkSize = 512

// Record is one input document. Raw records are decoded on the worker that
// transforms them.
type Record struct {
	ID  string
	Raw string
	Doc any
}

// Stats summarizes a batch run.
type Stats struct {
	Records   int
	Documents int
	Errors    int
	Aborted   int
}

func (s *Stats) add(res *Result, aborted bool) {
	s.Records++
	s.Documents += len(res.Documents)
	s.Errors += len(res.Errors)
	if aborted {
		s.Aborted++
	}
}

// ProcessRecords transforms records on up to workers goroutines and writes
// the outputs to sink in input order. Fail-fast aborts are counted per
// record and do not stop the run; sink failures do.
func (e *Engine) ProcessRecords(ctx context.Context, records []Record, sink Sink, workers int) (Stats, error) {
	var stats Stats
	for start := 0; start < len(records); start += chunkSize {
		end := min(start+chunkSize, len(records))
		if err := e.processChunk(ctx, records[start:end], sink, workers, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (e *Engine) processChunk(ctx context.Context, chunk []Record, sink Sink, workers int, stats *Stats) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*Result, len(chunk))
	aborted := make([]bool, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range chunk {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.processRecord(chunk[i])
			if err != nil {
				var agg *api.AggregateError
				if !errors.As(err, &agg) {
					return fmt.Errorf("record %s: %w", chunk[i].ID, err)
				}
				aborted[i] = true
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		if err := sink.Write(Output{RecordID: chunk[i].ID, Result: res}); err != nil {
			return fmt.Errorf("write record %s: %w", chunk[i].ID, err)
		}
		stats.add(res, aborted[i])
	}
	return nil
}

func (e *Engine) processRecord(r Record) (*Result, error) {
	if r.Raw != "" {
		return e.ProcessString(r.Raw)
	}
	return e.Process(r.Doc)
}

// Ingest transforms a file or every supported file below a directory.
// SQLite databases are read from their results table; .json, .ndjson and
// .jsonl files yield one record per top-level value or array element.
func (e *Engine) Ingest(ctx context.Context, path string, sink Sink, workers int) (Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, err
	}

	var total Stats
	ingest := func(p string) error {
		s, err := e.ingestFile(ctx, p, sink, workers)
		total.Records += s.Records
		total.Documents += s.Documents
		total.Errors += s.Errors
		total.Aborted += s.Aborted
		return err
	}

	if info.IsDir() {
		err = filepath.Walk(path, func(p string, d os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return ingest(p)
		})
		return total, err
	}
	return total, ingest(path)
}

func (e *Engine) ingestFile(ctx context.Context, path string, sink Sink, workers int) (Stats, error) {
	var (
		stats Stats
		batch []Record
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.processChunk(ctx, batch, sink, workers, &stats); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	push := func(r Record) error {
		batch = append(batch, r)
		if len(batch) >= chunkSize {
			return flush()
		}
		return nil
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db":
		err = StreamSQLiteRaw(path, func(id, raw string) error {
			return push(Record{ID: id, Raw: raw})
		})
	case ".json", ".ndjson", ".jsonl":
		base := filepath.Base(path)
		err = StreamFile(path, func(index int, record any) error {
			return push(Record{ID: base + ":" + strconv.Itoa(index), Doc: record})
		})
	default:
		e.log.Debug("skipping unsupported file", "path", path)
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	return stats, flush()
}
