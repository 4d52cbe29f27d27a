package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/jflat/internal/ingest"
)

var (
	outPath     string
	errorsPath  string
	workers     int
	failOnError bool
)

func init() {
	transformCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output: - for NDJSON on stdout, a .db file for SQLite, anything else for an NDJSON file")
	transformCmd.Flags().StringVar(&errorsPath, "errors", "", "Write processing errors as NDJSON to this file (NDJSON output only)")
	transformCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel workers (default: number of CPUs)")
	transformCmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any processing error was recorded")
	rootCmd.AddCommand(transformCmd)
}

var transformCmd = &cobra.Command{
	Use:   "transform [input...]",
	Short: "Simplify JSON records from files, directories, SQLite databases or stdin",
	Long: `Reads .json, .ndjson and .jsonl files, SQLite databases with a results(id, record)
table, or JSON on stdin (no arguments or "-"), selects a configuration per record by
its action type and writes the simplified documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		engine := ingest.NewEngine(reg)

		sink, closeOut, err := openSink(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		start := time.Now()
		var total ingest.Stats
		run := func() error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			for _, in := range args {
				var (
					s   ingest.Stats
					err error
				)
				if in == "-" {
					s, err = transformStdin(cmd, engine, sink)
				} else {
					s, err = engine.Ingest(cmd.Context(), in, sink, workers)
				}
				total.Records += s.Records
				total.Documents += s.Documents
				total.Errors += s.Errors
				total.Aborted += s.Aborted
				if err != nil {
					return fmt.Errorf("transform %s: %w", in, err)
				}
			}
			return nil
		}
		runErr := run()
		if err := closeOut(); err != nil && runErr == nil {
			runErr = err
		}
		if runErr != nil {
			return runErr
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s records -> %s documents, %s errors, %s aborted in %v\n",
			humanize.Comma(int64(total.Records)), humanize.Comma(int64(total.Documents)),
			humanize.Comma(int64(total.Errors)), humanize.Comma(int64(total.Aborted)),
			time.Since(start).Round(time.Millisecond))

		if failOnError && (total.Errors > 0 || total.Aborted > 0) {
			return fmt.Errorf("%d processing errors recorded", total.Errors)
		}
		return nil
	},
}

// openSink picks the sink for --out and returns a function that flushes and
// closes everything it opened.
func openSink(stdout io.Writer) (ingest.Sink, func() error, error) {
	if strings.EqualFold(filepath.Ext(outPath), ".db") {
		_ = os.Remove(outPath) // Overwrite
		w, err := ingest.NewSQLiteWriter(outPath)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	}

	var closers []io.Closer
	docs := stdout
	if outPath != "" && outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f)
		docs = f
	}
	var errs io.Writer
	if errorsPath != "" {
		f, err := os.Create(errorsPath)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, err
		}
		closers = append(closers, f)
		errs = f
	}

	sink := ingest.NewNDJSONSink(docs, errs)
	return sink, func() error {
		err := sink.Close()
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

func transformStdin(cmd *cobra.Command, engine *ingest.Engine, sink ingest.Sink) (ingest.Stats, error) {
	var records []ingest.Record
	err := ingest.StreamJSON(cmd.InOrStdin(), func(index int, record any) error {
		records = append(records, ingest.Record{ID: "stdin:" + strconv.Itoa(index), Doc: record})
		return nil
	})
	if err != nil {
		return ingest.Stats{}, err
	}
	return engine.ProcessRecords(cmd.Context(), records, sink, workers)
}
