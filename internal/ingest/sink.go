package ingest

import (
	"bufio"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// Output is the transformation result of one input record.
type Output struct {
	RecordID string
	Result   *Result
}

// Sink receives outputs in input order.
type Sink interface {
	Write(out Output) error
	Close() error
}

// NDJSONSink writes one simplified document per line. Errors are written to
// a separate writer, also one JSON object per line, when errs is non-nil.
type NDJSONSink struct {
	w    *bufio.Writer
	enc  *json.Encoder
	errw *bufio.Writer
	eenc *json.Encoder
}

func NewNDJSONSink(docs, errs io.Writer) *NDJSONSink {
	s := &NDJSONSink{w: bufio.NewWriter(docs)}
	s.enc = json.NewEncoder(s.w)
	if errs != nil {
		s.errw = bufio.NewWriter(errs)
		s.eenc = json.NewEncoder(s.errw)
	}
	return s
}

type errorLine struct {
	RecordID   string `json:"record_id,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	Kind       string `json:"kind"`
	Field      string `json:"field,omitempty"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message"`
}

func (s *NDJSONSink) Write(out Output) error {
	for _, d := range out.Result.Documents {
		if err := s.enc.Encode(d); err != nil {
			return err
		}
	}
	if s.eenc == nil {
		return nil
	}
	for _, pe := range out.Result.Errors {
		line := errorLine{
			RecordID:   out.RecordID,
			ActionType: out.Result.ActionType,
			Kind:       pe.Kind.String(),
			Field:      pe.Field,
			Path:       pe.Path,
			Message:    pe.Error(),
		}
		if err := s.eenc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes both writers and returns the first error.
func (s *NDJSONSink) Close() error {
	err := s.w.Flush()
	if s.errw != nil {
		if eerr := s.errw.Flush(); err == nil {
			err = eerr
		}
	}
	return err
}

// MemorySink keeps outputs in memory.
type MemorySink struct {
	mu      sync.Mutex
	Outputs []Output
}

func (s *MemorySink) Write(out Output) error {
	s.mu.Lock()
	s.Outputs = append(s.Outputs, out)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Close() error { return nil }

var (
	_ Sink = (*NDJSONSink)(nil)
	_ Sink = (*MemorySink)(nil)
)
