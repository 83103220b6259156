// Package csvsink implements the CSV Sink (spec.md §4.7): a single-writer,
// append-only serializer for ExtractedRecord rows with the fixed 37-column
// order and standard CSV escaping.
package csvsink

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"newsxtract/pipeline"
)

// Sink is the single writer to its outputPath. All results funnel through
// one Sink instance to preserve row-append atomicity (spec.md §4.7, §5).
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// Open prepares outputPath for writing. On a fresh run (resume=false) it
// truncates the file and writes the header row exactly once (I5); on resume
// it appends without rewriting the header, trusting the caller that the
// header was already written in the prior run.
func Open(outputPath string, resume bool) (*Sink, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(outputPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvsink: open %s: %w", outputPath, err)
	}

	s := &Sink{path: outputPath, file: f, writer: csv.NewWriter(f)}
	s.writer.UseCRLF = false

	if !resume {
		if err := s.writer.Write(pipeline.Columns()); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvsink: writing header: %w", err)
		}
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvsink: flushing header: %w", err)
		}
	}

	return s, nil
}

// Append writes one record's row and flushes immediately, so a crash never
// loses a fully-accepted record (spec.md I2: body row count == recordsWritten).
func (s *Sink) Append(rec *pipeline.ExtractedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(rec.Row()); err != nil {
		return fmt.Errorf("csvsink: writing row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Path returns the sink's output path.
func (s *Sink) Path() string {
	return s.path
}
