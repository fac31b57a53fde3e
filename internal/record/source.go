package record

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Source yields records for indexing in a single pass.
//
// Next returns io.EOF once the input is exhausted. Sources are not restartable.
type Source interface {
	Next(ctx context.Context) (*Record, error)
	Close() error
}

// SliceSource serves records from memory.
type SliceSource struct {
	mu      sync.Mutex
	records []*Record
	pos     int
}

// NewSliceSource creates a source over records.
func NewSliceSource(records []*Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// Close implements Source.
func (s *SliceSource) Close() error { return nil }

// JSONLSource reads one JSON-encoded record per line.
type JSONLSource struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// maxManifestLine bounds a single manifest line.
const maxManifestLine = 1 << 20

// OpenJSONL opens a JSON-lines manifest.
func OpenJSONL(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLine)

	return &JSONLSource{file: f, scanner: sc}, nil
}

// Next implements Source. Blank lines are skipped.
func (s *JSONLSource) Next(ctx context.Context) (*Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read manifest line %d: %w", s.line+1, err)
			}
			return nil, io.EOF
		}
		s.line++

		data := s.scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &LineError{Line: s.line, Err: err}
		}
		return &r, nil
	}
}

// Close implements Source.
func (s *JSONLSource) Close() error {
	return s.file.Close()
}

// LineError reports a malformed manifest line. The source stays usable.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("manifest line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
