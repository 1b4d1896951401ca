package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives trace records.
type Sink interface {
	WriteOne(rec Record) error
}

// Redactor removes credentials from text before it is written.
type Redactor interface {
	Scrub(input string) string
}

// FileSink appends Records to a JSONL file. It is safe for concurrent use.
type FileSink struct {
	path     string
	file     *os.File
	writer   *bufio.Writer
	redactor Redactor
	mu       sync.Mutex
}

// FileSuffix is appended to the agent slug to form the trace file name.
const FileSuffix = ".events.jsonl"

// TracePath returns the trace file for agent slug in dir.
func TracePath(dir, slug string) string {
	return filepath.Join(dir, slug+FileSuffix)
}

// NewFileSink opens (or creates) the trace file for slug in dir, creating
// dir if needed. Existing records are kept; new ones are appended. A nil
// redactor writes records unchanged.
func NewFileSink(dir, slug string, redactor Redactor) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	path := TracePath(dir, slug)

	// Reasons and errors can echo planner output, so keep the file private.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &FileSink{
		path:     path,
		file:     file,
		writer:   bufio.NewWriter(file),
		redactor: redactor,
	}, nil
}

// Write appends records and flushes.
func (s *FileSink) Write(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("trace file %s is closed", s.path)
	}

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		line := string(data)
		if s.redactor != nil {
			line = s.redactor.Scrub(line)
		}
		if _, err := s.writer.WriteString(line); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return nil
}

// WriteOne appends a single record.
func (s *FileSink) WriteOne(rec Record) error {
	return s.Write([]Record{rec})
}

// Close flushes any remaining data and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}

	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the path to the trace file.
func (s *FileSink) Path() string {
	return s.path
}

// ReadRecords reads every record from a trace file.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []Record
	scanner := bufio.NewScanner(file)

	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record on line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	return records, nil
}

// FilterByType keeps records of the given types. No types keeps all.
func FilterByType(records []Record, types ...EventType) []Record {
	if len(types) == 0 {
		return records
	}

	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	var filtered []Record
	for _, rec := range records {
		if typeSet[rec.Type] {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// FilterByQuestion keeps records about questionID. Empty keeps all.
func FilterByQuestion(records []Record, questionID string) []Record {
	if questionID == "" {
		return records
	}

	var filtered []Record
	for _, rec := range records {
		if rec.QuestionID == questionID {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// Tail returns the last n records. n <= 0 returns all of them.
func Tail(records []Record, n int) []Record {
	if n <= 0 || n >= len(records) {
		return records
	}
	return records[len(records)-n:]
}
