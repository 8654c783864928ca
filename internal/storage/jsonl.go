package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"govwatch/internal/model"
)

// StdoutPath makes JsonlWriter write to standard output.
const StdoutPath = "-"

// JsonlWriter exports chain events as JSON lines.
type JsonlWriter struct {
	path   string
	append bool
	mu     sync.Mutex
}

// NewJsonlWriter writes to path. The first batch truncates the file unless
// appendMode is set; later batches always append.
func NewJsonlWriter(path string, appendMode bool) *JsonlWriter {
	return &JsonlWriter{path: path, append: appendMode}
}

// WriteEvents writes a batch of events, one JSON object per line.
func (s *JsonlWriter) WriteEvents(events []model.ChainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == StdoutPath {
		return EncodeEvents(os.Stdout, events)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !s.append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	s.append = true

	if err := EncodeEvents(file, events); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// EncodeEvents writes events to w as JSON lines.
func EncodeEvents(w io.Writer, events []model.ChainEvent) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encode event %s/%s: %w", events[i].EventName, events[i].TxHash, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
