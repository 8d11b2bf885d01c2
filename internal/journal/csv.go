// Package journal keeps a CSV history of wait outcomes so flaky scenarios
// can be compared across runs.
package journal

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"enoctl/internal/model"
)

var header = []string{
	"timestamp",
	"node",
	"kind",
	"predicate",
	"matched",
	"polls",
	"fetch_errors",
	"elapsed_ms",
	"error",
}

// WriteCSV writes outcomes to CSV with a fixed column order, header first.
func WriteCSV(w io.Writer, items []model.WaitOutcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, o := range items {
		if err := writer.Write(row(o)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func row(o model.WaitOutcome) []string {
	return []string{
		o.Timestamp.UTC().Format(time.RFC3339Nano),
		o.Node,
		o.Kind,
		o.Predicate,
		strconv.FormatBool(o.Matched),
		strconv.Itoa(o.Polls),
		strconv.Itoa(o.FetchErrors),
		strconv.FormatFloat(o.ElapsedMs, 'f', 3, 64),
		o.Error,
	}
}

// Writer appends outcomes to a CSV file. It satisfies wait.Recorder and is
// safe for concurrent use within one process.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter returns a Writer for path. The file is created on first append.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the journal file path.
func (w *Writer) Path() string { return w.path }

// Record appends a single outcome.
func (w *Writer) Record(o model.WaitOutcome) error {
	return w.Append(o)
}

// Append writes outcomes at the end of the journal, adding the header when
// the file is new or empty.
func (w *Writer) Append(items ...model.WaitOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	for _, o := range items {
		if err := writer.Write(row(o)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}
