package resultlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alvmarrod/web-weaver/internal/addrspace"
	"github.com/alvmarrod/web-weaver/internal/storage"
)

// ErrEmptyLog is returned by LastAddress when the log holds no data rows
var ErrEmptyLog = errors.New("result log has no rows")

var (
	baseColumns     = []string{"ip", "hostname", "found", "latency_ms", "timestamp"}
	metadataColumns = []string{"http_status", "content_type", "size_bytes", "final_url", "title", "description", "keywords", "snippet"}
)

// Header returns the column names for a log with or without metadata
func Header(withMetadata bool) []string {
	cols := append([]string(nil), baseColumns...)
	if withMetadata {
		cols = append(cols, metadataColumns...)
	}
	return cols
}

// Row is one processed address
type Row struct {
	IP        string
	Hostname  string
	Found     bool
	Latency   time.Duration
	Timestamp time.Time
	Metadata  *storage.SiteMetadata
}

// Writer appends rows to a CSV result log. Every row is flushed before Write
// returns so the last line on disk is always a complete row.
// A Writer is not safe for concurrent use.
type Writer struct {
	file         *os.File
	csv          *csv.Writer
	withMetadata bool
	rows         uint64
}

// Create opens path for appending, writing the header if the file is new or empty
func Create(path string, withMetadata bool) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat result log: %w", err)
	}

	// a row cut short by a crash would otherwise be glued to the next one
	if size, err := dropPartialRow(file, info.Size()); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to repair result log: %w", err)
	} else if size != info.Size() {
		info, err = file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to stat result log: %w", err)
		}
	}

	w := &Writer{
		file:         file,
		csv:          csv.NewWriter(file),
		withMetadata: withMetadata,
	}

	if info.Size() == 0 {
		if err := w.flush(Header(withMetadata)); err != nil {
			file.Close()
			return nil, err
		}
	}

	return w, nil
}

// Write appends one row
func (w *Writer) Write(row Row) error {
	record := []string{
		row.IP,
		oneLine(row.Hostname),
		strconv.FormatBool(row.Found),
		strconv.FormatInt(row.Latency.Milliseconds(), 10),
		row.Timestamp.UTC().Format(time.RFC3339),
	}

	if w.withMetadata {
		if m := row.Metadata; m != nil {
			record = append(record,
				strconv.FormatUint(uint64(m.HTTPStatus), 10),
				deref(m.ContentType),
				strconv.FormatUint(m.SizeBytes, 10),
				m.FinalURL,
				deref(m.Title),
				deref(m.Description),
				deref(m.Keywords),
				deref(m.Snippet),
			)
		} else {
			record = append(record, make([]string, len(metadataColumns))...)
		}
	}

	if err := w.flush(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written by this writer
func (w *Writer) Rows() uint64 {
	return w.rows
}

// Close flushes and closes the log file
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush result log: %w", err)
	}
	return w.file.Close()
}

func (w *Writer) flush(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("failed to write result row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush result row: %w", err)
	}
	return nil
}

// LastAddress returns the address in the first column of the last complete
// row of the log at path. A final line without its newline was cut short by a
// crash and is skipped. Only the tail of the file is read.
func LastAddress(path string) (uint32, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open resume log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat resume log: %w", err)
	}

	size, err := completeSize(file, info.Size())
	if err != nil {
		return 0, fmt.Errorf("failed to read resume log: %w", err)
	}
	line, err := lastLine(file, size)
	if err != nil {
		return 0, fmt.Errorf("failed to read resume log: %w", err)
	}
	if line == "" {
		return 0, ErrEmptyLog
	}

	fields, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return 0, fmt.Errorf("malformed last row %q: %w", line, err)
	}
	if fields[0] == baseColumns[0] {
		return 0, ErrEmptyLog
	}

	addr, err := addrspace.ParseAddr(fields[0])
	if err != nil {
		return 0, fmt.Errorf("last row of %s: %w", path, err)
	}
	return addr, nil
}

const tailChunk = 4096

// completeSize returns the length of f up to and including its last newline,
// zero when there is none.
func completeSize(f *os.File, size int64) (int64, error) {
	off := size
	for off > 0 {
		n := int64(tailChunk)
		if n > off {
			n = off
		}
		off -= n

		chunk := make([]byte, n)
		if _, err := f.ReadAt(chunk, off); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return off + int64(i) + 1, nil
		}
	}
	return 0, nil
}

// dropPartialRow truncates f after its last newline and returns the new size
func dropPartialRow(f *os.File, size int64) (int64, error) {
	complete, err := completeSize(f, size)
	if err != nil || complete == size {
		return size, err
	}
	if err := f.Truncate(complete); err != nil {
		return size, err
	}
	return complete, nil
}

// lastLine reads backwards from size until it holds the last non-empty line
// before that offset.
func lastLine(f *os.File, size int64) (string, error) {
	var buf []byte
	off := size
	for off > 0 {
		n := int64(tailChunk)
		if n > off {
			n = off
		}
		off -= n

		chunk := make([]byte, n)
		if _, err := f.ReadAt(chunk, off); err != nil {
			return "", err
		}
		buf = append(chunk, buf...)

		trimmed := bytes.TrimRight(buf, "\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return string(bytes.TrimRight(trimmed[i+1:], "\r")), nil
		}
	}
	return string(bytes.TrimRight(buf, "\r\n")), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return oneLine(*s)
}

// oneLine keeps every row on a single physical line so the tail read in
// LastAddress never lands inside a quoted field.
func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
