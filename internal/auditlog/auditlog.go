// Package auditlog maintains the append-only CSV record of every processed
// scan. The field order is fixed: existing operator tooling parses it.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Result values for a record.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const timestampLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "site", "scan_file", "print_id", "printer", "result", "error_message"}

// Record is one append-only audit entry. PrintID and Printer are empty when
// the pipeline failed before they were known.
type Record struct {
	Timestamp    time.Time
	Site         string
	ScanFile     string
	PrintID      string
	Printer      string
	Result       string
	ErrorMessage string
}

// Log serializes appends from every site watcher onto a single CSV stream.
// Append is durable: the record is flushed and fsynced before Append returns,
// so a crash between log-append and a file's terminal move cannot lose the
// record.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// Open creates or reopens the audit log, writing the header row when the
// file is new.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	log := &Log{path: path, file: file, writer: csv.NewWriter(file)}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() == 0 {
		if err := log.writeRow(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write audit log header: %w", err)
		}
	}
	return log, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Append durably writes one record. Records from the same site are appended
// in completion order because each watcher appends before its terminal move.
func (l *Log) Append(record Record) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	row := []string{
		ts.Format(timestampLayout),
		record.Site,
		record.ScanFile,
		record.PrintID,
		record.Printer,
		record.Result,
		record.ErrorMessage,
	}
	if err := l.writeRow(row); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (l *Log) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// Read parses every record in an audit log file, skipping the header row.
func Read(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(header)

	var records []Record
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse audit log: %w", err)
		}
		if first {
			first = false
			if row[0] == header[0] {
				continue
			}
		}
		record, err := parseRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	ts, err := time.ParseInLocation(timestampLayout, row[0], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("parse audit timestamp %q: %w", row[0], err)
	}
	return Record{
		Timestamp:    ts,
		Site:         row[1],
		ScanFile:     row[2],
		PrintID:      row[3],
		Printer:      row[4],
		Result:       row[5],
		ErrorMessage: row[6],
	}, nil
}
