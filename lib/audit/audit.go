// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Record is one audit line.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
	Operation   string    `json:"operation"`
	Origin      string    `json:"origin"`
	ContentHash string    `json:"content_hash"`
	Outcome     string    `json:"outcome"`

	// Previous is the hex BLAKE3 hash of the preceding line (without
	// its newline). Empty for the first record ever written.
	Previous string `json:"previous,omitempty"`
}

// Sink receives audit records. The consent gate writes to a Sink so
// tests can capture records without a file.
type Sink interface {
	Append(record Record) error
}

// SegmentSuffix is appended to rotated, compressed segments.
const SegmentSuffix = ".zst"

// Log is an append-only, hash-chained JSONL file. Safe for concurrent
// use.
type Log struct {
	path     string
	maxBytes int64
	logger   *slog.Logger

	mu       sync.Mutex
	file     *os.File
	size     int64
	previous string
}

// Open opens (or creates) the log at path. maxBytes <= 0 disables
// rotation. The chain resumes from the last line already in the file.
func Open(path string, maxBytes int64, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		panic("audit.Open: logger is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: creating directory: %w", err)
	}

	previous, err := lastLineHash(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: stat %s: %w", path, err)
	}

	return &Log{
		path:     path,
		maxBytes: maxBytes,
		logger:   logger,
		file:     file,
		size:     info.Size(),
		previous: previous,
	}, nil
}

// Append writes record, filling Previous, and fsyncs. Rotation happens
// after the write that crosses the size limit.
func (l *Log) Append(record Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit: log is closed")
	}

	record.Previous = l.previous
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: encoding record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: syncing: %w", err)
	}
	l.size += int64(len(line)) + 1
	l.previous = lineHash(line)

	if l.maxBytes > 0 && l.size >= l.maxBytes {
		if err := l.rotateLocked(record.Timestamp); err != nil {
			// The record is durable; a failed rotation only means the
			// active file keeps growing.
			l.logger.Error("audit log rotation failed", "path", l.path, "error", err)
		}
	}
	return nil
}

// rotateLocked compresses the active file into a timestamped segment
// and truncates it. The chain's previous hash carries over.
func (l *Log) rotateLocked(now time.Time) error {
	segmentPath := fmt.Sprintf("%s.%s%s", l.path, now.UTC().Format("20060102T150405.000000000Z"), SegmentSuffix)

	source, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer source.Close()

	segment, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(segment)
	if err != nil {
		segment.Close()
		os.Remove(segmentPath)
		return err
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		segment.Close()
		os.Remove(segmentPath)
		return err
	}
	if err := encoder.Close(); err != nil {
		segment.Close()
		os.Remove(segmentPath)
		return err
	}
	if err := segment.Sync(); err != nil {
		segment.Close()
		return err
	}
	if err := segment.Close(); err != nil {
		return err
	}

	if err := l.file.Truncate(0); err != nil {
		return err
	}
	l.size = 0
	l.logger.Info("audit log rotated", "segment", segmentPath)
	return nil
}

// Close closes the active file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the active file path.
func (l *Log) Path() string { return l.path }

func lineHash(line []byte) string {
	digest := blake3.Sum256(line)
	return hex.EncodeToString(digest[:])
}

// lastLineHash returns the hash of the final non-empty line of path, or
// "" if the file is missing or empty.
func lastLineHash(path string) (string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("audit: opening %s: %w", path, err)
	}
	defer file.Close()

	var last []byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			last = append(last[:0], line...)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("audit: scanning %s: %w", path, err)
	}
	if last == nil {
		return "", nil
	}
	return lineHash(last), nil
}

// MemorySink collects records in memory. Safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func (m *MemorySink) Append(record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Records returns a copy of the collected records.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}
