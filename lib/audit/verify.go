// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrChainBroken is wrapped by Verify when a record's Previous does not
// match the hash of the line before it.
var ErrChainBroken = errors.New("audit: hash chain broken")

// VerifyResult summarizes a verified stream.
type VerifyResult struct {
	// Records is the number of records read.
	Records int

	// Anchor is the Previous value of the first record: empty for the
	// start of a log, the last hash of the prior segment otherwise.
	Anchor string

	// Head is the hash of the final record, the anchor the next segment
	// must carry.
	Head string
}

// Verify reads JSONL records from reader and checks the hash chain.
// The first record's Previous is accepted as given (it links to a
// segment not in this stream); every later record must link to its
// predecessor.
func Verify(reader io.Reader) (VerifyResult, error) {
	var result VerifyResult
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			return result, fmt.Errorf("audit: line %d: %w", lineNumber, err)
		}
		if result.Records == 0 {
			result.Anchor = record.Previous
		} else if record.Previous != result.Head {
			return result, fmt.Errorf("%w at line %d", ErrChainBroken, lineNumber)
		}
		result.Head = lineHash(line)
		result.Records++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("audit: reading: %w", err)
	}
	return result, nil
}

// VerifyFile verifies one file. Files ending in SegmentSuffix are
// decompressed first.
func VerifyFile(path string) (VerifyResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return VerifyResult{}, err
	}
	defer file.Close()

	if !strings.HasSuffix(path, SegmentSuffix) {
		return Verify(file)
	}
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: opening segment %s: %w", path, err)
	}
	defer decoder.Close()
	return Verify(decoder)
}

// VerifyFiles verifies each path in order and checks that every file
// after the first is anchored to the head of the one before it. An
// empty file (a freshly rotated active log) is skipped for linkage.
func VerifyFiles(paths ...string) (VerifyResult, error) {
	var total VerifyResult
	for index, path := range paths {
		result, err := VerifyFile(path)
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		if result.Records == 0 {
			continue
		}
		if total.Records == 0 {
			total.Anchor = result.Anchor
		} else if result.Anchor != total.Head {
			return total, fmt.Errorf("%w between segment %d and %s", ErrChainBroken, index-1, path)
		}
		total.Head = result.Head
		total.Records += result.Records
	}
	return total, nil
}

// Segments returns the rotated segments of the log at path, oldest
// first, followed by path itself when it exists. The result is the
// argument list VerifyFiles expects for a whole log.
func Segments(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*" + SegmentSuffix)
	if err != nil {
		return nil, err
	}
	// Segment names embed a fixed-width UTC timestamp, so lexical order
	// is chronological.
	sort.Strings(matches)
	if _, err := os.Stat(path); err == nil {
		matches = append(matches, path)
	}
	return matches, nil
}
