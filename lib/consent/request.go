// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// Operation names what a request would do with the key.
type Operation string

const (
	OperationSign       Operation = "sign"
	OperationImportKey  Operation = "import-key"
	OperationGenerate   Operation = "generate"
	OperationDeleteKeys Operation = "delete-keys"
)

// Outcome is how a request resolved.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"

	// OutcomeAutoApproved means no prompt was shown: the origin is
	// trusted in unrecognized mode, the mode is never, or generation
	// prompting is disabled.
	OutcomeAutoApproved Outcome = "auto_approved"

	OutcomeDenied    Outcome = "denied"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

// Approved reports whether the outcome lets the operation proceed.
func (o Outcome) Approved() bool {
	return o == OutcomeApproved || o == OutcomeAutoApproved
}

// Request is what the human is asked to approve.
type Request struct {
	// ID is a UUIDv7, so IDs sort by creation time.
	ID        string
	Operation Operation
	Origin    string

	// Preview is a sanitized prefix of the content, at most
	// PreviewLength characters plus an ellipsis.
	Preview string

	// ContentHash is hex SHA-256 of the full content.
	ContentHash string

	CreatedAt time.Time

	// Deadline is set when the request reaches the front of the queue.
	Deadline time.Time
}

// ShortHash returns the first ShortHashLength hex digits of the content
// hash, the form shown to humans.
func (r Request) ShortHash() string {
	if len(r.ContentHash) <= ShortHashLength {
		return r.ContentHash
	}
	return r.ContentHash[:ShortHashLength]
}

// Summary is a single-line description for logs and non-interactive
// prompters. It never includes the preview.
func (r Request) Summary() string {
	return fmt.Sprintf("%s from %s (content %s)", r.Operation, r.Origin, r.ShortHash())
}

const (
	// PreviewLength is the maximum number of content characters shown.
	PreviewLength = 200

	// ShortHashLength is the number of hash hex digits shown.
	ShortHashLength = 16
)

// Preview returns a display-safe prefix of content: escape sequences
// stripped, control characters other than newline and tab replaced,
// and cut to PreviewLength characters with a trailing ellipsis.
func Preview(content []byte) string {
	visible := ansi.Strip(string(content))
	visible = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == unicode.ReplacementChar, unicode.IsControl(r):
			return '?'
		}
		return r
	}, visible)

	runes := []rune(visible)
	if len(runes) <= PreviewLength {
		return visible
	}
	return string(runes[:PreviewLength]) + "…"
}
