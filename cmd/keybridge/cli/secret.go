// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/keybridge/lib/secret"
)

// ErrNotTerminal is returned by ReadSecret when stdin is not a
// terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// IsTerminal reports whether file is attached to a terminal.
func IsTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

// ReadSecret writes prompt to output and reads one line from the
// terminal on stdin without echo.
func ReadSecret(output io.Writer, prompt string) (*secret.Buffer, error) {
	if !IsTerminal(os.Stdin) {
		return nil, ErrNotTerminal
	}
	fmt.Fprint(output, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(output)
	if err != nil {
		secret.Zero(data)
		return nil, fmt.Errorf("reading from terminal: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	return secret.NewFromBytes(data)
}
