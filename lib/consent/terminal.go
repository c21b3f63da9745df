// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// DefaultTerminalWidth is used when the terminal size is unknown.
const DefaultTerminalWidth = 80

// maxPreviewLines bounds how many preview lines the box shows.
const maxPreviewLines = 6

// Terminal prompts on a text terminal: it draws a box describing the
// request and reads a y/N answer. Anything but "y" or "yes" is a
// denial, including an empty line.
type Terminal struct {
	output io.Writer
	width  int
	lines  chan string

	boxStyle   lipgloss.Style
	titleStyle lipgloss.Style
	labelStyle lipgloss.Style
	hashStyle  lipgloss.Style
}

// NewTerminal reads answers from input and draws prompts on output.
// width is the terminal column count (DefaultTerminalWidth when <= 0).
// A goroutine reads input for the life of the process so a withdrawn
// prompt can stop waiting without losing the reader.
func NewTerminal(input io.Reader, output io.Writer, width int) *Terminal {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	terminal := &Terminal{
		output: output,
		width:  width,
		lines:  make(chan string, 16),

		boxStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1),
		titleStyle: lipgloss.NewStyle().Bold(true),
		labelStyle: lipgloss.NewStyle().Faint(true),
		hashStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	}
	go terminal.readLines(input)
	return terminal
}

func (t *Terminal) readLines(input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	close(t.lines)
}

// Prompt draws request and waits for an answer or ctx.
func (t *Terminal) Prompt(ctx context.Context, request Request) (bool, error) {
	t.discardTypeahead()

	fmt.Fprintln(t.output, t.Render(request))
	fmt.Fprint(t.output, "Approve? [y/N]: ")

	select {
	case line, ok := <-t.lines:
		if !ok {
			fmt.Fprintln(t.output)
			return false, errors.New("consent: terminal input closed")
		}
		return parseAnswer(line), nil
	case <-ctx.Done():
		fmt.Fprintln(t.output, "\n(request withdrawn)")
		return false, ctx.Err()
	}
}

// discardTypeahead drops lines typed while no prompt was showing, so a
// late answer to a withdrawn prompt cannot decide the next one.
func (t *Terminal) discardTypeahead() {
	for {
		select {
		case _, ok := <-t.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Render returns the boxed description of request.
func (t *Terminal) Render(request Request) string {
	// Border and padding take two columns on each side.
	innerWidth := t.width - 4
	if innerWidth < 20 {
		innerWidth = 20
	}

	var body strings.Builder
	body.WriteString(t.titleStyle.Render(title(request.Operation)))
	body.WriteString("\n\n")
	t.writeField(&body, "Origin", request.Origin, innerWidth)
	t.writeField(&body, "Content", t.hashStyle.Render(request.ShortHash()), innerWidth)
	if !request.Deadline.IsZero() && !request.CreatedAt.IsZero() {
		t.writeField(&body, "Expires", request.Deadline.Sub(request.CreatedAt).Round(time.Second).String(), innerWidth)
	}

	if request.Preview != "" {
		body.WriteString("\n")
		previewLines := strings.Split(request.Preview, "\n")
		for index, line := range previewLines {
			if index == maxPreviewLines {
				body.WriteString(t.labelStyle.Render(fmt.Sprintf("(%d more lines)", len(previewLines)-maxPreviewLines)))
				break
			}
			body.WriteString(ansi.Truncate(strings.ReplaceAll(line, "\t", "    "), innerWidth, "…"))
			body.WriteString("\n")
		}
	}

	return t.boxStyle.Width(innerWidth + 2).Render(strings.TrimRight(body.String(), "\n"))
}

func (t *Terminal) writeField(body *strings.Builder, label, value string, width int) {
	line := t.labelStyle.Render(fmt.Sprintf("%-8s", label)) + " " + value
	body.WriteString(ansi.Truncate(line, width, "…"))
	body.WriteString("\n")
}

func title(operation Operation) string {
	switch operation {
	case OperationSign:
		return "Signature request"
	case OperationImportKey:
		return "Key import request"
	case OperationGenerate:
		return "Key generation request"
	case OperationDeleteKeys:
		return "Key deletion request"
	}
	return string(operation) + " request"
}

func parseAnswer(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
