/*
Copyright © 2025 Docker, Inc.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package report renders the end of run summary for terminals and for the
// GitHub step summary.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status of a step as shown to the user.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusTolerated is a failure the pipeline continued past.
	StatusTolerated Status = "tolerated"
)

// Row is one step of the run.
type Row struct {
	Step   string
	Status Status
	Detail string
}

// Summary is everything shown at the end of a run.
type Summary struct {
	Title  string
	Fields [][2]string
	Rows   []Row
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	keyStyle   = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	statusStyles = map[Status]lipgloss.Style{
		StatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		StatusSkipped:   lipgloss.NewStyle().Faint(true),
		StatusTolerated: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
)

// Terminal renders the summary as a bordered box.
func Terminal(s Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(s.Title))
	b.WriteString("\n")

	keyWidth := 0
	for _, field := range s.Fields {
		keyWidth = max(keyWidth, len(field[0]))
	}
	for _, field := range s.Fields {
		b.WriteString(keyStyle.Width(keyWidth + 2).Render(field[0]))
		b.WriteString(field[1])
		b.WriteString("\n")
	}
	if len(s.Fields) > 0 && len(s.Rows) > 0 {
		b.WriteString("\n")
	}

	stepWidth := 0
	for _, row := range s.Rows {
		stepWidth = max(stepWidth, len(row.Step))
	}
	for _, row := range s.Rows {
		style, ok := statusStyles[row.Status]
		if !ok {
			style = lipgloss.NewStyle()
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(stepWidth+2).Render(row.Step),
			style.Width(11).Render(string(row.Status)),
		)
		if row.Detail != "" {
			line += " " + firstLine(row.Detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// Markdown renders the summary for $GITHUB_STEP_SUMMARY.
func Markdown(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", s.Title)
	for _, field := range s.Fields {
		fmt.Fprintf(&b, "- **%s**: `%s`\n", field[0], field[1])
	}
	if len(s.Rows) == 0 {
		return b.String()
	}
	b.WriteString("\n| Step | Status | Detail |\n|---|---|---|\n")
	for _, row := range s.Rows {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", row.Step, row.Status, strings.ReplaceAll(firstLine(row.Detail), "|", "\\|"))
	}
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
