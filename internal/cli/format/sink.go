// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package format renders lifecycle notifications for the terminal.
package format

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // blue bold
	logStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))           // gray
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))           // red
)

// TerminalSink writes notifications to a writer, styling them when the
// writer is a terminal. It is safe for concurrent use.
type TerminalSink struct {
	mu      sync.Mutex
	out     io.Writer
	styled  bool
	enabled bool
	last    byte
}

// NewTerminalSink creates a sink writing to out.
func NewTerminalSink(out io.Writer, styled bool) *TerminalSink {
	return &TerminalSink{out: out, styled: styled, enabled: true}
}

// Notify writes message verbatim while the sink is enabled.
func (s *TerminalSink) Notify(message string) {
	if message == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	if _, err := io.WriteString(s.out, message); err == nil {
		s.last = message[len(message)-1]
	}
}

// SetEnabled toggles output.
func (s *TerminalSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled reports whether notifications are written.
func (s *TerminalSink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// LineBreak returns the separator placed between notifications.
func (s *TerminalSink) LineBreak() string {
	return "\n"
}

// FormatLog styles a server output line.
func (s *TerminalSink) FormatLog(text string) string {
	return s.render(logStyle, text)
}

// FormatLogError styles a server error output line.
func (s *TerminalSink) FormatLogError(text string) string {
	return s.render(errorStyle, text)
}

// FormatProgress styles a progress message.
func (s *TerminalSink) FormatProgress(text string) string {
	return s.render(progressStyle, text)
}

// Finish terminates the current line so later output starts cleanly.
func (s *TerminalSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != 0 && s.last != '\n' {
		io.WriteString(s.out, "\n")
		s.last = '\n'
	}
}

func (s *TerminalSink) render(style lipgloss.Style, text string) string {
	if !s.styled || text == "" {
		return text
	}
	// Style each line separately so line breaks survive rendering.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
