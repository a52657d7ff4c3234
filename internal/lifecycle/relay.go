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

package lifecycle

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"

	internallog "github.com/tombee/serverctl/internal/log"
	"github.com/tombee/serverctl/internal/messages"
)

// maxLineSize bounds a single line of script output.
const maxLineSize = 1024 * 1024

// StreamRelay drains one output stream of a child process line by line,
// forwards each line to a Sink and watches for the started marker.
//
// The relay owns its reader and closes it when the stream ends.
type StreamRelay struct {
	r        io.Reader
	isError  bool
	marker   string
	sink     Sink
	messages Localizer
	logger   *slog.Logger

	mu          sync.Mutex
	markerFound bool
	err         error
	done        chan struct{}
}

// NewStreamRelay creates a relay for r. An empty marker disables marker
// detection. Lines from an error stream are formatted with FormatLogError.
func NewStreamRelay(r io.Reader, isError bool, marker string, sink Sink, messages Localizer, logger *slog.Logger) *StreamRelay {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamRelay{
		r:        r,
		isError:  isError,
		marker:   strings.ToLower(marker),
		sink:     sink,
		messages: messages,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the relay in its own goroutine.
func (s *StreamRelay) Start() {
	go s.Run()
}

// Run drains the stream until end-of-stream or a read failure.
func (s *StreamRelay) Run() {
	defer close(s.done)
	if c, ok := s.r.(io.Closer); ok {
		defer c.Close()
	}

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		internallog.Trace(s.logger, "script output", slog.String("line", line), slog.Bool("stderr", s.isError))

		s.sink.Notify(s.format(line, first))
		first = false

		if s.marker != "" && MatchesStartedMarker(line, s.marker) {
			s.mu.Lock()
			s.markerFound = true
			s.mu.Unlock()
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		id := messages.ErrorReadingOutput
		if s.isError {
			id = messages.ErrorReadingErrorOutput
		}
		s.logger.Warn("failed to read script output", slog.Any("error", err), slog.Bool("stderr", s.isError))
		s.sink.Notify(s.sink.FormatLogError(localize(s.messages, id, nil)))
	}
}

func (s *StreamRelay) format(line string, first bool) string {
	var b strings.Builder
	if !first {
		b.WriteString(s.sink.LineBreak())
	}
	if s.isError {
		b.WriteString(s.sink.FormatLogError(line))
	} else {
		b.WriteString(s.sink.FormatLog(line))
	}
	return b.String()
}

// Done is closed once the stream has ended.
func (s *StreamRelay) Done() <-chan struct{} {
	return s.done
}

// Finished reports whether the relay has reached end-of-stream, either
// normally or through a read failure. It says nothing about the marker.
func (s *StreamRelay) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// MarkerFound reports whether the started marker has been seen so far.
func (s *StreamRelay) MarkerFound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markerFound
}

// Err returns the read failure recorded by the relay, if any.
func (s *StreamRelay) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MatchesStartedMarker reports whether line carries the started marker.
// The server logs the marker as a key=value pair, so the marker must follow
// an equals sign. Matching is case-insensitive.
func MatchesStartedMarker(line, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(line), "="+strings.ToLower(marker))
}
