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
	"fmt"
	"os"
	"sync"
)

// Suppressor mutes a process-wide output stream. It is not reentrant;
// callers serialize lifecycle operations per installation.
type Suppressor interface {
	Suppress() error
	Unsuppress() error
	IsSuppressed() bool
}

// StdoutSuppressor redirects os.Stdout to the null device while suppressed.
type StdoutSuppressor struct {
	mu       sync.Mutex
	original *os.File
	devnull  *os.File
}

// NewStdoutSuppressor creates a suppressor for os.Stdout.
func NewStdoutSuppressor() *StdoutSuppressor {
	return &StdoutSuppressor{}
}

// Suppress points os.Stdout at the null device. Suppressing twice is a no-op.
func (s *StdoutSuppressor) Suppress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devnull != nil {
		return nil
	}
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	s.original = os.Stdout
	s.devnull = f
	os.Stdout = f
	return nil
}

// Unsuppress restores the original os.Stdout.
func (s *StdoutSuppressor) Unsuppress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devnull == nil {
		return nil
	}
	os.Stdout = s.original
	err := s.devnull.Close()
	s.devnull = nil
	s.original = nil
	return err
}

// IsSuppressed reports whether os.Stdout is currently redirected.
func (s *StdoutSuppressor) IsSuppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devnull != nil
}

// suppressionGuard scopes output suppression to one workflow call. Release
// undoes only what acquire did and is safe to call more than once.
type suppressionGuard struct {
	suppressor Suppressor
	sink       Sink
	active     bool
	acquired   bool
}

func acquireSuppression(enabled bool, suppressor Suppressor, sink Sink) (*suppressionGuard, error) {
	g := &suppressionGuard{suppressor: suppressor, sink: sink}
	if !enabled {
		return g, nil
	}
	g.active = true
	sink.SetEnabled(false)
	if suppressor != nil && !suppressor.IsSuppressed() {
		if err := suppressor.Suppress(); err != nil {
			sink.SetEnabled(true)
			g.active = false
			return g, err
		}
		g.acquired = true
	}
	return g, nil
}

func (g *suppressionGuard) Release() error {
	if !g.active {
		return nil
	}
	g.active = false
	g.sink.SetEnabled(true)
	if g.acquired {
		g.acquired = false
		return g.suppressor.Unsuppress()
	}
	return nil
}
