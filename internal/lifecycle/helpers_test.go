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
	"context"
	"errors"
	"sync"
	"time"
)

// recordingSink captures notifications made while enabled.
type recordingSink struct {
	mu      sync.Mutex
	enabled bool
	notes   []string
	toggles []bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{enabled: true}
}

func (s *recordingSink) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.notes = append(s.notes, msg)
	}
}

func (s *recordingSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.toggles = append(s.toggles, enabled)
}

func (s *recordingSink) LineBreak() string              { return "\n" }
func (s *recordingSink) FormatLog(m string) string      { return "[log]" + m }
func (s *recordingSink) FormatLogError(m string) string { return "[err]" + m }
func (s *recordingSink) FormatProgress(m string) string { return "[progress]" + m }

func (s *recordingSink) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

func (s *recordingSink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// fakeSuppressor tracks suppression without touching os.Stdout.
type fakeSuppressor struct {
	mu         sync.Mutex
	suppressed bool
	calls      []string
}

func (f *fakeSuppressor) Suppress() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = true
	f.calls = append(f.calls, "suppress")
	return nil
}

func (f *fakeSuppressor) Unsuppress() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = false
	f.calls = append(f.calls, "unsuppress")
	return nil
}

func (f *fakeSuppressor) IsSuppressed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

// runResult is one scripted response of fakeRunner.
type runResult struct {
	outcome *ProcessOutcome
	err     error
}

// fakeRunner returns scripted results in order and repeats the last one.
type fakeRunner struct {
	mu      sync.Mutex
	results []runResult
	scripts []Script
	markers []string
	onRun   func()
}

func exitWith(codes ...int) *fakeRunner {
	r := &fakeRunner{}
	for _, c := range codes {
		r.results = append(r.results, runResult{outcome: &ProcessOutcome{ExitCode: c, StdoutFinished: true, StderrFinished: true}})
	}
	return r
}

func (r *fakeRunner) Run(_ context.Context, script Script, marker string) (*ProcessOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onRun != nil {
		r.onRun()
	}
	r.scripts = append(r.scripts, script)
	r.markers = append(r.markers, marker)
	if len(r.results) == 0 {
		return nil, errors.New("fakeRunner: no results")
	}
	i := len(r.scripts) - 1
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	res := r.results[i]
	return res.outcome, res.err
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scripts)
}

// fakeInstallation reports running states in order and then stays on the
// last one.
type fakeInstallation struct {
	mu      sync.Mutex
	running []bool
	checks  int
	port    int
	portErr error
}

func (f *fakeInstallation) StartScript() string { return "/ds/bin/start-ds" }
func (f *fakeInstallation) StopScript() string  { return "/ds/bin/stop-ds" }
func (f *fakeInstallation) BinariesDir() string { return "/ds/bin" }

func (f *fakeInstallation) AdminPort() (int, error) {
	if f.portErr != nil {
		return 0, f.portErr
	}
	if f.port == 0 {
		return 4444, nil
	}
	return f.port, nil
}

func (f *fakeInstallation) IsServerRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if len(f.running) == 0 {
		return false
	}
	i := f.checks - 1
	if i >= len(f.running) {
		i = len(f.running) - 1
	}
	return f.running[i]
}

// fakeConnector fails the first failures calls and succeeds afterwards.
// A negative failures count fails forever.
type fakeConnector struct {
	mu       sync.Mutex
	failures int
	requests []ConnectRequest
}

func (f *fakeConnector) Connect(_ context.Context, req ConnectRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failures < 0 || len(f.requests) <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeConnector) Hosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hosts := make([]string, len(f.requests))
	for i, r := range f.requests {
		hosts[i] = r.Host
	}
	return hosts
}

// sleepRecorder records requested waits without blocking.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
