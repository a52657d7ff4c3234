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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line of the lifecycle event log.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	OperationID string    `json:"operation_id"`
	Event       string    `json:"event"` // "stop", "stop_success", "start_failure", etc.
	Success     bool      `json:"success"`
	Attempts    int       `json:"attempts,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Host        string    `json:"host,omitempty"`
	Port        int       `json:"port,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EventLog appends lifecycle events to a JSON-lines file. A nil *EventLog
// discards events.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates an event log writing to path.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the log file location.
func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogStop logs a stop request.
func (l *EventLog) LogStop(opID string, skipPropertiesFile bool) error {
	msg := "Server stop initiated"
	if skipPropertiesFile {
		msg = "Server stop initiated without properties file"
	}
	return l.write(Event{OperationID: opID, Event: "stop", Success: true, Message: msg})
}

// LogStopSuccess logs a stop that brought the server down.
func (l *EventLog) LogStopSuccess(opID string, attempts int, d time.Duration) error {
	return l.write(Event{
		OperationID: opID,
		Event:       "stop_success",
		Success:     true,
		Attempts:    attempts,
		DurationMS:  d.Milliseconds(),
		Message:     "Server stopped",
	})
}

// LogAlreadyStopped logs a stop that found nothing to stop.
func (l *EventLog) LogAlreadyStopped(opID string, attempts int) error {
	return l.write(Event{
		OperationID: opID,
		Event:       "stop_already_stopped",
		Success:     true,
		Attempts:    attempts,
		Message:     "Server was already stopped",
	})
}

// LogStopFailure logs a failed stop.
func (l *EventLog) LogStopFailure(opID string, attempts int, err error) error {
	return l.write(failureEvent(opID, "stop_failure", attempts, "Failed to stop server", err))
}

// LogStart logs a start request.
func (l *EventLog) LogStart(opID string) error {
	return l.write(Event{OperationID: opID, Event: "start", Success: true, Message: "Server start initiated"})
}

// LogMarkerMissing logs a start whose output never carried the marker.
func (l *EventLog) LogMarkerMissing(opID string) error {
	return l.write(Event{
		OperationID: opID,
		Event:       "marker_missing",
		Success:     true,
		Message:     "Started marker not found in script output",
	})
}

// LogStartSuccess logs a start confirmed by the connectivity probe.
func (l *EventLog) LogStartSuccess(opID string, result *ProbeResult, port int, d time.Duration) error {
	e := Event{
		OperationID: opID,
		Event:       "start_success",
		Success:     true,
		Port:        port,
		DurationMS:  d.Milliseconds(),
		Message:     "Server started and reachable",
	}
	if result != nil {
		e.Host = result.Host
		e.Attempts = result.Round + 1
	}
	return l.write(e)
}

// LogStartFailure logs a failed start.
func (l *EventLog) LogStartFailure(opID string, err error) error {
	return l.write(failureEvent(opID, "start_failure", 0, "Failed to start server", err))
}

func failureEvent(opID, name string, attempts int, msg string, err error) Event {
	e := Event{
		OperationID: opID,
		Event:       name,
		Success:     false,
		Attempts:    attempts,
		Message:     msg,
	}
	if err != nil {
		e.Error = err.Error()
		if lerr, ok := err.(*Error); ok {
			if code, ok := lerr.ExitCode(); ok {
				e.ExitCode = &code
			}
		}
	}
	return e
}

// write appends an event to the log file.
func (l *EventLog) write(event Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
