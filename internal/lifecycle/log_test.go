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
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var e Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func TestEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.log")
	l := NewEventLog(path)

	require.NoError(t, l.LogStart("op-1"))
	require.NoError(t, l.LogMarkerMissing("op-1"))
	require.NoError(t, l.LogStartSuccess("op-1", &ProbeResult{Host: "localhost", Round: 3}, 4444, 2*time.Second))
	require.NoError(t, l.LogStopFailure("op-2", 3, newExitError(CodeStop, "Error stopping server. Code: 5", 5)))

	events := readEvents(t, path)
	require.Len(t, events, 4)

	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, "marker_missing", events[1].Event)

	assert.Equal(t, "start_success", events[2].Event)
	assert.Equal(t, "localhost", events[2].Host)
	assert.Equal(t, 4, events[2].Attempts)
	assert.Equal(t, int64(2000), events[2].DurationMS)

	assert.Equal(t, "stop_failure", events[3].Event)
	assert.False(t, events[3].Success)
	require.NotNil(t, events[3].ExitCode)
	assert.Equal(t, 5, *events[3].ExitCode)
	assert.Equal(t, "Error stopping server. Code: 5", events[3].Error)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestEventLog_StartFailureWithoutExitCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, NewEventLog(path).LogStartFailure("op", errors.New("boom")))

	events := readEvents(t, path)
	assert.Nil(t, events[0].ExitCode)
	assert.Equal(t, "boom", events[0].Error)
}

func TestEventLog_Nil(t *testing.T) {
	var l *EventLog
	assert.NoError(t, l.LogStop("op", false))
	assert.Equal(t, "", l.Path())
}
