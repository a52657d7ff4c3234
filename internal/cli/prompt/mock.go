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

package prompt

import (
	"fmt"
)

// MockPrompter implements Prompter with scripted responses for testing.
type MockPrompter struct {
	responses    []interface{}
	currentIndex int
	interactive  bool
	callLog      []string
}

// NewMockPrompter creates a new mock prompter with pre-scripted responses.
func NewMockPrompter(interactive bool, responses ...interface{}) *MockPrompter {
	return &MockPrompter{
		responses:   responses,
		interactive: interactive,
	}
}

// Password returns the next string response.
func (mp *MockPrompter) Password(label string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Password(%s)", label))
	if !mp.interactive {
		return "", ErrNonInteractive
	}

	resp, ok := mp.next()
	if !ok {
		return "", fmt.Errorf("no mock response for %q", label)
	}
	switch v := resp.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	}
	return "", fmt.Errorf("mock response is not a string")
}

// Confirm returns the next boolean response, or def when none remain.
func (mp *MockPrompter) Confirm(label string, def bool) (bool, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("Confirm(%s)", label))
	if !mp.interactive {
		return false, ErrNonInteractive
	}

	resp, ok := mp.next()
	if !ok {
		return def, nil
	}
	switch v := resp.(type) {
	case bool:
		return v, nil
	case error:
		return false, v
	}
	return false, fmt.Errorf("mock response is not a bool")
}

// IsInteractive returns the configured interactive mode.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// CallLog returns the prompts that were shown, in order.
func (mp *MockPrompter) CallLog() []string {
	return mp.callLog
}

func (mp *MockPrompter) next() (interface{}, bool) {
	if mp.currentIndex >= len(mp.responses) {
		return nil, false
	}
	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++
	return resp, true
}
