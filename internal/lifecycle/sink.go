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

import "github.com/tombee/serverctl/internal/messages"

// Sink receives human-facing progress and log-line notifications. Calls
// arrive from the workflow goroutine and both relay goroutines, so
// implementations serialize their own output.
type Sink interface {
	Notify(message string)
	SetEnabled(enabled bool)
	LineBreak() string
	FormatLog(text string) string
	FormatLogError(text string) string
	FormatProgress(text string) string
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) Notify(string)                  {}
func (NopSink) SetEnabled(bool)                {}
func (NopSink) LineBreak() string              { return "" }
func (NopSink) FormatLog(s string) string      { return s }
func (NopSink) FormatLogError(s string) string { return s }
func (NopSink) FormatProgress(s string) string { return s }

// Localizer renders a message id into operator-facing text.
type Localizer interface {
	Localize(id string, data map[string]any) string
}

func localize(l Localizer, id string, data map[string]any) string {
	if l == nil {
		l = messages.Default()
	}
	return l.Localize(id, data)
}
