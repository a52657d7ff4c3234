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

package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tombee/serverctl/internal/lifecycle"
	serverctlerrors "github.com/tombee/serverctl/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitGeneral},
		{"exit error", &ExitError{Code: 42, Message: "x"}, 42},
		{"config", &serverctlerrors.ConfigError{Key: "validation", Reason: "bad"}, ExitConfig},
		{"missing script", errors.Join(&serverctlerrors.NotFoundError{Resource: "script", ID: "/ds/bin/start-ds"}), ExitConfig},
		{"launch", &lifecycle.Error{Code: lifecycle.CodeLaunch}, ExitLaunch},
		{"stop", &lifecycle.Error{Code: lifecycle.CodeStop}, ExitStop},
		{"start", &lifecycle.Error{Code: lifecycle.CodeStart}, ExitStart},
		{"connect", &lifecycle.Error{Code: lifecycle.CodeConnect}, ExitConnect},
		{"wrapped start", fmt.Errorf("restart: %w", &lifecycle.Error{Code: lifecycle.CodeStart}), ExitStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReportError_Suggestion(t *testing.T) {
	err := &serverctlerrors.ConfigError{
		Key:    "validation",
		Reason: "configuration validation failed",
		Cause: errors.Join(&serverctlerrors.ValidationError{
			Field:      "installation.root",
			Message:    "installation root is required",
			Suggestion: "set SERVERCTL_INSTALL_ROOT",
		}),
	}

	var buf bytes.Buffer
	code := ReportError(&buf, err)
	if code != ExitConfig {
		t.Errorf("code = %d, want %d", code, ExitConfig)
	}
	out := buf.String()
	if !strings.Contains(out, "installation root is required") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "Suggestion: set SERVERCTL_INSTALL_ROOT") {
		t.Errorf("output missing suggestion: %q", out)
	}
}

func TestReportError_Nil(t *testing.T) {
	var buf bytes.Buffer
	if code := ReportError(&buf, nil); code != ExitSuccess || buf.Len() != 0 {
		t.Errorf("ReportError(nil) = %d, %q", code, buf.String())
	}
}

func TestEmitJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := &lifecycle.Error{Code: lifecycle.CodeStop, Message: "Error stopping server. Code: 1"}
	if e := EmitJSONError(&buf, "stop", err); e != nil {
		t.Fatal(e)
	}

	var got struct {
		Version string      `json:"@version"`
		Command string      `json:"command"`
		Success bool        `json:"success"`
		Errors  []JSONError `json:"errors"`
	}
	if e := json.Unmarshal(buf.Bytes(), &got); e != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), e)
	}
	if got.Version != "1.0" || got.Command != "stop" || got.Success {
		t.Errorf("envelope = %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].Code != "stop_error" {
		t.Errorf("errors = %+v", got.Errors)
	}
}

func TestToJSONError_Config(t *testing.T) {
	je := ToJSONError(NewConfigError("bad config", errors.New("missing")))
	if je.Code != "config_error" {
		t.Errorf("Code = %q, want config_error", je.Code)
	}
	if je.ExitCode != nil {
		t.Errorf("ExitCode = %v, want nil", *je.ExitCode)
	}
}

func TestExitError_Message(t *testing.T) {
	if got := (&ExitError{Cause: errors.New("cause")}).Error(); got != "cause" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&ExitError{Message: "msg", Cause: errors.New("cause")}).Error(); got != "msg: cause" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsNonInteractive_Env(t *testing.T) {
	t.Setenv("SERVERCTL_NON_INTERACTIVE", "true")
	if !IsNonInteractive() {
		t.Error("IsNonInteractive() = false with SERVERCTL_NON_INTERACTIVE=true")
	}

	t.Setenv("SERVERCTL_NON_INTERACTIVE", "")
	t.Setenv("CI", "true")
	if !isCIEnvironment() {
		t.Error("isCIEnvironment() = false with CI=true")
	}
}
