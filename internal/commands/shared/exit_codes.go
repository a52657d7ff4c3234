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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/serverctl/internal/lifecycle"
	serverctlerrors "github.com/tombee/serverctl/pkg/errors"
)

// Exit codes for serverctl commands
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitConfig  = 2
	ExitLaunch  = 10
	ExitStop    = 11
	ExitStart   = 12
	ExitConnect = 13
)

// ExitCodeInfo describes one exit code for help output.
type ExitCodeInfo struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

// ExitCodes lists every exit code serverctl returns, in ascending order.
func ExitCodes() []ExitCodeInfo {
	return []ExitCodeInfo{
		{ExitSuccess, "success", "the command completed"},
		{ExitGeneral, "error", "unclassified failure"},
		{ExitConfig, "config_error", "configuration is invalid or the installation is incomplete"},
		{ExitLaunch, "launch_error", "a control script could not be run"},
		{ExitStop, "stop_error", "the stop script kept failing"},
		{ExitStart, "start_error", "the start script failed"},
		{ExitConnect, "connect_error", "the administration port never accepted a connection"},
	}
}

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Cause: cause}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var cfgErr *serverctlerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}

	var nfErr *serverctlerrors.NotFoundError
	if errors.As(err, &nfErr) {
		return ExitConfig
	}

	var lcErr *lifecycle.Error
	if errors.As(err, &lcErr) {
		switch lcErr.Code {
		case lifecycle.CodeLaunch:
			return ExitLaunch
		case lifecycle.CodeStop:
			return ExitStop
		case lifecycle.CodeStart:
			return ExitStart
		case lifecycle.CodeConnect:
			return ExitConnect
		}
	}

	return ExitGeneral
}

// ReportError prints err and any suggestion to w and returns the exit code.
func ReportError(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(w, RenderError("Error: "+err.Error()))
	printUserVisibleSuggestion(w, err)
	return ExitCodeFor(err)
}

// HandleExitError prints err and exits with the matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(ReportError(os.Stderr, err))
}

// printUserVisibleSuggestion walks the error chain, including joined
// errors, and prints the first suggestion found.
func printUserVisibleSuggestion(w io.Writer, err error) {
	if s := findSuggestion(err); s != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
}

func findSuggestion(err error) string {
	if err == nil {
		return ""
	}
	if userErr, ok := err.(serverctlerrors.UserVisibleError); ok && userErr.IsUserVisible() {
		if s := userErr.GetSuggestion(); s != "" {
			return s
		}
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if s := findSuggestion(e); s != "" {
				return s
			}
		}
	case interface{ Unwrap() error }:
		return findSuggestion(x.Unwrap())
	}
	return ""
}
