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
)

// Code classifies a lifecycle failure.
type Code int

const (
	// CodeLaunch means the script could not be spawned.
	CodeLaunch Code = iota + 1
	// CodeStop means the stop script failed after all attempts, or an
	// attempt could not run at all.
	CodeStop
	// CodeConnect means the server never became reachable on its admin port.
	CodeConnect
	// CodeStart means the start script failed or connectivity was never
	// confirmed.
	CodeStart
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeLaunch:
		return "launch_error"
	case CodeStop:
		return "stop_error"
	case CodeConnect:
		return "connect_error"
	case CodeStart:
		return "start_error"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Sentinels for errors.Is checks against a code.
var (
	ErrLaunch  = &Error{Code: CodeLaunch}
	ErrStop    = &Error{Code: CodeStop}
	ErrConnect = &Error{Code: CodeConnect}
	ErrStart   = &Error{Code: CodeStart}
)

// Error is returned by every lifecycle operation that fails.
type Error struct {
	// Code is the machine-checkable classification.
	Code Code

	// Message is the localized, human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	exitCode    int
	hasExitCode bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if cause, ok := e.Cause.(*Error); ok && cause.Message == e.Message {
		return cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code. A target
// with an empty message and no cause matches on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Cause == nil
}

// ExitCode returns the child exit code carried by the error.
func (e *Error) ExitCode() (int, bool) {
	return e.exitCode, e.hasExitCode
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func newExitError(code Code, message string, exitCode int) *Error {
	return &Error{Code: code, Message: message, exitCode: exitCode, hasExitCode: true}
}
