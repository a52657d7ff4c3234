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

// Package prompt collects operator input on the terminal.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNonInteractive is returned when a prompt is needed but no terminal
// is attached.
var ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 4096

// Prompter asks the operator questions.
type Prompter interface {
	// Password reads a secret without echo.
	Password(label string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(label string, def bool) (bool, error)

	// IsInteractive returns whether the prompter can display prompts.
	IsInteractive() bool
}

// ValidatePassword rejects empty, oversized or multi-line secrets.
func ValidatePassword(s string) error {
	if s == "" {
		return fmt.Errorf("password must not be empty")
	}
	if len(s) > MaxInputSize {
		return fmt.Errorf("password exceeds maximum size of %d bytes", MaxInputSize)
	}
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("password must be a single line")
	}
	return nil
}
