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
	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter implements Prompter using the survey library.
type SurveyPrompter struct {
	interactive bool
	opts        []survey.AskOpt
}

// NewSurveyPrompter creates a new survey-based prompter. Output goes to
// stderr so it never mixes with command results.
func NewSurveyPrompter(interactive bool, opts ...survey.AskOpt) *SurveyPrompter {
	return &SurveyPrompter{interactive: interactive, opts: opts}
}

// Password collects a secret using survey.Password.
func (sp *SurveyPrompter) Password(label string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	prompt := &survey.Password{Message: label}
	opts := append([]survey.AskOpt{survey.WithValidator(func(ans interface{}) error {
		if str, ok := ans.(string); ok {
			return ValidatePassword(str)
		}
		return nil
	})}, sp.opts...)

	err := survey.AskOne(prompt, &result, opts...)
	return result, err
}

// Confirm collects a boolean using survey.Confirm.
func (sp *SurveyPrompter) Confirm(label string, def bool) (bool, error) {
	if !sp.interactive {
		return false, ErrNonInteractive
	}

	var result bool
	prompt := &survey.Confirm{Message: label, Default: def}
	err := survey.AskOne(prompt, &result, sp.opts...)
	return result, err
}

// IsInteractive returns whether the prompter can display interactive prompts.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}
