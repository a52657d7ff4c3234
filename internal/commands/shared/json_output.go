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
	"encoding/json"
	"errors"
	"io"

	"github.com/tombee/serverctl/internal/lifecycle"
	serverctlerrors "github.com/tombee/serverctl/pkg/errors"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError is a structured error for JSON output
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewJSONResponse builds the envelope for command.
func NewJSONResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: success}
}

// EmitJSON writes response as indented JSON.
func EmitJSON(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSONError writes a failed envelope describing err.
func EmitJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return EmitJSON(w, errorResponse{
		JSONResponse: NewJSONResponse(command, false),
		Errors:       []JSONError{ToJSONError(err)},
	})
}

// ToJSONError converts err into its structured form.
func ToJSONError(err error) JSONError {
	je := JSONError{
		Code:       "error",
		Message:    err.Error(),
		Suggestion: findSuggestion(err),
	}

	var lcErr *lifecycle.Error
	var nfErr *serverctlerrors.NotFoundError
	switch {
	case errors.As(err, &lcErr):
		je.Code = lcErr.Code.String()
		if code, ok := lcErr.ExitCode(); ok {
			je.ExitCode = &code
		}
	case errors.As(err, &nfErr):
		je.Code = "not_found"
	case ExitCodeFor(err) == ExitConfig:
		je.Code = "config_error"
	}
	return je
}
