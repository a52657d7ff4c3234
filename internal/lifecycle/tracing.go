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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tombee/serverctl/internal/lifecycle"

// recordSpanError marks the span failed and tags the lifecycle code.
func recordSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	if lerr, ok := err.(*Error); ok {
		span.SetAttributes(attribute.String("lifecycle.error_code", lerr.Code.String()))
		if code, ok := lerr.ExitCode(); ok {
			span.SetAttributes(attribute.Int("process.exit_code", code))
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
