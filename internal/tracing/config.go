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

// Package tracing configures OpenTelemetry tracing for lifecycle operations.
package tracing

import (
	"io"
)

// Exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds tracing configuration.
type Config struct {
	// ServiceName identifies this tool in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of traces to sample (0.0 - 1.0).
	// Zero or anything at or above 1.0 samples everything.
	SampleRate float64

	// Exporter configures where spans go.
	Exporter ExporterConfig
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is the exporter type: "console", "otlp", "otlp-http" or "none".
	Type string

	// Endpoint is the OTLP receiver address (e.g. "localhost:4317").
	Endpoint string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// CACertPath is an optional PEM bundle for verifying the receiver.
	CACertPath string

	// Headers are sent with every OTLP request.
	Headers map[string]string

	// Writer is the console exporter destination (default: os.Stderr).
	Writer io.Writer
}

// Enabled reports whether spans are exported at all.
func (c ExporterConfig) Enabled() bool {
	return c.Type != "" && c.Type != ExporterNone
}
