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
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/serverctl/internal/messages"
)

// DefaultDrainTimeout bounds how long Run waits for the output relays after
// the script exits. A server forked by the script can inherit the pipes and
// keep them open indefinitely.
const DefaultDrainTimeout = 5 * time.Second

// Script is one invocation of a server control script.
type Script struct {
	Path string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
}

// Name returns the script file name.
func (s Script) Name() string {
	return filepath.Base(s.Path)
}

// ProcessOutcome is the sealed result of one script run.
type ProcessOutcome struct {
	ExitCode int

	// StartedMarkerFound is true when either stream carried the marker.
	StartedMarkerFound bool

	// ReadErr is the first read failure recorded by a relay.
	ReadErr error

	StdoutFinished bool
	StderrFinished bool
}

// ProcessRunner runs a script to completion.
type ProcessRunner interface {
	Run(ctx context.Context, script Script, marker string) (*ProcessOutcome, error)
}

// ExecRunner runs scripts as child processes with a sanitized environment
// and relays both output streams to a Sink.
type ExecRunner struct {
	env          EnvPolicy
	environ      func() []string
	sink         Sink
	messages     Localizer
	logger       *slog.Logger
	tracer       trace.Tracer
	drainTimeout time.Duration
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithEnvPolicy sets the policy applied to the inherited environment.
func WithEnvPolicy(p EnvPolicy) RunnerOption {
	return func(r *ExecRunner) {
		r.env = p
	}
}

// WithBaseEnv sets the environment the policy is applied to.
// This is primarily used in tests.
func WithBaseEnv(env []string) RunnerOption {
	return func(r *ExecRunner) {
		r.environ = func() []string { return env }
	}
}

// WithRunnerSink sets the sink that receives script output.
func WithRunnerSink(s Sink) RunnerOption {
	return func(r *ExecRunner) {
		r.sink = s
	}
}

// WithRunnerMessages sets the catalog for relay error notices.
func WithRunnerMessages(l Localizer) RunnerOption {
	return func(r *ExecRunner) {
		r.messages = l
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *ExecRunner) {
		r.logger = l
	}
}

// WithRunnerTracer sets the tracer for the run_script span.
func WithRunnerTracer(t trace.Tracer) RunnerOption {
	return func(r *ExecRunner) {
		r.tracer = t
	}
}

// WithDrainTimeout sets how long to wait for relays after exit.
func WithDrainTimeout(d time.Duration) RunnerOption {
	return func(r *ExecRunner) {
		r.drainTimeout = d
	}
}

// NewExecRunner creates a runner with the default environment policy.
func NewExecRunner(opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{
		env:          DefaultEnvPolicy(),
		environ:      os.Environ,
		sink:         NopSink{},
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer(instrumentationName),
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches the script, relays its output and waits for it to exit.
// A script that cannot be spawned yields an *Error with CodeLaunch. A
// nonzero exit is not an error; it is reported in the outcome.
//
// The script is not tied to ctx: interrupting a control script half way
// can leave the server in an undefined state.
func (r *ExecRunner) Run(ctx context.Context, script Script, marker string) (*ProcessOutcome, error) {
	ctx, span := r.tracer.Start(ctx, "lifecycle.run_script", trace.WithAttributes(
		attribute.String("process.executable.name", script.Name()),
	))
	defer span.End()

	launchErr := func(err error) error {
		lerr := newError(CodeLaunch, localize(r.messages, messages.ErrorLaunching, map[string]any{"Script": script.Path}), err)
		recordSpanError(span, lerr)
		return lerr
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, launchErr(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, launchErr(err)
	}

	cmd := exec.Command(script.Path, script.Args...)
	cmd.Dir = script.Dir
	cmd.Env = r.env.Apply(r.environ())
	cmd.Stdout = outW
	cmd.Stderr = errW

	logger := r.logger.With(slog.String("script", script.Name()))
	logger.Debug("launching script", slog.Any("args", script.Args), slog.String("dir", script.Dir))

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		recordProcessRun(script.Name(), "launch_error")
		return nil, launchErr(err)
	}

	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()

	stdout := NewStreamRelay(outR, false, marker, r.sink, r.messages, logger)
	stderr := NewStreamRelay(errR, true, marker, r.sink, r.messages, logger)
	stdout.Start()
	stderr.Start()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			recordProcessRun(script.Name(), "wait_error")
			return nil, launchErr(err)
		}
		exitCode = exitErr.ExitCode()
	}

	r.drain(ctx, stdout, stderr)

	outcome := &ProcessOutcome{
		ExitCode:           exitCode,
		StartedMarkerFound: stdout.MarkerFound() || stderr.MarkerFound(),
		StdoutFinished:     stdout.Finished(),
		StderrFinished:     stderr.Finished(),
	}
	outcome.ReadErr = readErr(stdout, stderr)

	result := "success"
	if exitCode != 0 {
		result = "nonzero_exit"
	}
	recordProcessRun(script.Name(), result)
	span.SetAttributes(
		attribute.Int("process.exit_code", exitCode),
		attribute.Bool("lifecycle.marker_found", outcome.StartedMarkerFound),
	)
	logger.Debug("script exited",
		slog.Int("exit_code", exitCode),
		slog.Bool("stdout_finished", outcome.StdoutFinished),
		slog.Bool("stderr_finished", outcome.StderrFinished))

	return outcome, nil
}

// drain waits for both relays to reach end-of-stream, bounded by the drain
// timeout. Relays that are still running keep reading in the background.
func (r *ExecRunner) drain(ctx context.Context, relays ...*StreamRelay) {
	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

	for _, relay := range relays {
		select {
		case <-relay.Done():
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readErr reports the error stream's read failure ahead of the output
// stream's.
func readErr(stdout, stderr *StreamRelay) error {
	if err := stderr.Err(); err != nil {
		return err
	}
	return stdout.Err()
}
