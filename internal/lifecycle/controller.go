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
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/serverctl/internal/messages"
)

const (
	// ClientSideConnectError is the exit code the stop script returns when
	// it cannot open a control connection to the server.
	ClientSideConnectError = 91

	// DefaultStopAttempts is the number of times the stop script is run.
	DefaultStopAttempts = 3

	// DefaultStopPolls and DefaultStopPollInterval bound how long Stop
	// waits on Windows for the server process to go away.
	DefaultStopPolls        = 10
	DefaultStopPollInterval = 5 * time.Second

	// DefaultStartedMarker is the message id the server logs once it has
	// finished starting.
	DefaultStartedMarker = "org.opends.messages.core-135"

	// NoPropertiesFileFlag tells the stop script to ignore tools.properties.
	NoPropertiesFileFlag = "--noPropertiesFile"

	// stillRunningExitCode replaces an ambiguous Windows exit code when the
	// server process outlives the polling window.
	stillRunningExitCode = -1
)

// Mode selects the workflow a Request runs.
type Mode int

const (
	ModeStart Mode = iota
	ModeStop
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeStop {
		return "stop"
	}
	return "start"
}

// Request is one lifecycle invocation.
type Request struct {
	Mode           Mode
	SuppressOutput bool
	// SkipPropertiesFile applies to ModeStop only.
	SkipPropertiesFile bool
}

// Outcome is the terminal state of a successful workflow.
type Outcome int

const (
	OutcomeStarted Outcome = iota + 1
	OutcomeStopped
	OutcomeAlreadyStopped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeStopped:
		return "stopped"
	case OutcomeAlreadyStopped:
		return "already_stopped"
	default:
		return "failed"
	}
}

// MarkerSource supplies the token the server logs when startup completes.
type MarkerSource interface {
	StartedMarker() string
}

// StaticMarker is a MarkerSource returning a fixed token.
type StaticMarker string

// StartedMarker implements MarkerSource.
func (m StaticMarker) StartedMarker() string {
	return string(m)
}

// Controller runs the start and stop workflows for one installation.
// Calls for the same installation must not overlap.
type Controller struct {
	installation Installation
	runner       ProcessRunner
	probe        *Probe
	connector    Connector
	credentials  CredentialSource
	markers      MarkerSource
	hostname     string
	sink         Sink
	suppressor   Suppressor
	messages     Localizer
	events       *EventLog
	logger       *slog.Logger
	tracer       trace.Tracer
	goos         string
	sleep        func(context.Context, time.Duration)
	onStarted    func(*ProbeResult)

	stopAttempts     int
	stopPolls        int
	stopPollInterval time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithRunner sets the process runner.
// This is primarily used for testing with fake scripts.
func WithRunner(r ProcessRunner) Option {
	return func(c *Controller) {
		c.runner = r
	}
}

// WithProbe sets the connectivity probe used after start.
func WithProbe(p *Probe) Option {
	return func(c *Controller) {
		c.probe = p
	}
}

// WithConnector sets the connector for the default probe.
func WithConnector(conn Connector) Option {
	return func(c *Controller) {
		c.connector = conn
	}
}

// WithCredentials sets the source of probe credentials.
func WithCredentials(src CredentialSource) Option {
	return func(c *Controller) {
		c.credentials = src
	}
}

// WithMarkerSource sets the started-marker helper.
func WithMarkerSource(m MarkerSource) Option {
	return func(c *Controller) {
		c.markers = m
	}
}

// WithHostname sets the host the probe tries first.
func WithHostname(host string) Option {
	return func(c *Controller) {
		c.hostname = host
	}
}

// WithSink sets the notification sink.
func WithSink(s Sink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithSuppressor sets the output suppression resource.
func WithSuppressor(s Suppressor) Option {
	return func(c *Controller) {
		c.suppressor = s
	}
}

// WithMessages sets the message catalog.
func WithMessages(l Localizer) Option {
	return func(c *Controller) {
		c.messages = l
	}
}

// WithEventLog sets the lifecycle event log.
func WithEventLog(l *EventLog) Option {
	return func(c *Controller) {
		c.events = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// WithPlatform sets the GOOS that selects platform-specific behaviour.
func WithPlatform(goos string) Option {
	return func(c *Controller) {
		c.goos = goos
	}
}

// WithSleep replaces every wait in the workflows.
// This is primarily used for testing.
func WithSleep(sleep func(context.Context, time.Duration)) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// WithStartedHook registers fn to receive the probe result of a successful
// start.
func WithStartedHook(fn func(*ProbeResult)) Option {
	return func(c *Controller) {
		c.onStarted = fn
	}
}

// New creates a controller for the installation.
func New(installation Installation, opts ...Option) *Controller {
	c := &Controller{
		installation:     installation,
		credentials:      StaticCredentials{},
		markers:          StaticMarker(DefaultStartedMarker),
		sink:             NopSink{},
		suppressor:       NewStdoutSuppressor(),
		logger:           slog.New(slog.DiscardHandler),
		tracer:           otel.Tracer(instrumentationName),
		goos:             runtime.GOOS,
		sleep:            sleepContext,
		connector:        LDAPSConnector{},
		stopAttempts:     DefaultStopAttempts,
		stopPolls:        DefaultStopPolls,
		stopPollInterval: DefaultStopPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.runner == nil {
		c.runner = NewExecRunner(
			WithRunnerSink(c.sink),
			WithRunnerMessages(c.messages),
			WithRunnerLogger(c.logger),
			WithRunnerTracer(c.tracer),
		)
	}
	if c.probe == nil {
		c.probe = NewProbe(c.connector,
			WithProbeSleep(c.sleep),
			WithProbePlatform(c.goos),
			WithProbeMessages(c.messages),
			WithProbeLogger(c.logger),
			WithProbeTracer(c.tracer),
		)
	}
	return c
}

// Run dispatches the request to Start or Stop.
func (c *Controller) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Mode == ModeStop {
		return c.Stop(ctx, req)
	}
	return c.Start(ctx, req)
}

// Stop runs the stop script up to three times and classifies its exit code.
// Exit code 0 means Stopped and ClientSideConnectError means AlreadyStopped;
// any other code is retried and reported as an *Error with CodeStop once
// the attempts are used up. A script that cannot be run fails immediately.
//
// On Windows an exit of 0 or ClientSideConnectError is confirmed by polling
// the installation until the server process has gone, since the script can
// return before file locks are released.
func (c *Controller) Stop(ctx context.Context, req Request) (Outcome, error) {
	opID := uuid.NewString()
	logger := c.logger.With(slog.String("operation", "stop"), slog.String("operation_id", opID))
	ctx, span := c.tracer.Start(ctx, "lifecycle.stop", trace.WithAttributes(
		attribute.String("lifecycle.operation_id", opID),
		attribute.Bool("lifecycle.suppress_output", req.SuppressOutput),
		attribute.Bool("lifecycle.skip_properties_file", req.SkipPropertiesFile),
	))
	defer span.End()
	begin := time.Now()

	guard := c.suppress(req.SuppressOutput, logger)
	defer c.release(guard, logger)

	c.logEvent(logger, c.events.LogStop(opID, req.SkipPropertiesFile))
	c.sink.Notify(c.sink.FormatProgress(c.localize(messages.ProgressStopping, nil)))
	c.sink.Notify(c.sink.LineBreak())

	script := Script{Path: c.installation.StopScript()}
	if req.SkipPropertiesFile {
		script.Args = append(script.Args, NoPropertiesFileFlag)
	}

	fail := func(attempts int, err *Error) (Outcome, error) {
		recordSpanError(span, err)
		recordOperation("stop", "failed", time.Since(begin))
		c.logEvent(logger, c.events.LogStopFailure(opID, attempts, err))
		logger.Error("stop failed", slog.Int("attempts", attempts), slog.Any("error", err))
		return 0, err
	}

	for attempt := 1; attempt <= c.stopAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(attempt-1, newError(CodeStop, c.localize(messages.ErrorStopping, nil), err))
		}
		span.AddEvent("stop.attempt", trace.WithAttributes(attribute.Int("attempt", attempt)))
		logger.Debug("running stop script", slog.Int("attempt", attempt), slog.String("script", script.Path))

		outcome, err := c.runner.Run(ctx, script, "")
		if err != nil {
			return fail(attempt, newError(CodeStop, c.localize(messages.ErrorStopping, nil), err))
		}

		code := outcome.ExitCode
		if c.goos == "windows" && (code == ClientSideConnectError || code == 0) {
			code = c.confirmStopped(ctx, logger)
		}

		switch {
		case code == ClientSideConnectError:
			c.sink.Notify(c.sink.LineBreak() + c.sink.FormatLog(c.localize(messages.ProgressAlreadyStopped, nil)) + c.sink.LineBreak())
			recordOperation("stop", OutcomeAlreadyStopped.String(), time.Since(begin))
			c.logEvent(logger, c.events.LogAlreadyStopped(opID, attempt))
			logger.Info("server already stopped", slog.Int("attempts", attempt))
			span.SetAttributes(attribute.String("lifecycle.outcome", OutcomeAlreadyStopped.String()))
			return OutcomeAlreadyStopped, nil

		case code == 0:
			c.sink.Notify(c.sink.FormatLog(c.localize(messages.ProgressStopped, nil)))
			recordOperation("stop", OutcomeStopped.String(), time.Since(begin))
			c.logEvent(logger, c.events.LogStopSuccess(opID, attempt, time.Since(begin)))
			logger.Info("server stopped", slog.Int("attempts", attempt))
			span.SetAttributes(attribute.String("lifecycle.outcome", OutcomeStopped.String()))
			return OutcomeStopped, nil

		case attempt == c.stopAttempts:
			msg := c.localize(messages.ErrorStoppingCode, map[string]any{"Code": code})
			return fail(attempt, newExitError(CodeStop, msg, code))

		default:
			logger.Warn("stop script failed, retrying", slog.Int("attempt", attempt), slog.Int("exit_code", code))
		}
	}

	// Unreachable while stopAttempts > 0.
	return fail(0, newError(CodeStop, c.localize(messages.ErrorStopping, nil), nil))
}

// confirmStopped waits before each status check and returns 0 once the
// server is no longer running, or stillRunningExitCode if it never goes
// away or ctx is cancelled first.
func (c *Controller) confirmStopped(ctx context.Context, logger *slog.Logger) int {
	for i := 0; i < c.stopPolls; i++ {
		logger.Debug("waiting for server to stop", slog.Int("poll", i+1))
		c.sleep(ctx, c.stopPollInterval)
		if ctx.Err() != nil {
			logger.Debug("stop confirmation cancelled", slog.Any("error", ctx.Err()))
			return stillRunningExitCode
		}
		running := c.installation.IsServerRunning()
		logger.Info("checked server status after stop script", slog.Bool("running", running))
		if !running {
			return 0
		}
		c.sink.Notify(c.sink.FormatLog(c.localize(messages.ProgressWaitingToStop, nil)) + c.sink.LineBreak())
	}
	return stillRunningExitCode
}

// Start runs the start script and then probes the admin port until the
// server answers. A clean exit without the started marker only logs a
// warning; reachability decides the result.
func (c *Controller) Start(ctx context.Context, req Request) (Outcome, error) {
	opID := uuid.NewString()
	logger := c.logger.With(slog.String("operation", "start"), slog.String("operation_id", opID))
	ctx, span := c.tracer.Start(ctx, "lifecycle.start", trace.WithAttributes(
		attribute.String("lifecycle.operation_id", opID),
		attribute.Bool("lifecycle.suppress_output", req.SuppressOutput),
	))
	defer span.End()
	begin := time.Now()

	guard := c.suppress(req.SuppressOutput, logger)
	defer c.release(guard, logger)

	fail := func(err *Error) (Outcome, error) {
		recordSpanError(span, err)
		recordOperation("start", "failed", time.Since(begin))
		c.logEvent(logger, c.events.LogStartFailure(opID, err))
		logger.Error("start failed", slog.Any("error", err))
		return 0, err
	}
	unexpected := func(cause error) (Outcome, error) {
		return fail(newError(CodeStart, c.localize(messages.ErrorStarting, nil), cause))
	}

	c.logEvent(logger, c.events.LogStart(opID))
	c.sink.Notify(c.sink.FormatProgress(c.localize(messages.ProgressStarting, nil)))
	c.sink.Notify(c.sink.LineBreak())

	marker := c.markers.StartedMarker()
	script := Script{
		Path: c.installation.StartScript(),
		Args: []string{"--timeout", "0"},
		Dir:  c.installation.BinariesDir(),
	}
	logger.Debug("running start script", slog.String("script", script.Path), slog.String("marker", marker))

	outcome, err := c.runner.Run(ctx, script, marker)
	if err != nil {
		return unexpected(err)
	}
	if outcome.ExitCode != 0 {
		msg := c.localize(messages.ErrorStartingCode, map[string]any{"Code": outcome.ExitCode})
		return fail(newExitError(CodeStart, msg, outcome.ExitCode))
	}

	logger.Debug("start script finished",
		slog.Bool("stdout_finished", outcome.StdoutFinished),
		slog.Bool("stderr_finished", outcome.StderrFinished),
		slog.Bool("marker_found", outcome.StartedMarkerFound))
	if !outcome.StartedMarkerFound {
		logger.Warn(c.localize(messages.WarnMarkerMissing, nil), slog.String("marker", marker))
		c.logEvent(logger, c.events.LogMarkerMissing(opID))
	}
	if outcome.ReadErr != nil {
		return unexpected(outcome.ReadErr)
	}

	port, err := c.installation.AdminPort()
	if err != nil {
		return unexpected(err)
	}
	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return unexpected(fmt.Errorf("failed to resolve credentials: %w", err))
	}

	result, err := c.probe.Run(ctx, ProbeTarget{
		Hostname:    c.hostname,
		Port:        port,
		Credentials: creds,
	})
	if err != nil {
		msg := err.Error()
		if perr, ok := err.(*Error); ok {
			msg = perr.Message
		}
		return fail(newError(CodeStart, msg, err))
	}

	recordOperation("start", OutcomeStarted.String(), time.Since(begin))
	c.logEvent(logger, c.events.LogStartSuccess(opID, result, port, time.Since(begin)))
	logger.Info("server started", slog.String("host", result.Host), slog.Int("port", port), slog.Int("round", result.Round))
	span.SetAttributes(
		attribute.String("lifecycle.outcome", OutcomeStarted.String()),
		attribute.String("probe.host", result.Host),
	)
	if c.onStarted != nil {
		c.onStarted(result)
	}
	return OutcomeStarted, nil
}

func (c *Controller) suppress(enabled bool, logger *slog.Logger) *suppressionGuard {
	guard, err := acquireSuppression(enabled, c.suppressor, c.sink)
	if err != nil {
		logger.Warn("failed to suppress output", slog.Any("error", err))
	}
	return guard
}

func (c *Controller) release(guard *suppressionGuard, logger *slog.Logger) {
	if err := guard.Release(); err != nil {
		logger.Warn("failed to restore output", slog.Any("error", err))
	}
}

func (c *Controller) logEvent(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("failed to write lifecycle event", slog.String("path", c.events.Path()), slog.Any("error", err))
	}
}

func (c *Controller) localize(id string, data map[string]any) string {
	return localize(c.messages, id, data)
}
