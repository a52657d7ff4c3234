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

package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/cli/format"
	"github.com/tombee/serverctl/internal/cli/prompt"
	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/config"
	"github.com/tombee/serverctl/internal/credentials"
	"github.com/tombee/serverctl/internal/lifecycle"
	internallog "github.com/tombee/serverctl/internal/log"
	"github.com/tombee/serverctl/internal/messages"
	"github.com/tombee/serverctl/internal/tracing"
)

// shutdownTimeout bounds trace flushing on exit.
const shutdownTimeout = 5 * time.Second

// runtime wires configuration into the collaborators one command needs.
type runtime struct {
	cfg      *config.Config
	inst     *lifecycle.DirInstallation
	catalog  *messages.Catalog
	logger   *slog.Logger
	sink     lifecycle.Sink
	terminal *format.TerminalSink
	events   *lifecycle.EventLog
	tracing  *tracing.Provider
	prompter prompt.Prompter

	out    io.Writer
	errOut io.Writer

	// Test seams.
	connector lifecycle.Connector
	runner    lifecycle.ProcessRunner
	sleep     func(context.Context, time.Duration)
}

// configureRuntime adjusts a freshly built runtime.
// This is primarily used for testing.
var configureRuntime = func(*runtime) {}

// newRuntime loads configuration and applies the global flags.
func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	flags := shared.Flags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.Locale != "" {
		cfg.Locale = flags.Locale
	}
	if flags.Trace != "" {
		cfg.Tracing.Exporter = flags.Trace
	}

	rt := &runtime{
		cfg:    cfg,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}

	logCfg := internallog.OverrideFromEnv(&internallog.Config{
		Level:     cfg.Log.Level,
		Format:    internallog.Format(cfg.Log.Format),
		Output:    rt.errOut,
		AddSource: cfg.Log.AddSource,
	})
	if flags.Verbose {
		logCfg.Level = "debug"
	}
	rt.logger = internallog.WithInstallation(internallog.New(logCfg), cfg.Installation.Root)

	rt.catalog, err = messages.New(cfg.Locale)
	if err != nil {
		return nil, shared.NewConfigError("unsupported locale", err)
	}

	rt.inst = lifecycle.NewDirInstallation(cfg.Installation.Root, cfg.Installation.AdminPort)
	rt.events = lifecycle.NewEventLog(cfg.Installation.EventsFile)

	if flags.JSON {
		rt.sink = lifecycle.NopSink{}
	} else {
		styled := false
		if f, ok := rt.out.(*os.File); ok {
			styled = format.IsTTY(f)
		}
		rt.terminal = format.NewTerminalSink(rt.out, styled)
		rt.sink = rt.terminal
	}

	interactive := !flags.JSON && !shared.IsNonInteractive()
	rt.prompter = prompt.NewSurveyPrompter(interactive, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr))

	if cfg.Tracing.Exporter != tracing.ExporterNone {
		v, _, _ := shared.GetVersion()
		rt.tracing, err = tracing.NewProvider(ctx, tracing.Config{
			ServiceName:    "serverctl",
			ServiceVersion: v,
			SampleRate:     cfg.Tracing.SampleRate,
			Exporter: tracing.ExporterConfig{
				Type:       cfg.Tracing.Exporter,
				Endpoint:   cfg.Tracing.Endpoint,
				Insecure:   cfg.Tracing.Insecure,
				CACertPath: cfg.Tracing.CACertFile,
				Headers:    cfg.Tracing.Headers,
				Writer:     rt.errOut,
			},
		})
		if err != nil {
			return nil, shared.NewConfigError("failed to configure tracing", err)
		}
	}

	configureRuntime(rt)
	return rt, nil
}

// credentialSource resolves the probe credentials, prompting only when a
// terminal is attached.
func (rt *runtime) credentialSource() *credentials.Source {
	opts := []credentials.Option{
		credentials.WithLogger(internallog.WithComponent(rt.logger, "credentials")),
	}
	if rt.prompter != nil && rt.prompter.IsInteractive() {
		opts = append(opts, credentials.WithPrompter(rt.prompter))
	}
	return credentials.NewSource(rt.cfg.Connection, opts...)
}

// controller builds a lifecycle controller for the installation.
func (rt *runtime) controller(extra ...lifecycle.Option) *lifecycle.Controller {
	logger := internallog.WithComponent(rt.logger, "lifecycle")
	tracer := rt.tracing.Tracer("github.com/tombee/serverctl")

	runner := rt.runner
	if runner == nil {
		policy := lifecycle.DefaultEnvPolicy()
		if rt.cfg.Installation.JavaHome != "" {
			policy.Home = rt.cfg.Installation.JavaHome
		}
		runner = lifecycle.NewExecRunner(
			lifecycle.WithEnvPolicy(policy),
			lifecycle.WithRunnerSink(rt.sink),
			lifecycle.WithRunnerMessages(rt.catalog),
			lifecycle.WithRunnerLogger(logger),
			lifecycle.WithRunnerTracer(tracer),
			lifecycle.WithDrainTimeout(rt.cfg.Process.DrainTimeout),
		)
	}

	opts := []lifecycle.Option{
		lifecycle.WithRunner(runner),
		lifecycle.WithCredentials(rt.credentialSource()),
		lifecycle.WithMarkerSource(lifecycle.StaticMarker(rt.cfg.Installation.StartedMarker)),
		lifecycle.WithHostname(rt.cfg.Connection.Hostname),
		lifecycle.WithSink(rt.sink),
		lifecycle.WithMessages(rt.catalog),
		lifecycle.WithEventLog(rt.events),
		lifecycle.WithLogger(logger),
		lifecycle.WithTracer(tracer),
	}
	if rt.connector != nil {
		opts = append(opts, lifecycle.WithConnector(rt.connector))
	}
	if rt.sleep != nil {
		opts = append(opts, lifecycle.WithSleep(rt.sleep))
	}
	return lifecycle.New(rt.inst, append(opts, extra...)...)
}

// probe builds a standalone connectivity probe.
func (rt *runtime) probe(rounds int) *lifecycle.Probe {
	connector := rt.connector
	if connector == nil {
		connector = lifecycle.LDAPSConnector{}
	}
	opts := []lifecycle.ProbeOption{
		lifecycle.WithRounds(rounds),
		lifecycle.WithProbeMessages(rt.catalog),
		lifecycle.WithProbeLogger(internallog.WithComponent(rt.logger, "probe")),
		lifecycle.WithProbeTracer(rt.tracing.Tracer("github.com/tombee/serverctl")),
	}
	if rt.sleep != nil {
		opts = append(opts, lifecycle.WithProbeSleep(rt.sleep))
	}
	return lifecycle.NewProbe(connector, opts...)
}

// suppressOutput reports whether script output should be hidden.
func (rt *runtime) suppressOutput() bool {
	return shared.GetQuiet() || shared.GetJSON()
}

// localize renders a message in the configured locale.
func (rt *runtime) localize(id string, data map[string]any) string {
	return rt.catalog.Localize(id, data)
}

// close terminates progress output, flushes spans and writes metrics.
func (rt *runtime) close() {
	if rt.terminal != nil {
		rt.terminal.Finish()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.tracing.Shutdown(ctx); err != nil {
		rt.logger.Warn("failed to flush traces", slog.Any("error", err))
	}

	if path := shared.Flags().MetricsTextfile; path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			rt.logger.Warn("failed to write metrics textfile", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// printResult writes the success line in text mode.
func (rt *runtime) printResult(msg string) {
	if shared.GetQuiet() || shared.GetJSON() {
		return
	}
	fmt.Fprintln(rt.out, shared.RenderOK(msg))
}

// fail emits the JSON error envelope when --json is set. The error is
// returned either way so the exit code reflects it.
func (rt *runtime) fail(command string, err error) error {
	if shared.GetJSON() {
		if emitErr := shared.EmitJSONError(rt.out, command, err); emitErr != nil {
			rt.logger.Warn("failed to write JSON output", slog.Any("error", emitErr))
		}
	}
	return err
}

// setupFailed reports an error raised before a runtime exists.
func setupFailed(cmd *cobra.Command, command string, err error) error {
	if shared.GetJSON() {
		_ = shared.EmitJSONError(cmd.OutOrStdout(), command, err)
	}
	return err
}
