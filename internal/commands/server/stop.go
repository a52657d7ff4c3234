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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/lifecycle"
	"github.com/tombee/serverctl/internal/messages"
)

type stopOptions struct {
	noPropFile bool
}

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var opts stopOptions

	cmd := &cobra.Command{
		Use:         "stop",
		Short:       "Stop the server",
		Annotations: lifecycleGroup,
		Long: `Stop the directory server by running its stop script.

The script is retried up to three times. A server that is not running is
reported as already stopped and is not an error.`,
		Example: `  # Stop the server
  serverctl stop

  # Stop without reading the tools properties file
  serverctl stop --no-prop-file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return setupFailed(cmd, "stop", err)
			}
			defer rt.close()
			return runStop(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noPropFile, "no-prop-file", false, "Pass --noPropertiesFile to the stop script")

	return cmd
}

// stopResponse is the JSON output of stop.
type stopResponse struct {
	shared.JSONResponse
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
}

func runStop(ctx context.Context, rt *runtime, opts stopOptions) error {
	begin := time.Now()
	outcome, err := stopServer(ctx, rt, opts)
	if err != nil {
		return rt.fail("stop", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(rt.out, stopResponse{
			JSONResponse: shared.NewJSONResponse("stop", true),
			Outcome:      outcome.String(),
			DurationMS:   time.Since(begin).Milliseconds(),
		})
	}
	rt.printResult(stopMessage(rt, outcome))
	return nil
}

// stopServer runs the stop workflow.
func stopServer(ctx context.Context, rt *runtime, opts stopOptions) (lifecycle.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rt.inst.CheckScripts(rt.inst.StopScript()); err != nil {
		return 0, err
	}
	outcome, err := rt.controller().Stop(ctx, lifecycle.Request{
		Mode:               lifecycle.ModeStop,
		SuppressOutput:     rt.suppressOutput(),
		SkipPropertiesFile: opts.noPropFile,
	})
	if rt.terminal != nil {
		rt.terminal.Finish()
	}
	return outcome, err
}

func stopMessage(rt *runtime, outcome lifecycle.Outcome) string {
	if outcome == lifecycle.OutcomeAlreadyStopped {
		return rt.localize(messages.ResultAlreadyStopped, nil)
	}
	return rt.localize(messages.ResultStopped, nil)
}
