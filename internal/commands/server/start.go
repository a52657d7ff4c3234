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

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "start",
		Short:       "Start the server and wait until it is reachable",
		Annotations: lifecycleGroup,
		Long: `Start the directory server by running its start script, then verify
that the administration port accepts LDAPS connections.

Script output is relayed to the terminal while the server boots. The
command fails if the script exits with a nonzero code or the
administration port never answers.`,
		Example: `  # Start the server
  serverctl start

  # Start without relaying script output
  serverctl start --quiet

  # Start and report the result as JSON
  serverctl start --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return setupFailed(cmd, "start", err)
			}
			defer rt.close()
			return runStart(cmd.Context(), rt)
		},
	}
}

// startResponse is the JSON output of start and restart.
type startResponse struct {
	shared.JSONResponse
	Outcome    string `json:"outcome"`
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port"`
	DurationMS int64  `json:"duration_ms"`
}

func runStart(ctx context.Context, rt *runtime) error {
	return startAs(ctx, rt, "start")
}

// startAs runs the start workflow and reports it under command.
func startAs(ctx context.Context, rt *runtime, command string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	begin := time.Now()
	if err := rt.inst.CheckScripts(rt.inst.StartScript()); err != nil {
		return rt.fail(command, err)
	}

	var result *lifecycle.ProbeResult
	ctrl := rt.controller(lifecycle.WithStartedHook(func(r *lifecycle.ProbeResult) { result = r }))

	outcome, err := ctrl.Start(ctx, lifecycle.Request{
		Mode:           lifecycle.ModeStart,
		SuppressOutput: rt.suppressOutput(),
	})
	if rt.terminal != nil {
		rt.terminal.Finish()
	}
	if err != nil {
		return rt.fail(command, err)
	}

	port := rt.cfg.Installation.AdminPort
	host := rt.cfg.Connection.Hostname
	if result != nil {
		host = result.Host
	}

	if shared.GetJSON() {
		return shared.EmitJSON(rt.out, startResponse{
			JSONResponse: shared.NewJSONResponse(command, true),
			Outcome:      outcome.String(),
			Host:         host,
			Port:         port,
			DurationMS:   time.Since(begin).Milliseconds(),
		})
	}

	rt.printResult(rt.localize(messages.ResultStarted, map[string]any{"Host": host, "Port": port}))
	return nil
}
