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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/lifecycle"
	"github.com/tombee/serverctl/internal/messages"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show whether the server is running",
		Annotations: lifecycleGroup,
		Long: `Report whether the directory server is running, based on the PID file
in <root>/logs/server.pid and a liveness check of that process.

See also: serverctl probe`,
		Example: `  # Check the server
  serverctl status

  # Extract the PID
  serverctl status --json | jq -r '.pid'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return setupFailed(cmd, "status", err)
			}
			defer rt.close()
			return runStatus(rt)
		},
	}
}

// statusResponse is the JSON output of status.
type statusResponse struct {
	shared.JSONResponse
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	PIDFile   string `json:"pid_file"`
	Stale     bool   `json:"stale,omitempty"`
	Root      string `json:"root"`
	AdminPort int    `json:"admin_port"`
}

func runStatus(rt *runtime) error {
	pidFile := rt.inst.PIDFile()
	resp := statusResponse{
		JSONResponse: shared.NewJSONResponse("status", true),
		PIDFile:      pidFile.Path(),
		Root:         rt.inst.Root(),
		AdminPort:    rt.cfg.Installation.AdminPort,
	}

	pid, err := pidFile.Running()
	switch {
	case err == nil:
		resp.Running = true
		resp.PID = pid
	case errors.Is(err, lifecycle.ErrNoPIDFile):
	case errors.Is(err, lifecycle.ErrStalePID):
		resp.Stale = true
		resp.PID = pid
	default:
		return rt.fail("status", fmt.Errorf("failed to read PID file: %w", err))
	}

	if shared.GetJSON() {
		return shared.EmitJSON(rt.out, resp)
	}

	if resp.Running {
		fmt.Fprintln(rt.out, shared.RenderOK(rt.localize(messages.ResultRunning, map[string]any{"PID": pid})))
	} else {
		fmt.Fprintln(rt.out, shared.RenderWarn(rt.localize(messages.ResultNotRunning, nil)))
		if resp.Stale {
			fmt.Fprintln(rt.out, shared.RenderField("Stale PID file", fmt.Sprintf("%s (PID %d)", resp.PIDFile, pid)))
		}
	}
	if shared.GetVerbose() {
		fmt.Fprintln(rt.out, shared.RenderField("Installation", resp.Root))
		fmt.Fprintln(rt.out, shared.RenderField("Admin port", fmt.Sprintf("%d", resp.AdminPort)))
	}
	return nil
}
