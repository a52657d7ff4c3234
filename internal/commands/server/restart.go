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
)

// restartSettle is the pause between stop and start.
const restartSettle = 100 * time.Millisecond

// NewRestartCommand creates the restart command.
func NewRestartCommand() *cobra.Command {
	var opts stopOptions

	cmd := &cobra.Command{
		Use:         "restart",
		Short:       "Stop and start the server",
		Annotations: lifecycleGroup,
		Long: `Restart the directory server by stopping and starting it.

This is equivalent to running 'serverctl stop' followed by 'serverctl start'.
A server that was not running is simply started.`,
		Example: `  # Restart the server after a configuration change
  serverctl restart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return setupFailed(cmd, "restart", err)
			}
			defer rt.close()
			return runRestart(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noPropFile, "no-prop-file", false, "Pass --noPropertiesFile to the stop script")

	return cmd
}

func runRestart(ctx context.Context, rt *runtime, opts stopOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := rt.inst.CheckScripts(rt.inst.StopScript(), rt.inst.StartScript()); err != nil {
		return rt.fail("restart", err)
	}

	outcome, err := stopServer(ctx, rt, opts)
	if err != nil {
		return rt.fail("restart", err)
	}
	if !shared.GetJSON() {
		rt.printResult(stopMessage(rt, outcome))
	}

	// Give the server a moment to release its ports
	time.Sleep(restartSettle)

	return startAs(ctx, rt, "restart")
}
