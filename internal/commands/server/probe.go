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

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/lifecycle"
	"github.com/tombee/serverctl/internal/messages"
)

type probeOptions struct {
	rounds int
	host   string
}

// NewProbeCommand creates the probe command.
func NewProbeCommand() *cobra.Command {
	opts := probeOptions{rounds: 1}

	cmd := &cobra.Command{
		Use:         "probe",
		Short:       "Check that the administration port accepts LDAPS connections",
		Annotations: lifecycleGroup,
		Long: `Open an LDAPS connection to the administration port, bind with the
configured credentials if any, and close it again.

This is the check 'serverctl start' runs after the start script exits.
With --rounds greater than one the probe retries every three seconds,
rotating through localhost and the wildcard address on some rounds.`,
		Example: `  # Single connection attempt
  serverctl probe

  # Keep trying for up to a minute
  serverctl probe --rounds 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.rounds < 1 {
				return &shared.ExitError{Code: shared.ExitGeneral, Message: "--rounds must be at least 1"}
			}
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return setupFailed(cmd, "probe", err)
			}
			defer rt.close()
			return runProbe(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().IntVar(&opts.rounds, "rounds", opts.rounds, "Number of connection attempts")
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to probe (default: connection.hostname)")

	return cmd
}

// probeResponse is the JSON output of probe.
type probeResponse struct {
	shared.JSONResponse
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Round int    `json:"round"`
}

func runProbe(ctx context.Context, rt *runtime, opts probeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	host := opts.host
	if host == "" {
		host = rt.cfg.Connection.Hostname
	}
	port, err := rt.inst.AdminPort()
	if err != nil {
		return rt.fail("probe", err)
	}
	creds, err := rt.credentialSource().Credentials(ctx)
	if err != nil {
		return rt.fail("probe", fmt.Errorf("failed to resolve credentials: %w", err))
	}

	result, err := rt.probe(opts.rounds).Run(ctx, lifecycle.ProbeTarget{
		Hostname:    host,
		Port:        port,
		Credentials: creds,
	})
	if err != nil {
		return rt.fail("probe", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(rt.out, probeResponse{
			JSONResponse: shared.NewJSONResponse("probe", true),
			Host:         result.Host,
			Port:         port,
			Round:        result.Round,
		})
	}
	rt.printResult(rt.localize(messages.ResultReachable, map[string]any{"Host": result.Host, "Port": port}))
	return nil
}
