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

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for serverctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serverctl",
		Short: "serverctl - directory server lifecycle control",
		Long: `serverctl starts and stops a directory server installation through
its control scripts and verifies that the administration port accepts
LDAPS connections once the server is up.

Run 'serverctl start' to boot the server and wait until it is reachable.
Run 'serverctl status' to check the PID file of the installation.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	flags := shared.Flags()

	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "Path to config file (default: ~/.config/serverctl/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.Locale, "locale", "", "Message locale (en, de)")
	cmd.PersistentFlags().StringVar(&flags.Trace, "trace", "", "Trace exporter: console, otlp, otlp-http")
	cmd.PersistentFlags().Lookup("trace").NoOptDefVal = "console"
	cmd.PersistentFlags().StringVar(&flags.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	return cmd
}

// Execute runs the command tree with a context that is cancelled on
// SIGINT or SIGTERM, so the stop polls and connection retries end early.
func Execute(ctx context.Context, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.ExecuteContext(ctx)
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
