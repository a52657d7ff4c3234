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

/*
Package cli provides the root command and global flags for serverctl.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	serverctl
	├── start       Start the server and wait until it is reachable
	├── stop        Stop the server
	├── restart     Stop, then start
	├── status      Report PID file state
	├── probe       Check the administration port
	├── password    Manage the bind password in the keychain
	├── config      Show and validate configuration
	├── version     Show version
	└── help        Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(server.NewCommands()...)
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v         Enable verbose output
	--quiet, -q           Suppress non-error output
	--json                Output in JSON format
	--config              Path to config file
	--locale              Message locale
	--trace               Trace exporter (console when given without a value)
	--metrics-textfile    Write Prometheus metrics on exit

# Error Handling

Exit codes follow the failure class:

  - Exit 0: Success
  - Exit 1: General error
  - Exit 2: Configuration error
  - Exit 10: Script could not be launched
  - Exit 11: Stop failed
  - Exit 12: Start failed
  - Exit 13: Administration port unreachable
*/
package cli
