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

// Package server implements the commands that drive a directory server
// installation: start, stop, restart, status, probe and password.
package server

import (
	"github.com/spf13/cobra"
)

// NewCommands returns the server lifecycle commands, registered at the top
// level of the CLI.
func NewCommands() []*cobra.Command {
	return []*cobra.Command{
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewStatusCommand(),
		NewProbeCommand(),
		NewPasswordCommand(),
	}
}

// lifecycleGroup annotates commands for grouped help output.
var lifecycleGroup = map[string]string{"group": "lifecycle"}
