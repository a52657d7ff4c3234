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
Package lifecycle starts and stops a directory server installation through
its control scripts and decides whether each operation succeeded.

Three signals are reconciled into one result: the exit code of the control
script, the text the script writes to stdout and stderr, and whether the
server answers on its administration port afterwards.

# Stopping

Stop runs the stop script up to three times. Exit code 0 means the server
stopped; ClientSideConnectError means it was not running. Any other code is
retried and reported once the attempts are used up:

	ctrl := lifecycle.New(lifecycle.NewDirInstallation("/opt/ds", 4444))
	outcome, err := ctrl.Stop(ctx, lifecycle.Request{Mode: lifecycle.ModeStop})
	if errors.Is(err, lifecycle.ErrStop) {
	    // stop script kept failing
	}

# Starting

Start runs the start script with --timeout 0, relays its output and then
probes the admin port over LDAPS until the server answers or the probe gives
up. The startup marker in the script output is informational only.

# Output

Script output is relayed line by line to a Sink. Passing SuppressOutput
disables the sink and redirects os.Stdout for the duration of the call:

	ctrl := lifecycle.New(inst, lifecycle.WithSink(sink))
	ctrl.Start(ctx, lifecycle.Request{SuppressOutput: true})

Calls for the same installation must be serialized by the caller.
*/
package lifecycle
