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

package shared

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	Verbose         bool
	Quiet           bool
	JSON            bool
	ConfigPath      string
	Locale          string
	Trace           string
	MetricsTextfile string
}

// Global flag values - set by root command
var (
	flags GlobalFlags

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags returns the flag values for binding by the root command.
func Flags() *GlobalFlags {
	return &flags
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return flags.Verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return flags.Quiet
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return flags.JSON
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return flags.ConfigPath
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ResetFlagsForTest restores flag defaults between tests.
func ResetFlagsForTest() {
	flags = GlobalFlags{}
}
