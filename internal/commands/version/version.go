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

package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/messages"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	Platform  string   `json:"platform"`
	GoVersion string   `json:"go_version"`
	Locales   []string `json:"locales"`
}

type versionResponse struct {
	shared.JSONResponse
	VersionInfo
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the serverctl build and the platform it was built for.

The platform decides which control scripts are run: bat/*.bat on
Windows, bin/* everywhere else.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
}

func currentVersion() VersionInfo {
	v, c, b := shared.GetVersion()
	return VersionInfo{
		Version:   v,
		Commit:    c,
		BuildDate: b,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		Locales:   messages.Languages(),
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := currentVersion()

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), versionResponse{
			JSONResponse: shared.NewJSONResponse("version", true),
			VersionInfo:  info,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "serverctl version %s\n", info.Version)
	fmt.Fprintln(out, shared.RenderField("commit", info.Commit))
	fmt.Fprintln(out, shared.RenderField("build date", info.BuildDate))
	fmt.Fprintln(out, shared.RenderField("platform", info.Platform))
	fmt.Fprintln(out, shared.RenderField("go", info.GoVersion))
	fmt.Fprintln(out, shared.RenderField("locales", strings.Join(info.Locales, ", ")))

	return nil
}
