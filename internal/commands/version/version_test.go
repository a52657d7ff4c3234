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
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/serverctl/internal/commands/shared"
)

func withVersion(t *testing.T) {
	t.Helper()
	shared.SetVersion("1.4.2", "abc1234", "2025-12-22")
	t.Cleanup(func() { shared.SetVersion("dev", "unknown", "unknown") })
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := &cobra.Command{Use: "serverctl"}
	root.PersistentFlags().BoolVar(&shared.Flags().JSON, "json", false, "JSON output")
	root.AddCommand(NewVersionCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"version"}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersion_Text(t *testing.T) {
	withVersion(t)

	out := execute(t)
	assert.Contains(t, out, "serverctl version 1.4.2")
	assert.Contains(t, out, "abc1234")
	assert.Contains(t, out, runtime.GOOS+"/"+runtime.GOARCH)
	assert.Contains(t, out, "de, en")
}

func TestVersion_JSON(t *testing.T) {
	withVersion(t)

	var resp versionResponse
	require.NoError(t, json.Unmarshal([]byte(execute(t, "--json")), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "version", resp.Command)
	assert.Equal(t, "1.4.2", resp.VersionInfo.Version)
	assert.Equal(t, "abc1234", resp.Commit)
	assert.Equal(t, "2025-12-22", resp.BuildDate)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, resp.Platform)
	assert.Equal(t, runtime.Version(), resp.GoVersion)
	assert.ElementsMatch(t, []string{"en", "de"}, resp.Locales)
}

func TestVersion_RejectsArguments(t *testing.T) {
	withVersion(t)

	root := &cobra.Command{Use: "serverctl"}
	root.AddCommand(NewVersionCommand())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"version", "extra"})
	assert.Error(t, root.Execute())
}
