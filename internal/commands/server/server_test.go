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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/serverctl/internal/cli/prompt"
	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/credentials"
	"github.com/tombee/serverctl/internal/lifecycle"
)

// fakeConnector fails the first failures attempts; negative fails forever.
type fakeConnector struct {
	mu       sync.Mutex
	failures int
	requests []lifecycle.ConnectRequest
}

func (f *fakeConnector) Connect(_ context.Context, req lifecycle.ConnectRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failures < 0 || len(f.requests) <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeKeychain map[string]string

func (k fakeKeychain) Set(dn, pw string) error {
	k[dn] = pw
	return nil
}

func (k fakeKeychain) Delete(dn string) error {
	if _, ok := k[dn]; !ok {
		return credentials.ErrPasswordNotFound
	}
	delete(k, dn)
	return nil
}

type installation struct {
	root   string
	config string
}

// newInstallation lays out bin/start-ds and bin/stop-ds under a temp root
// and writes a config file pointing at it.
func newInstallation(t *testing.T, startBody, stopBody string) installation {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("shell scripts are not available on Windows")
	}

	for _, key := range []string{
		"SERVERCTL_INSTALL_ROOT", "SERVERCTL_ADMIN_PORT", "SERVERCTL_HOSTNAME",
		"SERVERCTL_BIND_DN", "SERVERCTL_FIPS", "SERVERCTL_LOCALE", "SERVERCTL_TRACE_EXPORTER",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"SERVERCTL_DEBUG", "SERVERCTL_LOG_LEVEL", "SERVERCTL_NON_INTERACTIVE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	for name, body := range map[string]string{"start-ds": startBody, "stop-ds": stopBody} {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"+body+"\n"), 0755))
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf(`installation:
  root: %s
  admin_port: 5444
  started_marker: startedtoken
log:
  level: error
`, root)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0600))

	return installation{root: root, config: cfgPath}
}

// useFakes points every runtime at conn and skips probe sleeps.
func useFakes(t *testing.T, conn *fakeConnector) {
	t.Helper()
	orig := configureRuntime
	configureRuntime = func(rt *runtime) {
		rt.connector = conn
		rt.sleep = func(context.Context, time.Duration) {}
	}
	t.Cleanup(func() { configureRuntime = orig })
}

func setFlags(t *testing.T, inst installation, mutate func(*shared.GlobalFlags)) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	flags := shared.Flags()
	flags.ConfigPath = inst.config
	if mutate != nil {
		mutate(flags)
	}
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// Mirror the root command, which reports errors itself.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStart_Text(t *testing.T) {
	inst := newInstallation(t, `echo "msg=startedtoken"`, "exit 0")
	conn := &fakeConnector{}
	useFakes(t, conn)
	setFlags(t, inst, nil)

	out, err := execute(NewStartCommand())
	require.NoError(t, err)

	assert.Contains(t, out, "Starting Server...")
	assert.Contains(t, out, "msg=startedtoken")
	assert.Contains(t, out, "Server started, reachable at localhost:5444")
	require.Equal(t, 1, conn.count())
	assert.Equal(t, 5444, conn.requests[0].Port)

	events, err := os.ReadFile(filepath.Join(inst.root, "logs", "serverctl-events.log"))
	require.NoError(t, err)
	assert.Contains(t, string(events), `"event":"start_success"`)
}

func TestStart_JSON(t *testing.T) {
	inst := newInstallation(t, `echo "msg=startedtoken"`, "exit 0")
	useFakes(t, &fakeConnector{failures: 3})
	setFlags(t, inst, func(f *shared.GlobalFlags) { f.JSON = true })

	out, err := execute(NewStartCommand())
	require.NoError(t, err)

	var resp startResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "start", resp.Command)
	assert.Equal(t, "started", resp.Outcome)
	assert.Equal(t, "localhost", resp.Host)
	assert.Equal(t, 5444, resp.Port)
}

func TestStart_ProbeExhausted(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	conn := &fakeConnector{failures: -1}
	useFakes(t, conn)
	setFlags(t, inst, func(f *shared.GlobalFlags) { f.JSON = true })

	out, err := execute(NewStartCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitStart, shared.ExitCodeFor(err))
	assert.Equal(t, lifecycle.DefaultProbeRounds, conn.count())

	var resp struct {
		Success bool               `json:"success"`
		Errors  []shared.JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "start_error", resp.Errors[0].Code)
	assert.Contains(t, resp.Errors[0].Message, "administration port 5444")
}

func TestStart_NonzeroExit(t *testing.T) {
	inst := newInstallation(t, "exit 4", "exit 0")
	conn := &fakeConnector{}
	useFakes(t, conn)
	setFlags(t, inst, nil)

	_, err := execute(NewStartCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitStart, shared.ExitCodeFor(err))
	assert.Contains(t, err.Error(), "Code: 4")
	assert.Zero(t, conn.count())
}

func TestStop(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		json    bool
		want    string
		outcome string
	}{
		{name: "stopped", body: "exit 0", want: "Server stopped"},
		{name: "already stopped", body: "exit 91", want: "Server was not running"},
		{name: "json", body: "exit 0", json: true, outcome: "stopped"},
		{name: "json already stopped", body: "exit 91", json: true, outcome: "already_stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newInstallation(t, "exit 0", tt.body)
			useFakes(t, &fakeConnector{})
			setFlags(t, inst, func(f *shared.GlobalFlags) { f.JSON = tt.json })

			out, err := execute(NewStopCommand())
			require.NoError(t, err)

			if tt.json {
				var resp stopResponse
				require.NoError(t, json.Unmarshal([]byte(out), &resp))
				assert.Equal(t, tt.outcome, resp.Outcome)
				return
			}
			assert.Contains(t, out, "Stopping Server...")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestStop_NoPropFile(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	inst := newInstallation(t, "exit 0", fmt.Sprintf(`echo "$@" > %s`, argsFile))
	useFakes(t, &fakeConnector{})
	setFlags(t, inst, func(f *shared.GlobalFlags) { f.Quiet = true })

	out, err := execute(NewStopCommand(), "--no-prop-file")
	require.NoError(t, err)
	assert.Empty(t, out)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), lifecycle.NoPropertiesFileFlag)
}

func TestStop_Fails(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	inst := newInstallation(t, "exit 0", fmt.Sprintf("echo x >> %s\nexit 1", countFile))
	useFakes(t, &fakeConnector{})
	setFlags(t, inst, nil)

	_, err := execute(NewStopCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitStop, shared.ExitCodeFor(err))

	data, err := os.ReadFile(countFile)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DefaultStopAttempts, bytes.Count(data, []byte("x")))
}

func TestRestart(t *testing.T) {
	inst := newInstallation(t, `echo "msg=startedtoken"`, "exit 91")
	useFakes(t, &fakeConnector{})
	setFlags(t, inst, nil)

	out, err := execute(NewRestartCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "Server was not running")
	assert.Contains(t, out, "Server started")
}

func TestRestart_StopFailureSkipsStart(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	inst := newInstallation(t, "touch "+marker, "exit 2")
	useFakes(t, &fakeConnector{})
	setFlags(t, inst, nil)

	_, err := execute(NewRestartCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitStop, shared.ExitCodeFor(err))
	assert.NoFileExists(t, marker)
}

func TestStatus(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	useFakes(t, &fakeConnector{})
	setFlags(t, inst, nil)

	out, err := execute(NewStatusCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "Server is not running")

	logs := filepath.Join(inst.root, "logs")
	require.NoError(t, os.MkdirAll(logs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "server.pid"), []byte(strconv.Itoa(os.Getpid())), 0644))

	out, err = execute(NewStatusCommand())
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Server is running (PID %d)", os.Getpid()))

	shared.Flags().JSON = true
	out, err = execute(NewStatusCommand())
	require.NoError(t, err)
	var resp statusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Running)
	assert.Equal(t, os.Getpid(), resp.PID)
	assert.Equal(t, 5444, resp.AdminPort)
}

func TestProbe(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	conn := &fakeConnector{}
	useFakes(t, conn)
	setFlags(t, inst, nil)

	out, err := execute(NewProbeCommand(), "--host", "ds.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "reachable at ds.example.com:5444")
}

func TestProbe_SingleRoundFails(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	conn := &fakeConnector{failures: -1}
	useFakes(t, conn)
	setFlags(t, inst, nil)

	_, err := execute(NewProbeCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitConnect, shared.ExitCodeFor(err))
	assert.Equal(t, 1, conn.count())

	_, err = execute(NewProbeCommand(), "--rounds", "0")
	require.Error(t, err)
}

func TestMissingInstallationRoot(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	require.NoError(t, os.WriteFile(inst.config, []byte("log:\n  level: error\n"), 0600))
	setFlags(t, inst, nil)

	_, err := execute(NewStatusCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfig, shared.ExitCodeFor(err))

	shared.Flags().JSON = true
	out, err := execute(NewStatusCommand())
	require.Error(t, err)

	var resp struct {
		Success bool               `json:"success"`
		Errors  []shared.JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "config_error", resp.Errors[0].Code)
}

func TestMissingControlScript(t *testing.T) {
	ranFile := filepath.Join(t.TempDir(), "ran")
	inst := newInstallation(t, "exit 0", fmt.Sprintf("touch %s\nexit 0", ranFile))
	require.NoError(t, os.Remove(filepath.Join(inst.root, "bin", "start-ds")))
	conn := &fakeConnector{}
	useFakes(t, conn)
	setFlags(t, inst, nil)

	_, err := execute(NewStartCommand())
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfig, shared.ExitCodeFor(err))
	assert.Contains(t, err.Error(), "script not found")
	assert.Zero(t, conn.count())

	_, err = execute(NewRestartCommand())
	require.Error(t, err)
	assert.NoFileExists(t, ranFile)

	shared.Flags().JSON = true
	out, err := execute(NewStartCommand())
	require.Error(t, err)

	var resp struct {
		Success bool               `json:"success"`
		Errors  []shared.JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "not_found", resp.Errors[0].Code)
	assert.NotEmpty(t, resp.Errors[0].Suggestion)

	shared.Flags().JSON = false
	_, err = execute(NewStopCommand())
	require.NoError(t, err)
	assert.FileExists(t, ranFile)
}

func TestMetricsTextfile(t *testing.T) {
	inst := newInstallation(t, `echo "msg=startedtoken"`, "exit 0")
	useFakes(t, &fakeConnector{})
	path := filepath.Join(t.TempDir(), "serverctl.prom")
	setFlags(t, inst, func(f *shared.GlobalFlags) {
		f.Quiet = true
		f.MetricsTextfile = path
	})

	_, err := execute(NewStartCommand())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "serverctl_lifecycle_operations_total")
	assert.Contains(t, string(data), "serverctl_process_runs_total")
}

func withKeychain(t *testing.T, k passwordStore, p prompt.Prompter) {
	t.Helper()
	origK, origP := keychain, prompter
	keychain, prompter = k, p
	t.Cleanup(func() { keychain, prompter = origK, origP })
}

func TestPasswordSet(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	setFlags(t, inst, nil)
	store := fakeKeychain{}
	withKeychain(t, store, prompt.NewMockPrompter(true, "prompted"))

	cmd := NewPasswordCommand()
	cmd.SetIn(bytes.NewBufferString("piped\n"))
	out, err := execute(cmd, "set", "--bind-dn", "cn=admin", "--stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Password stored for cn=admin")
	assert.Equal(t, "piped", store["cn=admin"])

	_, err = execute(NewPasswordCommand(), "set", "--bind-dn", "cn=other")
	require.NoError(t, err)
	assert.Equal(t, "prompted", store["cn=other"])
}

func TestPasswordSet_BindDNFromConfig(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	t.Setenv("SERVERCTL_BIND_DN", "cn=Directory Manager")
	setFlags(t, inst, nil)
	store := fakeKeychain{}
	withKeychain(t, store, prompt.NewMockPrompter(true, "s3cret"))

	_, err := execute(NewPasswordCommand(), "set")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", store["cn=Directory Manager"])
}

func TestPasswordSet_RejectsEmpty(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	setFlags(t, inst, nil)
	store := fakeKeychain{}
	withKeychain(t, store, nil)

	cmd := NewPasswordCommand()
	cmd.SetIn(bytes.NewBufferString("\n"))
	_, err := execute(cmd, "set", "--bind-dn", "cn=admin", "--stdin")
	require.Error(t, err)
	assert.Empty(t, store)
}

func TestPasswordDelete(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	setFlags(t, inst, nil)
	store := fakeKeychain{"cn=admin": "pw"}
	withKeychain(t, store, prompt.NewMockPrompter(true, false))

	// Declined confirmation keeps the entry.
	_, err := execute(NewPasswordCommand(), "delete", "--bind-dn", "cn=admin")
	require.NoError(t, err)
	assert.Contains(t, store, "cn=admin")

	out, err := execute(NewPasswordCommand(), "delete", "--bind-dn", "cn=admin", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Password deleted")
	assert.NotContains(t, store, "cn=admin")

	out, err = execute(NewPasswordCommand(), "delete", "--bind-dn", "cn=admin", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "No password stored")
}

func TestPasswordDelete_NonInteractiveNeedsYes(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	setFlags(t, inst, nil)
	withKeychain(t, fakeKeychain{"cn=admin": "pw"}, prompt.NewMockPrompter(false))

	_, err := execute(NewPasswordCommand(), "delete", "--bind-dn", "cn=admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestPassword_NoBindDN(t *testing.T) {
	inst := newInstallation(t, "exit 0", "exit 0")
	setFlags(t, inst, nil)
	withKeychain(t, fakeKeychain{}, prompt.NewMockPrompter(true, "pw"))

	_, err := execute(NewPasswordCommand(), "set")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfig, shared.ExitCodeFor(err))
}
