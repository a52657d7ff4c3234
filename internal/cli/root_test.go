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
	"runtime"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "serverctl" {
		t.Errorf("expected use 'serverctl', got %q", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected short description to be set")
	}

	if cmd.Long == "" {
		t.Error("expected long description to be set")
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	// Check that flags are registered
	if cmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("verbose flag not registered")
	}

	if cmd.PersistentFlags().Lookup("quiet") == nil {
		t.Error("quiet flag not registered")
	}

	if cmd.PersistentFlags().Lookup("json") == nil {
		t.Error("json flag not registered")
	}

	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("config flag not registered")
	}

	if cmd.PersistentFlags().Lookup("locale") == nil {
		t.Error("locale flag not registered")
	}

	if cmd.PersistentFlags().Lookup("metrics-textfile") == nil {
		t.Error("metrics-textfile flag not registered")
	}
}

func TestTraceFlagDefaultsToConsole(t *testing.T) {
	t.Cleanup(shared.ResetFlagsForTest)

	cmd := NewRootCommand()
	cmd.AddCommand(&cobra.Command{Use: "noop", RunE: func(*cobra.Command, []string) error { return nil }})
	cmd.SetArgs([]string{"noop", "--trace"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := shared.Flags().Trace; got != "console" {
		t.Errorf("expected trace 'console', got %q", got)
	}

	cmd = NewRootCommand()
	cmd.AddCommand(&cobra.Command{Use: "noop", RunE: func(*cobra.Command, []string) error { return nil }})
	cmd.SetArgs([]string{"noop", "--trace=otlp", "--json", "--locale", "de"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	flags := shared.Flags()
	if flags.Trace != "otlp" || !flags.JSON || flags.Locale != "de" {
		t.Errorf("unexpected flags: %+v", *flags)
	}
}

func TestSetVersion(t *testing.T) {
	// Test setting version
	SetVersion("1.2.3", "abc123", "2025-12-22")

	v, c, b := GetVersion()
	if v != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %q", v)
	}
	if c != "abc123" {
		t.Errorf("expected commit 'abc123', got %q", c)
	}
	if b != "2025-12-22" {
		t.Errorf("expected build date '2025-12-22', got %q", b)
	}
}

func TestExecute_PropagatesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	var done <-chan struct{}
	cmd := &cobra.Command{
		Use: "wait",
		RunE: func(cmd *cobra.Command, _ []string) error {
			done = cmd.Context().Done()
			cancel()
			return nil
		},
	}
	cmd.SetArgs(nil)

	if err := Execute(parent, cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("command context was not cancelled with its parent")
	}
}

func TestExecute_InterruptCancelsContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("interrupt cannot be sent to the current process on windows")
	}

	cmd := &cobra.Command{
		Use: "wait",
		RunE: func(cmd *cobra.Command, _ []string) error {
			self, err := os.FindProcess(os.Getpid())
			if err != nil {
				return err
			}
			if err := self.Signal(os.Interrupt); err != nil {
				return err
			}
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}
	cmd.SetArgs(nil)

	err := Execute(context.Background(), cmd)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
