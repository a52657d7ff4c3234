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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/cli/prompt"
	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/config"
	"github.com/tombee/serverctl/internal/credentials"
)

// passwordStore is the keychain the password commands write to.
type passwordStore interface {
	Set(bindDN, password string) error
	Delete(bindDN string) error
}

// Test seams.
var (
	keychain passwordStore = credentials.Keychain{}
	prompter prompt.Prompter
)

// NewPasswordCommand creates the password command group.
func NewPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "password",
		Short:       "Manage the probe bind password in the system keychain",
		Annotations: map[string]string{"group": "credentials"},
		Long: `Store or remove the password the connectivity probe binds with.

Passwords are kept in the system keychain (macOS Keychain, Secret Service
on Linux, Windows Credential Manager), keyed by bind DN. Enable lookup with
connection.use_keychain in the config file.`,
	}

	cmd.AddCommand(newPasswordSetCommand())
	cmd.AddCommand(newPasswordDeleteCommand())

	return cmd
}

func newPasswordSetCommand() *cobra.Command {
	var (
		bindDN    string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the bind password",
		Example: `  # Prompt for the password of the configured bind DN
  serverctl password set

  # Read the password from a pipe
  cat secret.txt | serverctl password set --bind-dn "cn=Directory Manager" --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dn, err := resolveBindDN(bindDN)
			if err != nil {
				return err
			}

			var password string
			if fromStdin {
				password, err = readSecret(cmd.InOrStdin())
			} else {
				password, err = passwordPrompter().Password(fmt.Sprintf("Password for %s:", dn))
			}
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if err := prompt.ValidatePassword(password); err != nil {
				return err
			}

			if err := keychain.Set(dn, password); err != nil {
				return err
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Password stored for %s", dn)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bindDN, "bind-dn", "", "Bind DN (default: connection.bind_dn)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the password from stdin")

	return cmd
}

func newPasswordDeleteCommand() *cobra.Command {
	var (
		bindDN string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored bind password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dn, err := resolveBindDN(bindDN)
			if err != nil {
				return err
			}

			if !yes {
				ok, err := passwordPrompter().Confirm(fmt.Sprintf("Delete the stored password for %s?", dn), false)
				if err != nil {
					if errors.Is(err, prompt.ErrNonInteractive) {
						return fmt.Errorf("refusing to delete without confirmation; pass --yes")
					}
					return err
				}
				if !ok {
					return nil
				}
			}

			if err := keychain.Delete(dn); err != nil {
				if errors.Is(err, credentials.ErrPasswordNotFound) {
					if !shared.GetQuiet() {
						fmt.Fprintln(cmd.OutOrStdout(), shared.RenderWarn(fmt.Sprintf("No password stored for %s", dn)))
					}
					return nil
				}
				return err
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Password deleted for %s", dn)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bindDN, "bind-dn", "", "Bind DN (default: connection.bind_dn)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// resolveBindDN prefers the flag and falls back to the configuration,
// which need not name an installation here.
func resolveBindDN(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := config.LoadPartial(shared.GetConfigPath())
	if err != nil {
		return "", err
	}
	if cfg.Connection.BindDN != "" {
		return cfg.Connection.BindDN, nil
	}
	return "", &shared.ExitError{
		Code:    shared.ExitConfig,
		Message: "no bind DN configured; pass --bind-dn or set connection.bind_dn",
	}
}

func passwordPrompter() prompt.Prompter {
	if prompter != nil {
		return prompter
	}
	return prompt.NewSurveyPrompter(!shared.IsNonInteractive())
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
