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

package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/serverctl/internal/commands/shared"
	"github.com/tombee/serverctl/internal/config"
	"github.com/tombee/serverctl/internal/lifecycle"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type validateResponse struct {
	shared.JSONResponse
	ValidationResult
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration and the installation it points at.

Checks performed:
  - YAML syntax and field values
  - Installation root and control scripts exist
  - Password sources are readable
  - Tracing exporter settings are complete

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  serverctl config validate

  # Validate with warnings as errors
  serverctl config validate --strict

  # Get validation result as JSON
  serverctl config validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(out io.Writer, strict bool) error {
	cfg, err := config.LoadPartial(shared.GetConfigPath())
	if err != nil {
		return outputValidationResult(out, ValidationResult{
			Errors: []string{err.Error()},
		}, strict)
	}
	return outputValidationResult(out, validateConfig(cfg), strict)
}

// validateConfig collects field errors and installation warnings.
func validateConfig(cfg *config.Config) ValidationResult {
	var result ValidationResult

	if err := cfg.Validate(); err != nil {
		for _, e := range unjoin(err) {
			result.Errors = append(result.Errors, e.Error())
		}
	}

	if root := cfg.Installation.Root; root != "" {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Installation root %s is not a directory", root))
		} else {
			inst := lifecycle.NewDirInstallation(root, cfg.Installation.AdminPort)
			for _, err := range unjoin(inst.CheckScripts(inst.StartScript(), inst.StopScript())) {
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
	}

	conn := cfg.Connection
	if conn.PasswordFile != "" {
		if _, err := os.Stat(conn.PasswordFile); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Password file %s is not readable", conn.PasswordFile))
		}
	}
	if conn.UseKeychain && conn.BindDN == "" {
		result.Warnings = append(result.Warnings, "use_keychain has no effect without connection.bind_dn")
	}
	if conn.TrustCAFile != "" && !conn.FIPS {
		result.Warnings = append(result.Warnings, "trust_ca_file is only used in FIPS mode")
	}
	if cfg.Tracing.Insecure && cfg.Tracing.CACertFile != "" {
		result.Warnings = append(result.Warnings, "tracing.ca_cert_file is ignored when tracing.insecure is set")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

func outputValidationResult(out io.Writer, result ValidationResult, strict bool) error {
	result.Valid = len(result.Errors) == 0

	if shared.GetJSON() {
		if err := shared.EmitJSON(out, validateResponse{
			JSONResponse:     shared.NewJSONResponse("config validate", result.Valid),
			ValidationResult: result,
		}); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintln(out, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(out, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(out)

		if len(result.Errors) > 0 {
			fmt.Fprintln(out, "Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), e)
			}
			fmt.Fprintln(out)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, "Warnings:")
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), w)
			}
			fmt.Fprintln(out)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(out, "No issues found.")
		}
	}

	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitConfig, Message: "configuration is invalid"}
	}
	if strict && len(result.Warnings) > 0 {
		return &shared.ExitError{Code: shared.ExitConfig, Message: "validation failed (strict mode: warnings treated as errors)"}
	}
	return nil
}
