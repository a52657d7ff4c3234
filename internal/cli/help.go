// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/serverctl/internal/commands/shared"
)

// CommandMetadata describes one command in JSON help output.
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Examples    string         `json:"examples,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
	Group       string         `json:"group,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
}

// FlagMetadata describes one flag.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required"`
}

// HelpResponse is the JSON document printed by help --json.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata     `json:"commands,omitempty"`
	Target      *CommandMetadata      `json:"target,omitempty"`
	Groups      map[string][]string   `json:"groups,omitempty"`
	GlobalFlags []FlagMetadata        `json:"global_flags,omitempty"`
	ExitCodes   []shared.ExitCodeInfo `json:"exit_codes"`
}

// NewHelpCommand creates the help command
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help shows usage for serverctl and its commands.

Run 'serverctl help <command>' for a single command. With --json the
output also lists the exit codes, so wrapper scripts can tell a stop
failure from a server that never became reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useJSON := shared.GetJSON() || jsonOutput

			target := rootCmd
			if len(args) > 0 {
				found, _, err := rootCmd.Find(args)
				if err != nil || found == rootCmd {
					return fmt.Errorf("unknown help topic %q", args[0])
				}
				target = found
			}

			if !useJSON {
				return target.Help()
			}
			return writeHelpJSON(cmd.OutOrStdout(), rootCmd, target)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// writeHelpJSON describes target, or every visible command when target is
// the root.
func writeHelpJSON(w io.Writer, rootCmd, target *cobra.Command) error {
	resp := HelpResponse{
		GlobalFlags: flagMetadata(rootCmd.PersistentFlags()),
		ExitCodes:   shared.ExitCodes(),
	}

	if target == rootCmd {
		resp.JSONResponse = shared.NewJSONResponse("help", true)
		resp.Groups = map[string][]string{}
		for _, c := range rootCmd.Commands() {
			if c.Hidden {
				continue
			}
			meta := commandMetadata(c)
			resp.Commands = append(resp.Commands, meta)
			if meta.Group != "" {
				resp.Groups[meta.Group] = append(resp.Groups[meta.Group], meta.Name)
			}
		}
		for _, names := range resp.Groups {
			sort.Strings(names)
		}
	} else {
		meta := commandMetadata(target)
		resp.JSONResponse = shared.NewJSONResponse("help "+target.Name(), true)
		resp.Target = &meta
	}

	return shared.EmitJSON(w, resp)
}

func commandMetadata(cmd *cobra.Command) CommandMetadata {
	meta := CommandMetadata{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Examples: cmd.Example,
		Aliases:  cmd.Aliases,
		Group:    cmd.Annotations["group"],
		Flags:    flagMetadata(cmd.NonInheritedFlags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			meta.Subcommands = append(meta.Subcommands, sub.Name())
		}
	}
	return meta
}

func flagMetadata(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		required := f.Annotations[cobra.BashCompOneRequiredFlag]
		flags = append(flags, FlagMetadata{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  len(required) > 0 && required[0] == "true",
		})
	})
	return flags
}
