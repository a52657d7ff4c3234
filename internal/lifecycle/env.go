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

package lifecycle

import (
	"os"
	"strings"
)

const (
	// DefaultHomeVar is the variable the server scripts read to locate
	// their runtime.
	DefaultHomeVar = "OPENDJ_JAVA_HOME"
)

// DefaultStripVars are removed from the child environment so the
// controller's own runtime settings never leak into the server.
var DefaultStripVars = []string{"OPENDJ_JAVA_ARGS", "CLASSPATH"}

// EnvPolicy derives a child environment from a base environment.
type EnvPolicy struct {
	// HomeVar is set to Home when Home is non-empty.
	HomeVar string
	Home    string

	// Strip lists variables removed from the result.
	Strip []string
}

// DefaultEnvPolicy returns the policy used by the server scripts, with the
// runtime home taken from JAVA_HOME.
func DefaultEnvPolicy() EnvPolicy {
	return EnvPolicy{
		HomeVar: DefaultHomeVar,
		Home:    os.Getenv("JAVA_HOME"),
		Strip:   DefaultStripVars,
	}
}

// Apply returns a copy of base with the policy applied. Entries keep their
// original order; the home variable is appended last.
func (p EnvPolicy) Apply(base []string) []string {
	drop := make(map[string]bool, len(p.Strip)+1)
	for _, name := range p.Strip {
		drop[envKey(name)] = true
	}
	if p.HomeVar != "" && p.Home != "" {
		drop[envKey(p.HomeVar)] = true
	}

	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if drop[envKey(name)] {
			continue
		}
		env = append(env, kv)
	}
	if p.HomeVar != "" && p.Home != "" {
		env = append(env, p.HomeVar+"="+p.Home)
	}
	return env
}
