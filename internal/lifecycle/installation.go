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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	serverctlerrors "github.com/tombee/serverctl/pkg/errors"
)

// DefaultAdminPort is the administration connector port of a fresh
// installation.
const DefaultAdminPort = 4444

// Installation is a read-only view of a server installation.
type Installation interface {
	StartScript() string
	StopScript() string
	BinariesDir() string
	AdminPort() (int, error)
	IsServerRunning() bool
}

// DirInstallation is an installation laid out under a root directory.
type DirInstallation struct {
	root      string
	adminPort int
	goos      string
	pidFile   *PIDFile
}

// NewDirInstallation creates a view of the installation at root. A zero
// adminPort selects DefaultAdminPort.
func NewDirInstallation(root string, adminPort int) *DirInstallation {
	if adminPort == 0 {
		adminPort = DefaultAdminPort
	}
	return &DirInstallation{
		root:      root,
		adminPort: adminPort,
		goos:      runtime.GOOS,
		pidFile:   NewPIDFile(filepath.Join(root, "logs", "server.pid")),
	}
}

// WithPlatform returns a copy resolving script names for goos.
func (d *DirInstallation) WithPlatform(goos string) *DirInstallation {
	c := *d
	c.goos = goos
	return &c
}

// Root returns the installation directory.
func (d *DirInstallation) Root() string {
	return d.root
}

// BinariesDir is where the Unix scripts live and the working directory
// for start.
func (d *DirInstallation) BinariesDir() string {
	return filepath.Join(d.root, "bin")
}

// StartScript returns the start script path for the platform.
func (d *DirInstallation) StartScript() string {
	return d.script("start-ds")
}

// StopScript returns the stop script path for the platform.
func (d *DirInstallation) StopScript() string {
	return d.script("stop-ds")
}

func (d *DirInstallation) script(name string) string {
	if d.goos == "windows" {
		return filepath.Join(d.root, "bat", name+".bat")
	}
	return filepath.Join(d.BinariesDir(), name)
}

// CheckScripts returns a *errors.NotFoundError for each path that does not
// exist, joined into one error.
func (d *DirInstallation) CheckScripts(paths ...string) error {
	var errs []error
	for _, path := range paths {
		_, err := os.Stat(path)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			errs = append(errs, &serverctlerrors.NotFoundError{
				Resource:   "script",
				ID:         path,
				Suggestion: "Check that installation.root points at a directory server installation",
			})
		default:
			errs = append(errs, serverctlerrors.Wrapf(err, "stat control script %s", path))
		}
	}
	return errors.Join(errs...)
}

// AdminPort returns the administration connector port.
func (d *DirInstallation) AdminPort() (int, error) {
	if d.adminPort <= 0 || d.adminPort > 65535 {
		return 0, fmt.Errorf("invalid admin port %d", d.adminPort)
	}
	return d.adminPort, nil
}

// PIDFile returns the server PID file.
func (d *DirInstallation) PIDFile() *PIDFile {
	return d.pidFile
}

// IsServerRunning reports whether the PID file names a live process.
func (d *DirInstallation) IsServerRunning() bool {
	_, err := d.pidFile.Running()
	return err == nil
}
