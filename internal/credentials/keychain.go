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

package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name used for keychain entries.
const keychainService = "serverctl"

var (
	// ErrPasswordNotFound is returned when no password is stored for a DN.
	ErrPasswordNotFound = errors.New("password not found in keychain")

	// ErrKeychainUnavailable is returned when the OS keychain cannot be used.
	ErrKeychainUnavailable = errors.New("keychain unavailable")
)

// Keychain stores bind passwords in the system keychain, keyed by bind DN.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type Keychain struct{}

// Get returns the password stored for bindDN.
func (Keychain) Get(bindDN string) (string, error) {
	value, err := keyring.Get(keychainService, bindDN)
	if err != nil {
		return "", classify(err, bindDN)
	}
	return value, nil
}

// Set stores the password for bindDN.
func (Keychain) Set(bindDN, password string) error {
	if err := keyring.Set(keychainService, bindDN, password); err != nil {
		return classify(err, bindDN)
	}
	return nil
}

// Delete removes the password stored for bindDN.
func (Keychain) Delete(bindDN string) error {
	if err := keyring.Delete(keychainService, bindDN); err != nil {
		return classify(err, bindDN)
	}
	return nil
}

func classify(err error, bindDN string) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrPasswordNotFound, bindDN)
	}
	if isKeychainUnavailableError(err) {
		return fmt.Errorf("%w: %s", ErrKeychainUnavailable, err.Error())
	}
	return fmt.Errorf("keychain error: %w", err)
}

// isKeychainUnavailableError checks for messages of locked or missing
// keychain services.
func isKeychainUnavailableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"locked", "secret service", "dbus", "not available", "no such interface"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
