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
	"context"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/serverctl/internal/config"
)

type mapStore map[string]string

func (m mapStore) Get(dn string) (string, error) {
	v, ok := m[dn]
	if !ok {
		return "", ErrPasswordNotFound
	}
	return v, nil
}

type fixedPrompter struct {
	value string
	calls int
}

func (p *fixedPrompter) Password(string) (string, error) {
	p.calls++
	return p.value, nil
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestCredentials_Anonymous(t *testing.T) {
	prompter := &fixedPrompter{value: "secret"}
	src := NewSource(config.ConnectionConfig{Timeout: 5 * time.Second},
		WithPrompter(prompter), WithGetenv(env(nil)))

	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Empty(t, creds.BindDN)
	assert.Empty(t, creds.Password)
	assert.Equal(t, 5*time.Second, creds.Timeout)
	assert.Zero(t, prompter.calls, "no bind DN means no prompt")
}

func TestCredentials_PasswordOrder(t *testing.T) {
	dn := "cn=Directory Manager"
	passFile := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("from-file\n"), 0600))

	tests := []struct {
		name    string
		cfg     config.ConnectionConfig
		env     map[string]string
		store   mapStore
		want    string
		prompts int
	}{
		{
			name:  "env wins",
			cfg:   config.ConnectionConfig{BindDN: dn, PasswordEnv: "PW", PasswordFile: passFile, UseKeychain: true},
			env:   map[string]string{"PW": "from-env"},
			store: mapStore{dn: "from-keychain"},
			want:  "from-env",
		},
		{
			name:  "file when env unset",
			cfg:   config.ConnectionConfig{BindDN: dn, PasswordEnv: "PW", PasswordFile: passFile, UseKeychain: true},
			store: mapStore{dn: "from-keychain"},
			want:  "from-file",
		},
		{
			name:  "keychain",
			cfg:   config.ConnectionConfig{BindDN: dn, PasswordEnv: "PW", UseKeychain: true},
			store: mapStore{dn: "from-keychain"},
			want:  "from-keychain",
		},
		{
			name:    "prompt when keychain misses",
			cfg:     config.ConnectionConfig{BindDN: dn, PasswordEnv: "PW", UseKeychain: true},
			store:   mapStore{},
			want:    "from-prompt",
			prompts: 1,
		},
		{
			name:    "keychain ignored when disabled",
			cfg:     config.ConnectionConfig{BindDN: dn, PasswordEnv: "PW"},
			store:   mapStore{dn: "from-keychain"},
			want:    "from-prompt",
			prompts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompter := &fixedPrompter{value: "from-prompt"}
			src := NewSource(tt.cfg,
				WithGetenv(env(tt.env)),
				WithStore(tt.store),
				WithPrompter(prompter))

			creds, err := src.Credentials(context.Background())
			require.NoError(t, err)
			assert.Equal(t, dn, creds.BindDN)
			assert.Equal(t, tt.want, creds.Password)
			assert.Equal(t, tt.prompts, prompter.calls)
		})
	}
}

func TestCredentials_NoPromptIsAnonymousBind(t *testing.T) {
	src := NewSource(config.ConnectionConfig{BindDN: "cn=admin", PasswordEnv: "PW"},
		WithGetenv(env(nil)), WithStore(mapStore{}))

	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cn=admin", creds.BindDN)
	assert.Empty(t, creds.Password)
}

func TestCredentials_MissingPasswordFile(t *testing.T) {
	src := NewSource(config.ConnectionConfig{
		BindDN:       "cn=admin",
		PasswordFile: filepath.Join(t.TempDir(), "missing"),
	}, WithGetenv(env(nil)))

	_, err := src.Credentials(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password file")
}

func TestCredentials_FIPS(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(block), 0600))

	src := NewSource(config.ConnectionConfig{FIPS: true, TrustCAFile: caFile}, WithGetenv(env(nil)))
	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.True(t, creds.FIPS)
	require.NotNil(t, creds.RootCAs)
}

func TestLoadCertPool_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0600))

	_, err := LoadCertPool(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificates")

	_, err = LoadCertPool(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)
}

func TestKeychain(t *testing.T) {
	keyring.MockInit()
	kc := Keychain{}
	dn := "cn=Directory Manager"

	_, err := kc.Get(dn)
	assert.True(t, errors.Is(err, ErrPasswordNotFound))

	require.NoError(t, kc.Set(dn, "s3cret"))
	got, err := kc.Get(dn)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, kc.Delete(dn))
	_, err = kc.Get(dn)
	assert.True(t, errors.Is(err, ErrPasswordNotFound))

	err = kc.Delete(dn)
	assert.True(t, errors.Is(err, ErrPasswordNotFound))
}

func TestKeychain_ThroughSource(t *testing.T) {
	keyring.MockInit()
	dn := "cn=admin"
	require.NoError(t, Keychain{}.Set(dn, "kc-pass"))

	src := NewSource(config.ConnectionConfig{BindDN: dn, UseKeychain: true}, WithGetenv(env(nil)))
	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kc-pass", creds.Password)
}

func TestIsKeychainUnavailableError(t *testing.T) {
	assert.True(t, isKeychainUnavailableError(errors.New("The name org.freedesktop.secrets was not provided: dbus failure")))
	assert.True(t, isKeychainUnavailableError(errors.New("keychain is locked")))
	assert.False(t, isKeychainUnavailableError(errors.New("permission denied")))
}
