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

// Package credentials resolves what the connectivity probe authenticates
// with: the bind DN and password, and in FIPS mode the trusted CA pool.
package credentials

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tombee/serverctl/internal/config"
	"github.com/tombee/serverctl/internal/lifecycle"
	internallog "github.com/tombee/serverctl/internal/log"
)

// PasswordStore looks up stored bind passwords.
type PasswordStore interface {
	Get(bindDN string) (string, error)
}

// Prompter asks the operator for a password.
type Prompter interface {
	Password(label string) (string, error)
}

// Source implements lifecycle.CredentialSource from configuration.
// The password is looked up in order: environment variable, password file,
// keychain, interactive prompt.
type Source struct {
	cfg      config.ConnectionConfig
	store    PasswordStore
	prompter Prompter
	getenv   func(string) string
	logger   *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithStore sets the keychain used when use_keychain is enabled.
func WithStore(s PasswordStore) Option {
	return func(src *Source) {
		src.store = s
	}
}

// WithPrompter enables interactive password entry as a last resort.
func WithPrompter(p Prompter) Option {
	return func(src *Source) {
		src.prompter = p
	}
}

// WithGetenv replaces os.Getenv.
// This is primarily used for testing.
func WithGetenv(getenv func(string) string) Option {
	return func(src *Source) {
		src.getenv = getenv
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(src *Source) {
		src.logger = l
	}
}

// NewSource creates a credential source for the connection settings.
func NewSource(cfg config.ConnectionConfig, opts ...Option) *Source {
	s := &Source{
		cfg:    cfg,
		store:  Keychain{},
		getenv: os.Getenv,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credentials implements lifecycle.CredentialSource.
func (s *Source) Credentials(ctx context.Context) (lifecycle.Credentials, error) {
	creds := lifecycle.Credentials{
		BindDN:  s.cfg.BindDN,
		FIPS:    s.cfg.FIPS,
		Timeout: s.cfg.Timeout,
	}

	if s.cfg.BindDN != "" {
		password, from, err := s.password(ctx)
		if err != nil {
			return lifecycle.Credentials{}, err
		}
		creds.Password = password
		s.logger.Debug("resolved bind credentials",
			slog.String("bind_dn", s.cfg.BindDN),
			slog.String("password", internallog.SanitizeSecret(password)),
			slog.String("source", from))
	}

	if s.cfg.FIPS {
		pool, err := LoadCertPool(s.cfg.TrustCAFile)
		if err != nil {
			return lifecycle.Credentials{}, err
		}
		creds.RootCAs = pool
	}

	return creds, nil
}

func (s *Source) password(ctx context.Context) (string, string, error) {
	if s.cfg.PasswordEnv != "" {
		if v := s.getenv(s.cfg.PasswordEnv); v != "" {
			return v, "env", nil
		}
	}

	if s.cfg.PasswordFile != "" {
		data, err := os.ReadFile(s.cfg.PasswordFile)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), "file", nil
	}

	if s.cfg.UseKeychain && s.store != nil {
		v, err := s.store.Get(s.cfg.BindDN)
		switch {
		case err == nil:
			return v, "keychain", nil
		case errors.Is(err, ErrPasswordNotFound), errors.Is(err, ErrKeychainUnavailable):
			s.logger.Warn("keychain lookup failed", slog.Any("error", err))
		default:
			return "", "", err
		}
	}

	if s.prompter != nil {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		v, err := s.prompter.Password(fmt.Sprintf("Password for %s: ", s.cfg.BindDN))
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		return v, "prompt", nil
	}

	// No password: the probe connects anonymously.
	return "", "none", nil
}

// LoadCertPool reads a PEM bundle into a certificate pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
