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
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/serverctl/internal/messages"
)

const (
	// DefaultProbeRounds is the number of connection attempts before the
	// probe gives up.
	DefaultProbeRounds = 50

	// DefaultProbeInterval is the pause after a failed round.
	DefaultProbeInterval = 3 * time.Second

	// DefaultConnectTimeout applies when the credentials carry no timeout.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultHostname is probed when no hostname is configured.
	DefaultHostname = "localhost"

	// WildcardAddress is probed on rounds where the server may only be
	// listening on all interfaces.
	WildcardAddress = "0.0.0.0"
)

// Credentials is what the probe authenticates with.
type Credentials struct {
	// BindDN and Password are used only when both are non-empty.
	BindDN   string
	Password string

	// FIPS restricts trust to RootCAs. Outside FIPS mode any server
	// certificate is accepted.
	FIPS    bool
	RootCAs *x509.CertPool

	// Timeout bounds each connection attempt.
	Timeout time.Duration
}

// CredentialSource resolves probe credentials just before they are needed.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialSource returning fixed credentials.
type StaticCredentials Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// ConnectRequest is one connection attempt.
type ConnectRequest struct {
	Host      string
	Port      int
	BindDN    string
	Password  string
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Connector opens and immediately closes one administrative connection.
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) error
}

// ProbeTarget is the endpoint being verified.
type ProbeTarget struct {
	// Hostname defaults to DefaultHostname when empty.
	Hostname    string
	Port        int
	Credentials Credentials
}

// ProbeResult describes the round that succeeded.
type ProbeResult struct {
	Host  string
	Round int
}

// HostnameForRound returns the host to try on round i. Most rounds use the
// default host; rounds ending in 3 or 4 fall back to localhost and rounds
// ending in 5 or 6 to the wildcard address, for servers that only answer
// on those bindings.
func HostnameForRound(i int, defaultHost string) string {
	if defaultHost == "" {
		defaultHost = DefaultHostname
	}
	switch i % 10 {
	case 3, 4:
		if defaultHost != "localhost" {
			return "localhost"
		}
	case 5, 6:
		return WildcardAddress
	}
	return defaultHost
}

// Probe confirms a server is reachable on its admin port.
type Probe struct {
	connector Connector
	rounds    int
	interval  time.Duration
	sleep     func(context.Context, time.Duration)
	goos      string
	messages  Localizer
	logger    *slog.Logger
	tracer    trace.Tracer
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithRounds sets the number of rounds.
func WithRounds(n int) ProbeOption {
	return func(p *Probe) {
		if n > 0 {
			p.rounds = n
		}
	}
}

// WithInterval sets the pause after a failed round.
func WithInterval(d time.Duration) ProbeOption {
	return func(p *Probe) {
		p.interval = d
	}
}

// WithProbeSleep replaces the sleep between rounds.
// This is primarily used for testing.
func WithProbeSleep(sleep func(context.Context, time.Duration)) ProbeOption {
	return func(p *Probe) {
		p.sleep = sleep
	}
}

// WithProbePlatform sets the GOOS used to pick the failure hint.
func WithProbePlatform(goos string) ProbeOption {
	return func(p *Probe) {
		p.goos = goos
	}
}

// WithProbeMessages sets the message catalog.
func WithProbeMessages(l Localizer) ProbeOption {
	return func(p *Probe) {
		p.messages = l
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProbeOption {
	return func(p *Probe) {
		p.logger = l
	}
}

// WithProbeTracer sets the tracer for the probe span.
func WithProbeTracer(t trace.Tracer) ProbeOption {
	return func(p *Probe) {
		p.tracer = t
	}
}

// NewProbe creates a probe using connector for each round.
func NewProbe(connector Connector, opts ...ProbeOption) *Probe {
	p := &Probe{
		connector: connector,
		rounds:    DefaultProbeRounds,
		interval:  DefaultProbeInterval,
		sleep:     sleepContext,
		goos:      runtime.GOOS,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run tries up to the configured number of rounds and returns the first
// round that connected. Exhaustion yields an *Error with CodeConnect whose
// message carries a platform-specific remediation hint.
func (p *Probe) Run(ctx context.Context, target ProbeTarget) (*ProbeResult, error) {
	ctx, span := p.tracer.Start(ctx, "lifecycle.probe",
		trace.WithAttributes(
			attribute.String("probe.hostname", target.Hostname),
			attribute.Int("probe.port", target.Port),
		))
	defer span.End()

	req := ConnectRequest{
		Port:      target.Port,
		Timeout:   target.Credentials.Timeout,
		TLSConfig: probeTLSConfig(target.Credentials),
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultConnectTimeout
	}
	if target.Credentials.BindDN != "" && target.Credentials.Password != "" {
		req.BindDN = target.Credentials.BindDN
		req.Password = target.Credentials.Password
	}

	var lastErr error
	for i := 0; i < p.rounds; i++ {
		if err := ctx.Err(); err != nil {
			p.logger.Debug("connection attempts cancelled", slog.Int("round", i), slog.Any("error", err))
			lastErr = err
			break
		}
		req.Host = HostnameForRound(i, target.Hostname)

		err := p.connector.Connect(ctx, req)
		if err == nil {
			recordProbeRound("success")
			span.AddEvent("probe.connected", trace.WithAttributes(
				attribute.Int("probe.round", i),
				attribute.String("probe.host", req.Host),
			))
			p.logger.Debug("server reachable", slog.String("host", req.Host), slog.Int("round", i))
			return &ProbeResult{Host: req.Host, Round: i}, nil
		}

		recordProbeRound("failure")
		lastErr = err
		span.AddEvent("probe.failed", trace.WithAttributes(
			attribute.Int("probe.round", i),
			attribute.String("probe.host", req.Host),
		))
		p.logger.Debug("connection attempt failed",
			slog.String("host", req.Host),
			slog.Int("port", req.Port),
			slog.Int("round", i),
			slog.Any("error", err))

		if i < p.rounds-1 {
			p.sleep(ctx, p.interval)
		}
	}

	id := messages.ErrorStartingUnix
	if p.goos == "windows" {
		id = messages.ErrorStartingWindows
	}
	perr := newError(CodeConnect, localize(p.messages, id, map[string]any{"Port": target.Port}), lastErr)
	recordSpanError(span, perr)
	return nil, perr
}

// probeTLSConfig trusts any certificate unless FIPS mode supplies a CA pool.
// In FIPS mode only the chain is verified; the probe rotates through
// hostnames that the certificate will not name.
func probeTLSConfig(c Credentials) *tls.Config {
	if !c.FIPS || c.RootCAs == nil {
		return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // server certificate is usually self-signed during setup
	}
	roots := c.RootCAs
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // chain verified below
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(rawCerts, roots)
		},
	}
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("server presented no certificate")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("failed to parse server certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}

// sleepContext waits for d. A cancelled context cuts the wait short; the
// caller carries on with its next attempt.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
