// Package probe performs HTTP(S) health probes and classifies their outcome.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
)

// Config configures the executor.
type Config struct {
	DefaultTimeout time.Duration
	MaxBodyBytes   int64
	UserAgent      string
}

// Target is a single probe request.
type Target struct {
	URL             string
	Timeout         time.Duration
	FollowRedirects bool
	InspectTLS      bool
}

// TargetFor builds the probe target for a site.
func TargetFor(site *domain.MonitoredSite) Target {
	return Target{
		URL:             site.URL,
		Timeout:         site.Expectations.Timeout(),
		FollowRedirects: site.Expectations.FollowRedirects,
		InspectTLS:      site.Expectations.SSLCheckEnabled,
	}
}

// TLSInfo is the result of certificate inspection.
type TLSInfo struct {
	// HandshakeFailed is set when no TLS session could be established at all.
	HandshakeFailed bool
	Valid           bool
	ExpiresAt       time.Time
	Issuer          string
	Err             error
}

// Outcome is the raw result of a probe.
type Outcome struct {
	StartedAt  time.Time
	Elapsed    time.Duration
	StatusCode int
	Body       []byte
	// Err is set on transport failure; ErrorType classifies it.
	Err       error
	ErrorType domain.ErrorType
	TLS       *TLSInfo
}

// Option customizes an Executor.
type Option func(*Executor)

// WithRootCAs sets the pool used to verify certificates during inspection.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(e *Executor) { e.rootCAs = pool }
}

// WithClock overrides time.Now for certificate validity checks.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor runs probes. It is safe for concurrent use.
type Executor struct {
	cfg      Config
	follow   *http.Client
	noFollow *http.Client
	rootCAs  *x509.CertPool
	now      func() time.Time
}

// NewExecutor creates an executor. The HTTP client does not verify
// certificates; validity is judged by the separate inspection.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = domain.DefaultTimeoutSeconds * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // verified by inspectTLS
	transport.DisableKeepAlives = true

	e := &Executor{
		cfg:    cfg,
		follow: &http.Client{Transport: transport},
		noFollow: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probe issues a GET against target and, for HTTPS targets with inspection
// enabled, inspects the server certificate. Failures are reported in the
// Outcome, never as an error.
func (e *Executor) Probe(ctx context.Context, target Target) Outcome {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	out := e.get(ctx, target, timeout)

	if target.InspectTLS && isHTTPS(target.URL) {
		info := e.inspectTLS(ctx, target.URL, timeout)
		out.TLS = &info
	}
	return out
}

func (e *Executor) get(ctx context.Context, target Target, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := Outcome{StartedAt: e.now()}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		out.Err = fmt.Errorf("build request: %w", err)
		out.ErrorType = domain.ErrorTypeNetwork
		return out
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	client := e.noFollow
	if target.FollowRedirects {
		client = e.follow
	}

	resp, err := client.Do(req)
	if err != nil {
		out.Elapsed = time.Since(start)
		out.Err = err
		out.ErrorType = ClassifyTransportError(err)
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	out.Elapsed = time.Since(start)
	if err != nil {
		// A partial body must not be matched against the expected content.
		out.Err = fmt.Errorf("read body: %w", err)
		out.ErrorType = ClassifyTransportError(err)
		return out
	}
	out.Body = body
	return out
}

func (e *Executor) inspectTLS(ctx context.Context, rawURL string, timeout time.Duration) TLSInfo {
	u, err := url.Parse(rawURL)
	if err != nil {
		return TLSInfo{HandshakeFailed: true, Err: err}
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // chain verified below
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return TLSInfo{HandshakeFailed: true, Err: fmt.Errorf("tls handshake: %w", err)}
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return TLSInfo{Err: errors.New("no peer certificates")}
	}

	leaf := state.PeerCertificates[0]
	info := TLSInfo{
		ExpiresAt: leaf.NotAfter,
		Issuer:    issuerName(leaf),
	}

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         e.rootCAs,
		Intermediates: intermediates,
		CurrentTime:   e.now(),
	})
	if err != nil {
		info.Err = err
		return info
	}
	info.Valid = true
	return info
}

func issuerName(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	return cert.Issuer.String()
}

func isHTTPS(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "https://")
}

// ClassifyTransportError maps a failed request to an error type.
func ClassifyTransportError(err error) domain.ErrorType {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrorTypeDNSFailure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorTypeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.ErrorTypeConnectionRefused
	}
	if isTLSError(err) {
		return domain.ErrorTypeSSLError
	}
	return domain.ErrorTypeNetwork
}

func isTLSError(err error) bool {
	var (
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
		verifyErr *tls.CertificateVerificationError
	)
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) || errors.As(err, &verifyErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls: ") || strings.Contains(msg, "HTTP response to HTTPS client")
}
