// Package transport builds the outbound HTTP clients used for Reddit and EDGAR.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Options configures an outbound client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	UseUTLS   bool
}

// NewClient returns an http.Client that stamps every request with the
// configured User-Agent. With UseUTLS the TLS handshake mimics Chrome.
func NewClient(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &UserAgentTransport{
			Base:      newTransport(opts.UseUTLS),
			UserAgent: opts.UserAgent,
		},
	}
}

// UserAgentTransport sets User-Agent and Accept on requests that lack them.
type UserAgentTransport struct {
	Base      http.RoundTripper
	UserAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.UserAgent == "" && req.Header.Get("Accept") != "" {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not mutate the caller's request.
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" && t.UserAgent != "" {
		clone.Header.Set("User-Agent", t.UserAgent)
	}
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "application/json, application/atom+xml, */*")
	}
	return base.RoundTrip(clone)
}

func newTransport(useUTLS bool) http.RoundTripper {
	if !useUTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialTLSContext:      dialUTLS,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}

func dialUTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host := addr
	if strings.Contains(addr, ":") {
		host, _, _ = net.SplitHostPort(addr)
	}

	spec, err := chromeSpec()
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}

	uconn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloCustom)
	if err := uconn.ApplyPreset(&spec); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = rawConn.SetDeadline(deadline)
		defer func() { _ = rawConn.SetDeadline(time.Time{}) }()
	}
	if err := uconn.Handshake(); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return uconn, nil
}

// chromeSpec is the Chrome 120 hello restricted to HTTP/1.1 in ALPN, since
// http.Transport cannot speak h2 over a custom TLS dialer.
func chromeSpec() (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return utls.ClientHelloSpec{}, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, nil
}
