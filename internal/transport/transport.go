// Package transport builds the HTTP clients vendor adapters talk through.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent matches the Chrome fingerprint presented by NewChromeTransport.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Several vendor storefronts sit behind CDNs that score Go's default TLS
// ClientHello as a bot and answer with 403 challenge pages. The Chrome
// transport presents a browser fingerprint via uTLS and negotiates h2 when
// the server offers it.

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Supports HTTP/2 and HTTP/1.1 based on ALPN.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, []string{"h2"})
		},
		ReadIdleTimeout: timeout,
	}

	h1Transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, []string{"http/1.1"})
		},
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &chromeTransport{h2: h2Transport, h1: h1Transport}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 for https URLs and falls back to HTTP/1.1. Plain
// http goes straight to the HTTP/1.1 transport.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// body already consumed by the h2 attempt
		return nil, err
	}
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, alpn []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, NextProtos: alpn}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// Options configures NewClient
type Options struct {
	Timeout time.Duration
	// Chrome selects the uTLS transport. Off for API vendors and tests.
	Chrome    bool
	Transport http.RoundTripper
}

// NewClient builds an http.Client without a cookie jar. Sessions attach their
// own jar per request chain.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	rt := opts.Transport
	if rt == nil {
		if opts.Chrome {
			rt = NewChromeTransport(timeout)
		} else {
			rt = http.DefaultTransport
		}
	}

	return &http.Client{Timeout: timeout, Transport: rt}
}

// NewJar returns a cookie jar scoped by public suffix.
func NewJar() http.CookieJar {
	// cookiejar.New never returns a non-nil error
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}
