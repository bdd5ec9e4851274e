package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/clawgate/clawgate/internal/clawerr"
	"github.com/clawgate/clawgate/internal/tlsutil"
)

// NewHTTPClient builds the per-provider HTTP client: a connection pool
// of up to 20 concurrent connections and a 10-second connect timeout.
// The 120-second total-request timeout is enforced per call via
// context.WithTimeout in each dialect backend's Complete, not on the
// client itself, so that a caller-supplied shorter deadline is still
// honored.
func NewHTTPClient(maxConnsPerHost int, connectTimeout time.Duration) *http.Client {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 20
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsutil.DefaultTLSConfig(),
	}

	return &http.Client{Transport: transport}
}

// ClassifyTransportError maps a round-trip error from http.Client.Do
// into the ProviderError taxonomy: a context deadline exceeded is a
// timeout, anything else reaching this point is a connection failure
// (DNS, refused connection, TLS handshake, etc.).
func ClassifyTransportError(providerName string, err error) *clawerr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return clawerr.Timeout(providerName, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return clawerr.Timeout(providerName, err.Error())
	}
	return clawerr.ConnectionError(providerName, err.Error())
}

// TruncateDetail truncates body to at most n bytes, used to build a
// provider error's detail field from an upstream error response.
func TruncateDetail(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n])
}
