// Package tlsutil provides the hardened TLS configuration shared by
// every outbound provider HTTP client.
package tlsutil

import "crypto/tls"

// DefaultTLSConfig returns a TLS configuration pinned to TLS 1.2+ with
// AEAD-only cipher suites, applied to every Provider Backend's
// http.Transport (see internal/provider.NewHTTPClient) since these
// clients all talk to the public internet over HTTPS.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}
