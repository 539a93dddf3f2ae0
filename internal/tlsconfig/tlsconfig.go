// Package tlsconfig builds a *tls.Config from the gateway's --use_ssl
// flags and wraps a plain net.Listener with it. Go's crypto/tls is the
// external collaborator spec §1 carves out for transport security; there
// is no ecosystem alternative in the retrieval pack that any other
// example repo reaches for instead (see DESIGN.md).
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"net"
)

// Options mirrors the subset of internal/config.Config this package needs.
type Options struct {
	CertificateChainPath string
	PrivateKeyPath       string
	DHParamsPath         string
	Ciphers              string
}

// Build loads the certificate chain and key and returns a server-side
// *tls.Config. DHParamsPath is accepted for CLI compatibility with the
// original server but has no effect: crypto/tls negotiates ECDHE/X25519
// key exchange itself and exposes no equivalent of OpenSSL's explicit DH
// parameter file (spec's Open Question, recorded in DESIGN.md).
func Build(opts Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertificateChainPath, opts.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.Ciphers != "" {
		suites, err := parseCipherSuites(opts.Ciphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}

	return cfg, nil
}

// Listen wraps an existing TCP listener with TLS, for use after net.Listen
// when --use_ssl is set (spec §9).
func Listen(inner net.Listener, cfg *tls.Config) net.Listener {
	return tls.NewListener(inner, cfg)
}

var cipherByOpenSSLName = map[string]uint16{
	"ECDHE-RSA-AES128-GCM-SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-RSA-AES256-GCM-SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-RSA-CHACHA20-POLY1305":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	"ECDHE-ECDSA-AES128-GCM-SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-ECDSA-AES256-GCM-SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
}

// parseCipherSuites translates a colon-separated OpenSSL cipher list (the
// --ssl_ciphers flag's historical format) into Go cipher suite IDs,
// skipping names Go's TLS stack has no equivalent for.
func parseCipherSuites(list string) ([]uint16, error) {
	var suites []uint16
	start := 0
	for i := 0; i <= len(list); i++ {
		if i == len(list) || list[i] == ':' {
			name := list[start:i]
			start = i + 1
			if name == "" {
				continue
			}
			if id, ok := cipherByOpenSSLName[name]; ok {
				suites = append(suites, id)
			}
		}
	}
	if len(suites) == 0 {
		return nil, fmt.Errorf("tlsconfig: none of the requested ciphers are supported")
	}
	return suites, nil
}
