package tlsconfig

import "testing"

func TestParseCipherSuitesKnownNames(t *testing.T) {
	suites, err := parseCipherSuites("ECDHE-RSA-AES128-GCM-SHA256:ECDHE-RSA-AES256-GCM-SHA384")
	if err != nil {
		t.Fatalf("parseCipherSuites: %v", err)
	}
	if len(suites) != 2 {
		t.Fatalf("got %d suites, want 2", len(suites))
	}
}

func TestParseCipherSuitesSkipsUnknownNames(t *testing.T) {
	suites, err := parseCipherSuites("ECDHE-RSA-AES128-GCM-SHA256:TOTALLY-MADE-UP-CIPHER")
	if err != nil {
		t.Fatalf("parseCipherSuites: %v", err)
	}
	if len(suites) != 1 {
		t.Fatalf("got %d suites, want 1", len(suites))
	}
}

func TestParseCipherSuitesAllUnknownIsError(t *testing.T) {
	if _, err := parseCipherSuites("NOT-A-REAL-CIPHER"); err == nil {
		t.Fatal("expected error when no cipher names are recognized")
	}
}

func TestBuildRejectsMissingCertificate(t *testing.T) {
	_, err := Build(Options{CertificateChainPath: "/nonexistent/chain.pem", PrivateKeyPath: "/nonexistent/key.pem"})
	if err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}
