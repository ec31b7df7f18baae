package security

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/kbukum/httpbridge/security/tlstest"
)

func boolPtr(b bool) *bool { return &b }

func TestTLSConfig_Build_NilConfig(t *testing.T) {
	var cfg *TLSConfig
	result, err := cfg.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a concrete tls.Config for nil config")
	}
	if result.InsecureSkipVerify {
		t.Error("verification must be on by default")
	}
	if result.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected MinVersion=TLS12, got %d", result.MinVersion)
	}
}

func TestTLSConfig_Build_VerifyFalse(t *testing.T) {
	cfg := &TLSConfig{Verify: boolPtr(false)}
	result, err := cfg.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify=true")
	}
	if result.RootCAs != nil {
		t.Error("no roots should be loaded when verification is off")
	}
}

func TestTLSConfig_Build_CAFile(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	cfg := &TLSConfig{CAFile: certs.CAFile, ServerName: "localhost", MinVersion: tls.VersionTLS13}
	result, err := cfg.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RootCAs == nil {
		t.Error("expected RootCAs to be set")
	}
	if result.ServerName != "localhost" {
		t.Errorf("expected ServerName=localhost, got %s", result.ServerName)
	}
	if result.MinVersion != tls.VersionTLS13 {
		t.Errorf("expected MinVersion=TLS13, got %d", result.MinVersion)
	}
}

func TestTLSConfig_Build_CADirectory(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	dir := t.TempDir()
	data, err := os.ReadFile(certs.CAFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ca.pem"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := (&TLSConfig{CAFile: dir}).Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RootCAs == nil {
		t.Error("expected RootCAs from directory")
	}
}

func TestTLSConfig_Build_TrustEnv(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	t.Setenv(EnvCertFile, certs.CAFile)

	trusted, err := (&TLSConfig{}).Build(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trusted.RootCAs == nil {
		t.Error("expected SSL_CERT_FILE to be honoured when trusting the environment")
	}

	untrusted, err := (&TLSConfig{}).Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if untrusted.RootCAs != nil {
		t.Error("SSL_CERT_FILE must be ignored when the environment is not trusted")
	}
}

func TestTLSConfig_Build_PrebuiltContext(t *testing.T) {
	base := &tls.Config{ServerName: "prebuilt.example", MinVersion: tls.VersionTLS13}
	result, err := (&TLSConfig{Context: base, Verify: boolPtr(false)}).Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == base {
		t.Error("pre-built context must be cloned")
	}
	if result.ServerName != "prebuilt.example" {
		t.Errorf("expected cloned ServerName, got %q", result.ServerName)
	}
	if result.InsecureSkipVerify {
		t.Error("Verify must not override a pre-built context")
	}
}

func TestTLSConfig_Build_ClientCert(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	cfg := &TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile}
	result, err := cfg.Build(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(result.Certificates))
	}
}

func TestTLSConfig_Build_PKCS12(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	tests := []struct {
		name string
		enc  *pkcs12.Encoder
	}{
		{"modern", pkcs12.Modern},
		{"legacy", pkcs12.LegacyRC2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tlstest.WritePKCS12(t, certs, tt.enc, "pw")
			result, err := (&TLSConfig{PKCS12File: path, PKCS12Password: "pw"}).Build(false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Certificates) != 1 {
				t.Fatalf("expected 1 certificate, got %d", len(result.Certificates))
			}
			cert := result.Certificates[0]
			if len(cert.Certificate) != 2 {
				t.Errorf("expected leaf plus CA chain, got %d certificates", len(cert.Certificate))
			}
			if cert.Leaf == nil || cert.Leaf.Subject.CommonName != "localhost" {
				t.Errorf("unexpected leaf %v", cert.Leaf)
			}
			if cert.PrivateKey == nil {
				t.Error("expected private key")
			}
		})
	}

	path := tlstest.WritePKCS12(t, certs, pkcs12.Modern, "pw")
	if _, err := (&TLSConfig{PKCS12File: path, PKCS12Password: "wrong"}).Build(false); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestTLSConfig_Build_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TLSConfig
	}{
		{"missing CA file", &TLSConfig{CAFile: "/nonexistent/ca.pem"}},
		{"invalid CA content", &TLSConfig{CAFile: tlstest.WriteInvalidPEM(t, "bad-ca.pem")}},
		{"missing cert files", &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}},
		{"missing pkcs12", &TLSConfig{PKCS12File: "/nonexistent/client.p12"}},
		{"garbage pkcs12", &TLSConfig{PKCS12File: tlstest.WriteInvalidPEM(t, "client.p12")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Build(false); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTLSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TLSConfig
		wantErr bool
	}{
		{"nil", nil, false},
		{"pair", &TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}, false},
		{"cert without key", &TLSConfig{CertFile: "cert.pem"}, true},
		{"key without cert", &TLSConfig{KeyFile: "key.pem"}, true},
		{"pkcs12 and pem", &TLSConfig{PKCS12File: "c.p12", CertFile: "c.pem", KeyFile: "k.pem"}, true},
		{"context and ca", &TLSConfig{Context: &tls.Config{}, CAFile: "ca.pem"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTLSConfig_VerifyEnabled(t *testing.T) {
	var nilCfg *TLSConfig
	if !nilCfg.VerifyEnabled() {
		t.Error("nil config verifies")
	}
	if !(&TLSConfig{}).VerifyEnabled() {
		t.Error("unset Verify verifies")
	}
	if (&TLSConfig{Verify: boolPtr(false)}).VerifyEnabled() {
		t.Error("Verify=false disables verification")
	}
}
