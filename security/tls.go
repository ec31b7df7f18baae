package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"software.sslmate.com/src/go-pkcs12"
)

// Environment variables consulted when the caller trusts the environment.
const (
	EnvCertFile = "SSL_CERT_FILE"
	EnvCertDir  = "SSL_CERT_DIR"
)

// TLSConfig describes how the transport's TLS context is built.
//
// Verification is resolved in this order: a pre-built Context wins, then
// Verify=false disables verification, then CAFile (a PEM file or a directory
// of PEM files), then SSL_CERT_FILE / SSL_CERT_DIR when the environment is
// trusted, and finally the system roots.
type TLSConfig struct {
	// Verify enables server certificate verification. Nil means true.
	Verify *bool `yaml:"verify" mapstructure:"verify"`

	// CAFile is a CA bundle file or a directory of PEM certificates.
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`

	// Context is a pre-built TLS context. It is cloned, never mutated.
	Context *tls.Config `yaml:"-" mapstructure:"-"`

	// CertFile and KeyFile hold a PEM client certificate (for mTLS).
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`

	// PKCS12File is a PKCS#12 bundle holding the client key, certificate and
	// optional CA chain. Both modern (PBES2/AES, OpenSSL 3 default) and
	// legacy (RC2/3DES with SHA-1) encryption are accepted.
	PKCS12File     string `yaml:"pkcs12_file" mapstructure:"pkcs12_file"`
	PKCS12Password string `yaml:"pkcs12_password" mapstructure:"pkcs12_password"`

	// ServerName overrides the server name used for certificate verification.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`

	// MinVersion is the minimum TLS version. Defaults to TLS 1.2.
	MinVersion uint16 `yaml:"min_version" mapstructure:"min_version"`
}

// VerifyEnabled reports whether server certificates are verified.
func (c *TLSConfig) VerifyEnabled() bool {
	return c == nil || c.Verify == nil || *c.Verify
}

// Build creates the concrete *tls.Config. It never returns nil on success.
func (c *TLSConfig) Build(trustEnv bool) (*tls.Config, error) {
	if c == nil {
		c = &TLSConfig{}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var cfg *tls.Config
	if c.Context != nil {
		cfg = c.Context.Clone()
	} else {
		minVersion := c.MinVersion
		if minVersion == 0 {
			minVersion = tls.VersionTLS12
		}
		cfg = &tls.Config{
			InsecureSkipVerify: !c.VerifyEnabled(),
			ServerName:         c.ServerName,
			MinVersion:         minVersion,
		}
		if c.VerifyEnabled() {
			if err := c.loadRoots(cfg, trustEnv); err != nil {
				return nil, err
			}
		}
	}

	if err := c.loadClientCert(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the TLS configuration is consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both cert_file and key_file must be provided together")
	}
	if c.PKCS12File != "" && c.CertFile != "" {
		return fmt.Errorf("security/tls: pkcs12_file and cert_file are mutually exclusive")
	}
	if c.Context != nil && c.CAFile != "" {
		return fmt.Errorf("security/tls: ca_file cannot be combined with a pre-built context")
	}
	return nil
}

// loadRoots resolves the root CA pool. A nil pool means system roots.
func (c *TLSConfig) loadRoots(cfg *tls.Config, trustEnv bool) error {
	path := c.CAFile
	if path == "" && trustEnv {
		if f := os.Getenv(EnvCertFile); f != "" {
			path = f
		} else if d := os.Getenv(EnvCertDir); d != "" {
			path = d
		}
	}
	if path == "" {
		return nil
	}

	pool, err := loadCertPool(path)
	if err != nil {
		return err
	}
	cfg.RootCAs = pool
	return nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to read CA path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("security/tls: failed to read CA directory: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	pool := x509.NewCertPool()
	loaded := 0
	for _, f := range files {
		pemData, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("security/tls: failed to read CA file: %w", err)
		}
		if pool.AppendCertsFromPEM(pemData) {
			loaded++
		}
	}
	if loaded == 0 {
		return nil, fmt.Errorf("security/tls: no CA certificates found in %s", path)
	}
	return pool, nil
}

// loadClientCert attaches PEM or PKCS#12 client certificate material.
func (c *TLSConfig) loadClientCert(cfg *tls.Config) error {
	switch {
	case c.CertFile != "" && c.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return fmt.Errorf("security/tls: failed to load client certificate: %w", err)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	case c.PKCS12File != "":
		cert, err := loadPKCS12(c.PKCS12File, c.PKCS12Password)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}
	return nil
}

func loadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("security/tls: failed to read pkcs12 file: %w", err)
	}
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("security/tls: failed to decode pkcs12 bundle: %w", err)
	}
	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, ca := range chain {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return cert, nil
}
