package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCerts creates a CA and one leaf certificate valid for 127.0.0.1, usable
// as both server and client certificate.
func writeCerts(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "courtcast test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Enabled:  true,
		CertFile: filepath.Join(dir, "tls.crt"),
		KeyFile:  filepath.Join(dir, "tls.key"),
		CAFile:   filepath.Join(dir, "ca.crt"),
	}
	write := func(path, typ string, der []byte) {
		if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(cfg.CertFile, "CERTIFICATE", leafDER)
	write(cfg.KeyFile, "EC PRIVATE KEY", keyDER)
	write(cfg.CAFile, "CERTIFICATE", caDER)
	return cfg
}

func TestConfig_Disabled(t *testing.T) {
	var c Config
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	srv, err := c.Server()
	if srv != nil || err != nil {
		t.Errorf("Server() = %v, %v; want nil, nil", srv, err)
	}
	cli, err := c.Client()
	if cli != nil || err != nil {
		t.Errorf("Client() = %v, %v; want nil, nil", cli, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	good := writeCerts(t)
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", good, false},
		{"ca only", Config{Enabled: true, CAFile: good.CAFile}, false},
		{"cert without key", Config{Enabled: true, CertFile: good.CertFile}, true},
		{"missing file", Config{Enabled: true, CertFile: "/nonexistent.crt", KeyFile: good.KeyFile}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Server(t *testing.T) {
	cfg := writeCerts(t)

	srv, err := cfg.Server()
	if err != nil {
		t.Fatalf("Server() error: %v", err)
	}
	if len(srv.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(srv.Certificates))
	}
	if srv.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", srv.ClientAuth)
	}
	if srv.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", srv.MinVersion)
	}

	noCA := cfg
	noCA.CAFile = ""
	srv, err = noCA.Server()
	if err != nil {
		t.Fatalf("Server() without CA error: %v", err)
	}
	if srv.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth without CA = %v, want NoClientCert", srv.ClientAuth)
	}

	if _, err := (Config{Enabled: true, CAFile: cfg.CAFile}).Server(); err == nil {
		t.Error("Server() without certificate should fail")
	}
}

func TestConfig_BadCA(t *testing.T) {
	cfg := writeCerts(t)
	if err := os.WriteFile(cfg.CAFile, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Client(); err == nil {
		t.Error("Client() with a garbage CA should fail")
	}
}

func TestMutualTLSHandshake(t *testing.T) {
	cfg := writeCerts(t)

	srvCfg, err := cfg.Server()
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TLS.PeerCertificates) == 0 {
			t.Error("no client certificate presented")
		}
		io.WriteString(w, "ok")
	}))
	server.TLS = srvCfg
	server.StartTLS()
	defer server.Close()

	cliCfg, err := cfg.Client()
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: cliCfg}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("mTLS request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	anonymous := cfg
	anonymous.CertFile, anonymous.KeyFile = "", ""
	anonCfg, err := anonymous.Client()
	if err != nil {
		t.Fatal(err)
	}
	client = &http.Client{Transport: &http.Transport{TLSClientConfig: anonCfg}}
	if resp, err := client.Get(server.URL); err == nil {
		resp.Body.Close()
		t.Error("request without a client certificate should fail")
	}
}
