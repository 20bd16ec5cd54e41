package tls

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestSelfSignedCoversHosts(t *testing.T) {
	certPEM, keyPEM, err := SelfSigned([]string{"mock.local", "10.0.0.1"}, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, string(keyPEM), "EC PRIVATE KEY")

	cert := parseCert(t, certPEM)
	assert.Equal(t, []string{"mock.local"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.True(t, cert.IPAddresses[0].Equal(net.ParseIP("10.0.0.1")))
	assert.NoError(t, cert.VerifyHostname("mock.local"))
}

func TestSelfSignedDefaultsToLocalhost(t *testing.T) {
	certPEM, _, err := SelfSigned(nil, time.Hour)
	require.NoError(t, err)

	cert := parseCert(t, certPEM)
	assert.NoError(t, cert.VerifyHostname("localhost"))
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
}

func TestServerConfig(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		cfg, err := ServerConfig("", "", nil)
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
	})

	t.Run("from files", func(t *testing.T) {
		dir := t.TempDir()
		certPEM, keyPEM, err := SelfSigned(nil, time.Hour)
		require.NoError(t, err)
		certFile := filepath.Join(dir, "cert.pem")
		keyFile := filepath.Join(dir, "key.pem")
		require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
		require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

		cfg, err := ServerConfig(certFile, keyFile, nil)
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
	})

	t.Run("half configured", func(t *testing.T) {
		_, err := ServerConfig("cert.pem", "", nil)
		assert.Error(t, err)
	})

	t.Run("missing files", func(t *testing.T) {
		_, err := ServerConfig("/nonexistent/cert.pem", "/nonexistent/key.pem", nil)
		assert.Error(t, err)
	})
}
