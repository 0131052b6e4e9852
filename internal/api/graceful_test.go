package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/insider"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
)

func TestNewHTTPServer_Timeouts(t *testing.T) {
	srv := NewHTTPServer("127.0.0.1:0", http.NewServeMux())
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 90*time.Second, srv.WriteTimeout, "write timeout must cover a paced fan-out with a cooldown")
	assert.NotZero(t, srv.IdleTimeout)
}

func TestNewHTTPSServerWithConfig_MinVersion(t *testing.T) {
	certFile, keyFile := writeTempCert(t)

	tests := []struct {
		version string
		want    uint16
	}{
		{version: "1.2", want: tls.VersionTLS12},
		{version: "1.3", want: tls.VersionTLS13},
		{version: "", want: tls.VersionTLS13},
	}
	for _, tt := range tests {
		srv, err := NewHTTPSServerWithConfig("127.0.0.1:0", certFile, keyFile, tt.version, http.NewServeMux())
		require.NoError(t, err)
		assert.Equal(t, tt.want, srv.TLSConfig.MinVersion, "min_version %q", tt.version)
	}

	_, err := NewHTTPSServerWithConfig("127.0.0.1:0", "missing", "missing", "1.3", http.NewServeMux())
	assert.Error(t, err)
}

func TestRunTLS_ServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	certFile, keyFile := writeTempCert(t)

	port := freePort(t)
	cfg := config.ServerConfig{
		Host:     "127.0.0.1",
		HTTPPort: port,
		TLS:      config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2"},
	}
	server := NewServer(cfg, testAPIConfig(), &fakeReddit{}, insider.MockProvider{},
		WithLogger(logging.Discard()), WithMetrics(metrics.NewMetrics("tls")))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	client := &http.Client{
		Timeout:   time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}, //nolint:gosec // self-signed test cert
	}
	url := "https://" + cfg.Addr() + "/health"

	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestSignalHandling(t *testing.T) {
	ch := SetupSignalHandler()
	defer signal.Stop(ch)

	go func() {
		ch <- os.Interrupt
	}()

	assert.Equal(t, os.Interrupt, WaitForSignal(ch))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return n
}

func writeTempCert(t *testing.T) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	return certFile, keyFile
}
