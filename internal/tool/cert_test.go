package tool

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureTlsCertificate(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.pem")
	certFile := filepath.Join(dir, "cert.pem")

	require.NoError(t, EnsureTlsCertificate("jypelle", "Cedarhud Server", keyFile, certFile, []string{"192.168.4.1", "cedarhud.local"}))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Certificate)

	// Second call keeps the existing pair
	require.NoError(t, EnsureTlsCertificate("jypelle", "Cedarhud Server", keyFile, certFile, nil))
	again, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	require.Equal(t, pair.Certificate[0], again.Certificate[0])
}

func TestIsFileExists(t *testing.T) {
	dir := t.TempDir()
	ok, err := IsFileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, EnsureDir(filepath.Join(dir, "a", "b")))
	ok, err = IsFileExists(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	require.True(t, ok)
}
