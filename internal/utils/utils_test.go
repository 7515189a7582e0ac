package utils

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	for _, k := range []string{"PG_HOST", "PG_PORT", "PG_USER", "PG_PASSWORD", "PG_DB", "PG_SSLMODE"} {
		t.Setenv(k, "")
	}
	assert.Equal(t, "postgres://postgres@localhost:5432/shelters?sslmode=disable", BuildPostgresDSNFromEnv())
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PASSWORD", "p@ss")
	t.Setenv("PG_SSLMODE", "require")
	// 密码需转义
	assert.Equal(t, "postgres://postgres:p%40ss@db:5432/shelters?sslmode=require", BuildPostgresDSNFromEnv())
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "certs", "server.key")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "shelter-api.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)

	st, err := os.Stat(cert)
	require.NoError(t, err)
	require.NoError(t, EnsureSelfSignedCert(cert, key, "other"))
	st2, err := os.Stat(cert)
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(st2.ModTime()), "已有证书不重写")
}
