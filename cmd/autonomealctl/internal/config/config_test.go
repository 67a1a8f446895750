package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolateHome(t)

	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, s.ServerURL)
	assert.Equal(t, DefaultTimeout, s.Timeout)
	assert.False(t, s.Debug)
	assert.Empty(t, s.Token)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	isolateHome(t)
	t.Setenv("AUTONOMEAL_SERVER", "http://env:9090/")
	t.Setenv("AUTONOMEAL_DEBUG", "true")
	t.Setenv("AUTONOMEAL_TIMEOUT", "5s")
	t.Setenv("AUTONOMEAL_NON_INTERACTIVE", "1")

	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://env:9090", s.ServerURL)
	assert.True(t, s.Debug)
	assert.True(t, s.NonInteractive)
	assert.Equal(t, 5*time.Second, s.Timeout)
}

func TestLoad_OTLPEndpointFromStandardVariable(t *testing.T) {
	isolateHome(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

	s, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://collector:4318", s.OTLPEndpoint)
}

func TestLoad_WithDefaultConfigFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server: "http://file:8888"
timeout: 12s
`), 0o600))

	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://file:8888", s.ServerURL)
	assert.Equal(t, 12*time.Second, s.Timeout)
}

func TestLoad_EnvironmentVariablePrecedence(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "autonomeal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`server: "http://file"`), 0o600))
	t.Setenv("AUTONOMEAL_SERVER", "http://env")

	s, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://env", s.ServerURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateHome(t)
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyServer(t *testing.T) {
	isolateHome(t)
	t.Setenv("AUTONOMEAL_SERVER", "  ")
	_, err := Load(NewViper(), "")
	assert.Error(t, err)
}

func TestInjectConfig(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() { MustFromContext(context.Background()) })

	cfg := &GlobalConfig{Settings: Settings{ServerURL: DefaultServerURL}}
	ctx := InjectConfig(context.Background(), cfg)
	assert.Same(t, cfg, MustFromContext(ctx))
}
