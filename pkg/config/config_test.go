package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":1080", cfg.Addr)
	assert.Equal(t, 10, cfg.MaxPreview)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxExpectations, cfg.MaxExpectations)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "expectd.yaml", `
addr: "127.0.0.1:9090"
maxExpectations: 10
caseInsensitive: true
log:
  level: debug
  format: json
forward:
  timeout: 5
  http2: true
initializationFiles:
  - "init/*.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, 10, cfg.MaxExpectations)
	assert.True(t, cfg.CaseInsensitive)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Forward.Timeout)
	assert.True(t, cfg.Forward.HTTP2)
	assert.Equal(t, []string{"init/*.json"}, cfg.InitializationFiles)

	// Unset keys keep their defaults.
	assert.Equal(t, Default().MaxLogEntries, cfg.MaxLogEntries)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.BaseDir())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "expectd.json", `{
  "addr": ":8080",
  "maximumNumberOfRequestToReturnInVerificationFailure": 3,
  "tls": {"enabled": true}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 3, cfg.MaxPreview)
	require.NotNil(t, cfg.TLS)
	assert.True(t, cfg.TLS.Enabled)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing file", filepath.Join(dir, "missing.yaml"), ErrFileNotFound},
		{"empty file", writeFile(t, dir, "empty.yaml", "  \n"), ErrEmptyFile},
		{"invalid json", writeFile(t, dir, "bad.json", "{ nope }"), ErrInvalidJSON},
		{"invalid yaml", writeFile(t, dir, "bad.yaml", "addr: [unclosed"), ErrInvalidYAML},
		{"unknown yaml key", writeFile(t, dir, "unknown.yaml", "colour: red\n"), ErrInvalidYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadRejectsUnknownJSONKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "expectd.json", `{"colour": "red"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Addr = "not-an-address"
	cfg.MaxExpectations = 0
	cfg.Log.Level = "loud"
	cfg.TLS = &TLSConfig{Enabled: true, CertFile: "cert.pem"}
	cfg.Metrics.Addr = "metrics"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"addr: must be host:port",
		"maxExpectations: must be at least 1",
		"log.level: must be one of [debug info warn error]",
		"tls.keyFile: is required when CertFile is set",
		"metrics.addr: must be host:port",
	} {
		assert.Contains(t, err.Error(), want)
	}

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAddr, ":7070")
	t.Setenv(EnvMaxLogEntries, "42")
	t.Setenv(EnvCaseInsensitive, "yes")
	t.Setenv(EnvTLS, "true")
	t.Setenv(EnvInitializationFiles, "a.json, b/**/*.yaml ,")
	t.Setenv(EnvMetricsAddr, "127.0.0.1:9090")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 42, cfg.MaxLogEntries)
	assert.True(t, cfg.CaseInsensitive)
	require.NotNil(t, cfg.TLS)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, []string{"a.json", "b/**/*.yaml"}, cfg.InitializationFiles)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)
}

func TestApplyEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "expectd.yaml", "addr: \":9000\"\n")
	t.Setenv(EnvAddr, ":9001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.Addr)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv(EnvMaxExpectations, "lots")
	t.Setenv(EnvCaseInsensitive, "maybe")

	err := ApplyEnv(Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMaxExpectations)
	assert.Contains(t, err.Error(), EnvCaseInsensitive)
}
