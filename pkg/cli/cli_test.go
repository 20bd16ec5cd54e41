package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/pkg/config"
	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

const helloExpectation = `[{
  "id": "hello",
  "httpRequest": {"method": "GET", "path": "/hello"},
  "httpResponse": {"statusCode": 200, "body": "world"}
}]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"version"}, &out, io.Discard))
	assert.Contains(t, out.String(), "expectd "+Version)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", helloExpectation)
	noAction := writeFile(t, dir, "bad/no-action.json", `{"httpRequest": {"path": "/x"}}`)
	badTemplate := writeFile(t, dir, "bad/template.json",
		`{"httpResponseTemplate": {"templateType": "VELOCITY", "template": "{}"}}`)

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"validate", good}, &out, io.Discard))
		assert.Equal(t, "1 expectations valid\n", out.String())
	})

	t.Run("invalid files are all reported", func(t *testing.T) {
		err := run([]string{"validate", noAction, badTemplate}, io.Discard, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no-action.json")
		assert.Contains(t, err.Error(), "template.json")
	})

	t.Run("glob", func(t *testing.T) {
		err := run([]string{"validate", filepath.Join(dir, "**", "*.json")}, io.Discard, io.Discard)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		err := run([]string{"validate", filepath.Join(dir, "missing.json")}, io.Discard, io.Discard)
		assert.ErrorIs(t, err, config.ErrFileNotFound)
	})

	t.Run("requires an argument", func(t *testing.T) {
		assert.Error(t, run([]string{"validate"}, io.Discard, io.Discard))
	})
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "expectd.yaml", "maxExpectations: 0\n")
	err := run([]string{"serve", "--config", path}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxExpectations")
}

func TestServeLoadsInitializationFilesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "init/hello.json", helloExpectation)

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.SweepInterval = 1
	cfg.InitializationFiles = []string{filepath.Join(dir, "init", "*.json")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, logging.Nop(), func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/hello")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "world", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeExposesMetrics(t *testing.T) {
	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := free.Addr().String()
	require.NoError(t, free.Close())

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = metricsAddr
	cfg.InitializationFiles = []string{writeFile(t, dir, "hello.json", helloExpectation)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, logging.Nop(), func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/hello")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get("http://" + metricsAddr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), `expectd_dispatches_total{action="response",outcome="matched"} 1`)
	assert.Contains(t, string(body), "expectd_expectations_active 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeFailsOnInvalidInitializationFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.InitializationFiles = []string{writeFile(t, dir, "bad.json", `{"httpRequest": {}}`)}

	err := serve(context.Background(), cfg, logging.Nop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading initialization files")
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expectd.log")
	log := newLogger(config.LogConfig{Level: "debug", Format: "json", File: path}, io.Discard)
	log.Info("hello file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello file"`)
}

func TestNewInstanceMirrorsEntries(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Log.Entries = true
	log := newLogger(config.LogConfig{Level: "debug", Format: "text"}, &out)

	inst, err := newInstance(cfg, log)
	require.NoError(t, err)

	inst.engine.Dispatch(context.Background(), &expectation.HTTPRequest{Method: "GET", Path: "/mirrored"})
	inst.close()

	assert.Contains(t, out.String(), "type=RECEIVED_REQUEST")
	assert.Contains(t, out.String(), "path=/mirrored")
}

func TestNewInstanceWithTLS(t *testing.T) {
	cfg := config.Default()
	cfg.TLS = &config.TLSConfig{Enabled: true}

	inst, err := newInstance(cfg, logging.Nop())
	require.NoError(t, err)
	defer inst.close()
	assert.Equal(t, cfg.Addr, inst.server.Addr())
}
