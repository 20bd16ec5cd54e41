package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"trace":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"DEBUG":   LevelDebug,
		"WARNING": LevelWarn,
		"Error":   LevelError,
		"":        LevelInfo,
		"fatal":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat(""))
	assert.Equal(t, FormatText, ParseFormat("yaml"))
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	logger.Debug("hidden")
	logger.Info("expectation added", "id", "e1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "expectation added", rec["msg"])
	assert.Equal(t, "e1", rec["id"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expectd.log")
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf, File: &FileConfig{Path: path}})
	logger.Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, buf.String(), "to file")
}

func TestNop(t *testing.T) {
	assert.False(t, Nop().Enabled(context.Background(), LevelError))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	h := tee{
		New(Config{Level: LevelInfo, Output: &a}).Handler(),
		New(Config{Level: LevelError, Output: &b}).Handler(),
	}
	l := slog.New(h).With("component", "engine")
	l.Info("info line")
	l.Error("error line")

	assert.Contains(t, a.String(), "info line")
	assert.Contains(t, a.String(), "error line")
	assert.Contains(t, a.String(), "component=engine")
	assert.NotContains(t, b.String(), "info line")
	assert.Contains(t, b.String(), "error line")
}

func TestTee_CollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	ok := New(Config{Level: LevelInfo, Output: &buf}).Handler()
	h := tee{failingHandler{ok}, ok, failingHandler{ok}}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), LevelInfo, "msg", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, buf.String(), "msg")
}
