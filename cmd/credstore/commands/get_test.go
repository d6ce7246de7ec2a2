package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/internal/logging"
)

const testConfig = `
version: 0
providers:
  - name: dev
    type: static
    ttl: 1h
    values:
      db/password: hunter2
      svc/api-key: key-123
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return &App{
		ConfigPath: path,
		Logger:     logging.NewWithWriter(io.Discard, false),
	}
}

func captureStdout(t *testing.T, cmd *cobra.Command, args []string) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	cmd.SetArgs(args)
	execErr := cmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String(), execErr
}

func TestGetCommand(t *testing.T) {
	out, err := captureStdout(t, NewGetCommand(newTestApp(t)), []string{"db/password"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", strings.TrimSpace(out))
}

func TestGetCommandJSON(t *testing.T) {
	out, err := captureStdout(t, NewGetCommand(newTestApp(t)), []string{"svc/api-key", "--json"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "key-123", decoded["value"])
	assert.Equal(t, "dev", decoded["provider"])
}

func TestGetCommandDebugLogNeverLeaksValue(t *testing.T) {
	app := newTestApp(t)
	var logs bytes.Buffer
	app.Logger = logging.NewWithWriter(&logs, true)

	out, err := captureStdout(t, NewGetCommand(app), []string{"db/password"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", strings.TrimSpace(out))
	assert.Contains(t, logs.String(), "[REDACTED]")
	assert.NotContains(t, logs.String(), "hunter2")
}

func TestGetCommandUnknownSecret(t *testing.T) {
	cmd := NewGetCommand(newTestApp(t))
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	_, err := captureStdout(t, cmd, []string{"db/absent"})
	assert.Error(t, err)
}

func TestGetCommandMalformedReference(t *testing.T) {
	cmd := NewGetCommand(newTestApp(t))
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	_, err := captureStdout(t, cmd, []string{"no-namespace"})
	assert.Error(t, err)
}

func TestProvidersCommand(t *testing.T) {
	out, err := captureStdout(t, NewProvidersCommand(newTestApp(t)), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
	assert.Contains(t, out, "static")
	assert.Contains(t, out, "closed")
}

func TestDoctorCommand(t *testing.T) {
	_, err := captureStdout(t, NewDoctorCommand(newTestApp(t)), nil)
	assert.NoError(t, err)
}

func TestWarmCommand(t *testing.T) {
	_, err := captureStdout(t, NewWarmCommand(newTestApp(t)), nil)
	assert.NoError(t, err)
}

func TestWarmCommandNamespaceFilter(t *testing.T) {
	_, err := captureStdout(t, NewWarmCommand(newTestApp(t)), []string{"svc"})
	assert.NoError(t, err)
}
