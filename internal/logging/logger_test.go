package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	logger.Info("resolved %s", "db/password")
	logger.Warn("serving stale value")
	logger.Error("all providers exhausted")
	logger.Debug("should not appear")

	out := buf.String()
	assert.Contains(t, out, "✓ resolved db/password")
	assert.Contains(t, out, "⚠ serving stale value")
	assert.Contains(t, out, "✗ all providers exhausted")
	assert.NotContains(t, out, "should not appear")
}

func TestLoggerDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)

	logger.Debug("circuit %s -> open", "vault-main")
	assert.Contains(t, buf.String(), "[DEBUG] circuit vault-main -> open")
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
}

func TestRedact(t *testing.T) {
	msg := "fetch failed for token abc123xyz at vault"
	out := Redact(msg, []string{"abc123xyz"})
	assert.Equal(t, "fetch failed for token [REDACTED] at vault", out)

	// Short values are not replaced.
	out = Redact("status ok", []string{"ok"})
	assert.Equal(t, "status ok", out)
}
