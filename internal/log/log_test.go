package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("text", "info", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "table", "users")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "table=users")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("json", "warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"shown"`)
}

func TestNewRejectsBadInputs(t *testing.T) {
	var buf bytes.Buffer

	_, err := New("yaml", "info", &buf)
	assert.Error(t, err)

	_, err = New("text", "loud", &buf)
	assert.Error(t, err)
}
