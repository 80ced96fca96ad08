package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", true)

	ctx := IntoContext(context.Background(), "tick", "2024-03-01T23:30:00Z")
	ctx = IntoContext(ctx, "zone", "Asia/Tokyo")
	FromContext(ctx, Component("scheduler")).Debug("quota reset", "user_id", "u1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "2024-03-01T23:30:00Z", line["tick"])
	assert.Equal(t, "Asia/Tokyo", line["zone"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestFromContextWithoutAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", false)

	FromContext(context.Background(), nil).Info("dropped")
	assert.Zero(t, buf.Len())

	FromContext(context.Background(), nil).Warn("kept")
	assert.True(t, strings.Contains(buf.String(), "msg=kept"))
}
