package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input, slog.LevelInfo))
		})
	}
}

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "prod", "")

	logger.Debug("hidden")
	logger.Info("reminder created", "reminder_id", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "reminder created", record["msg"])
	assert.Equal(t, float64(7), record["reminder_id"])
}

func TestNew_DevWritesTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "dev", "")

	logger.Debug("cooldown active", "trigger_id", "t-1")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "trigger_id=t-1")
}

func TestNew_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "dev", "warn")

	logger.Info("skipped")
	assert.Empty(t, buf.String())

	logger.Warn("compensating")
	assert.Contains(t, buf.String(), "compensating")
}

func TestContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := New(&buf, "dev", "")
	ctx := ToContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	ctx = With(ctx, "reminder_id", 3)
	FromContext(ctx).Info("fired")
	assert.Contains(t, buf.String(), "reminder_id=3")
}
