package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "info", want: slog.LevelInfo},
		{input: "ERROR", want: slog.LevelError},
		{input: "warning", want: slog.LevelWarn},
		{input: "debug", want: slog.LevelDebug},
		{input: "trace", want: LevelTrace},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	original := currentLevel.Load().(slog.Level)
	t.Cleanup(func() {
		currentLevel.Store(original)
		updateHandler()
	})

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, slog.LevelDebug, currentLevel.Load().(slog.Level))

	assert.Error(t, SetLogLevel("loud"))
	assert.Equal(t, slog.LevelDebug, currentLevel.Load().(slog.Level))
}

func TestBuildArgsOrdered(t *testing.T) {
	args := buildArgs("relay", map[string]any{"status": 202, "method": "POST", "bytes": 10})
	assert.Equal(t, []any{"component", "relay", "bytes", 10, "method", "POST", "status", 202}, args)
}

func TestContextFields(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	fields := map[string]any{"path": "/send_mail"}

	out := ContextFields(ctx, fields)
	assert.Equal(t, "abc-123", out["correlation_id"])
	assert.Equal(t, "/send_mail", out["path"])
	assert.NotContains(t, fields, "correlation_id", "input map must not be mutated")

	plain := ContextFields(context.Background(), nil)
	assert.Empty(t, plain)
}
