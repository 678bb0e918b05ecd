package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("payment-service", WithOutput(&buf), WithoutStacks())

	ctx := l.WithRequestID(context.Background(), "req-1")
	ctx = l.WithRideID(ctx, "R1")
	ctx = l.WithMessageID(ctx, " ")

	l.Error(ctx, "", " charge failed ", errors.New("declined"), map[string]any{"amount": "100"})

	var e LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	require.Equal(t, "ERROR", e.Level)
	require.Equal(t, "unspecified", e.Action)
	require.Equal(t, "charge failed", e.Message)
	require.Equal(t, "req-1", e.RequestID)
	require.Equal(t, "R1", e.RideID)
	require.Empty(t, e.MessageID)
	require.Equal(t, "declined", e.Error.Msg)
	require.Empty(t, e.Error.Stack)
}

func TestLogger_DebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := New("svc", WithOutput(&buf), WithDebug(false))

	l.Debug(context.Background(), "noise", "hidden", nil)
	l.Info(context.Background(), "kept", "visible", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"action":"kept"`)
}

func TestLogger_UnencodableDetails(t *testing.T) {
	var buf bytes.Buffer
	l := New("svc", WithOutput(&buf))

	l.Info(context.Background(), "odd", "channel details", map[string]any{"ch": make(chan int)})

	var e LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	require.Nil(t, e.Details)
	require.Equal(t, "odd", e.Action)
}
