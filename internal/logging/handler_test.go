// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup("authcore", "1.2.0", "json", &buf).Info("user logged in", "user_id", "01HZY")

	entry := decode(t, &buf)
	assert.Equal(t, "user logged in", entry["msg"])
	assert.Equal(t, "authcore", entry["service"])
	assert.Equal(t, "1.2.0", entry["version"])
	assert.Equal(t, "01HZY", entry["user_id"])
	assert.Contains(t, entry, "time")
}

func TestSetup_DefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup("authcore", "dev", "", &buf).Info("hello")
	decode(t, &buf)
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup("authcore", "dev", "text", &buf).Warn("account locked", "minutes", 30)

	out := buf.String()
	assert.Contains(t, out, "account locked")
	assert.Contains(t, out, "service=authcore")
	assert.Contains(t, out, "minutes=30")
}

func TestSetup_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Setup("authcore", "dev", "json", &buf).Debug("noise")
	assert.Empty(t, buf.String())

	SetupLevel("authcore", "dev", "json", slog.LevelDebug, &buf).Debug("detail")
	assert.Contains(t, buf.String(), "detail")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authcore", "dev", "json", &buf)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "traced")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	Setup("authcore", "dev", "json", &buf).Info("untraced")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authcore", "dev", "json", &buf).With("token", "abc")

	logger.WithGroup("request").Info("login",
		"password", "Str0ng!Pass",
		"Encryption_Key", "c2VjcmV0",
		"username", "alice")

	out := buf.String()
	assert.NotContains(t, out, "Str0ng!Pass")
	assert.NotContains(t, out, "c2VjcmV0")
	assert.NotContains(t, out, "abc")

	entry := decode(t, &buf)
	assert.Equal(t, Redacted, entry["token"])
	request := entry["request"].(map[string]any)
	assert.Equal(t, Redacted, request["password"])
	assert.Equal(t, "alice", request["username"])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("authcore", "dev", "json", true)
	assert.Same(t, logger, slog.Default())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
