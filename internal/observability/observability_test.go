package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func noEnv(string) string { return "" }

func TestInstrumentText(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := instrument(context.Background(), slog.LevelInfo, FormatText, &buf, noEnv)
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	slog.Debug("hidden")
	slog.Info("login started", "state_length", 24)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"login started\"")
	assert.Contains(t, out, "state_length=24")
}

func TestInstrumentJSON(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	_, err := instrument(context.Background(), slog.LevelWarn, FormatJSON, &buf, noEnv)
	require.NoError(t, err)

	slog.Info("hidden")
	slog.Warn("falling back to settings file", "key", "TODOIST_TOKEN")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "falling back to settings file", record["msg"])
	assert.Equal(t, "TODOIST_TOKEN", record["key"])
}

func TestInstrumentOTel(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := instrument(context.Background(), slog.LevelInfo, FormatOTel, &buf, noEnv)
	require.NoError(t, err)

	slog.Debug("hidden by minsev")
	slog.Info("autostart enabled")
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "autostart enabled")
	assert.NotContains(t, out, "hidden by minsev")
}

func TestInstrumentRejectsUnknownFormat(t *testing.T) {
	restoreDefaultLogger(t)
	_, err := instrument(context.Background(), slog.LevelInfo, "xml", &bytes.Buffer{}, noEnv)
	require.Error(t, err)
}

func TestInstrumentRejectsUnknownOTLPProtocol(t *testing.T) {
	restoreDefaultLogger(t)
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://127.0.0.1:4318",
		"OTEL_EXPORTER_OTLP_PROTOCOL": "carrier-pigeon",
	}
	_, err := instrument(context.Background(), slog.LevelInfo, FormatText, &bytes.Buffer{}, func(k string) string { return env[k] })
	require.Error(t, err)
}

func TestOTLPProtocol(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		want     string
		wantSend bool
	}{
		{name: "not configured", env: map[string]string{}},
		{name: "default http", env: map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4318"}, want: "http/protobuf", wantSend: true},
		{name: "grpc", env: map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4317", "OTEL_EXPORTER_OTLP_PROTOCOL": "grpc"}, want: "grpc", wantSend: true},
		{name: "logs override", env: map[string]string{
			"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT": "http://collector:4317",
			"OTEL_EXPORTER_OTLP_PROTOCOL":      "http/protobuf",
			"OTEL_EXPORTER_OTLP_LOGS_PROTOCOL": "grpc",
		}, want: "grpc", wantSend: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := otlpProtocol(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.wantSend, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, minsev.SeverityDebug, severityFor(slog.LevelDebug))
	assert.Equal(t, minsev.SeverityInfo, severityFor(slog.LevelInfo))
	assert.Equal(t, minsev.SeverityWarn, severityFor(slog.LevelWarn))
	assert.Equal(t, minsev.SeverityError, severityFor(slog.LevelError))
}

func TestFanoutHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "tray").WithGroup("event")

	logger.Debug("menu updated", "kind", "authentication")
	logger.Warn("subscriber failed", "kind", "autostart")

	assert.Contains(t, debug.String(), "menu updated")
	assert.Contains(t, debug.String(), "component=tray")
	assert.Contains(t, debug.String(), "event.kind=authentication")
	assert.NotContains(t, warn.String(), "menu updated")
	assert.Contains(t, warn.String(), "subscriber failed")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
