// Package observability configures process-wide logging.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Log formats accepted by Instrument.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

// ServiceName is reported as service.name unless OTEL_SERVICE_NAME overrides it.
const ServiceName = "capturist"

// scopeName is the instrumentation scope of records bridged from slog.
const scopeName = "github.com/capturist/capturist"

// Instrument installs the default slog logger for the given level and format and
// returns a func flushing any exporters.
//
// text and json write to stderr. otel routes records through the OpenTelemetry
// log SDK with a stdout exporter. Independently of the format, records are also
// exported over OTLP when OTEL_EXPORTER_OTLP_ENDPOINT or
// OTEL_EXPORTER_OTLP_LOGS_ENDPOINT is set.
func Instrument(ctx context.Context, level slog.Level, format string) (shutdown func(context.Context) error, err error) {
	return instrument(ctx, level, format, os.Stderr, os.Getenv)
}

func instrument(ctx context.Context, level slog.Level, format string, w io.Writer, getenv func(string) string) (func(context.Context) error, error) {
	var (
		handlers   []slog.Handler
		processors []sdklog.Processor
	)

	switch format {
	case FormatText:
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	case FormatJSON:
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case FormatOTel:
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewSimpleProcessor(exporter))
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	if protocol, ok := otlpProtocol(getenv); ok {
		exporter, err := newOTLPExporter(ctx, protocol)
		if err != nil {
			return nil, err
		}
		processors = append(processors, sdklog.NewBatchProcessor(exporter))
	}

	shutdown := func(context.Context) error { return nil }

	if len(processors) > 0 {
		res, err := resource.New(ctx,
			resource.WithAttributes(attribute.String("service.name", ServiceName)),
			resource.WithFromEnv(),
			resource.WithTelemetrySDK(),
		)
		if err != nil && !errors.Is(err, resource.ErrPartialResource) {
			return nil, fmt.Errorf("creating otel resource: %w", err)
		}

		opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
		for _, p := range processors {
			opts = append(opts, sdklog.WithProcessor(minsev.NewLogProcessor(p, severityFor(level))))
		}

		provider := sdklog.NewLoggerProvider(opts...)
		global.SetLoggerProvider(provider)
		handlers = append(handlers, otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(provider)))
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(newFanoutHandler(handlers...)))
	return shutdown, nil
}

// otlpProtocol reports whether an OTLP endpoint is configured and which protocol
// to use for it.
func otlpProtocol(getenv func(string) string) (string, bool) {
	if getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" && getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return "", false
	}

	protocol := getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	if protocol == "" {
		protocol = getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}
	if protocol == "" {
		protocol = "http/protobuf"
	}
	return protocol, true
}

// newOTLPExporter creates the exporter for protocol. Endpoint, headers and TLS
// settings are read from the standard OTEL_EXPORTER_OTLP_* variables.
func newOTLPExporter(ctx context.Context, protocol string) (sdklog.Exporter, error) {
	switch protocol {
	case "grpc":
		exporter, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp grpc log exporter: %w", err)
		}
		return exporter, nil
	case "http/protobuf":
		exporter, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp http log exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

func severityFor(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
