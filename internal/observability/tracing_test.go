package observability

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("COGO_TRACING_ENABLED", "TRUE")
	t.Setenv("COGO_TRACING_EXPORTER", "OTLP")
	t.Setenv("COGO_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("COGO_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled {
		t.Fatalf("Enabled = false, want true")
	}
	if cfg.Exporter != "otlp" {
		t.Fatalf("Exporter = %q, want otlp", cfg.Exporter)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("SampleRatio = %v, want 0.25", cfg.SampleRatio)
	}
	if cfg.Endpoint != "collector:4317" {
		t.Fatalf("Endpoint = %q, want collector:4317", cfg.Endpoint)
	}
	if cfg.ServiceName != "cogo" {
		t.Fatalf("ServiceName = %q, want cogo", cfg.ServiceName)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	t.Setenv("COGO_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("SampleRatio = %v, want 1", got)
	}
}

func TestInitTracingStdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Writer = &buf

	ctx := context.Background()
	shutdown, err := InitTracing(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "reduce")
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"Name": "reduce"`)) {
		t.Fatalf("span not exported; output:\n%s", buf.String())
	}
	if _, err := InitTracing(ctx, DefaultTracingConfig(), nil); err != nil {
		t.Fatalf("reset tracing: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"
	if _, err := InitTracing(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
