package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewProvider_ExportsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := NewProvider(exporter, Config{ServiceName: "cvchat-test", Version: "v1.2.3"})

	_, span := tp.Tracer(TracerName).Start(context.Background(), "chat.Ask")
	span.SetAttributes(attribute.String("chat.intent", "fact_retrieval"))
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "chat.Ask" {
		t.Errorf("span name = %q", spans[0].Name)
	}

	got := map[string]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "cvchat-test" || got["service.version"] != "v1.2.3" {
		t.Errorf("resource attributes = %v", got)
	}
}

func TestExporterOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"url", Config{Endpoint: "https://collector.example.com/v1/traces"}, 1},
		{"host port", Config{Endpoint: "collector:4318"}, 1},
		{"insecure host port", Config{Endpoint: "collector:4318", Insecure: true}, 2},
	}
	for _, tt := range tests {
		if got := len(exporterOptions(tt.cfg)); got != tt.want {
			t.Errorf("%s: %d options, want %d", tt.name, got, tt.want)
		}
	}
}
