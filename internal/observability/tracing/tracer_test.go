package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_InstallsProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown := InitTracer("content-pipeline-test", sdktrace.WithSyncer(exporter))
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

	_, span := GetTracer().Start(context.Background(), "retry.Execute")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "retry.Execute" {
		t.Errorf("expected span name retry.Execute, got %s", spans[0].Name)
	}

	found := false
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == "service.name" && attr.Value.AsString() == "content-pipeline-test" {
			found = true
		}
	}
	if !found {
		t.Error("service.name resource attribute not found")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
