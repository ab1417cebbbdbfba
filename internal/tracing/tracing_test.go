package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	tr, err := InitTracing(Config{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if GetTracer() != tr {
		t.Error("GetTracer should return the installed tracer")
	}

	ctx, span := Start(context.Background(), "test.op", "offer.id", "abc", "dangling")
	if ctx == nil {
		t.Fatal("nil context from Start")
	}
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer should produce invalid span contexts")
	}
	End(span, errors.New("boom"))

	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
