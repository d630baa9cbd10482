package session

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/phonebridge/internal/observe"
	"github.com/MrWong99/phonebridge/internal/store"
	"github.com/MrWong99/phonebridge/internal/transcript"
)

// syncBuffer is a bytes.Buffer safe for the loop and helper goroutines to
// log into concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Not parallel: swaps the global tracer provider.
func TestSession_CallSpanAndLogs(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	var logs syncBuffer
	tr := transcriberByLength(map[int]string{2400: "Hello."})
	h := newHarness(t, Config{Mode: transcript.ModeLive}, Deps{
		Transcriber: tr,
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
	})
	h.s.OnStart("MZ1", "")
	h.waitFor("active", func(i Info) bool { return i.State == StateActive.String() })
	h.speak(2400)
	h.pause()
	h.waitFor("caller turn", func(i Info) bool { return i.CallerTurns == 1 })
	rec := h.end()
	if rec.Status != store.StatusComplete {
		t.Fatalf("status = %q, want complete", rec.Status)
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range exp.GetSpans() {
		byName[s.Name] = s
	}
	call, ok := byName["call"]
	if !ok {
		t.Fatalf("no call span recorded, got %v", exp.GetSpans())
	}
	attrs := map[string]string{}
	for _, kv := range call.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[string(observe.AttrCallID)] != "call-1" {
		t.Errorf("call span call id = %q, want call-1", attrs[string(observe.AttrCallID)])
	}
	if attrs[string(attrStatus)] != string(store.StatusComplete) {
		t.Errorf("call span status = %q, want complete", attrs[string(attrStatus)])
	}

	traceID := call.SpanContext.TraceID()
	for _, name := range []string{"call.transcribe_turn", "call.finalize"} {
		child, ok := byName[name]
		if !ok {
			t.Errorf("no %s span recorded", name)
			continue
		}
		if child.Parent.SpanID() != call.SpanContext.SpanID() || child.SpanContext.TraceID() != traceID {
			t.Errorf("%s is not a child of the call span", name)
		}
	}

	logged := logs.String()
	for _, want := range []string{"trace_id=" + traceID.String(), "call_id=call-1", "call ended"} {
		if !strings.Contains(logged, want) {
			t.Errorf("logs missing %q:\n%s", want, logged)
		}
	}
}
