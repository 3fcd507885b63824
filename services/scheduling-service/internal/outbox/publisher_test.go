package outbox

import (
	"context"
	"testing"

	"github.com/himsog/himsog/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	rec := Record{
		ID:            7,
		EventID:       "2f1e7c1a-0000-4000-8000-000000000001",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     "himsog.appointment.created.v1",
		Payload:       []byte(`{"appointmentId":"appt-1"}`),
		Traceparent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	msg := Message(context.Background(), rec)

	if msg.Topic != rec.EventType {
		t.Fatalf("expected topic %s, got %s", rec.EventType, msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("expected key appt-1, got %s", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != rec.EventID || meta.EventType != rec.EventType {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Traceparent {
		t.Fatalf("expected stored traceparent to be forwarded, got %q", got)
	}
}

func TestMessageWithoutTrace(t *testing.T) {
	msg := Message(context.Background(), Record{EventID: "e", EventType: "t", AggregateID: "a"})
	if kafkax.HeaderValue(msg.Headers, "traceparent") != "" {
		t.Fatalf("expected no traceparent header")
	}
}
