package tracing_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/rating"
	"github.com/onnwee/panditseva/internal/tracing"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

// TestReviewSubmissionTrace sends a review through the tracing middleware
// into the rating service and checks both spans land in one trace.
func TestReviewSubmissionTrace(t *testing.T) {
	recorder := recordSpans(t)
	reviews := rating.NewService(rating.ServiceConfig{
		Store:  rating.NewInMemoryStore(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	handler := middleware.Tracing("panditseva-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, err := reviews.Submit(r.Context(), rating.Submission{
			SubjectID:    "p-1",
			SubjectType:  rating.TypePandit,
			BookingID:    "b-1",
			ReviewerID:   "u-1",
			ReviewerType: rating.TypeUser,
			Rating:       5,
		})
		if err != nil {
			t.Errorf("Submit() error = %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/user/bookings/b-1/review", nil))

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range recorder.Ended() {
		byName[span.Name()] = span
	}
	server, ok := byName["POST /user/bookings/{id}/review"]
	if !ok {
		t.Fatalf("missing server span, got %v", byName)
	}
	submit, ok := byName["rating.submit"]
	if !ok {
		t.Fatalf("missing rating.submit span, got %v", byName)
	}

	if submit.SpanContext().TraceID() != server.SpanContext().TraceID() {
		t.Error("rating.submit is in a different trace")
	}
	if submit.Parent().SpanID() != server.SpanContext().SpanID() {
		t.Error("rating.submit should be a child of the server span")
	}

	attrs := make(map[attribute.Key]string)
	for _, kv := range submit.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["rating.subject_type"] != "pandit" || attrs["booking.id"] != "b-1" {
		t.Errorf("attributes = %v", attrs)
	}
	if events := submit.Events(); len(events) != 1 || events[0].Name != "aggregate_updated" {
		t.Errorf("events = %v, want one aggregate_updated", events)
	}
}

// TestIncomingTraceparentIsContinued checks that a request carrying a W3C
// traceparent joins the caller's trace.
func TestIncomingTraceparentIsContinued(t *testing.T) {
	recordSpans(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var got string
	handler := middleware.Tracing("panditseva-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetTraceID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/user/pandits/search", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != traceID {
		t.Errorf("trace ID = %q, want %q", got, traceID)
	}
}

func TestHelpersWithoutProvider(t *testing.T) {
	p, err := tracing.NewProvider(context.Background(), tracing.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	if p.Enabled() {
		t.Fatal("provider should be disabled")
	}

	ctx, end := tracing.StartSpan(context.Background(), "rating.reconcile")
	tracing.AddEvent(ctx, "nothing_dirty")
	end(nil)
}
