package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scopes.
const (
	appScope = "panditseva"
	dbScope  = "panditseva/db"
)

// DBOperation is the kind of statement a repository runs.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
)

// EndFunc ends a span, recording err when it is non-nil.
type EndFunc func(err error)

// StartDBSpan starts a client span named "<operation> <table>" for a
// Postgres statement. Repositories end it from a deferred closure over their
// named error:
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationUpdate)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, op DBOperation) (context.Context, EndFunc) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(op)),
	}
	name := string(op)
	if table != "" {
		name += " " + table
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	ctx, span := otel.Tracer(dbScope).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx, ender(span)
}

// StartSpan starts an internal span for a unit of domain work such as a
// review submission.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, EndFunc) {
	ctx, span := otel.Tracer(appScope).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, ender(span)
}

// AddEvent records a named event on the span in ctx, if any.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// ender marks the span failed for any error except a cancelled context,
// which only means the caller went away.
func ender(span trace.Span) EndFunc {
	return func(err error) {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			span.AddEvent("canceled")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
