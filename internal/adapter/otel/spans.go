package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "labcore"

// StartScopedOpSpan starts a span for one gateway operation. The tenant ID is
// recorded so traces can be filtered per lab.
func StartScopedOpSpan(ctx context.Context, op, entity, scope, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("labcore.op", op),
			attribute.String("labcore.entity", entity),
			attribute.String("labcore.scope", scope),
			attribute.String("labcore.tenant_id", tenantID),
		),
	)
}

// StartResolveSpan starts a span for membership resolution.
func StartResolveSpan(ctx context.Context, userID, requestedTenant string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenancy.resolve",
		trace.WithAttributes(
			attribute.String("labcore.user_id", userID),
			attribute.String("labcore.requested_tenant", requestedTenant),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
