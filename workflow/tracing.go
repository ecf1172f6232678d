package workflow

import (
	"context"

	"github.com/mmdatafocus/pos_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mmdatafocus/pos_backend/workflow")

// startSpan opens a workflow span and makes sure ctx carries a correlation id,
// which is stamped on the span and on every movement written under ctx.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	attrs = append(attrs, attribute.String("correlation_id", correlationId))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
