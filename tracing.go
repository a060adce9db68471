package tiercache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hupe1980/tiercache"

var (
	attrKey         = attribute.Key("tiercache.key")
	attrTier        = attribute.Key("tiercache.tier")
	attrHit         = attribute.Key("tiercache.hit")
	attrFailedTiers = attribute.Key("tiercache.failed_tiers")
	attrMatches     = attribute.Key("tiercache.matches")
	attrThreshold   = attribute.Key("tiercache.threshold")
)

func (c *Cache[T]) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "tiercache."+op, trace.WithAttributes(attrs...))
}

// endSpan records err (if any) and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
