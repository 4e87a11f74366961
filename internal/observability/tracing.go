// Package observability wraps OpenTelemetry tracing and Server-Timing
// metrics for the service layer. Without a configured TracerProvider the
// global no-op provider is used.
package observability

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by this module.
const TracerName = "github.com/servizo/api"

// Attribute keys used on service spans.
const (
	AttrCategoryID = "servizo.category.id"
	AttrItemID     = "servizo.menu_item.id"
	AttrOrderID    = "servizo.order.id"
	AttrTableNum   = "servizo.table.number"
	AttrIntentID   = "servizo.payment.intent_id"
	AttrEventKind  = "servizo.payment.event_kind"
)

func CategoryAttr(id uuid.UUID) attribute.KeyValue { return attribute.String(AttrCategoryID, id.String()) }
func ItemAttr(id uuid.UUID) attribute.KeyValue     { return attribute.String(AttrItemID, id.String()) }
func OrderAttr(id uuid.UUID) attribute.KeyValue    { return attribute.String(AttrOrderID, id.String()) }
func TableAttr(n int32) attribute.KeyValue         { return attribute.Int(AttrTableNum, int(n)) }
func IntentAttr(id string) attribute.KeyValue      { return attribute.String(AttrIntentID, id) }
func EventKindAttr(k string) attribute.KeyValue    { return attribute.String(AttrEventKind, k) }

// Operation is a running span paired with a Server-Timing metric.
type Operation struct {
	span   trace.Span
	timing *ServerTimingMetric
}

// Start opens a span and a Server-Timing metric named name. The returned
// context carries the span.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Operation{span: span, timing: StartServerTiming(ctx, name)}
}

// End records err on the span, if any, and closes both the span and the
// timing metric. It is meant to be deferred with a pointer to the named
// error result.
func (o *Operation) End(errp *error) {
	o.timing.Stop()
	if errp != nil && *errp != nil {
		o.span.RecordError(*errp)
		o.span.SetStatus(codes.Error, (*errp).Error())
	}
	o.span.End()
}
